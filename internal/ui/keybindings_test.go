package ui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"

	"github.com/gravitrone/kgeditor/internal/views"
)

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestIsQuit(t *testing.T) {
	assert.True(t, isQuit(tea.KeyMsg{Type: tea.KeyCtrlC}))
	assert.True(t, isQuit(runes("q")))
	assert.False(t, isQuit(runes("a")))
}

func TestIsEnter(t *testing.T) {
	assert.True(t, isEnter(tea.KeyMsg{Type: tea.KeyEnter}))
	assert.False(t, isEnter(tea.KeyMsg{Type: tea.KeySpace}))
}

func TestIsSpace(t *testing.T) {
	assert.True(t, isSpace(tea.KeyMsg{Type: tea.KeySpace}))
	assert.False(t, isSpace(tea.KeyMsg{Type: tea.KeyEnter}))
}

func TestIsBack(t *testing.T) {
	assert.True(t, isBack(tea.KeyMsg{Type: tea.KeyEsc}))
	assert.False(t, isBack(tea.KeyMsg{Type: tea.KeyEnter}))
}

func TestIsDown(t *testing.T) {
	assert.True(t, isDown(tea.KeyMsg{Type: tea.KeyDown}))
	assert.True(t, isDown(runes("j")))
	assert.False(t, isDown(tea.KeyMsg{Type: tea.KeyUp}))
}

func TestIsUp(t *testing.T) {
	assert.True(t, isUp(tea.KeyMsg{Type: tea.KeyUp}))
	assert.True(t, isUp(runes("k")))
	assert.False(t, isUp(tea.KeyMsg{Type: tea.KeyDown}))
}

func TestViewSwitchKeys(t *testing.T) {
	assert.True(t, isNextView(tea.KeyMsg{Type: tea.KeyTab}))
	assert.True(t, isPrevView(tea.KeyMsg{Type: tea.KeyShiftTab}))
	assert.False(t, isNextView(tea.KeyMsg{Type: tea.KeyShiftTab}))
	assert.True(t, isSave(tea.KeyMsg{Type: tea.KeyCtrlS}))
}

func TestModeForKey(t *testing.T) {
	cases := map[string]views.Mode{
		"v": views.ModeView,
		"e": views.ModeEdit,
		"g": views.ModeGraph,
		"r": views.ModeRaw,
	}
	for key, want := range cases {
		got, ok := modeForKey(runes(key))
		assert.True(t, ok, key)
		assert.Equal(t, want, got, key)
	}
	_, ok := modeForKey(runes("c"))
	assert.False(t, ok)
}

func TestIsKey(t *testing.T) {
	assert.True(t, isKey(runes("s"), "s"))
	assert.True(t, isKey(tea.KeyMsg{Type: tea.KeyBackspace}, "backspace"))
	assert.True(t, isKey(tea.KeyMsg{Type: tea.KeyLeft}, "left"))
	assert.False(t, isKey(runes("s"), "a"))
	assert.False(t, isKey(tea.KeyMsg{Type: tea.KeyLeft}, "right"))
}
