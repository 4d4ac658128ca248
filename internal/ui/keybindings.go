package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/gravitrone/kgeditor/internal/views"
)

// --- Key Constants ---

func isKey(msg tea.KeyMsg, keys ...string) bool {
	for _, k := range keys {
		if msg.String() == k {
			return true
		}
	}
	return false
}

func isQuit(msg tea.KeyMsg) bool {
	return isKey(msg, "q", "ctrl+c")
}

func isBack(msg tea.KeyMsg) bool {
	if msg.Type == tea.KeyEsc {
		return true
	}
	return isKey(msg, "esc", "escape", "ctrl+[")
}

func isUp(msg tea.KeyMsg) bool {
	return isKey(msg, "up", "k")
}

func isDown(msg tea.KeyMsg) bool {
	return isKey(msg, "down", "j")
}

func isEnter(msg tea.KeyMsg) bool {
	return isKey(msg, "enter", "return")
}

func isSpace(msg tea.KeyMsg) bool {
	return isKey(msg, " ")
}

func isSave(msg tea.KeyMsg) bool {
	return isKey(msg, "ctrl+s")
}

func isNextView(msg tea.KeyMsg) bool {
	return isKey(msg, "tab", "ctrl+right")
}

func isPrevView(msg tea.KeyMsg) bool {
	return isKey(msg, "shift+tab", "ctrl+left")
}

// modeForKey maps the mode switch keys of an open instance.
func modeForKey(msg tea.KeyMsg) (views.Mode, bool) {
	switch msg.String() {
	case "v":
		return views.ModeView, true
	case "e":
		return views.ModeEdit, true
	case "g":
		return views.ModeGraph, true
	case "r":
		return views.ModeRaw, true
	}
	return "", false
}
