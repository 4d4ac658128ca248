package components

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableGridRendersHeaderRuleAndRows(t *testing.T) {
	cols := []TableColumn{
		{Header: "Name", Width: 10},
		{Header: "Type", Width: 8},
	}
	out := TableGrid(cols, [][]string{{"Alpha", "Dataset"}, {"Beta", "Person"}}, 40)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 4)

	clean := SanitizeText(out)
	assert.Contains(t, clean, "Name")
	assert.Contains(t, clean, "Alpha")
	assert.Contains(t, clean, "Person")
	for _, line := range lines {
		assert.Equal(t, 40, lipgloss.Width(line))
	}
}

func TestTableGridZeroWidthRendersNothing(t *testing.T) {
	assert.Equal(t, "", TableGrid([]TableColumn{{Header: "A", Width: 3}}, nil, 0))
}

func TestFitGridColumnsStretchesLastColumn(t *testing.T) {
	cols := fitGridColumns([]TableColumn{{Width: 4}, {Width: 4}}, "│", 20)
	assert.Equal(t, 4, cols[0].Width)
	assert.Equal(t, 20-tableGridLeftOffset-4-1, cols[1].Width)
}

func TestRenderGridCellAlignment(t *testing.T) {
	assert.Equal(t, "ab  ", renderGridCell("ab", 4, lipgloss.Left))
	assert.Equal(t, "  ab", renderGridCell("ab", 4, lipgloss.Right))
	assert.Equal(t, " ab ", renderGridCell("ab", 4, lipgloss.Center))
}

func TestHighlightSelectionMarkersKeepsText(t *testing.T) {
	out := highlightSelectionMarkers("[x] shown")
	assert.Contains(t, SanitizeText(out), "[x] shown")
}

func TestTableGridGraphTypesWithActiveRow(t *testing.T) {
	cols := []TableColumn{
		{Header: "Shown", Width: 7},
		{Header: "Type", Width: 14},
		{Header: "Nodes", Width: 7, Align: lipgloss.Right},
		{Header: "Grouped", Width: 8},
	}
	rows := [][]string{
		{"[x]", "Dataset", "3", "yes"},
		{"[ ]", "Person", "1", "no"},
	}
	out := TableGridWithActiveRow(cols, rows, 60, 1)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 4)
	for _, line := range lines {
		assert.Equal(t, 60, lipgloss.Width(line))
	}
	assert.Contains(t, SanitizeText(lines[2]), "Dataset")
	assert.Contains(t, SanitizeText(lines[3]), "Person")
	assert.True(t, strings.HasSuffix(strings.TrimRight(SanitizeText(lines[2]), " "), "yes"))
}
