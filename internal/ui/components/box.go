package components

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
)

func boxWidth(width int) int {
	// Use ~70% of terminal width, capped at 80
	if width <= 0 {
		return 0
	}
	w := width * 70 / 100
	if w < 40 {
		w = 40
	}
	if w > 80 {
		w = 80
	}
	return w
}

func safeBoxWidth(width int) int {
	if width <= 0 {
		return boxWidth(width)
	}
	w := boxWidth(width)
	if w > width {
		return width
	}
	return w
}

// Box renders content inside a bordered box.
func Box(content string, width int) string {
	return boxBorder.Width(safeBoxWidth(width)).Render(content)
}

// BoxContentWidth returns the inner content width excluding border and padding.
func BoxContentWidth(width int) int {
	w := safeBoxWidth(width)
	if w <= 0 {
		return 0
	}
	// Border adds 2, padding adds 4 (left+right).
	inner := w - 6
	if inner < 0 {
		return 0
	}
	return inner
}

// ClampTextWidth truncates text to the given visual width (ANSI-aware).
func ClampTextWidth(text string, width int) string {
	if width <= 0 {
		return text
	}
	cleaned := SanitizeOneLine(text)
	if lipgloss.Width(cleaned) <= width {
		return cleaned
	}
	return truncateRunes(cleaned, width)
}

// ActiveBox renders content inside a highlighted bordered box.
func ActiveBox(content string, width int) string {
	return boxBorderActive.Width(safeBoxWidth(width)).Render(content)
}

// ErrorBox renders a red bordered box for errors.
func ErrorBox(title, message string, width int) string {
	header := ""
	if title != "" {
		header = errorHeaderStyle.Render(title) + "\n\n"
	}
	body := errorBodyStyle.Render(message)
	return errorBorder.Width(safeBoxWidth(width)).Render(header + body)
}

// TitledBox renders a box with a header title.
func TitledBox(title, content string, width int) string {
	return titledBoxWithStyle(title, content, width, boxBorder, boxHeaderStyle, palette.Border)
}

func titledBoxWithStyle(title, content string, width int, boxStyle, headerStyle lipgloss.Style, borderColor lipgloss.Color) string {
	if title == "" {
		return boxStyle.Width(safeBoxWidth(width)).Render(content)
	}
	boxed := boxStyle.Width(safeBoxWidth(width)).Render(content)
	lines := strings.Split(boxed, "\n")
	if len(lines) == 0 {
		return boxed
	}

	lineWidth := lipgloss.Width(lines[0])
	if lineWidth < 4 {
		return boxed
	}

	border := lipgloss.RoundedBorder()
	middleLen := lineWidth - 2
	titleText := fmt.Sprintf(" [ %s ] ", title)
	if lipgloss.Width(titleText) > middleLen {
		titleText = truncateRunes(titleText, middleLen)
	}

	titleWidth := lipgloss.Width(titleText)
	left := (middleLen - titleWidth) / 2
	if left < 0 {
		left = 0
	}
	right := middleLen - titleWidth - left
	if right < 0 {
		right = 0
	}

	borderStyle := lipgloss.NewStyle().Foreground(borderColor)
	leftSeg := borderStyle.Render(border.TopLeft + strings.Repeat(border.Top, left))
	rightSeg := borderStyle.Render(strings.Repeat(border.Top, right) + border.TopRight)
	line := leftSeg + headerStyle.Render(titleText) + rightSeg
	if w := lipgloss.Width(line); w < lineWidth {
		line += borderStyle.Render(strings.Repeat(border.Top, lineWidth-w))
	} else if w > lineWidth {
		line = truncateRunes(line, lineWidth)
	}

	lines[0] = line
	return strings.Join(lines, "\n")
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	var b strings.Builder
	b.Grow(max)
	n := 0
	for _, r := range s {
		if n >= max {
			break
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func padRight(s string, width int) string {
	w := lipgloss.Width(s)
	if w >= width {
		return s
	}
	return s + strings.Repeat(" ", width-w)
}

// InfoRow renders a label: value row for detail views.
func InfoRow(label, value string) string {
	safeLabel := SanitizeOneLine(label)
	safeValue := SanitizeOneLine(value)
	return boxMutedStyle.Render(safeLabel+": ") + boxValueStyle.Render(safeValue)
}

// Table renders a key-value table with aligned columns inside a bordered box.
func Table(title string, rows []TableRow, width int) string {
	if len(rows) == 0 {
		return ""
	}

	// Find max label width for alignment
	maxLabel := 0
	safeRows := make([]TableRow, len(rows))
	for i, r := range rows {
		safeRows[i] = TableRow{
			Label: SanitizeOneLine(r.Label),
			Value: SanitizeOneLine(r.Value),
		}
		if lipgloss.Width(safeRows[i].Label) > maxLabel {
			maxLabel = lipgloss.Width(safeRows[i].Label)
		}
	}

	contentWidth := BoxContentWidth(width)
	if contentWidth <= 0 {
		contentWidth = maxLabel + 8
	}

	labelWidth := maxLabel
	if labelWidth > 24 {
		labelWidth = 24
	}
	if contentWidth > 0 {
		maxLabelWidth := contentWidth / 2
		if maxLabelWidth < 8 {
			maxLabelWidth = contentWidth
		}
		if labelWidth > maxLabelWidth {
			labelWidth = maxLabelWidth
		}
	}
	if labelWidth < 4 {
		labelWidth = maxLabel
	}
	valueWidth := contentWidth - labelWidth - 2
	if valueWidth < 4 {
		valueWidth = 4
		if contentWidth > 0 {
			labelWidth = maxInt(4, contentWidth-valueWidth-2)
		}
	}

	var b strings.Builder
	for i, r := range safeRows {
		labelText := ClampTextWidth(r.Label, labelWidth)
		valueText := ClampTextWidth(r.Value, valueWidth)
		label := boxLabelStyle.Render(padRight(labelText, labelWidth))
		b.WriteString(label + "  " + boxValueStyle.Render(valueText))
		if i < len(safeRows)-1 {
			b.WriteString("\n")
		}
	}

	if title != "" {
		return TitledBox(title, b.String(), width)
	}
	return Box(b.String(), width)
}

// TableRow is a single row in a key-value table.
type TableRow struct {
	Label string
	Value string
}

// Indent adds left padding to every line of a multi-line string.
func Indent(s string, spaces int) string {
	pad := strings.Repeat(" ", spaces)
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = pad + l
	}
	return strings.Join(lines, "\n")
}

// NestedTable renders a nested map as an indented key tree in a titled box.
func NestedTable(title string, data map[string]any, width int) string {
	if len(data) == 0 {
		return ""
	}
	return TitledBox(title, strings.Join(renderNestedLines(data, 0), "\n"), width)
}

func renderNestedLines(data map[string]any, indent int) []string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var lines []string
	pad := strings.Repeat(" ", indent)
	for _, k := range keys {
		switch typed := data[k].(type) {
		case map[string]any:
			lines = append(lines, pad+k+":")
			lines = append(lines, renderNestedLines(typed, indent+2)...)
		default:
			lines = append(lines, fmt.Sprintf("%s%s: %s", pad, SanitizeOneLine(k), SanitizeOneLine(FormatValue(typed))))
		}
	}
	return lines
}

// FormatValue renders a decoded JSON value on one line.
func FormatValue(val any) string {
	switch typed := val.(type) {
	case nil:
		return ""
	case string:
		return typed
	case []any:
		if len(typed) == 0 {
			return "[]"
		}
		parts := make([]string, 0, len(typed))
		for _, item := range typed {
			switch sub := item.(type) {
			case map[string]any:
				encoded, err := json.Marshal(sub)
				if err != nil {
					parts = append(parts, fmt.Sprintf("%v", sub))
				} else {
					parts = append(parts, string(encoded))
				}
			default:
				parts = append(parts, fmt.Sprintf("%v", sub))
			}
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return fmt.Sprintf("%v", typed)
		}
		return string(encoded)
	default:
		return fmt.Sprintf("%v", typed)
	}
}
