package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const bannerArt = `
 _  __  ___   ___  ___   ___  _____  ___   ___
| |/ / / __| | __||   \ |_ _||_   _|/ _ \ | _ \
| ' < | (_ | | _| | |) | | |   | | | (_) ||   /
|_|\_\ \___| |___||___/ |___|  |_|  \___/ |_|_\`

const bannerSubtitle = "Knowledge Graph Editor"

// RenderBanner returns the styled ASCII banner. With a workspace selected
// the subtitle names it.
func RenderBanner(workspace string) string {
	lines := splitLines(bannerArt)
	var rendered strings.Builder

	maxWidth := 0
	for _, line := range lines {
		if w := lipgloss.Width(line); w > maxWidth {
			maxWidth = w
		}
	}
	for _, line := range lines {
		if line == "" {
			continue
		}
		rendered.WriteString(BannerStyle.Render(line) + "\n")
	}

	subtitleText := bannerSubtitle
	if workspace != "" {
		subtitleText += " • " + workspace
	}
	subtitleWidth := lipgloss.Width(subtitleText)
	blockWidth := max(maxWidth, subtitleWidth)

	subtitle := lipgloss.NewStyle().
		Foreground(ColorMuted).
		Width(blockWidth).
		Align(lipgloss.Center).
		Render(subtitleText)
	underline := lipgloss.NewStyle().
		Foreground(ColorBorder).
		Width(blockWidth).
		Align(lipgloss.Center).
		Render(strings.Repeat("─", subtitleWidth))

	return "\n" + rendered.String() + "\n" + subtitle + "\n" + underline + "\n"
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}
