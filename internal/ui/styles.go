package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/gravitrone/kgeditor/internal/ui/components"
)

// --- Theme Colors ---

// Theme is a named color set.
type Theme struct {
	Primary    lipgloss.Color
	Secondary  lipgloss.Color
	Accent     lipgloss.Color
	Background lipgloss.Color
	Text       lipgloss.Color
	Muted      lipgloss.Color
	Success    lipgloss.Color
	Error      lipgloss.Color
	Warning    lipgloss.Color
	Border     lipgloss.Color
}

// Themes available from the settings toggle.
var Themes = map[string]Theme{
	"default": {
		Primary:    lipgloss.Color("#7f57b4"), // purple
		Secondary:  lipgloss.Color("#436b77"), // teal
		Accent:     lipgloss.Color("#a7754e"),
		Background: lipgloss.Color("#16161d"),
		Text:       lipgloss.Color("#d7d9da"),
		Muted:      lipgloss.Color("#9ba0bf"),
		Success:    lipgloss.Color("#3f866b"),
		Error:      lipgloss.Color("#e06c75"),
		Warning:    lipgloss.Color("#c78854"),
		Border:     lipgloss.Color("#273540"),
	},
	"bright": {
		Primary:    lipgloss.Color("#3b5bdb"),
		Secondary:  lipgloss.Color("#0b7285"),
		Accent:     lipgloss.Color("#e8590c"),
		Background: lipgloss.Color("#f8f9fa"),
		Text:       lipgloss.Color("#212529"),
		Muted:      lipgloss.Color("#6c757d"),
		Success:    lipgloss.Color("#2b8a3e"),
		Error:      lipgloss.Color("#c92a2a"),
		Warning:    lipgloss.Color("#e67700"),
		Border:     lipgloss.Color("#adb5bd"),
	},
}

var (
	ColorPrimary    lipgloss.Color
	ColorSecondary  lipgloss.Color
	ColorAccent     lipgloss.Color
	ColorBackground lipgloss.Color
	ColorText       lipgloss.Color
	ColorMuted      lipgloss.Color
	ColorSuccess    lipgloss.Color
	ColorError      lipgloss.Color
	ColorWarning    lipgloss.Color
	ColorBorder     lipgloss.Color
)

// --- Reusable Styles ---

var (
	BannerStyle      lipgloss.Style
	TabActiveStyle   lipgloss.Style
	TabInactiveStyle lipgloss.Style
	TabDirtyStyle    lipgloss.Style
	SelectedStyle    lipgloss.Style
	NormalStyle      lipgloss.Style
	MutedStyle       lipgloss.Style
	SuccessStyle     lipgloss.Style
	ErrorStyle       lipgloss.Style
	WarningStyle     lipgloss.Style
	AccentStyle      lipgloss.Style
	HeaderStyle      lipgloss.Style
	TypeBadgeStyle   lipgloss.Style
	MetaKeyStyle     lipgloss.Style
	MetaValueStyle   lipgloss.Style
)

var currentTheme string

func init() {
	ApplyTheme("default")
}

// ApplyTheme switches every style to the named theme. Unknown names fall
// back to the default theme.
func ApplyTheme(name string) {
	t, ok := Themes[name]
	if !ok {
		name = "default"
		t = Themes[name]
	}
	currentTheme = name

	ColorPrimary = t.Primary
	ColorSecondary = t.Secondary
	ColorAccent = t.Accent
	ColorBackground = t.Background
	ColorText = t.Text
	ColorMuted = t.Muted
	ColorSuccess = t.Success
	ColorError = t.Error
	ColorWarning = t.Warning
	ColorBorder = t.Border

	BannerStyle = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true)
	TabActiveStyle = lipgloss.NewStyle().
		Foreground(ColorBackground).
		Background(ColorPrimary).
		Bold(true).
		Padding(0, 1)
	TabInactiveStyle = lipgloss.NewStyle().Foreground(ColorMuted).Padding(0, 1)
	TabDirtyStyle = TabInactiveStyle.Foreground(ColorWarning)
	SelectedStyle = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true)
	NormalStyle = lipgloss.NewStyle().Foreground(ColorText)
	MutedStyle = lipgloss.NewStyle().Foreground(ColorMuted)
	SuccessStyle = lipgloss.NewStyle().Foreground(ColorSuccess)
	ErrorStyle = lipgloss.NewStyle().Foreground(ColorError).Bold(true)
	WarningStyle = lipgloss.NewStyle().Foreground(ColorWarning)
	AccentStyle = lipgloss.NewStyle().Foreground(ColorAccent)
	HeaderStyle = lipgloss.NewStyle().Foreground(ColorSecondary).Bold(true).PaddingBottom(1)
	TypeBadgeStyle = lipgloss.NewStyle().
		Foreground(ColorBackground).
		Background(ColorSecondary).
		Bold(true).
		Padding(0, 1)
	MetaKeyStyle = lipgloss.NewStyle().Foreground(ColorSecondary).Bold(true)
	MetaValueStyle = lipgloss.NewStyle().Foreground(ColorText)

	components.SetPalette(components.Palette{
		Primary:   t.Primary,
		Label:     t.Secondary,
		Text:      t.Text,
		Muted:     t.Muted,
		Border:    t.Border,
		Error:     t.Error,
		ErrorText: t.Text,
		Marker:    t.Error,
		KeyCap:    t.Muted,
		KeyCapFg:  t.Background,
		ActiveBg:  t.Border,
	})
}

// CurrentTheme returns the name of the applied theme.
func CurrentTheme() string {
	return currentTheme
}

// typeBadge renders an instance type label in the type's own color when it
// has one.
func typeBadge(label, color string) string {
	if label == "" {
		return ""
	}
	style := TypeBadgeStyle
	if color != "" {
		style = style.Background(lipgloss.Color(color))
	}
	return style.Render(components.SanitizeOneLine(label))
}
