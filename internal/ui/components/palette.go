package components

import "github.com/charmbracelet/lipgloss"

// Palette holds the colors components render with.
type Palette struct {
	Primary   lipgloss.Color
	Label     lipgloss.Color
	Text      lipgloss.Color
	Muted     lipgloss.Color
	Border    lipgloss.Color
	Error     lipgloss.Color
	ErrorText lipgloss.Color
	Marker    lipgloss.Color
	KeyCap    lipgloss.Color
	KeyCapFg  lipgloss.Color
	ActiveBg  lipgloss.Color
}

// DefaultPalette is the dark palette components start with.
func DefaultPalette() Palette {
	return Palette{
		Primary:   lipgloss.Color("#7f57b4"),
		Label:     lipgloss.Color("#436b77"),
		Text:      lipgloss.Color("#d7d9da"),
		Muted:     lipgloss.Color("#9ba0bf"),
		Border:    lipgloss.Color("#273540"),
		Error:     lipgloss.Color("#7a2f3a"),
		ErrorText: lipgloss.Color("#d6b5b5"),
		Marker:    lipgloss.Color("#d1606b"),
		KeyCap:    lipgloss.Color("#888ba4"),
		KeyCapFg:  lipgloss.Color("#16161d"),
		ActiveBg:  lipgloss.Color("#1f2530"),
	}
}

var palette Palette

var (
	boxBorder        lipgloss.Style
	boxBorderActive  lipgloss.Style
	boxHeaderStyle   lipgloss.Style
	boxMutedStyle    lipgloss.Style
	boxValueStyle    lipgloss.Style
	boxLabelStyle    lipgloss.Style
	errorBorder      lipgloss.Style
	errorHeaderStyle lipgloss.Style
	errorBodyStyle   lipgloss.Style

	dialogStyle       lipgloss.Style
	dialogHeaderStyle lipgloss.Style
	dialogFieldStyle  lipgloss.Style

	hintDescStyle lipgloss.Style
	keyCapStyle   lipgloss.Style
	segmentStyle  lipgloss.Style

	gridLineStyle         lipgloss.Style
	gridActiveRowStyle    lipgloss.Style
	gridActiveSepStyle    lipgloss.Style
	gridSelectedMarkStyle lipgloss.Style
)

func init() {
	SetPalette(DefaultPalette())
}

// SetPalette rebuilds every component style from p.
func SetPalette(p Palette) {
	palette = p

	boxBorder = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(p.Border).
		Padding(1, 2)
	boxBorderActive = boxBorder.BorderForeground(p.Primary)
	boxHeaderStyle = lipgloss.NewStyle().Foreground(p.Primary).Bold(true)
	boxMutedStyle = lipgloss.NewStyle().Foreground(p.Muted)
	boxValueStyle = lipgloss.NewStyle().Foreground(p.Text)
	boxLabelStyle = lipgloss.NewStyle().Foreground(p.Label).Bold(true)
	errorBorder = boxBorder.BorderForeground(p.Error)
	errorHeaderStyle = lipgloss.NewStyle().Foreground(p.Marker).Bold(true)
	errorBodyStyle = lipgloss.NewStyle().Foreground(p.ErrorText)

	dialogStyle = boxBorder.Width(48)
	dialogHeaderStyle = boxHeaderStyle
	dialogFieldStyle = lipgloss.NewStyle().Foreground(p.Label)

	hintDescStyle = boxMutedStyle
	keyCapStyle = lipgloss.NewStyle().
		Foreground(p.KeyCapFg).
		Background(p.KeyCap).
		Bold(true).
		Padding(0, 1)
	segmentStyle = lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(p.Border).
		Padding(0, 1).
		MarginRight(1)

	gridLineStyle = lipgloss.NewStyle().Foreground(p.Border)
	gridActiveRowStyle = lipgloss.NewStyle().
		Foreground(p.Text).
		Background(p.ActiveBg).
		Bold(true)
	gridActiveSepStyle = gridLineStyle.Background(p.ActiveBg)
	gridSelectedMarkStyle = lipgloss.NewStyle().Foreground(p.Marker).Bold(true)
}
