package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme defines the report colors.
type Theme struct {
	Primary lipgloss.Color // Main accent color
	Dim     lipgloss.Color // Dimmed/help text color
	Match   lipgloss.Color
	Miss    lipgloss.Color
}

// DefaultTheme is the default bright green theme.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Dim:     lipgloss.Color("#6e7681"),
	Match:   lipgloss.Color("#00ff9f"),
	Miss:    lipgloss.Color("#ff5f87"),
}

// Styles holds all styles derived from a theme.
type Styles struct {
	Title  lipgloss.Style
	Label  lipgloss.Style
	Border lipgloss.Style
	Help   lipgloss.Style
	Match  lipgloss.Style
	Miss   lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Title:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary).Padding(0, 1),
		Label:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Border: lipgloss.NewStyle().Foreground(t.Primary),
		Help:   lipgloss.NewStyle().Foreground(t.Dim),
		Match:  lipgloss.NewStyle().Bold(true).Foreground(t.Match),
		Miss:   lipgloss.NewStyle().Foreground(t.Miss),
	}
}

// Section is a labeled block of report lines.
type Section struct {
	Label string
	Lines []string
}

// Report renders a boxed report with a title line and labeled sections.
type Report struct {
	Styles   Styles
	Title    string
	Status   string
	Sections []Section
	Footer   string
}

// Render renders the report at the given width. Lines wider than the box
// are truncated.
func (r Report) Render(width int) string {
	width = max(width, 20)
	bc := r.Styles.Border
	maxContentWidth := width - 4

	var lines []string
	lines = append(lines, bc.Render("╭"+strings.Repeat("─", width-2)+"╮"))

	// │ title [status]    │
	title := r.Styles.Title.Render(r.Title)
	status := ""
	if r.Status != "" {
		status = r.Styles.Help.Render("[" + r.Status + "]")
	}
	padding := max(0, width-5-lipgloss.Width(title)-lipgloss.Width(status))
	lines = append(lines, bc.Render("│")+" "+title+" "+status+
		strings.Repeat(" ", padding)+" "+bc.Render("│"))

	for _, sec := range r.Sections {
		lines = append(lines, r.renderSection(bc, sec, width, maxContentWidth)...)
	}

	lines = append(lines, bc.Render("╰"+strings.Repeat("─", width-2)+"╯"))
	if r.Footer != "" {
		lines = append(lines, r.Styles.Help.Render(r.Footer))
	}
	return strings.Join(lines, "\n")
}

func (r Report) renderSection(bc lipgloss.Style, sec Section, width, maxContentWidth int) []string {
	// ├─Label────────┤
	labelText := r.Styles.Label.Render(sec.Label)
	padding := max(0, width-3-lipgloss.Width(labelText))
	lines := []string{bc.Render("├") + bc.Render("─") + labelText +
		bc.Render(strings.Repeat("─", padding)) + bc.Render("┤")}

	for _, text := range sec.Lines {
		if maxContentWidth > 1 && lipgloss.Width(text) > maxContentWidth {
			text = truncateString(text, maxContentWidth-1) + "…"
		}
		lines = append(lines, bc.Render("│")+" "+text+
			strings.Repeat(" ", max(0, maxContentWidth-lipgloss.Width(text)))+" "+bc.Render("│"))
	}
	return lines
}

// ScoreBar draws score in [0, 1] as a bar of width cells, styled as a
// match when score exceeds threshold.
func (s Styles) ScoreBar(score, threshold float64, width int) string {
	filled := int(max(0, min(1, score))*float64(width) + 0.5)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	if score > threshold {
		return s.Match.Render(bar)
	}
	return s.Miss.Render(bar)
}

// truncateString safely truncates a string to the given width,
// handling multi-byte characters correctly.
func truncateString(s string, width int) string {
	if width <= 0 {
		return ""
	}
	runes := []rune(s)
	currentWidth := 0
	for i, r := range runes {
		w := lipgloss.Width(string(r))
		if currentWidth+w > width {
			return string(runes[:i])
		}
		currentWidth += w
	}
	return s
}
