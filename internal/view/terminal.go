package view

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#a78bfa"))
	subtitleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ca3af"))
	hintStyle     = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#6e7681"))
	errorStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#f87171"))
	actionStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ffffff")).Background(lipgloss.Color("#7c3aed")).Padding(0, 1)
	disabledStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6e7681")).Padding(0, 1)
	frameStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#7c3aed")).Padding(0, 1)

	toneStyles = map[string]lipgloss.Style{
		"ok":      lipgloss.NewStyle().Foreground(lipgloss.Color("#4ade80")),
		"pending": lipgloss.NewStyle().Foreground(lipgloss.Color("#facc15")),
		"error":   lipgloss.NewStyle().Foreground(lipgloss.Color("#f87171")),
		"info":    lipgloss.NewStyle().Foreground(lipgloss.Color("#60a5fa")),
	}
)

// Terminal renders v as a boxed block for the command line client.
func Terminal(v View) string {
	var lines []string
	lines = append(lines, titleStyle.Render(v.Title))
	if v.Subtitle != "" {
		lines = append(lines, subtitleStyle.Render(v.Subtitle))
	}

	if len(v.Indicators) > 0 {
		badges := make([]string, 0, len(v.Indicators))
		for _, ind := range v.Indicators {
			style, ok := toneStyles[ind.Tone]
			if !ok {
				style = toneStyles["info"]
			}
			badges = append(badges, style.Render("● "+ind.Text))
		}
		lines = append(lines, "", strings.Join(badges, "  "))
	}

	if len(v.Features) > 0 {
		lines = append(lines, "")
		for _, f := range v.Features {
			lines = append(lines, "  • "+f)
		}
	}

	if v.RoomURL != "" {
		lines = append(lines, "", subtitleStyle.Render("room: ")+v.RoomURL)
	}
	if v.Error != "" {
		lines = append(lines, "", errorStyle.Render("error: "+v.Error))
	}

	var buttons []string
	if v.Primary != nil {
		buttons = append(buttons, renderAction(*v.Primary))
	}
	for _, a := range v.Secondary {
		buttons = append(buttons, renderAction(a))
	}
	if len(buttons) > 0 {
		lines = append(lines, "", lipgloss.JoinHorizontal(lipgloss.Top, buttons...))
	}

	if v.Hint != "" {
		lines = append(lines, "", hintStyle.Render(v.Hint))
	}
	return frameStyle.Render(strings.Join(lines, "\n"))
}

func renderAction(a Action) string {
	label := "[" + a.Name + "] " + a.Label
	if !a.Enabled {
		return disabledStyle.Render(label)
	}
	return actionStyle.Render(label) + " "
}
