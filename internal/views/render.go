package views

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

// Screen is one rendered command result.
type Screen struct {
	Header     string
	Body       string
	StatusLine string
	Footer     string
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	panelStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func RenderScreen(s Screen) string {
	lines := []string{headerStyle.Render(s.Header)}
	if strings.TrimSpace(s.Body) != "" {
		lines = append(lines, panelStyle.Render(s.Body))
	}
	if s.StatusLine != "" {
		lines = append(lines, RenderStatus(s.StatusLine))
	}
	if s.Footer != "" {
		lines = append(lines, footerStyle.Render(s.Footer))
	}
	return strings.Join(lines, "\n")
}

func RenderStatus(line string) string {
	if strings.Contains(strings.ToLower(line), "error") {
		return errorStyle.Render(line)
	}
	return statusStyle.Render(line)
}

func RenderError(err error) string {
	if err == nil {
		return ""
	}
	return errorStyle.Render("error: " + err.Error())
}

func RenderMarkdown(md string) string {
	if strings.TrimSpace(md) == "" {
		return ""
	}
	out, err := glamour.Render(md, "dark")
	if err != nil {
		return md
	}
	return strings.TrimSpace(out)
}
