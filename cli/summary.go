package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"clipcast/internal/metadata"
	"clipcast/orchestrator"
	"clipcast/platform"
)

// headlineFields is the parameter shown for each platform in the plan.
var headlineFields = map[platform.Name]string{
	platform.YouTube:   "title",
	platform.Instagram: "caption",
	platform.TikTok:    "title",
	platform.Twitter:   "tweet_text",
}

// renderPlan lists the platforms about to be published to and the text
// each one will show.
func renderPlan(path string, adapters []platform.Adapter, md metadata.Common, overrides map[string]string) string {
	lines := []string{titleStyle.Render("Publishing " + path)}
	for _, a := range adapters {
		name := a.Name()
		p, err := metadata.Map(string(name), md, overrides)
		if err != nil {
			lines = append(lines, fmt.Sprintf("  %-*s %s", nameWidth, name.DisplayName(), errorStyle.Render(err.Error())))
			continue
		}
		text := firstLine(p.String(headlineFields[name]))
		lines = append(lines, fmt.Sprintf("  %-*s %s", nameWidth, name.DisplayName(), text))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}

// renderSummary prints one line per platform and the success count.
func renderSummary(results orchestrator.Results) string {
	var lines []string
	for _, name := range results.Names() {
		r := results[name]
		label := fmt.Sprintf("%-*s", nameWidth, platform.Name(name).DisplayName())
		if r.Success {
			lines = append(lines, fmt.Sprintf("%s %s %s", okStyle.Render("✓"), label, r.ID))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s %s %s", errorStyle.Render("✗"), label, errorStyle.Render(r.Error)))
	}
	lines = append(lines, "", fmt.Sprintf("%d/%d succeeded", len(results.Succeeded()), len(results)))
	return panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}
