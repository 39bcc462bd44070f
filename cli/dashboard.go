package main

import (
	"fmt"
	"strings"

	bar "github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"clipcast/internal/progress"
	"clipcast/platform"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	panelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

const (
	nameWidth = 10
	minBar    = 20
	maxBar    = 50
)

type snapshotMsg progress.Snapshot

type finishedMsg struct{}

// dashboard renders one bar per platform from reported snapshots.
type dashboard struct {
	order     []string
	snaps     map[string]progress.Snapshot
	bar       bar.Model
	cancel    func()
	canceling bool
}

func newDashboard(platforms []string, cancel func()) dashboard {
	snaps := make(map[string]progress.Snapshot, len(platforms))
	for _, p := range platforms {
		snaps[p] = progress.Snapshot{Platform: p, Description: "Waiting"}
	}
	return dashboard{
		order:  platforms,
		snaps:  snaps,
		bar:    bar.New(bar.WithDefaultGradient(), bar.WithWidth(40)),
		cancel: cancel,
	}
}

func (m dashboard) Init() tea.Cmd { return nil }

func (m dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.bar.Width = min(maxBar, max(minBar, msg.Width-nameWidth-30))
		return m, nil
	case snapshotMsg:
		s := progress.Snapshot(msg)
		if _, ok := m.snaps[s.Platform]; !ok {
			m.order = append(m.order, s.Platform)
		}
		m.snaps[s.Platform] = s
		return m, nil
	case finishedMsg:
		return m, tea.Quit
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			// Keep rendering until the adapters have released their resources.
			if !m.canceling && m.cancel != nil {
				m.cancel()
			}
			m.canceling = true
		}
		return m, nil
	}
	return m, nil
}

func (m dashboard) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("clipcast"))
	b.WriteString("\n\n")
	for _, name := range m.order {
		s := m.snaps[name]
		label := fmt.Sprintf("%-*s", nameWidth, platform.Name(name).DisplayName())
		line := fmt.Sprintf("%s %s %3.0f%%  %s", label, m.bar.ViewAs(s.Percent()), s.Percent()*100, describe(s))
		b.WriteString(line)
		b.WriteString("\n")
	}
	if m.canceling {
		b.WriteString("\n")
		b.WriteString(mutedStyle.Render("Cancelling, waiting for platforms to clean up..."))
	} else {
		b.WriteString("\n")
		b.WriteString(mutedStyle.Render("ctrl+c to cancel"))
	}
	return panelStyle.Render(b.String()) + "\n"
}

func describe(s progress.Snapshot) string {
	switch {
	case s.Failed:
		return errorStyle.Render(s.Description)
	case s.Done:
		return okStyle.Render(s.Description)
	}
	return s.Description
}
