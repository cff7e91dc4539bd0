package watch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattjoyce/kolibrid/internal/events"
	"github.com/mattjoyce/kolibrid/internal/state"
)

func renderEventStream(eventLog []events.Event, theme Theme, width int) string {
	innerWidth := width - 4

	if len(eventLog) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("CONTEXT CHANGES"),
			theme.Dim.Render("  Waiting for changes..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	var lines []string
	for i, e := range eventLog {
		if i >= 10 {
			break
		}
		lines = append(lines, formatEvent(e, theme))
	}

	eventsText := lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("CONTEXT CHANGES"),
		eventsText,
	)

	return theme.Border.Width(innerWidth).Render(content)
}

func formatEvent(e events.Event, theme Theme) string {
	ts := theme.Dim.Render(e.At.Format("15:04:05"))

	var snap state.Snapshot
	_ = json.Unmarshal(e.Data, &snap)

	phase, style := servicePhase(snap, theme)
	phaseName := style.Render(fmt.Sprintf("%-10s", strings.ToLower(phase)))

	var parts []string
	if snap.BaseURL != "" {
		parts = append(parts, snap.BaseURL)
	}
	if snap.StartResult == state.StartResultError {
		parts = append(parts, "start failed")
	}

	return fmt.Sprintf("%s %s %s", ts, phaseName, strings.Join(parts, " "))
}
