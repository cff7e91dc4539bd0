package watch

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattjoyce/kolibrid/internal/state"
)

// ServiceState holds the most recently observed context snapshot.
type ServiceState struct {
	Snapshot     state.Snapshot
	Revision     int64
	WorkerExited bool
	HaveSnapshot bool
}

func renderStatus(svc ServiceState, spinnerFrame string, theme Theme, width int) string {
	innerWidth := width - 4

	if !svc.HaveSnapshot {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("SERVICE"),
			theme.Dim.Render("  Waiting for status..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	snap := svc.Snapshot

	phase, style := servicePhase(snap, theme)
	if svc.WorkerExited {
		phase = "WORKER EXITED"
		style = theme.StatusError
	}

	stateLine := fmt.Sprintf(" State:    %s", style.Render(phase))
	if snap.IsStarting && !svc.WorkerExited {
		stateLine += " " + spinnerFrame
	}

	lines := []string{
		stateLine,
		fmt.Sprintf(" Result:   %s", renderStartResult(snap.StartResult, theme)),
	}

	if snap.BaseURL != "" {
		lines = append(lines, fmt.Sprintf(" URL:      %s", theme.Highlight.Render(snap.BaseURL)))
	}
	if snap.ExtraURL != "" {
		lines = append(lines, fmt.Sprintf(" Content:  %s", theme.Highlight.Render(snap.ExtraURL)))
	}
	if snap.AppKey != "" {
		lines = append(lines, fmt.Sprintf(" App key:  %s", theme.Dim.Render(snap.AppKey)))
	}
	if snap.HomePath != "" {
		lines = append(lines, fmt.Sprintf(" Home:     %s", theme.Dim.Render(snap.HomePath)))
	}
	lines = append(lines, fmt.Sprintf(" Revision: %s", theme.Dim.Render(fmt.Sprintf("%d", svc.Revision))))

	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("SERVICE"),
		strings.Join(lines, "\n"),
	)

	return theme.Border.Width(innerWidth).Render(content)
}

func servicePhase(snap state.Snapshot, theme Theme) (string, lipgloss.Style) {
	switch {
	case snap.IsStarting:
		return "STARTING", theme.StatusStarting
	case snap.IsStopped && snap.StartResult == state.StartResultError:
		return "FAILED", theme.StatusError
	case snap.IsStopped:
		return "STOPPED", theme.StatusStopped
	case snap.BaseURL != "":
		return "SERVING", theme.StatusServing
	default:
		return "IDLE", theme.StatusStopped
	}
}

func renderStartResult(result state.StartResult, theme Theme) string {
	switch result {
	case state.StartResultSuccess:
		return theme.StatusServing.Render("success")
	case state.StartResultError:
		return theme.StatusError.Render("error")
	default:
		return theme.Dim.Render("none")
	}
}
