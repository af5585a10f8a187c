package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"taskflow/audit"
	"taskflow/board"
	"taskflow/domain"
	"taskflow/dragmove"
)

const columnWidth = 34

var (
	headerStyle  = lipgloss.NewStyle().Bold(true)
	columnStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1).Width(columnWidth)
	faintStyle   = lipgloss.NewStyle().Faint(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	addedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	removedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

func renderBoard(v board.View, s board.Summary) string {
	var b strings.Builder
	header := fmt.Sprintf("%s  %d tasks, %d mine, %d%% done", s.Greeting, s.Total, s.Mine, s.Progress)
	if s.ProgressLabel != "" {
		header += " (" + s.ProgressLabel + ")"
	}
	b.WriteString(headerStyle.Render(strings.TrimSpace(header)))
	b.WriteString("\n")
	if v.Stale {
		b.WriteString(warnStyle.Render("Board may be out of date."))
		b.WriteString("\n")
	}
	if v.Filtered {
		b.WriteString(faintStyle.Render(fmt.Sprintf("Showing %d of %d tasks", v.Shown, v.Total)))
		b.WriteString("\n")
	}
	if v.NoResults {
		b.WriteString("No tasks match the current filters.")
		return b.String()
	}

	cols := make([]string, 0, len(v.Columns))
	for _, col := range v.Columns {
		cols = append(cols, columnStyle.Render(renderColumn(col)))
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cols...))
	return b.String()
}

func renderColumn(col board.Column) string {
	lines := []string{headerStyle.Render(fmt.Sprintf("%s (%d)", col.Label, col.Count))}
	for _, card := range col.Cards {
		lines = append(lines, fmt.Sprintf("#%d %s", card.ID, card.Title))
		meta := card.Assignee.Initials + " " + card.Assignee.Label
		if !card.Draggable {
			meta += " [locked]"
		}
		lines = append(lines, faintStyle.Render(meta))
	}
	return strings.Join(lines, "\n")
}

func renderOutcome(task domain.Task, to domain.Status, outcome dragmove.Outcome) string {
	switch outcome {
	case dragmove.OutcomeMoved:
		return fmt.Sprintf("Moved #%d %q to %s.", task.ID, task.Title, to.Label())
	case dragmove.OutcomeSameColumn:
		return fmt.Sprintf("#%d is already in %s.", task.ID, to.Label())
	case dragmove.OutcomeBusy:
		return warnStyle.Render(fmt.Sprintf("%s is busy, try again.", to.Label()))
	}
	return warnStyle.Render(fmt.Sprintf("Cannot move #%d to %s.", task.ID, to.Label()))
}

func renderAudit(v audit.View) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("Audit log (%s): %d entries, %d created, %d updated, %d deleted",
		v.Scope, v.Counts.Total, v.Counts.Create, v.Counts.Update, v.Counts.Delete)))
	b.WriteString("\n")
	switch {
	case v.Empty:
		b.WriteString("No activity yet.")
		return b.String()
	case v.NoMatches:
		b.WriteString("No entries match the current filters.")
		return b.String()
	}
	for _, g := range v.Groups {
		b.WriteString("\n")
		b.WriteString(headerStyle.Render(fmt.Sprintf("%s (%d)", g.Label, g.Count)))
		b.WriteString("\n")
		for _, e := range g.Entries {
			b.WriteString(renderEntry(e))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderRecent(entries []audit.Entry) string {
	if len(entries) == 0 {
		return "No activity yet."
	}
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(renderEntry(e))
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderEntry(e audit.Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s %s %s #%d", faintStyle.Render(e.Time), e.Actor.Label, e.Verb, e.Entity, e.EntityID)
	if e.Title != "" {
		fmt.Fprintf(&b, " %q", e.Title)
	}
	b.WriteString("  " + faintStyle.Render(e.ChangeSummary+", "+e.Ago))
	b.WriteString("\n")
	if e.Diff.NoVisibleChanges {
		b.WriteString("    " + faintStyle.Render("No visible changes") + "\n")
	}
	for _, row := range e.Diff.Rows {
		line := fmt.Sprintf("%s: %s", row.Label, row.Value)
		if row.Kind == audit.RowAdded {
			b.WriteString("    " + addedStyle.Render("+ "+line) + "\n")
		} else {
			b.WriteString("    " + removedStyle.Render("- "+line) + "\n")
		}
	}
	return b.String()
}
