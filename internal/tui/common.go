package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sadopc/issuedesk/internal/session"
)

// viewState represents the currently active view.
type viewState int

const (
	viewIssues viewState = iota
	viewTags
	viewAwards
)

var viewNames = []string{"Issues", "Tags", "Awards"}

// --- Messages ---

type statusMsg struct {
	text    string
	isError bool
}

type sessionEventMsg struct {
	ev session.Event
}

// showTagMsg asks the issues view to scope itself to a tag.
type showTagMsg struct {
	tagID string
}

type exportDoneMsg struct {
	path string
}

// --- Helpers ---

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("Jan 02 15:04")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}

func statusCmd(text string, isError bool) tea.Cmd {
	return func() tea.Msg { return statusMsg{text: text, isError: isError} }
}
