package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/issuedesk/internal/export"
	"github.com/sadopc/issuedesk/internal/session"
)

var exportFormats = []export.Format{export.FormatCSV, export.FormatJSON, export.FormatYAML}

// App is the root Bubble Tea model.
type App struct {
	sess   *session.Session
	events chan session.Event
	cancel func()

	width  int
	height int

	activeView    viewState
	showHelp      bool
	exportPicking bool
	exportCursor  int

	issues issuesModel
	tags   tagsModel
	awards awardsModel

	help   help.Model
	status string
	isErr  bool
}

// NewApp subscribes to session events for the life of the program; call
// Close when it exits.
func NewApp(s *session.Session) App {
	h := help.New()
	h.ShowAll = false

	events := make(chan session.Event, 16)
	cancel := s.Subscribe(func(ev session.Event) {
		select {
		case events <- ev:
		default:
		}
	})

	return App{
		sess:       s,
		events:     events,
		cancel:     cancel,
		activeView: viewIssues,
		issues:     newIssuesModel(s),
		tags:       newTagsModel(s),
		awards:     newAwardsModel(s),
		help:       h,
	}
}

func (a App) Close() {
	if a.cancel != nil {
		a.cancel()
	}
}

func (a App) Init() tea.Cmd {
	return tea.Batch(
		a.issues.refresh(),
		a.tags.refresh(),
		a.awards.refresh(),
		waitForEvent(a.events),
	)
}

func waitForEvent(ch <-chan session.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return sessionEventMsg{ev: ev}
	}
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.help.Width = msg.Width
		contentHeight := a.height - 4 // header + footer
		a.issues.setSize(a.width, contentHeight)
		a.tags.setSize(a.width, contentHeight)
		a.awards.setSize(a.width, contentHeight)
		return a, a.awards.refresh()

	case tea.KeyMsg:
		if a.exportPicking {
			return a.updateExportPicker(msg)
		}

		// A child view capturing input (form, search) gets every key.
		if a.isFormActive() {
			return a.updateActiveView(msg)
		}

		switch {
		case key.Matches(msg, keys.Export):
			a.exportPicking = true
			a.exportCursor = 0
			return a, nil
		case key.Matches(msg, keys.Quit):
			return a, tea.Quit
		case key.Matches(msg, keys.Help):
			a.showHelp = !a.showHelp
			a.help.ShowAll = a.showHelp
			return a, nil
		case key.Matches(msg, keys.Tab1):
			a.activeView = viewIssues
			return a, a.issues.refresh()
		case key.Matches(msg, keys.Tab2):
			a.activeView = viewTags
			return a, a.tags.refresh()
		case key.Matches(msg, keys.Tab3):
			a.activeView = viewAwards
			return a, a.awards.refresh()
		case key.Matches(msg, keys.Tab):
			a.activeView = (a.activeView + 1) % viewState(len(viewNames))
			return a, a.refreshCurrentView()
		}

	case sessionEventMsg:
		switch msg.ev.Kind {
		case session.EventRemoteChanged:
			a.status, a.isErr = "Remote changes merged", false
		case session.EventBatchDeleted:
			a.status, a.isErr = fmt.Sprintf("Deleted %d records", len(msg.ev.IDs)), false
		}
		return a, tea.Batch(
			a.issues.refresh(),
			a.tags.refresh(),
			a.awards.refresh(),
			waitForEvent(a.events),
		)

	case issuesDataMsg:
		var cmd tea.Cmd
		a.issues, cmd = a.issues.update(msg)
		return a, cmd

	case tagsDataMsg:
		var cmd tea.Cmd
		a.tags, cmd = a.tags.update(msg)
		return a, cmd

	case awardsDataMsg:
		var cmd tea.Cmd
		a.awards, cmd = a.awards.update(msg)
		return a, cmd

	case showTagMsg:
		a.activeView = viewIssues
		var cmd tea.Cmd
		a.issues, cmd = a.issues.update(msg)
		return a, cmd

	case statusMsg:
		a.status, a.isErr = msg.text, msg.isError
		return a, nil

	case exportDoneMsg:
		a.status, a.isErr = "Exported to "+msg.path, false
		a.exportPicking = false
		return a, nil
	}

	return a.updateActiveView(msg)
}

func (a App) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch a.activeView {
	case viewIssues:
		a.issues, cmd = a.issues.update(msg)
	case viewTags:
		a.tags, cmd = a.tags.update(msg)
	case viewAwards:
		a.awards, cmd = a.awards.update(msg)
	}
	return a, cmd
}

func (a App) isFormActive() bool {
	switch a.activeView {
	case viewIssues:
		return a.issues.capturing()
	case viewTags:
		return a.tags.formActive
	}
	return false
}

func (a App) refreshCurrentView() tea.Cmd {
	switch a.activeView {
	case viewIssues:
		return a.issues.refresh()
	case viewTags:
		return a.tags.refresh()
	case viewAwards:
		return a.awards.refresh()
	}
	return nil
}

func (a App) View() string {
	if a.width == 0 {
		return "Loading..."
	}

	header := a.renderHeader()
	footer := a.renderFooter()

	var content string
	switch a.activeView {
	case viewIssues:
		content = a.issues.view()
	case viewTags:
		content = a.tags.view()
	case viewAwards:
		content = a.awards.view()
	}

	headerHeight := lipgloss.Height(header)
	footerHeight := lipgloss.Height(footer)
	contentHeight := max(1, a.height-headerHeight-footerHeight)

	if a.exportPicking {
		content = a.renderExportPicker()
	}

	content = lipgloss.NewStyle().
		Width(a.width).
		Height(contentHeight).
		Render(content)

	return lipgloss.JoinVertical(lipgloss.Left, header, content, footer)
}

func (a App) renderHeader() string {
	var tabs []string
	for i, name := range viewNames {
		if viewState(i) == a.activeView {
			tabs = append(tabs, activeTabStyle.Render(name))
		} else {
			tabs = append(tabs, inactiveTabStyle.Render(name))
		}
	}

	tabRow := lipgloss.JoinHorizontal(lipgloss.Bottom, tabs...)

	title := lipgloss.NewStyle().Bold(true).Foreground(colorPrimary).Render("issuedesk")
	gap := max(1, a.width-lipgloss.Width(title)-lipgloss.Width(tabRow)-4)
	spacer := lipgloss.NewStyle().Width(gap).Render("")

	return headerStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Bottom, title, spacer, tabRow),
	)
}

func (a App) renderFooter() string {
	helpView := a.help.View(keys)

	status := ""
	if a.status != "" {
		style := statusBarStyle
		if a.isErr {
			style = errorStyle
		}
		status = style.Render(" " + a.status)
	}

	saveInfo := ""
	if a.sess.SavePending() {
		saveInfo = warningStyle.Render(" ● unsaved")
	}

	left := footerStyle.Render(helpView)
	right := saveInfo + status

	gap := max(1, a.width-lipgloss.Width(left)-lipgloss.Width(right)-2)
	spacer := lipgloss.NewStyle().Width(gap).Render("")

	return lipgloss.JoinHorizontal(lipgloss.Bottom, left, spacer, right)
}

func (a App) renderExportPicker() string {
	rows := []string{titleStyle.Render("Export Current List"), ""}
	for i, f := range exportFormats {
		cursor := "  "
		style := normalItemStyle
		if i == a.exportCursor {
			cursor = "> "
			style = selectedItemStyle
		}
		rows = append(rows, style.Render(cursor+string(f)))
	}
	rows = append(rows, "", mutedStyle.Render("  enter: export  esc: cancel"))

	return activePanelStyle.Width(a.width - 4).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (a App) updateExportPicker(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Up):
		if a.exportCursor > 0 {
			a.exportCursor--
		}
	case key.Matches(msg, keys.Down):
		if a.exportCursor < len(exportFormats)-1 {
			a.exportCursor++
		}
	case key.Matches(msg, keys.Enter):
		a.exportPicking = false
		return a, a.doExport(exportFormats[a.exportCursor])
	case key.Matches(msg, keys.Back):
		a.exportPicking = false
	}
	return a, nil
}

// doExport writes the issues currently listed to the home directory.
func (a App) doExport(f export.Format) tea.Cmd {
	snap := a.issues.snap
	issues := a.issues.issues
	return func() tea.Msg {
		home, err := os.UserHomeDir()
		if err != nil {
			home = os.TempDir()
		}
		path := filepath.Join(home, fmt.Sprintf("issuedesk-export-%s.%s", time.Now().Format("2006-01-02"), f))
		if err := export.ToFile(snap, issues, path); err != nil {
			return statusMsg{text: fmt.Sprintf("Export error: %v", err), isError: true}
		}
		return exportDoneMsg{path: path}
	}
}
