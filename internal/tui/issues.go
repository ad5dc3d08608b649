package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/issuedesk/internal/model"
	"github.com/sadopc/issuedesk/internal/session"
)

const reminderLayout = "2006-01-02 15:04"

type issuesModel struct {
	sess   *session.Session
	width  int
	height int

	state  model.FilterState
	scopes []model.Filter
	snap   *model.Snapshot
	issues []model.Issue
	top    []model.Issue
	cursor int

	searching   bool
	search      textinput.Model
	suggestions []model.Tag

	tagPicking bool
	tagCursor  int
	missing    []model.Tag

	formActive bool
	form       *huh.Form
	editingID  string

	// Form field pointers (survive value copies)
	formTitle    *string
	formContent  *string
	formPriority *int
	formClosed   *bool
	formReminder *bool
	formWhen     *string
}

func newIssuesModel(s *session.Session) issuesModel {
	ti := textinput.New()
	ti.Placeholder = "search, or #tag"
	ti.Prompt = "/ "
	ti.CharLimit = 120

	title, content, when := "", "", ""
	prio := model.PriorityMedium
	closed, reminder := false, false
	return issuesModel{
		sess:         s,
		state:        model.DefaultFilterState(),
		search:       ti,
		formTitle:    &title,
		formContent:  &content,
		formPriority: &prio,
		formClosed:   &closed,
		formReminder: &reminder,
		formWhen:     &when,
	}
}

func (m *issuesModel) setSize(w, h int) {
	m.width = w
	m.height = h
	m.search.Width = max(10, w-12)
}

// capturing reports whether the view wants every key, e.g. while a form
// or the search box is open.
func (m issuesModel) capturing() bool {
	return m.formActive || m.searching || m.tagPicking
}

type issuesDataMsg struct {
	snap   *model.Snapshot
	scopes []model.Filter
	issues []model.Issue
	top    []model.Issue
}

func (m issuesModel) load() issuesDataMsg {
	snap := m.sess.Snapshot()
	scopes := []model.Filter{model.AllFilter, model.RecentFilter(time.Now())}
	for _, t := range snap.Tags {
		scopes = append(scopes, model.TagFilter(t))
	}

	state := m.state
	state.Selected = resolveScope(scopes, state.Selected)
	return issuesDataMsg{
		snap:   snap,
		scopes: scopes,
		issues: m.sess.IssuesForFilter(state),
		top:    m.sess.TopIssues(3),
	}
}

func (m issuesModel) refresh() tea.Cmd {
	return func() tea.Msg { return m.load() }
}

// resolveScope finds sel among scopes by ID so renamed tags and the moving
// recent window stay current. A vanished scope falls back to all issues.
func resolveScope(scopes []model.Filter, sel model.Filter) model.Filter {
	for _, f := range scopes {
		if f.ID == sel.ID {
			return f
		}
	}
	return model.AllFilter
}

func (m issuesModel) selected() (model.Issue, bool) {
	if m.cursor < 0 || m.cursor >= len(m.issues) {
		return model.Issue{}, false
	}
	return m.issues[m.cursor], true
}

func (m issuesModel) update(msg tea.Msg) (issuesModel, tea.Cmd) {
	if m.formActive && m.form != nil {
		return m.updateForm(msg)
	}

	switch msg := msg.(type) {
	case issuesDataMsg:
		m.snap = msg.snap
		m.scopes = msg.scopes
		m.state.Selected = resolveScope(msg.scopes, m.state.Selected)
		m.issues = msg.issues
		m.top = msg.top
		if m.cursor >= len(m.issues) {
			m.cursor = max(0, len(m.issues)-1)
		}
		return m, nil

	case showTagMsg:
		if t, ok := m.sess.Snapshot().Tag(msg.tagID); ok {
			m.state.Selected = model.TagFilter(t)
			m.cursor = 0
		}
		return m, m.refresh()

	case tea.KeyMsg:
		if m.searching {
			return m.updateSearch(msg)
		}
		if m.tagPicking {
			return m.updateTagPicker(msg)
		}
		return m.updateList(msg)
	}
	return m, nil
}

func (m issuesModel) updateList(msg tea.KeyMsg) (issuesModel, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, keys.Down):
		if m.cursor < len(m.issues)-1 {
			m.cursor++
		}
	case key.Matches(msg, keys.New):
		is, err := m.sess.NewIssue(m.state.Selected)
		if err != nil {
			return m, statusCmd(fmt.Sprintf("Save failed: %v", err), true)
		}
		return m.showForm(is)
	case key.Matches(msg, keys.Enter):
		if is, ok := m.selected(); ok {
			return m.showForm(is)
		}
	case key.Matches(msg, keys.Delete):
		if is, ok := m.selected(); ok {
			if err := m.sess.DeleteIssue(is.ID); err != nil {
				return m, statusCmd(fmt.Sprintf("Delete failed: %v", err), true)
			}
			return m, m.refresh()
		}
	case key.Matches(msg, keys.Toggle):
		if is, ok := m.selected(); ok {
			m.sess.UpdateIssue(is.ID, func(i *model.Issue) { i.Completed = !i.Completed })
			return m, m.refresh()
		}
	case key.Matches(msg, keys.Priority):
		if is, ok := m.selected(); ok {
			m.sess.UpdateIssue(is.ID, func(i *model.Issue) { i.Priority = (i.Priority + 1) % 3 })
			return m, m.refresh()
		}
	case key.Matches(msg, keys.AddTag):
		if is, ok := m.selected(); ok {
			m.missing = m.sess.MissingTags(is.ID)
			if len(m.missing) == 0 {
				return m, statusCmd("No tags left to add", false)
			}
			m.tagPicking = true
			m.tagCursor = 0
		}
	case key.Matches(msg, keys.Filter):
		m.searching = true
		m.search.SetValue(m.state.Text)
		m.suggestions = nil
		return m, m.search.Focus()
	case key.Matches(msg, keys.Scope), key.Matches(msg, keys.Right):
		m.stepScope(1)
		return m, m.refresh()
	case key.Matches(msg, keys.Left):
		m.stepScope(-1)
		return m, m.refresh()
	case key.Matches(msg, keys.Status):
		m.state.Status = (m.state.Status + 1) % 3
		m.syncEnabled()
		return m, m.refresh()
	case key.Matches(msg, keys.PrioFilt):
		m.state.Priority++
		if m.state.Priority > model.PriorityHigh {
			m.state.Priority = model.AnyPriority
		}
		m.syncEnabled()
		return m, m.refresh()
	case key.Matches(msg, keys.Sort):
		if m.state.SortKey == model.SortByCreated {
			m.state.SortKey = model.SortByModified
		} else {
			m.state.SortKey = model.SortByCreated
		}
		return m, m.refresh()
	case key.Matches(msg, keys.Reverse):
		m.state.SortDescending = !m.state.SortDescending
		return m, m.refresh()
	case key.Matches(msg, keys.Clear):
		sel := m.state.Selected
		m.state = model.DefaultFilterState()
		m.state.Selected = sel
		return m, m.refresh()
	case key.Matches(msg, keys.Sample):
		if err := m.sess.CreateSampleData(); err != nil {
			return m, statusCmd(fmt.Sprintf("Sample data failed: %v", err), true)
		}
		return m, m.refresh()
	}
	return m, nil
}

func (m *issuesModel) stepScope(delta int) {
	if len(m.scopes) == 0 {
		return
	}
	i := 0
	for j, f := range m.scopes {
		if f.ID == m.state.Selected.ID {
			i = j
			break
		}
	}
	i = (i + delta + len(m.scopes)) % len(m.scopes)
	m.state.Selected = m.scopes[i]
	m.cursor = 0
}

func (m *issuesModel) syncEnabled() {
	m.state.Enabled = m.state.Status != model.StatusAll || m.state.Priority != model.AnyPriority
}

func (m issuesModel) updateSearch(msg tea.KeyMsg) (issuesModel, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.searching = false
		m.search.Blur()
		return m, nil
	case tea.KeyEnter:
		value := m.search.Value()
		if strings.HasPrefix(value, "#") {
			if len(m.suggestions) > 0 {
				m.state.AddToken(m.suggestions[0])
			}
			m.search.SetValue(m.state.Text)
		} else {
			m.state.Text = value
		}
		m.searching = false
		m.search.Blur()
		m.cursor = 0
		return m, m.refresh()
	case tea.KeyBackspace:
		if m.search.Value() == "" && len(m.state.Tokens) > 0 {
			m.state.RemoveToken(m.state.Tokens[len(m.state.Tokens)-1].ID)
			return m, m.refresh()
		}
	}

	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	m.suggestions = m.sess.SuggestedFilterTokens(m.search.Value())
	return m, cmd
}

func (m issuesModel) updateTagPicker(msg tea.KeyMsg) (issuesModel, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Back):
		m.tagPicking = false
	case key.Matches(msg, keys.Up):
		if m.tagCursor > 0 {
			m.tagCursor--
		}
	case key.Matches(msg, keys.Down):
		if m.tagCursor < len(m.missing)-1 {
			m.tagCursor++
		}
	case key.Matches(msg, keys.Enter):
		m.tagPicking = false
		is, ok := m.selected()
		if !ok || m.tagCursor >= len(m.missing) {
			return m, nil
		}
		if err := m.sess.AddTag(is.ID, m.missing[m.tagCursor].ID); err != nil {
			return m, statusCmd(fmt.Sprintf("Add tag failed: %v", err), true)
		}
		return m, m.refresh()
	}
	return m, nil
}

func (m issuesModel) showForm(is model.Issue) (issuesModel, tea.Cmd) {
	*m.formTitle = is.Title
	*m.formContent = is.Content
	*m.formPriority = is.Priority
	*m.formClosed = is.Completed
	*m.formReminder = is.ReminderEnabled
	*m.formWhen = ""
	if !is.ReminderTime.IsZero() {
		*m.formWhen = is.ReminderTime.Local().Format(reminderLayout)
	}
	m.editingID = is.ID

	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Title").Value(m.formTitle),
			huh.NewText().Title("Content").Lines(4).Value(m.formContent),
			huh.NewSelect[int]().Title("Priority").Options(
				huh.NewOption("Low", model.PriorityLow),
				huh.NewOption("Medium", model.PriorityMedium),
				huh.NewOption("High", model.PriorityHigh),
			).Value(m.formPriority),
			huh.NewConfirm().Title("Closed").Value(m.formClosed),
		),
		huh.NewGroup(
			huh.NewConfirm().Title("Reminder").Value(m.formReminder),
			huh.NewInput().Title("Remind at (YYYY-MM-DD HH:MM)").Value(m.formWhen).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return nil
					}
					_, err := time.ParseInLocation(reminderLayout, strings.TrimSpace(s), time.Local)
					return err
				}),
		),
	).WithShowHelp(true).WithShowErrors(true)

	m.formActive = true
	return m, m.form.Init()
}

func (m issuesModel) updateForm(msg tea.Msg) (issuesModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && msg.String() == "esc" {
		m.formActive = false
		m.form = nil
		return m, m.refresh()
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		m.formActive = false
		m.applyForm()
		return m, m.refresh()
	}
	return m, cmd
}

// applyForm writes the form fields back to the edited issue. An empty
// title keeps the old one.
func (m issuesModel) applyForm() {
	title := strings.TrimSpace(*m.formTitle)
	content := *m.formContent
	prio := *m.formPriority
	closed := *m.formClosed
	reminder := *m.formReminder
	when, err := time.ParseInLocation(reminderLayout, strings.TrimSpace(*m.formWhen), time.Local)

	m.sess.UpdateIssue(m.editingID, func(is *model.Issue) {
		if title != "" {
			is.Title = title
		}
		is.Content = content
		is.Priority = prio
		is.Completed = closed
		is.ReminderEnabled = reminder
		if err == nil {
			is.ReminderTime = when.UTC()
		}
	})
}

func (m issuesModel) view() string {
	w := m.width - 4
	if m.formActive && m.form != nil {
		content := lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render("Edit Issue"), "", m.form.View())
		return panelStyle.Width(w).Render(content)
	}

	var rows []string
	rows = append(rows, m.renderScopes(), m.renderFilterLine(), "")

	if m.tagPicking {
		rows = append(rows, m.renderTagPicker())
		return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
	}

	if len(m.issues) == 0 {
		rows = append(rows, mutedStyle.Render("No issues here. Press n to create one, S for sample data."))
	} else {
		rows = append(rows, m.renderList(w)...)
	}

	if len(m.top) > 0 {
		rows = append(rows, "", subtitleStyle.Render("Up next"))
		for _, is := range m.top {
			rows = append(rows, "  "+renderPriority(is.Priority)+" "+truncate(is.Title, 40))
		}
	}

	return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
}

func (m issuesModel) renderScopes() string {
	var tabs []string
	for _, f := range m.scopes {
		if f.ID == m.state.Selected.ID {
			tabs = append(tabs, activeTabStyle.Render(f.Name))
		} else {
			tabs = append(tabs, inactiveTabStyle.Render(f.Name))
		}
	}
	if len(tabs) == 0 {
		return titleStyle.Render(m.state.Selected.Name)
	}
	return lipgloss.JoinHorizontal(lipgloss.Bottom, tabs...)
}

func (m issuesModel) renderFilterLine() string {
	if m.searching {
		line := m.search.View()
		if len(m.suggestions) > 0 {
			names := make([]string, len(m.suggestions))
			for i, t := range m.suggestions {
				names[i] = "#" + t.Name
			}
			line += "  " + highlightStyle.Render(strings.Join(names, " "))
		}
		return line
	}

	var parts []string
	if m.state.Text != "" {
		parts = append(parts, fmt.Sprintf("%q", m.state.Text))
	}
	for _, t := range m.state.Tokens {
		parts = append(parts, accentStyle.Render("#"+t.Name))
	}
	if m.state.Enabled {
		if m.state.Status != model.StatusAll {
			parts = append(parts, "status:"+m.state.Status.String())
		}
		if m.state.Priority != model.AnyPriority {
			parts = append(parts, "priority:"+(model.Issue{Priority: m.state.Priority}).PriorityLabel())
		}
	}
	order := "newest"
	if !m.state.SortDescending {
		order = "oldest"
	}
	parts = append(parts, fmt.Sprintf("sort:%s %s", m.state.SortKey, order))
	return mutedStyle.Render(strings.Join(parts, "  "))
}

func (m issuesModel) renderList(w int) []string {
	titleW := max(12, w-50)
	rows := []string{mutedStyle.Render(fmt.Sprintf("  %-3s %-3s %-*s %-20s %s", "", "", titleW, "Title", "Tags", "Modified"))}

	limit := len(m.issues)
	if m.height > 12 {
		limit = min(limit, m.height-12)
	}
	start := 0
	if m.cursor >= limit {
		start = m.cursor - limit + 1
	}
	for i := start; i < len(m.issues) && i < start+limit; i++ {
		is := m.issues[i]
		cursor := "  "
		style := normalItemStyle
		if i == m.cursor {
			cursor = "> "
			style = selectedItemStyle
		}
		check := "[ ]"
		if is.Completed {
			check = "[x]"
			if i != m.cursor {
				style = closedItemStyle
			}
		}
		tags := ""
		if m.snap != nil {
			tags = m.snap.TagList(is)
		}
		row := fmt.Sprintf("%s%s %s %s %s %s",
			cursor, check, renderPriority(is.Priority),
			style.Render(fmt.Sprintf("%-*s", titleW, truncate(is.Title, titleW))),
			mutedStyle.Render(fmt.Sprintf("%-20s", truncate(tags, 20))),
			mutedStyle.Render(formatDate(is.ModifiedDate)),
		)
		rows = append(rows, row)
	}
	return rows
}

func (m issuesModel) renderTagPicker() string {
	rows := []string{titleStyle.Render("Add Tag"), ""}
	for i, t := range m.missing {
		cursor := "  "
		style := normalItemStyle
		if i == m.tagCursor {
			cursor = "> "
			style = selectedItemStyle
		}
		rows = append(rows, style.Render(cursor+t.Name))
	}
	rows = append(rows, "", mutedStyle.Render("  enter: add  esc: cancel"))
	return strings.Join(rows, "\n")
}
