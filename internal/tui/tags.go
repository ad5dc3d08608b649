package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/issuedesk/internal/model"
	"github.com/sadopc/issuedesk/internal/session"
)

type tagRow struct {
	tag    model.Tag
	active int
}

type tagsModel struct {
	sess   *session.Session
	width  int
	height int

	rows     []tagRow
	unlocked bool
	cursor   int

	formActive bool
	form       *huh.Form
	formName   *string
	editingID  string
}

func newTagsModel(s *session.Session) tagsModel {
	name := ""
	return tagsModel{sess: s, formName: &name}
}

func (t *tagsModel) setSize(w, h int) {
	t.width = w
	t.height = h
}

type tagsDataMsg struct {
	rows     []tagRow
	unlocked bool
}

func (t tagsModel) load() tagsDataMsg {
	snap := t.sess.Snapshot()
	rows := make([]tagRow, len(snap.Tags))
	for i, tag := range snap.Tags {
		rows[i] = tagRow{tag: tag, active: len(snap.ActiveIssues(tag.ID))}
	}
	return tagsDataMsg{rows: rows, unlocked: t.sess.FullVersionUnlocked()}
}

func (t tagsModel) refresh() tea.Cmd {
	return func() tea.Msg { return t.load() }
}

func (t tagsModel) update(msg tea.Msg) (tagsModel, tea.Cmd) {
	if t.formActive && t.form != nil {
		return t.updateForm(msg)
	}

	switch msg := msg.(type) {
	case tagsDataMsg:
		t.rows = msg.rows
		t.unlocked = msg.unlocked
		if t.cursor >= len(t.rows) {
			t.cursor = max(0, len(t.rows)-1)
		}
		return t, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Up):
			if t.cursor > 0 {
				t.cursor--
			}
		case key.Matches(msg, keys.Down):
			if t.cursor < len(t.rows)-1 {
				t.cursor++
			}
		case key.Matches(msg, keys.New):
			tag, ok := t.sess.NewTag()
			if !ok {
				return t, statusCmd("Tag limit reached. Run `issuedesk unlock` for unlimited tags.", true)
			}
			return t.showRenameForm(tag)
		case key.Matches(msg, keys.Rename):
			if len(t.rows) > 0 {
				return t.showRenameForm(t.rows[t.cursor].tag)
			}
		case key.Matches(msg, keys.Delete):
			if len(t.rows) > 0 {
				if err := t.sess.DeleteTag(t.rows[t.cursor].tag.ID); err != nil {
					return t, statusCmd(fmt.Sprintf("Delete failed: %v", err), true)
				}
				return t, t.refresh()
			}
		case key.Matches(msg, keys.Enter):
			if len(t.rows) > 0 {
				id := t.rows[t.cursor].tag.ID
				return t, func() tea.Msg { return showTagMsg{tagID: id} }
			}
		}
	}
	return t, nil
}

func (t tagsModel) showRenameForm(tag model.Tag) (tagsModel, tea.Cmd) {
	*t.formName = tag.Name
	t.editingID = tag.ID
	t.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Tag Name").Value(t.formName),
		),
	).WithShowHelp(true).WithShowErrors(true)

	t.formActive = true
	return t, t.form.Init()
}

func (t tagsModel) updateForm(msg tea.Msg) (tagsModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && msg.String() == "esc" {
		t.formActive = false
		t.form = nil
		return t, t.refresh()
	}

	form, cmd := t.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		t.form = f
	}

	if t.form.State == huh.StateCompleted {
		t.formActive = false
		if name := strings.TrimSpace(*t.formName); name != "" {
			if err := t.sess.RenameTag(t.editingID, name); err != nil {
				return t, statusCmd(fmt.Sprintf("Rename failed: %v", err), true)
			}
		}
		return t, t.refresh()
	}
	return t, cmd
}

func (t tagsModel) view() string {
	w := t.width - 4
	if t.formActive && t.form != nil {
		content := lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render("Tag"), "", t.form.View())
		return panelStyle.Width(w).Render(content)
	}

	title := titleStyle.Render("Tags")
	if !t.unlocked {
		title += mutedStyle.Render("  (free version)")
	}

	if len(t.rows) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			title,
			"",
			mutedStyle.Render("No tags yet. Press n to create one."),
		)
		return panelStyle.Width(w).Render(content)
	}

	rows := []string{title, "", mutedStyle.Render(fmt.Sprintf("  %-28s %s", "Name", "Open issues"))}
	for i, r := range t.rows {
		cursor := "  "
		style := normalItemStyle
		if i == t.cursor {
			cursor = "> "
			style = selectedItemStyle
		}
		rows = append(rows, style.Render(fmt.Sprintf("%s%-28s %d", cursor, truncate(r.tag.Name, 28), r.active)))
	}
	rows = append(rows, "", mutedStyle.Render("  n: new  r: rename  d: delete  enter: show issues"))

	return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
}
