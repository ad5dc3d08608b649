package tui

import (
	"fmt"
	"strings"

	"github.com/NimbleMarkets/ntcharts/barchart"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/issuedesk/internal/awards"
	"github.com/sadopc/issuedesk/internal/session"
)

var criterionLabels = map[string]string{
	awards.CriterionIssues: "Issues",
	awards.CriterionClosed: "Closed",
	awards.CriterionTags:   "Tags",
	awards.CriterionUnlock: "Unlock",
}

type awardsModel struct {
	sess   *session.Session
	width  int
	height int

	catalog []awards.Award
	counts  awards.Counts
	earned  map[string]bool
	review  bool

	chart barchart.Model
}

func newAwardsModel(s *session.Session) awardsModel {
	return awardsModel{
		sess:    s,
		catalog: awards.All(),
		chart:   barchart.New(60, 10),
	}
}

func (a *awardsModel) setSize(w, h int) {
	a.width = w
	a.height = h
}

type awardsDataMsg struct {
	counts awards.Counts
	earned map[string]bool
	review bool
}

func (a awardsModel) load() awardsDataMsg {
	earned := make(map[string]bool)
	for _, aw := range a.catalog {
		if a.sess.HasEarned(aw) {
			earned[aw.ID()] = true
		}
	}
	return awardsDataMsg{
		counts: a.sess.AwardCounts(),
		earned: earned,
		review: a.sess.ShouldRequestReview(),
	}
}

func (a awardsModel) refresh() tea.Cmd {
	return func() tea.Msg { return a.load() }
}

func (a awardsModel) update(msg tea.Msg) (awardsModel, tea.Cmd) {
	if msg, ok := msg.(awardsDataMsg); ok {
		a.counts = msg.counts
		a.earned = msg.earned
		a.review = msg.review
		a.buildChart()
	}
	return a, nil
}

// buildChart draws one bar per criterion: the share of its awards earned.
func (a *awardsModel) buildChart() {
	a.chart = barchart.New(max(20, a.width-8), 10)

	var bars []barchart.BarData
	for _, c := range []string{awards.CriterionIssues, awards.CriterionClosed, awards.CriterionTags, awards.CriterionUnlock} {
		total, got := 0, 0
		color := "#6C63FF"
		for _, aw := range a.catalog {
			if aw.Criterion != c {
				continue
			}
			total++
			if a.earned[aw.ID()] {
				got++
			}
			if aw.Color != "" {
				color = aw.Color
			}
		}
		if total == 0 {
			continue
		}
		bars = append(bars, barchart.BarData{
			Label: criterionLabels[c],
			Values: []barchart.BarValue{{
				Name:  criterionLabels[c],
				Value: float64(got),
				Style: lipgloss.NewStyle().Foreground(lipgloss.Color(color)),
			}},
		})
	}

	a.chart.PushAll(bars)
	a.chart.Draw()
}

func (a awardsModel) view() string {
	w := a.width - 4
	header := lipgloss.JoinHorizontal(lipgloss.Bottom,
		titleStyle.Render("Awards"), "  ",
		mutedStyle.Render(fmt.Sprintf("%d of %d earned", len(a.earned), len(a.catalog))),
	)
	summary := mutedStyle.Render(fmt.Sprintf("%d issues  %d closed  %d tags", a.counts.Issues, a.counts.Closed, a.counts.Tags))

	rows := []string{header, summary, "", a.chart.View(), ""}
	for _, aw := range a.catalog {
		mark := mutedStyle.Render("○")
		name := normalItemStyle.Render(fmt.Sprintf("%-16s", aw.Name))
		if a.earned[aw.ID()] {
			mark = lipgloss.NewStyle().Foreground(lipgloss.Color(aw.Color)).Render("●")
			name = successStyle.Render(fmt.Sprintf("%-16s", aw.Name))
		}
		pct := int(awards.Progress(a.counts, aw) * 100)
		rows = append(rows, fmt.Sprintf("  %s %s %3d%%  %s", mark, name, pct, mutedStyle.Render(aw.Description)))
	}
	if a.review {
		rows = append(rows, "", accentStyle.Render("  Enjoying issuedesk? A review helps a lot."))
	}
	return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
}
