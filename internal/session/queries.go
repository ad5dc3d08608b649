package session

import (
	"github.com/sadopc/issuedesk/internal/awards"
	"github.com/sadopc/issuedesk/internal/model"
	"github.com/sadopc/issuedesk/internal/query"
	"github.com/sadopc/issuedesk/internal/store"
)

func (s *Session) IssuesForFilter(fs model.FilterState) []model.Issue {
	return query.IssuesForFilter(s.Snapshot(), fs)
}

func (s *Session) SuggestedFilterTokens(text string) []model.Tag {
	return query.SuggestedFilterTokens(s.Snapshot(), text)
}

// MissingTags lists the tags the issue does not have. An unknown issue
// yields every tag.
func (s *Session) MissingTags(issueID string) []model.Tag {
	snap := s.Snapshot()
	is, _ := snap.Issue(issueID)
	return query.MissingTags(snap, is)
}

func (s *Session) TopIssues(n int) []model.Issue {
	return query.TopIssues(s.Snapshot(), n)
}

func (s *Session) Issue(id string) (model.Issue, bool) {
	return s.Snapshot().Issue(id)
}

func (s *Session) Tags() []model.Tag {
	return s.Snapshot().Tags
}

// AwardCounts are the aggregates awards are judged on.
func (s *Session) AwardCounts() awards.Counts {
	snap := s.Snapshot()
	return awards.Counts{
		Issues:   snap.IssueCount(),
		Closed:   snap.ClosedCount(),
		Tags:     snap.TagCount(),
		Unlocked: s.FullVersionUnlocked(),
	}
}

func (s *Session) HasEarned(a awards.Award) bool {
	return awards.HasEarned(s.AwardCounts(), a)
}

// ShouldRequestReview is true once the user has more than five tags.
func (s *Session) ShouldRequestReview() bool {
	return s.Snapshot().TagCount() > reviewTagThreshold
}

// flushForQuery commits pending edits so store queries see them. A failed
// save is logged; the query then reads the last committed state.
func (s *Session) flushForQuery() {
	if err := s.Save(); err != nil {
		s.logger.Warn("save before store query", "error", err)
	}
}

// FetchIssues evaluates fs in the durable store instead of the working
// set. A zero limit is unbounded. Store failures yield an empty list.
func (s *Session) FetchIssues(fs model.FilterState, limit uint64) []model.Issue {
	s.flushForQuery()
	issues, err := s.store.FetchIssues(query.Build(fs), query.OrderBy(fs), limit)
	if err != nil {
		s.logger.Warn("fetch issues", "error", err)
		return []model.Issue{}
	}
	return issues
}

// FetchTopIssues is TopIssues answered by the durable store.
func (s *Session) FetchTopIssues(n int) []model.Issue {
	if n <= 0 {
		return []model.Issue{}
	}
	s.flushForQuery()
	issues, err := s.store.FetchIssues(query.TopIssuesClauses(), query.TopIssuesOrder(), uint64(n))
	if err != nil {
		s.logger.Warn("fetch top issues", "error", err)
		return []model.Issue{}
	}
	return issues
}

// CountIssues counts the stored issues matching fs, or 0 on failure.
func (s *Session) CountIssues(fs model.FilterState) int {
	s.flushForQuery()
	n, err := s.store.CountIssues(query.Build(fs))
	if err != nil {
		s.logger.Warn("count issues", "error", err)
		return 0
	}
	return n
}

// StoredCounts reports committed totals and the settings table.
func (s *Session) StoredCounts() (store.Counts, []store.Setting, error) {
	s.flushForQuery()
	c, err := s.store.Counts()
	if err != nil {
		return c, nil, err
	}
	settings, err := s.store.GetAllSettings()
	return c, settings, err
}
