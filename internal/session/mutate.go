package session

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/google/uuid"

	"github.com/sadopc/issuedesk/internal/model"
)

// NewIssue creates an issue with default values and saves it. When scope
// is a tag filter the issue starts with that tag. The issue is returned
// even if the save fails; it stays pending in that case.
func (s *Session) NewIssue(scope model.Filter) (model.Issue, error) {
	now := s.now()
	is := model.Issue{
		ID:           uuid.NewString(),
		Title:        model.DefaultIssueTitle,
		CreatedDate:  now,
		ModifiedDate: now,
		Priority:     model.PriorityMedium,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return model.Issue{}, ErrClosed
	}
	if scope.IsTag() {
		if _, ok := s.ws.tags[scope.TagID]; ok {
			is.TagIDs = []string{scope.TagID}
		}
	}
	s.ws.issues[is.ID] = &issueEntry{issue: is, dirty: model.AllIssueFields, inserted: true}
	s.changedLocked()
	s.mu.Unlock()

	s.notify(Event{Kind: EventChanged, IDs: []string{is.ID}})
	return is.Clone(), s.Save()
}

// NewTag creates a tag named "New tag". It returns false without creating
// anything when the free tier's tag quota is used up.
func (s *Session) NewTag() (model.Tag, bool) {
	s.mu.Lock()
	if s.closed || (!s.unlocked && len(s.ws.tags) >= s.freeTagLimit) {
		s.mu.Unlock()
		return model.Tag{}, false
	}
	t := model.Tag{ID: uuid.NewString(), Name: model.DefaultTagName}
	s.ws.tags[t.ID] = &tagEntry{tag: t, dirty: model.FieldName, inserted: true}
	s.changedLocked()
	s.mu.Unlock()

	s.notify(Event{Kind: EventChanged, IDs: []string{t.ID}})
	if err := s.Save(); err != nil {
		s.logger.Warn("save new tag", "tag", t.ID, "error", err)
	}
	return t, true
}

func (s *Session) RenameTag(id, name string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	e, ok := s.ws.tags[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("tag %s: %w", id, ErrNotFound)
	}
	if e.tag.Name == name {
		s.mu.Unlock()
		return nil
	}
	e.tag.Name = name
	e.dirty |= model.FieldName
	s.changedLocked()
	s.mu.Unlock()

	s.notify(Event{Kind: EventChanged, IDs: []string{id}})
	return s.Save()
}

// UpdateIssue applies fn to a copy of the issue. If anything changed the
// modification date is set to now and a save is queued. The identity
// cannot be changed and unknown tags are dropped.
func (s *Session) UpdateIssue(id string, fn func(*model.Issue)) error {
	_, err := s.mutateIssue(id, fn)
	return err
}

func (s *Session) AddTag(issueID, tagID string) error {
	s.mu.Lock()
	_, ok := s.ws.tags[tagID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("tag %s: %w", tagID, ErrNotFound)
	}
	_, err := s.mutateIssue(issueID, func(is *model.Issue) {
		is.TagIDs = append(is.TagIDs, tagID)
	})
	return err
}

func (s *Session) RemoveTag(issueID, tagID string) error {
	_, err := s.mutateIssue(issueID, func(is *model.Issue) {
		is.TagIDs = slices.DeleteFunc(is.TagIDs, func(id string) bool { return id == tagID })
	})
	return err
}

func (s *Session) mutateIssue(id string, fn func(*model.Issue)) (bool, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, ErrClosed
	}
	e, ok := s.ws.issues[id]
	if !ok {
		s.mu.Unlock()
		return false, fmt.Errorf("issue %s: %w", id, ErrNotFound)
	}

	next := e.issue.Clone()
	fn(&next)
	next.ID = e.issue.ID
	next.Priority = model.ClampPriority(next.Priority)
	next.TagIDs = s.ws.knownTags(model.NormalizeTagIDs(next.TagIDs))
	next.ModifiedDate = e.issue.ModifiedDate

	changed := model.DiffIssues(e.issue, next)
	if changed == 0 {
		s.mu.Unlock()
		return false, nil
	}
	next.ModifiedDate = s.now()
	e.issue = next
	e.dirty |= changed | model.FieldModifiedDate
	s.changedLocked()
	s.mu.Unlock()

	s.notify(Event{Kind: EventChanged, IDs: []string{id}})
	s.saver.QueueSave()
	return true, nil
}

func (s *Session) DeleteIssue(id string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if !s.ws.removeIssue(id) {
		s.mu.Unlock()
		return fmt.Errorf("issue %s: %w", id, ErrNotFound)
	}
	s.changedLocked()
	s.mu.Unlock()

	s.notify(Event{Kind: EventChanged, IDs: []string{id}})
	return s.Save()
}

// DeleteTag deletes the tag and detaches it from its issues. The issues
// themselves are kept.
func (s *Session) DeleteTag(id string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if !s.ws.removeTag(id) {
		s.mu.Unlock()
		return fmt.Errorf("tag %s: %w", id, ErrNotFound)
	}
	s.changedLocked()
	s.mu.Unlock()

	s.notify(Event{Kind: EventChanged, IDs: []string{id}})
	return s.Save()
}

// CreateSampleData adds five tags with ten issues each and saves them.
func (s *Session) CreateSampleData() error {
	now := s.now()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	for i := 1; i <= 5; i++ {
		t := model.Tag{ID: uuid.NewString(), Name: fmt.Sprintf("Tag %d", i)}
		s.ws.tags[t.ID] = &tagEntry{tag: t, dirty: model.FieldName, inserted: true}

		for j := 1; j <= 10; j++ {
			is := model.Issue{
				ID:           uuid.NewString(),
				Title:        fmt.Sprintf("Issue %d-%d", i, j),
				Content:      "Description goes here",
				CreatedDate:  now,
				ModifiedDate: now,
				Completed:    rand.IntN(2) == 1,
				Priority:     rand.IntN(3),
				TagIDs:       []string{t.ID},
			}
			s.ws.issues[is.ID] = &issueEntry{issue: is, dirty: model.AllIssueFields, inserted: true}
		}
	}
	s.changedLocked()
	s.mu.Unlock()

	s.notify(Event{Kind: EventChanged})
	return s.Save()
}
