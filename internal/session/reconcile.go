package session

import (
	"errors"
	"fmt"
	"slices"

	"github.com/sadopc/issuedesk/internal/model"
	"github.com/sadopc/issuedesk/internal/remote"
	"github.com/sadopc/issuedesk/internal/store"
)

// RemoteChanged re-reads the store after another writer changed it and
// merges the result into the working set, then notifies observers once.
// A failed read leaves the working set as it was.
func (s *Session) RemoteChanged() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	err := s.refreshLocked()
	s.mu.Unlock()
	if err != nil {
		s.logger.Warn("refresh after remote change", "error", err)
		return
	}
	s.notify(Event{Kind: EventRemoteChanged})
}

func (s *Session) refreshLocked() error {
	issues, tags, err := s.store.LoadAll()
	if err != nil {
		return fmt.Errorf("reload store: %w", err)
	}
	s.ws.merge(issues, tags)
	if unlocked, err := s.store.FullVersionUnlocked(); err == nil {
		s.unlocked = unlocked
	}
	s.changedLocked()
	return nil
}

// ApplyRemote writes an upstream change-set to the store in one
// transaction and merges the result into the working set.
func (s *Session) ApplyRemote(set remote.ChangeSet) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	cs, err := s.remoteChangeset(set)
	if err == nil {
		err = s.store.Commit(cs)
	}
	if err == nil {
		err = s.refreshLocked()
	}
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("apply remote changes: %w", err)
	}

	ids := make([]string, 0, len(set.Changes))
	for _, ch := range set.Changes {
		ids = append(ids, ch.ID)
	}
	s.notify(Event{Kind: EventRemoteChanged, IDs: ids})
	return nil
}

// remoteChangeset overlays each change onto the stored record it targets.
// Later changes to the same identity win.
func (s *Session) remoteChangeset(set remote.ChangeSet) (store.Changeset, error) {
	now := s.now()
	tags := map[string]model.Tag{}
	issues := map[string]model.Issue{}
	var tagOrder, issueOrder []string
	deletedTags := map[string]bool{}
	deletedIssues := map[string]bool{}

	for _, ch := range set.Changes {
		switch ch.Entity {
		case remote.EntityTag:
			if ch.Op == remote.OpDelete {
				delete(tags, ch.ID)
				deletedTags[ch.ID] = true
				continue
			}
			t, ok := tags[ch.ID]
			if !ok {
				stored, err := s.store.GetTag(ch.ID)
				switch {
				case err == nil:
					t = *stored
				case errors.Is(err, store.ErrNotFound):
					t = model.Tag{ID: ch.ID, Name: model.DefaultTagName}
				default:
					return store.Changeset{}, err
				}
				if !slices.Contains(tagOrder, ch.ID) {
					tagOrder = append(tagOrder, ch.ID)
				}
			}
			ch.Tag.Apply(&t)
			tags[ch.ID] = t
			delete(deletedTags, ch.ID)

		case remote.EntityIssue:
			if ch.Op == remote.OpDelete {
				delete(issues, ch.ID)
				deletedIssues[ch.ID] = true
				continue
			}
			is, ok := issues[ch.ID]
			if !ok {
				stored, err := s.store.GetIssue(ch.ID)
				switch {
				case err == nil:
					is = *stored
				case errors.Is(err, store.ErrNotFound):
					is = model.Issue{
						ID:           ch.ID,
						Title:        model.DefaultIssueTitle,
						CreatedDate:  now,
						ModifiedDate: now,
						Priority:     model.PriorityMedium,
					}
				default:
					return store.Changeset{}, err
				}
				if !slices.Contains(issueOrder, ch.ID) {
					issueOrder = append(issueOrder, ch.ID)
				}
			}
			ch.Issue.Apply(&is)
			issues[ch.ID] = is
			delete(deletedIssues, ch.ID)
		}
	}

	var cs store.Changeset
	for _, id := range tagOrder {
		if t, ok := tags[id]; ok {
			cs.Tags = append(cs.Tags, t)
		}
	}
	for _, id := range issueOrder {
		if is, ok := issues[id]; ok {
			cs.Issues = append(cs.Issues, is)
		}
	}
	for id := range deletedIssues {
		cs.DeletedIssues = append(cs.DeletedIssues, id)
	}
	for id := range deletedTags {
		cs.DeletedTags = append(cs.DeletedTags, id)
	}
	slices.Sort(cs.DeletedIssues)
	slices.Sort(cs.DeletedTags)
	return cs, nil
}

// DeleteAll flushes pending changes, batch deletes every tag and then
// every issue, and merges each batch into the working set.
func (s *Session) DeleteAll() error {
	if err := s.Save(); err != nil {
		return fmt.Errorf("delete all: %w", err)
	}
	if err := s.batchDelete(store.EntityTag); err != nil {
		return err
	}
	if err := s.batchDelete(store.EntityIssue); err != nil {
		return err
	}
	return s.Save()
}

// batchDelete deletes every stored row of entity in one statement and
// removes the returned identities from the working set. On failure the
// working set is untouched.
func (s *Session) batchDelete(entity store.Entity) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	ids, err := s.store.BatchDelete(entity, nil)
	if err != nil {
		s.mu.Unlock()
		s.logger.Error("batch delete failed", "entity", entity, "error", err)
		return fmt.Errorf("batch delete %s: %w", entity, err)
	}
	s.ws.mergeDeleted(entity, ids)
	s.changedLocked()
	s.mu.Unlock()

	s.notify(Event{Kind: EventBatchDeleted, IDs: ids})
	return nil
}
