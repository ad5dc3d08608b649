package session

import (
	"slices"

	"github.com/sadopc/issuedesk/internal/model"
	"github.com/sadopc/issuedesk/internal/store"
)

// mergeIssue takes every field from stored except those changed locally
// since the last commit.
func mergeIssue(local model.Issue, dirty model.Field, stored model.Issue) model.Issue {
	out := local
	if !dirty.Has(model.FieldTitle) {
		out.Title = stored.Title
	}
	if !dirty.Has(model.FieldContent) {
		out.Content = stored.Content
	}
	if !dirty.Has(model.FieldCreatedDate) {
		out.CreatedDate = stored.CreatedDate
	}
	if !dirty.Has(model.FieldModifiedDate) {
		out.ModifiedDate = stored.ModifiedDate
	}
	if !dirty.Has(model.FieldCompleted) {
		out.Completed = stored.Completed
	}
	if !dirty.Has(model.FieldPriority) {
		out.Priority = stored.Priority
	}
	if !dirty.Has(model.FieldReminderEnabled) {
		out.ReminderEnabled = stored.ReminderEnabled
	}
	if !dirty.Has(model.FieldReminderTime) {
		out.ReminderTime = stored.ReminderTime
	}
	if dirty.Has(model.FieldTags) {
		out.TagIDs = slices.Clone(local.TagIDs)
	} else {
		out.TagIDs = slices.Clone(stored.TagIDs)
	}
	return out
}

func mergeTag(local model.Tag, dirty model.Field, stored model.Tag) model.Tag {
	out := local
	if !dirty.Has(model.FieldName) {
		out.Name = stored.Name
	}
	return out
}

// merge folds a fresh read of the store into the working set. Uncommitted
// local changes win field by field. Local records the store no longer has
// are dropped unless they carry uncommitted changes, in which case they
// are written back on the next save. Pending local deletes stay deleted.
func (w *workingSet) merge(issues []model.Issue, tags []model.Tag) {
	storedTags := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		storedTags[t.ID] = struct{}{}
		if _, gone := w.deletedTags[t.ID]; gone {
			continue
		}
		if e, ok := w.tags[t.ID]; ok {
			e.tag = mergeTag(e.tag, e.dirty, t)
			e.inserted = false
		} else {
			w.tags[t.ID] = &tagEntry{tag: t}
		}
	}
	for id, e := range w.tags {
		if _, ok := storedTags[id]; ok || e.inserted {
			continue
		}
		if e.dirty != 0 {
			e.inserted = true
			continue
		}
		delete(w.tags, id)
		w.stripTag(id)
	}
	for id := range w.deletedTags {
		if _, ok := storedTags[id]; !ok {
			delete(w.deletedTags, id)
		}
	}

	storedIssues := make(map[string]struct{}, len(issues))
	for _, is := range issues {
		storedIssues[is.ID] = struct{}{}
		if _, gone := w.deletedIssues[is.ID]; gone {
			continue
		}
		if e, ok := w.issues[is.ID]; ok {
			e.issue = mergeIssue(e.issue, e.dirty, is)
			e.inserted = false
		} else {
			w.issues[is.ID] = &issueEntry{issue: is.Clone()}
		}
	}
	for id, e := range w.issues {
		if _, ok := storedIssues[id]; !ok && !e.inserted {
			if e.dirty != 0 {
				e.inserted = true
			} else {
				delete(w.issues, id)
				continue
			}
		}
		e.issue.TagIDs = w.knownTags(e.issue.TagIDs)
	}
	for id := range w.deletedIssues {
		if _, ok := storedIssues[id]; !ok {
			delete(w.deletedIssues, id)
		}
	}
}

// mergeDeleted removes identities a batch delete already removed from the
// store.
func (w *workingSet) mergeDeleted(entity store.Entity, ids []string) {
	for _, id := range ids {
		switch entity {
		case store.EntityIssue:
			delete(w.issues, id)
			delete(w.deletedIssues, id)
		case store.EntityTag:
			delete(w.tags, id)
			delete(w.deletedTags, id)
			w.stripTag(id)
		}
	}
}
