package session

import (
	"maps"
	"slices"

	"github.com/sadopc/issuedesk/internal/model"
	"github.com/sadopc/issuedesk/internal/store"
)

type issueEntry struct {
	issue model.Issue
	// dirty holds the fields changed since the last commit.
	dirty model.Field
	// inserted marks records the store does not have yet.
	inserted bool
}

type tagEntry struct {
	tag      model.Tag
	dirty    model.Field
	inserted bool
}

// workingSet is the session's in-memory copy of the store plus the
// bookkeeping needed to commit it and to merge external changes into it.
type workingSet struct {
	issues        map[string]*issueEntry
	tags          map[string]*tagEntry
	deletedIssues map[string]struct{}
	deletedTags   map[string]struct{}
}

func newWorkingSet() *workingSet {
	return &workingSet{
		issues:        make(map[string]*issueEntry),
		tags:          make(map[string]*tagEntry),
		deletedIssues: make(map[string]struct{}),
		deletedTags:   make(map[string]struct{}),
	}
}

func (w *workingSet) load(issues []model.Issue, tags []model.Tag) {
	*w = *newWorkingSet()
	for _, t := range tags {
		w.tags[t.ID] = &tagEntry{tag: t}
	}
	for _, is := range issues {
		w.issues[is.ID] = &issueEntry{issue: is.Clone()}
	}
}

func (w *workingSet) hasChanges() bool {
	if len(w.deletedIssues) > 0 || len(w.deletedTags) > 0 {
		return true
	}
	for _, e := range w.tags {
		if e.dirty != 0 || e.inserted {
			return true
		}
	}
	for _, e := range w.issues {
		if e.dirty != 0 || e.inserted {
			return true
		}
	}
	return false
}

// changeset collects everything not yet committed, in identity order.
func (w *workingSet) changeset() store.Changeset {
	var cs store.Changeset
	for _, id := range slices.Sorted(maps.Keys(w.tags)) {
		if e := w.tags[id]; e.dirty != 0 || e.inserted {
			cs.Tags = append(cs.Tags, e.tag)
		}
	}
	for _, id := range slices.Sorted(maps.Keys(w.issues)) {
		if e := w.issues[id]; e.dirty != 0 || e.inserted {
			cs.Issues = append(cs.Issues, e.issue.Clone())
		}
	}
	cs.DeletedIssues = slices.Sorted(maps.Keys(w.deletedIssues))
	cs.DeletedTags = slices.Sorted(maps.Keys(w.deletedTags))
	return cs
}

func (w *workingSet) markCommitted() {
	for _, e := range w.tags {
		e.dirty, e.inserted = 0, false
	}
	for _, e := range w.issues {
		e.dirty, e.inserted = 0, false
	}
	clear(w.deletedIssues)
	clear(w.deletedTags)
}

func (w *workingSet) snapshot() *model.Snapshot {
	issues := make([]model.Issue, 0, len(w.issues))
	for _, e := range w.issues {
		issues = append(issues, e.issue)
	}
	tags := make([]model.Tag, 0, len(w.tags))
	for _, e := range w.tags {
		tags = append(tags, e.tag)
	}
	return model.NewSnapshot(issues, tags)
}

// knownTags drops ids that are not in the working set.
func (w *workingSet) knownTags(ids []string) []string {
	var out []string
	for _, id := range ids {
		if _, ok := w.tags[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// stripTag removes a vanished tag from every issue. The store drops the
// links itself, so the issues are not marked dirty.
func (w *workingSet) stripTag(tagID string) {
	for _, e := range w.issues {
		if e.issue.HasTag(tagID) {
			e.issue.TagIDs = slices.DeleteFunc(slices.Clone(e.issue.TagIDs), func(id string) bool { return id == tagID })
			if len(e.issue.TagIDs) == 0 {
				e.issue.TagIDs = nil
			}
		}
	}
}

func (w *workingSet) removeIssue(id string) (existed bool) {
	e, ok := w.issues[id]
	if !ok {
		return false
	}
	delete(w.issues, id)
	if !e.inserted {
		w.deletedIssues[id] = struct{}{}
	}
	return true
}

func (w *workingSet) removeTag(id string) (existed bool) {
	e, ok := w.tags[id]
	if !ok {
		return false
	}
	delete(w.tags, id)
	if !e.inserted {
		w.deletedTags[id] = struct{}{}
	}
	w.stripTag(id)
	return true
}
