package model

import (
	"slices"
	"strings"
)

// Snapshot is an immutable view of the working set. Issues and Tags are in
// natural order. Callers must not modify the returned slices.
type Snapshot struct {
	Issues []Issue
	Tags   []Tag

	issueIdx map[string]int
	tagIdx   map[string]int
}

// NewSnapshot copies issues and tags and sorts them into natural order.
func NewSnapshot(issues []Issue, tags []Tag) *Snapshot {
	s := &Snapshot{
		Issues:   make([]Issue, len(issues)),
		Tags:     slices.Clone(tags),
		issueIdx: make(map[string]int, len(issues)),
		tagIdx:   make(map[string]int, len(tags)),
	}
	for i, is := range issues {
		s.Issues[i] = is.Clone()
	}
	slices.SortFunc(s.Issues, CompareIssues)
	slices.SortFunc(s.Tags, CompareTags)
	for i, is := range s.Issues {
		s.issueIdx[is.ID] = i
	}
	for i, t := range s.Tags {
		s.tagIdx[t.ID] = i
	}
	return s
}

func (s *Snapshot) Issue(id string) (Issue, bool) {
	if s == nil {
		return Issue{}, false
	}
	i, ok := s.issueIdx[id]
	if !ok {
		return Issue{}, false
	}
	return s.Issues[i], true
}

// Tag looks up a tag. A nil snapshot has no tags.
func (s *Snapshot) Tag(id string) (Tag, bool) {
	if s == nil {
		return Tag{}, false
	}
	i, ok := s.tagIdx[id]
	if !ok {
		return Tag{}, false
	}
	return s.Tags[i], true
}

// IssueTags resolves the issue's tags in natural order.
func (s *Snapshot) IssueTags(is Issue) []Tag {
	tags := make([]Tag, 0, len(is.TagIDs))
	for _, id := range is.TagIDs {
		if t, ok := s.Tag(id); ok {
			tags = append(tags, t)
		}
	}
	slices.SortFunc(tags, CompareTags)
	return tags
}

// TagList is the comma separated display string of an issue's tag names,
// or "No tags".
func (s *Snapshot) TagList(is Issue) string {
	tags := s.IssueTags(is)
	if len(tags) == 0 {
		return "No tags"
	}
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = t.Name
	}
	return strings.Join(names, ", ")
}

// ActiveIssues returns the open issues carrying the tag.
func (s *Snapshot) ActiveIssues(tagID string) []Issue {
	var out []Issue
	for _, is := range s.Issues {
		if !is.Completed && is.HasTag(tagID) {
			out = append(out, is)
		}
	}
	return out
}

func (s *Snapshot) IssueCount() int { return len(s.Issues) }
func (s *Snapshot) TagCount() int   { return len(s.Tags) }

func (s *Snapshot) ClosedCount() int {
	n := 0
	for _, is := range s.Issues {
		if is.Completed {
			n++
		}
	}
	return n
}
