package model

import (
	"slices"
	"strings"
	"time"
)

// Priority levels. Anything outside this range is clamped by ClampPriority.
const (
	PriorityLow    = 0
	PriorityMedium = 1
	PriorityHigh   = 2
)

const (
	DefaultIssueTitle = "New issue"
	DefaultTagName    = "New tag"
)

type Issue struct {
	ID              string
	Title           string
	Content         string
	CreatedDate     time.Time
	ModifiedDate    time.Time
	Completed       bool
	Priority        int
	ReminderEnabled bool
	ReminderTime    time.Time
	TagIDs          []string // sorted, unique
}

type Tag struct {
	ID   string
	Name string
}

// Clone returns a copy of the issue that shares no memory with the receiver.
func (i Issue) Clone() Issue {
	i.TagIDs = slices.Clone(i.TagIDs)
	return i
}

func (i Issue) HasTag(id string) bool {
	_, ok := slices.BinarySearch(i.TagIDs, id)
	return ok
}

// Status is the display label for the completion flag.
func (i Issue) Status() string {
	if i.Completed {
		return "Closed"
	}
	return "Open"
}

func (i Issue) PriorityLabel() string {
	switch i.Priority {
	case PriorityLow:
		return "Low"
	case PriorityHigh:
		return "High"
	default:
		return "Medium"
	}
}

func ClampPriority(p int) int {
	return min(max(p, PriorityLow), PriorityHigh)
}

// NormalizeTagIDs sorts ids and drops empties and duplicates. The result
// is nil when nothing remains.
func NormalizeTagIDs(ids []string) []string {
	var out []string
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// CompareIssues is the natural order of issues: title, then creation date,
// then identity so that the order is total.
func CompareIssues(a, b Issue) int {
	if c := strings.Compare(a.Title, b.Title); c != 0 {
		return c
	}
	if c := a.CreatedDate.Compare(b.CreatedDate); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// CompareTags orders tags by name, then identity.
func CompareTags(a, b Tag) int {
	if c := strings.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}
