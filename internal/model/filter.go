package model

import "time"

// Filter is a named scope for the issue list: either a tag or a
// modification-date floor.
type Filter struct {
	ID                  string
	Name                string
	Icon                string
	TagID               string
	MinModificationDate time.Time
}

const recentWindow = 7 * 24 * time.Hour

// AllFilter selects every issue modified after the Unix epoch.
var AllFilter = Filter{
	ID:                  "all",
	Name:                "All Issues",
	Icon:                "tray",
	MinModificationDate: time.Unix(0, 0).UTC(),
}

// RecentFilter selects issues modified in the seven days before now.
func RecentFilter(now time.Time) Filter {
	return Filter{
		ID:                  "recent",
		Name:                "Recent Issues",
		Icon:                "clock",
		MinModificationDate: now.Add(-recentWindow).UTC(),
	}
}

func TagFilter(t Tag) Filter {
	return Filter{
		ID:                  t.ID,
		Name:                t.Name,
		Icon:                "tag",
		TagID:               t.ID,
		MinModificationDate: AllFilter.MinModificationDate,
	}
}

func (f Filter) IsTag() bool { return f.TagID != "" }

type Status int

const (
	StatusAll Status = iota
	StatusOpen
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusClosed:
		return "closed"
	default:
		return "all"
	}
}

// ParseStatus accepts "all", "open" or "closed"; anything else is StatusAll.
func ParseStatus(s string) Status {
	switch s {
	case "open":
		return StatusOpen
	case "closed":
		return StatusClosed
	default:
		return StatusAll
	}
}

type SortKey string

const (
	SortByCreated  SortKey = "createdDate"
	SortByModified SortKey = "modifiedDate"
)

// AnyPriority disables the priority clause of an enabled filter.
const AnyPriority = -1

// FilterState is everything that narrows and orders the issue list.
type FilterState struct {
	Selected       Filter
	Text           string
	Tokens         []Tag
	Enabled        bool
	Priority       int
	Status         Status
	SortKey        SortKey
	SortDescending bool
}

func DefaultFilterState() FilterState {
	return FilterState{
		Selected:       AllFilter,
		Priority:       AnyPriority,
		Status:         StatusAll,
		SortKey:        SortByCreated,
		SortDescending: true,
	}
}

// AddToken appends t unless a token with the same ID is already present.
func (fs *FilterState) AddToken(t Tag) {
	for _, tok := range fs.Tokens {
		if tok.ID == t.ID {
			return
		}
	}
	fs.Tokens = append(fs.Tokens, t)
}

func (fs *FilterState) RemoveToken(id string) {
	out := fs.Tokens[:0]
	for _, tok := range fs.Tokens {
		if tok.ID != id {
			out = append(out, tok)
		}
	}
	fs.Tokens = out
}
