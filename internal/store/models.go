package store

import "github.com/sadopc/issuedesk/internal/model"

type Setting struct {
	Key   string
	Value string
}

// Entity names a table that supports batch deletes.
type Entity string

const (
	EntityIssue Entity = "issue"
	EntityTag   Entity = "tag"
)

func (e Entity) table() (string, error) {
	switch e {
	case EntityIssue:
		return "issues", nil
	case EntityTag:
		return "tags", nil
	}
	return "", ErrUnknownEntity
}

// Changeset is a unit of work applied atomically by Commit. Issues are
// full records: their tag links are replaced by TagIDs.
type Changeset struct {
	Tags          []model.Tag
	Issues        []model.Issue
	DeletedIssues []string
	DeletedTags   []string
}

func (c Changeset) Empty() bool {
	return len(c.Tags) == 0 && len(c.Issues) == 0 && len(c.DeletedIssues) == 0 && len(c.DeletedTags) == 0
}

// Counts are aggregate totals used for awards and status lines.
type Counts struct {
	Issues int
	Closed int
	Tags   int
}
