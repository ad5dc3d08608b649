// Package remote carries change-sets from an external synchronization
// channel into a session.
package remote

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/sadopc/issuedesk/internal/model"
	"github.com/sadopc/issuedesk/internal/schema"
)

var ErrInvalidChangeSet = errors.New("invalid change set")

//go:embed changeset.schema.json
var changeSetSchema []byte

var (
	schemaOnce sync.Once
	compiled   *jsonschema.Schema
)

func changeSetValidator() *jsonschema.Schema {
	schemaOnce.Do(func() {
		compiled = schema.MustCompile("changeset.schema.json", changeSetSchema)
	})
	return compiled
}

const (
	EntityIssue = "issue"
	EntityTag   = "tag"

	OpUpsert = "upsert"
	OpDelete = "delete"
)

// ChangeSet is an ordered batch of upstream changes, applied atomically.
type ChangeSet struct {
	Source  string   `json:"source,omitempty"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Entity string       `json:"entity"`
	Op     string       `json:"op"`
	ID     string       `json:"id"`
	Issue  *IssueFields `json:"issue,omitempty"`
	Tag    *TagFields   `json:"tag,omitempty"`
}

// IssueFields holds the fields an upsert sets. Nil means unchanged; a
// non-nil Tags pointing at an empty list clears the issue's tags.
type IssueFields struct {
	Title           *string    `json:"title,omitempty"`
	Content         *string    `json:"content,omitempty"`
	Completed       *bool      `json:"completed,omitempty"`
	Priority        *int       `json:"priority,omitempty"`
	CreatedDate     *time.Time `json:"createdDate,omitempty"`
	ModifiedDate    *time.Time `json:"modifiedDate,omitempty"`
	ReminderEnabled *bool      `json:"reminderEnabled,omitempty"`
	ReminderTime    *time.Time `json:"reminderTime,omitempty"`
	Tags            *[]string  `json:"tags,omitempty"`
}

type TagFields struct {
	Name *string `json:"name,omitempty"`
}

// Apply overlays the set fields onto is.
func (f *IssueFields) Apply(is *model.Issue) {
	if f == nil {
		return
	}
	if f.Title != nil {
		is.Title = *f.Title
	}
	if f.Content != nil {
		is.Content = *f.Content
	}
	if f.Completed != nil {
		is.Completed = *f.Completed
	}
	if f.Priority != nil {
		is.Priority = model.ClampPriority(*f.Priority)
	}
	if f.CreatedDate != nil {
		is.CreatedDate = f.CreatedDate.UTC()
	}
	if f.ModifiedDate != nil {
		is.ModifiedDate = f.ModifiedDate.UTC()
	}
	if f.ReminderEnabled != nil {
		is.ReminderEnabled = *f.ReminderEnabled
	}
	if f.ReminderTime != nil {
		is.ReminderTime = f.ReminderTime.UTC()
	}
	if f.Tags != nil {
		is.TagIDs = model.NormalizeTagIDs(*f.Tags)
	}
}

func (f *TagFields) Apply(t *model.Tag) {
	if f == nil {
		return
	}
	if f.Name != nil {
		t.Name = *f.Name
	}
}

// Parse validates data against the change-set schema and decodes it. Any
// violation rejects the whole set.
func Parse(data []byte) (ChangeSet, error) {
	var set ChangeSet
	if err := schema.Validate(changeSetValidator(), data); err != nil {
		return set, fmt.Errorf("%w: %v", ErrInvalidChangeSet, err)
	}
	if err := json.Unmarshal(data, &set); err != nil {
		return set, fmt.Errorf("%w: %v", ErrInvalidChangeSet, err)
	}
	return set, nil
}

// Marshal encodes a change-set in the wire format Parse accepts.
func Marshal(set ChangeSet) ([]byte, error) {
	changes := make([]Change, len(set.Changes))
	for i, ch := range set.Changes {
		if ch.Issue != nil && ch.Issue.Tags != nil && *ch.Issue.Tags == nil {
			fields := *ch.Issue
			fields.Tags = &[]string{}
			ch.Issue = &fields
		}
		changes[i] = ch
	}
	set.Changes = changes
	return json.Marshal(set)
}

// Sink receives change-sets from a feed.
type Sink interface {
	ApplyRemote(ChangeSet) error
}
