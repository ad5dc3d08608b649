// Package query turns a filter state into predicates that can be evaluated
// against in-memory issues or rendered to SQL for the store.
package query

import (
	"strings"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/sadopc/issuedesk/internal/model"
)

// Predicate is a single clause of an issue query.
type Predicate interface {
	squirrel.Sqlizer
	Match(model.Issue) bool
}

// Clauses is a conjunction of predicates. An empty Clauses matches everything.
type Clauses []Predicate

func (c Clauses) Match(is model.Issue) bool {
	for _, p := range c {
		if !p.Match(is) {
			return false
		}
	}
	return true
}

func (c Clauses) ToSql() (string, []interface{}, error) {
	and := make(squirrel.And, 0, len(c))
	for _, p := range c {
		and = append(and, p)
	}
	return and.ToSql()
}

// HasTag matches issues linked to the tag.
type HasTag string

func (h HasTag) Match(is model.Issue) bool { return is.HasTag(string(h)) }

func (h HasTag) ToSql() (string, []interface{}, error) {
	return "EXISTS (SELECT 1 FROM issue_tags it WHERE it.issue_id = issues.id AND it.tag_id = ?)",
		[]interface{}{string(h)}, nil
}

// ModifiedAfter matches issues modified strictly after the instant.
type ModifiedAfter time.Time

func (m ModifiedAfter) Match(is model.Issue) bool {
	return is.ModifiedDate.After(time.Time(m))
}

func (m ModifiedAfter) ToSql() (string, []interface{}, error) {
	return "issues.modified_date > ?", []interface{}{model.FormatTime(time.Time(m))}, nil
}

// TextContains matches issues whose title or content contains the text,
// ignoring case. The SQL rendering calls fold(), which the store registers
// with the same Unicode lower-casing Match uses.
type TextContains string

func (t TextContains) Match(is model.Issue) bool {
	needle := strings.ToLower(string(t))
	return strings.Contains(strings.ToLower(is.Title), needle) ||
		strings.Contains(strings.ToLower(is.Content), needle)
}

func (t TextContains) ToSql() (string, []interface{}, error) {
	needle := strings.ToLower(string(t))
	return "(instr(fold(issues.title), ?) > 0 OR instr(fold(issues.content), ?) > 0)",
		[]interface{}{needle, needle}, nil
}

type PriorityIs int

func (p PriorityIs) Match(is model.Issue) bool { return is.Priority == int(p) }

func (p PriorityIs) ToSql() (string, []interface{}, error) {
	return squirrel.Eq{"issues.priority": int(p)}.ToSql()
}

type CompletedIs bool

func (c CompletedIs) Match(is model.Issue) bool { return is.Completed == bool(c) }

func (c CompletedIs) ToSql() (string, []interface{}, error) {
	v := 0
	if c {
		v = 1
	}
	return squirrel.Eq{"issues.completed": v}.ToSql()
}
