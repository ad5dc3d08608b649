package model

import "slices"

// Field is a bitmask of record attributes, used to track which values a
// session has changed since its last commit.
type Field uint16

const (
	FieldTitle Field = 1 << iota
	FieldContent
	FieldCreatedDate
	FieldModifiedDate
	FieldCompleted
	FieldPriority
	FieldReminderEnabled
	FieldReminderTime
	FieldTags

	FieldName // tags only
)

const AllIssueFields = FieldTitle | FieldContent | FieldCreatedDate | FieldModifiedDate |
	FieldCompleted | FieldPriority | FieldReminderEnabled | FieldReminderTime | FieldTags

func (f Field) Has(o Field) bool { return f&o != 0 }

// DiffIssues reports which fields differ between a and b.
func DiffIssues(a, b Issue) Field {
	var f Field
	if a.Title != b.Title {
		f |= FieldTitle
	}
	if a.Content != b.Content {
		f |= FieldContent
	}
	if !a.CreatedDate.Equal(b.CreatedDate) {
		f |= FieldCreatedDate
	}
	if !a.ModifiedDate.Equal(b.ModifiedDate) {
		f |= FieldModifiedDate
	}
	if a.Completed != b.Completed {
		f |= FieldCompleted
	}
	if a.Priority != b.Priority {
		f |= FieldPriority
	}
	if a.ReminderEnabled != b.ReminderEnabled {
		f |= FieldReminderEnabled
	}
	if !a.ReminderTime.Equal(b.ReminderTime) {
		f |= FieldReminderTime
	}
	if !slices.Equal(a.TagIDs, b.TagIDs) {
		f |= FieldTags
	}
	return f
}
