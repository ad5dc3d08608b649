package query

import (
	"slices"
	"strings"

	"github.com/sadopc/issuedesk/internal/model"
)

// Build returns the conjunction described by fs:
//   - the selected tag, or the selected filter's modification floor
//   - the trimmed search text, if any
//   - every token tag
//   - priority and completion, only while advanced filtering is enabled
func Build(fs model.FilterState) Clauses {
	var c Clauses
	if fs.Selected.IsTag() {
		c = append(c, HasTag(fs.Selected.TagID))
	} else {
		c = append(c, ModifiedAfter(fs.Selected.MinModificationDate))
	}

	if text := strings.TrimSpace(fs.Text); text != "" {
		c = append(c, TextContains(text))
	}

	for _, tok := range fs.Tokens {
		c = append(c, HasTag(tok.ID))
	}

	if fs.Enabled {
		if fs.Priority >= 0 {
			c = append(c, PriorityIs(fs.Priority))
		}
		switch fs.Status {
		case model.StatusOpen:
			c = append(c, CompletedIs(false))
		case model.StatusClosed:
			c = append(c, CompletedIs(true))
		}
	}
	return c
}

// Compare orders issues by the state's sort key and direction. Ties fall
// back to natural order so that results are deterministic.
func Compare(fs model.FilterState) func(a, b model.Issue) int {
	return func(a, b model.Issue) int {
		var c int
		if fs.SortKey == model.SortByModified {
			c = a.ModifiedDate.Compare(b.ModifiedDate)
		} else {
			c = a.CreatedDate.Compare(b.CreatedDate)
		}
		if fs.SortDescending {
			c = -c
		}
		if c != 0 {
			return c
		}
		return model.CompareIssues(a, b)
	}
}

// OrderBy is the SQL equivalent of Compare.
func OrderBy(fs model.FilterState) []string {
	col := "issues.created_date"
	if fs.SortKey == model.SortByModified {
		col = "issues.modified_date"
	}
	dir := " ASC"
	if fs.SortDescending {
		dir = " DESC"
	}
	return append([]string{col + dir}, NaturalOrder...)
}

// NaturalOrder is the SQL rendering of model.CompareIssues.
var NaturalOrder = []string{"issues.title ASC", "issues.created_date ASC", "issues.id ASC"}

// IssuesForFilter evaluates fs against the snapshot. A nil snapshot yields
// an empty result.
func IssuesForFilter(snap *model.Snapshot, fs model.FilterState) []model.Issue {
	if snap == nil {
		return []model.Issue{}
	}
	where := Build(fs)
	out := []model.Issue{}
	for _, is := range snap.Issues {
		if where.Match(is) {
			out = append(out, is)
		}
	}
	slices.SortFunc(out, Compare(fs))
	return out
}

// SuggestedFilterTokens returns all tags when text starts with "#", narrowed
// to names containing the remainder (case-insensitive) when one is given.
// Any other text yields nothing.
func SuggestedFilterTokens(snap *model.Snapshot, text string) []model.Tag {
	if snap == nil || !strings.HasPrefix(text, "#") {
		return []model.Tag{}
	}
	needle := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(text, "#")))
	out := []model.Tag{}
	for _, t := range snap.Tags {
		if needle == "" || strings.Contains(strings.ToLower(t.Name), needle) {
			out = append(out, t)
		}
	}
	return out
}

// MissingTags returns the tags not attached to the issue, in natural order.
func MissingTags(snap *model.Snapshot, is model.Issue) []model.Tag {
	out := []model.Tag{}
	if snap == nil {
		return out
	}
	for _, t := range snap.Tags {
		if !is.HasTag(t.ID) {
			out = append(out, t)
		}
	}
	return out
}

// TopIssues returns up to n open issues, highest priority first.
func TopIssues(snap *model.Snapshot, n int) []model.Issue {
	if snap == nil || n <= 0 {
		return []model.Issue{}
	}
	out := []model.Issue{}
	for _, is := range snap.Issues {
		if !is.Completed {
			out = append(out, is)
		}
	}
	slices.SortStableFunc(out, func(a, b model.Issue) int { return b.Priority - a.Priority })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// TopIssuesClauses and TopIssuesOrder express TopIssues for the store.
func TopIssuesClauses() Clauses { return Clauses{CompletedIs(false)} }

func TopIssuesOrder() []string {
	return append([]string{"issues.priority DESC"}, NaturalOrder...)
}
