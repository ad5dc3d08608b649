package query

import (
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/sadopc/issuedesk/internal/model"
)

var base = time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

func ids(issues []model.Issue) []string {
	out := make([]string, len(issues))
	for i, is := range issues {
		out[i] = is.ID
	}
	return out
}

func fixture() *model.Snapshot {
	tags := []model.Tag{{ID: "t-work", Name: "Work"}, {ID: "t-home", Name: "Home"}, {ID: "t-hw", Name: "Homework"}}
	issues := []model.Issue{
		{ID: "1", Title: "Fix login", Content: "Crash on submit", CreatedDate: base, ModifiedDate: base, Priority: 2, TagIDs: []string{"t-work"}},
		{ID: "2", Title: "Buy milk", CreatedDate: base.Add(time.Hour), ModifiedDate: base.Add(-30 * 24 * time.Hour), Priority: 0, TagIDs: []string{"t-home"}},
		{ID: "3", Title: "Write report", Content: "quarterly LOGIN stats", CreatedDate: base.Add(2 * time.Hour), ModifiedDate: base, Completed: true, Priority: 1, TagIDs: []string{"t-home", "t-work"}},
		{ID: "4", Title: "Refactor", CreatedDate: base.Add(3 * time.Hour), ModifiedDate: base, Priority: 2},
	}
	return model.NewSnapshot(issues, tags)
}

func TestAllFilterReturnsEverythingNewestFirst(t *testing.T) {
	got := IssuesForFilter(fixture(), model.DefaultFilterState())
	if diff := cmp.Diff([]string{"4", "3", "2", "1"}, ids(got)); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestRecentFilterUsesModificationFloor(t *testing.T) {
	fs := model.DefaultFilterState()
	fs.Selected = model.RecentFilter(base.Add(24 * time.Hour))
	got := IssuesForFilter(fixture(), fs)
	if diff := cmp.Diff([]string{"4", "3", "1"}, ids(got)); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestTagFilterIgnoresModificationDate(t *testing.T) {
	fs := model.DefaultFilterState()
	fs.Selected = model.TagFilter(model.Tag{ID: "t-home", Name: "Home"})
	got := IssuesForFilter(fixture(), fs)
	if diff := cmp.Diff([]string{"3", "2"}, ids(got)); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestTextMatchesTitleOrContentCaseInsensitive(t *testing.T) {
	fs := model.DefaultFilterState()
	fs.Text = "  Login "
	got := IssuesForFilter(fixture(), fs)
	if diff := cmp.Diff([]string{"3", "1"}, ids(got)); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestWhitespaceTextIsIgnored(t *testing.T) {
	fs := model.DefaultFilterState()
	fs.Text = "   "
	if n := len(IssuesForFilter(fixture(), fs)); n != 4 {
		t.Fatalf("got %d issues, want 4", n)
	}
}

func TestTokensAreConjunctive(t *testing.T) {
	fs := model.DefaultFilterState()
	fs.AddToken(model.Tag{ID: "t-home"})
	fs.AddToken(model.Tag{ID: "t-work"})
	got := IssuesForFilter(fixture(), fs)
	if diff := cmp.Diff([]string{"3"}, ids(got)); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestAdvancedClausesOnlyWhenEnabled(t *testing.T) {
	fs := model.DefaultFilterState()
	fs.Priority = 2
	fs.Status = model.StatusOpen
	if n := len(IssuesForFilter(fixture(), fs)); n != 4 {
		t.Fatalf("disabled filter narrowed results to %d", n)
	}

	fs.Enabled = true
	got := IssuesForFilter(fixture(), fs)
	if diff := cmp.Diff([]string{"4", "1"}, ids(got)); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}

	fs.Priority = model.AnyPriority
	fs.Status = model.StatusClosed
	got = IssuesForFilter(fixture(), fs)
	if diff := cmp.Diff([]string{"3"}, ids(got)); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestSortByModifiedAscendingBreaksTiesByNaturalOrder(t *testing.T) {
	fs := model.DefaultFilterState()
	fs.SortKey = model.SortByModified
	fs.SortDescending = false
	got := IssuesForFilter(fixture(), fs)
	// 1, 3 and 4 share a modification date: title order decides.
	if diff := cmp.Diff([]string{"2", "1", "4", "3"}, ids(got)); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestNilSnapshot(t *testing.T) {
	if got := IssuesForFilter(nil, model.DefaultFilterState()); got == nil || len(got) != 0 {
		t.Fatalf("got %v, want empty", got)
	}
}

func TestIdempotent(t *testing.T) {
	snap := fixture()
	fs := model.DefaultFilterState()
	fs.Text = "o"
	a := ids(IssuesForFilter(snap, fs))
	b := ids(IssuesForFilter(snap, fs))
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("repeat evaluation differs:\n%s", diff)
	}
}

func TestSuggestedFilterTokens(t *testing.T) {
	snap := fixture()
	names := func(tags []model.Tag) []string {
		out := []string{}
		for _, t := range tags {
			out = append(out, t.Name)
		}
		return out
	}
	all := []string{"Home", "Homework", "Work"}
	home := []string{"Home", "Homework"}
	tests := []struct {
		text string
		want []string
	}{
		{"#", all},
		{"# ", all},
		{"#   ", all},
		{"#hom", home},
		{"#  hom ", home},
		{"#HOM", home},
		{"# WORK", []string{"Homework", "Work"}},
		{"#zzz", []string{}},
		{"home", []string{}},
		{" #home", []string{}},
		{"", []string{}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, names(SuggestedFilterTokens(snap, tt.text))); diff != "" {
			t.Errorf("SuggestedFilterTokens(%q) mismatch (-want +got):\n%s", tt.text, diff)
		}
	}
}

func TestMissingTags(t *testing.T) {
	snap := fixture()
	tagIDs := func(tags []model.Tag) []string {
		out := []string{}
		for _, t := range tags {
			out = append(out, t.ID)
		}
		return out
	}
	allIDs := tagIDs(snap.Tags)
	slices.Sort(allIDs)

	issues := append([]model.Issue{}, snap.Issues...)
	issues = append(issues, model.Issue{ID: "untagged"}, model.Issue{ID: "stale", TagIDs: []string{"t-gone"}})
	for _, is := range issues {
		missing := tagIDs(MissingTags(snap, is))
		for _, id := range missing {
			if is.HasTag(id) {
				t.Errorf("issue %s: attached tag %s reported missing", is.ID, id)
			}
		}
		union := append([]string{}, missing...)
		for _, id := range is.TagIDs {
			if _, ok := snap.Tag(id); ok {
				union = append(union, id)
			}
		}
		slices.Sort(union)
		if diff := cmp.Diff(allIDs, union); diff != "" {
			t.Errorf("issue %s: missing + attached != all tags (-want +got):\n%s", is.ID, diff)
		}
	}

	is, _ := snap.Issue("1")
	if diff := cmp.Diff([]string{"t-home", "t-hw"}, tagIDs(MissingTags(snap, is))); diff != "" {
		t.Fatalf("natural order mismatch (-want +got):\n%s", diff)
	}
}

func TestTopIssues(t *testing.T) {
	got := TopIssues(fixture(), 2)
	if diff := cmp.Diff([]string{"1", "4"}, ids(got)); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestClausesToSql(t *testing.T) {
	fs := model.DefaultFilterState()
	fs.Selected = model.TagFilter(model.Tag{ID: "t1"})
	fs.Text = "Bug"
	fs.Enabled = true
	fs.Priority = 1
	fs.Status = model.StatusOpen

	sql, args, err := Build(fs).ToSql()
	if err != nil {
		t.Fatal(err)
	}
	for _, frag := range []string{"EXISTS", "instr(fold(issues.title), ?)", "issues.priority = ?", "issues.completed = ?"} {
		if !strings.Contains(sql, frag) {
			t.Errorf("sql %q missing %q", sql, frag)
		}
	}
	want := []interface{}{"t1", "bug", "bug", 1, 0}
	if diff := cmp.Diff(want, args); diff != "" {
		t.Fatalf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestEmptyClausesMatchEverything(t *testing.T) {
	var c Clauses
	if !c.Match(model.Issue{}) {
		t.Fatal("empty clauses should match")
	}
	sql, _, err := c.ToSql()
	if err != nil || sql == "" {
		t.Fatalf("ToSql = %q, %v", sql, err)
	}
}

func TestOrderBy(t *testing.T) {
	fs := model.DefaultFilterState()
	got := OrderBy(fs)
	if got[0] != "issues.created_date DESC" || got[len(got)-1] != "issues.id ASC" {
		t.Fatalf("OrderBy = %v", got)
	}
}
