package store

import (
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/go-cmp/cmp"

	"github.com/sadopc/issuedesk/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewMemory()
	if err != nil {
		t.Fatalf("new memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var baseTime = time.Date(2024, 1, 2, 3, 4, 5, 6, time.UTC)

func testIssue(id, title string, offset time.Duration, tagIDs ...string) model.Issue {
	return model.Issue{
		ID:           id,
		Title:        title,
		Content:      "content of " + title,
		CreatedDate:  baseTime.Add(offset),
		ModifiedDate: baseTime.Add(offset),
		Priority:     model.PriorityMedium,
		TagIDs:       tagIDs,
	}
}

// seed commits two tags and three issues.
func seed(t *testing.T, s *Store) {
	t.Helper()
	err := s.Commit(Changeset{
		Tags: []model.Tag{{ID: "t1", Name: "Work"}, {ID: "t2", Name: "Home"}},
		Issues: []model.Issue{
			testIssue("i1", "Alpha", 0, "t1"),
			testIssue("i2", "Beta", time.Hour, "t1", "t2"),
			testIssue("i3", "Gamma", 2*time.Hour),
		},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

// ============================================================
// Store initialization
// ============================================================

func TestNewMemory(t *testing.T) {
	s, err := NewMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	version, err := s.schemaVersion()
	if err != nil {
		t.Fatal(err)
	}
	if version != len(migrations) {
		t.Fatalf("expected user_version %d, got %d", len(migrations), version)
	}
}

func TestNewWithPath(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/sub/issuedesk.db"
	s, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	seed(t, s)
	s.Close()

	s2, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	issues, err := s2.ListIssues()
	if err != nil {
		t.Fatal(err)
	}
	if len(issues) != 3 {
		t.Fatalf("expected 3 issues after reopen, got %d", len(issues))
	}
}

func TestDefaultDBPath(t *testing.T) {
	path, err := DefaultDBPath()
	if err != nil {
		t.Fatal(err)
	}
	if path == "" {
		t.Fatal("empty path")
	}
}

func TestPragmasConfigured(t *testing.T) {
	s := newTestStore(t)

	var fk int
	s.db.QueryRow("PRAGMA foreign_keys").Scan(&fk)
	if fk != 1 {
		t.Fatalf("expected foreign_keys=1, got %d", fk)
	}
}

func TestFoldFunction(t *testing.T) {
	s := newTestStore(t)

	tests := map[string]string{"ÉTÉ": "été", "Straße": "straße", "ABC": "abc", "": ""}
	for in, want := range tests {
		var got string
		if err := s.db.QueryRow("SELECT fold(?)", in).Scan(&got); err != nil {
			t.Fatalf("fold(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("fold(%q) = %q, want %q", in, got, want)
		}
	}

	var isNull bool
	if err := s.db.QueryRow("SELECT fold(NULL) IS NULL").Scan(&isNull); err != nil || !isNull {
		t.Fatalf("fold(NULL) should be NULL: %v", err)
	}
}

func TestMigrationIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.migrate(); err != nil {
		t.Fatalf("second migration failed: %v", err)
	}
}

func TestMigrateFromV1(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	if _, err := s.db.Exec("DROP INDEX idx_issues_open_priority; PRAGMA user_version = 1"); err != nil {
		t.Fatal(err)
	}

	if err := s.migrate(); err != nil {
		t.Fatalf("migrate from v1: %v", err)
	}
	var n int
	s.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = 'idx_issues_open_priority'`).Scan(&n)
	if n != 1 {
		t.Fatal("v2 index not created")
	}
	if v, _ := s.schemaVersion(); v != 2 {
		t.Fatalf("user_version = %d, want 2", v)
	}
	if issues, _ := s.ListIssues(); len(issues) != 3 {
		t.Fatalf("migration lost data: %d issues", len(issues))
	}
}

// ============================================================
// Issues and tags
// ============================================================

func TestCommitAndLoad(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)

	issues, tags, err := s.LoadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(tags) != 2 || tags[0].Name != "Home" {
		t.Fatalf("unexpected tags %v", tags)
	}
	want := []model.Issue{
		testIssue("i1", "Alpha", 0, "t1"),
		testIssue("i2", "Beta", time.Hour, "t1", "t2"),
		testIssue("i3", "Gamma", 2*time.Hour),
	}
	if diff := cmp.Diff(want, issues); diff != "" {
		t.Fatalf("issues mismatch (-want +got):\n%s", diff)
	}
}

func TestCommitUpdatesInPlace(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)

	is := testIssue("i1", "Alpha renamed", 0, "t2")
	is.Completed = true
	is.ReminderEnabled = true
	is.ReminderTime = baseTime.Add(48 * time.Hour)
	if err := s.Commit(Changeset{Issues: []model.Issue{is}}); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetIssue("i1")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(is, *got); diff != "" {
		t.Fatalf("issue mismatch (-want +got):\n%s", diff)
	}
}

func TestCommitDropsLinksToMissingTags(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)

	is := testIssue("i9", "Orphan links", 0, "t1", "nope")
	if err := s.Commit(Changeset{Issues: []model.Issue{is}}); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetIssue("i9")
	if diff := cmp.Diff([]string{"t1"}, got.TagIDs); diff != "" {
		t.Fatalf("links mismatch (-want +got):\n%s", diff)
	}
}

func TestCommitIsAtomic(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)

	// The trigger fails the issue insert after the tag upsert already ran.
	bad := testIssue("i4", "New", 0)
	_, err := s.db.Exec(`CREATE TRIGGER fail_i4 BEFORE INSERT ON issues WHEN NEW.id = 'i4'
		BEGIN SELECT RAISE(ABORT, 'boom'); END`)
	if err != nil {
		t.Fatal(err)
	}
	err = s.Commit(Changeset{
		Tags:   []model.Tag{{ID: "t3", Name: "Later"}},
		Issues: []model.Issue{bad},
	})
	if err == nil {
		t.Fatal("expected commit to fail")
	}
	if _, err := s.GetTag("t3"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("tag from failed commit persisted: %v", err)
	}
}

func TestDeleteTagCascadesLinksOnly(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)

	if err := s.Commit(Changeset{DeletedTags: []string{"t1"}}); err != nil {
		t.Fatal(err)
	}
	issues, err := s.ListIssues()
	if err != nil {
		t.Fatal(err)
	}
	if len(issues) != 3 {
		t.Fatalf("deleting a tag removed issues: %d left", len(issues))
	}
	for _, is := range issues {
		if is.HasTag("t1") {
			t.Fatalf("issue %s still linked to deleted tag", is.ID)
		}
	}
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetIssue("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetIssue error = %v", err)
	}
	if _, err := s.GetTag("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetTag error = %v", err)
	}
}

func TestFetchIssuesWithPredicateAndLimit(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)

	where := squirrel.Expr("EXISTS (SELECT 1 FROM issue_tags it WHERE it.issue_id = issues.id AND it.tag_id = ?)", "t1")
	got, err := s.FetchIssues(where, []string{"issues.created_date DESC"}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "i2" {
		t.Fatalf("unexpected result %v", got)
	}
}

func TestCounts(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	closed := testIssue("i3", "Gamma", 2*time.Hour)
	closed.Completed = true
	if err := s.Commit(Changeset{Issues: []model.Issue{closed}}); err != nil {
		t.Fatal(err)
	}

	c, err := s.Counts()
	if err != nil {
		t.Fatal(err)
	}
	if c != (Counts{Issues: 3, Closed: 1, Tags: 2}) {
		t.Fatalf("counts = %+v", c)
	}
	n, err := s.CountIssues(squirrel.Eq{"completed": 0})
	if err != nil || n != 2 {
		t.Fatalf("CountIssues = %d, %v", n, err)
	}
}

// ============================================================
// Batch delete
// ============================================================

func TestBatchDeleteReturnsIDs(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)

	ids, err := s.BatchDelete(EntityTag, nil)
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(ids)
	if diff := cmp.Diff([]string{"t1", "t2"}, ids); diff != "" {
		t.Fatalf("tag ids mismatch (-want +got):\n%s", diff)
	}

	ids, err = s.BatchDelete(EntityIssue, squirrel.Eq{"id": "i3"})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"i3"}, ids); diff != "" {
		t.Fatalf("issue ids mismatch (-want +got):\n%s", diff)
	}

	c, _ := s.Counts()
	if c.Issues != 2 || c.Tags != 0 {
		t.Fatalf("counts after delete = %+v", c)
	}
}

func TestBatchDeleteEmpty(t *testing.T) {
	s := newTestStore(t)
	ids, err := s.BatchDelete(EntityIssue, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no ids, got %v", ids)
	}
}

func TestBatchDeleteUnknownEntity(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.BatchDelete(Entity("widgets"), nil); !errors.Is(err, ErrUnknownEntity) {
		t.Fatalf("expected ErrUnknownEntity, got %v", err)
	}
}

// ============================================================
// Settings
// ============================================================

func TestSettingsDefaults(t *testing.T) {
	s := newTestStore(t)

	unlocked, err := s.FullVersionUnlocked()
	if err != nil {
		t.Fatal(err)
	}
	if unlocked {
		t.Fatal("full version should start locked")
	}
	cursor, err := s.RemoteCursor()
	if err != nil {
		t.Fatal(err)
	}
	if cursor != "" {
		t.Fatalf("cursor = %q", cursor)
	}
}

func TestSetSettingOverwrite(t *testing.T) {
	s := newTestStore(t)

	s.SetSetting("key", "v1")
	s.SetSetting("key", "v2")
	val, _ := s.GetSetting("key")
	if val != "v2" {
		t.Fatalf("expected v2, got %s", val)
	}
}

func TestTypedSettings(t *testing.T) {
	s := newTestStore(t)
	if err := s.SetFullVersionUnlocked(true); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.FullVersionUnlocked(); !ok {
		t.Fatal("expected unlocked")
	}
	if err := s.SetRemoteCursor("42"); err != nil {
		t.Fatal(err)
	}
	if c, _ := s.RemoteCursor(); c != "42" {
		t.Fatalf("cursor = %q", c)
	}
}

func TestGetSettingNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetSetting("nonexistent")
	if err == nil {
		t.Fatal("expected error for missing setting")
	}
}

func TestGetAllSettings(t *testing.T) {
	s := newTestStore(t)
	all, err := s.GetAllSettings()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) < 2 {
		t.Fatalf("expected at least 2 default settings, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].Key >= all[i].Key {
			t.Fatalf("settings not sorted: %s >= %s", all[i-1].Key, all[i].Key)
		}
	}
}

// ============================================================
// Foreign key constraints
// ============================================================

func TestForeignKeyLinks(t *testing.T) {
	s := newTestStore(t)
	_, err := s.db.Exec(`INSERT INTO issue_tags (issue_id, tag_id) VALUES ('nope', 'nope')`)
	if err == nil {
		t.Fatal("expected foreign key error")
	}
}

func TestCloseStore(t *testing.T) {
	s, _ := NewMemory()
	if err := s.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
}
