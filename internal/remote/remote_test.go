package remote

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/sadopc/issuedesk/internal/model"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type recordingSink struct {
	mu   sync.Mutex
	sets []ChangeSet
	err  error
}

func (s *recordingSink) ApplyRemote(set ChangeSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sets = append(s.sets, set)
	return nil
}

func (s *recordingSink) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sets)
}

const validSet = `{"source": "cloud", "changes": [
	{"entity": "tag", "op": "upsert", "id": "t1", "tag": {"name": "Remote"}},
	{"entity": "issue", "op": "upsert", "id": "i1",
	 "issue": {"title": "From cloud", "priority": 2, "completed": true,
	           "modifiedDate": "2024-06-01T10:00:00Z", "tags": ["t1", "t1"]}},
	{"entity": "issue", "op": "delete", "id": "i2"}
]}`

// ============================================================
// Change-set format
// ============================================================

func TestParseValid(t *testing.T) {
	set, err := Parse([]byte(validSet))
	if err != nil {
		t.Fatal(err)
	}
	if set.Source != "cloud" || len(set.Changes) != 3 {
		t.Fatalf("unexpected set %+v", set)
	}
	if set.Changes[2].Op != OpDelete || set.Changes[2].Issue != nil {
		t.Fatalf("unexpected delete %+v", set.Changes[2])
	}
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"not json":        `{`,
		"no changes":      `{"source": "x"}`,
		"bad entity":      `{"changes": [{"entity": "project", "op": "upsert", "id": "1"}]}`,
		"bad op":          `{"changes": [{"entity": "issue", "op": "merge", "id": "1"}]}`,
		"empty id":        `{"changes": [{"entity": "issue", "op": "delete", "id": ""}]}`,
		"priority range":  `{"changes": [{"entity": "issue", "op": "upsert", "id": "1", "issue": {"priority": 7}}]}`,
		"unknown field":   `{"changes": [{"entity": "issue", "op": "upsert", "id": "1", "issue": {"colour": "red"}}]}`,
		"mismatched body": `{"changes": [{"entity": "tag", "op": "upsert", "id": "1", "issue": {}}]}`,
		"bad time":        `{"changes": [{"entity": "issue", "op": "upsert", "id": "1", "issue": {"createdDate": "yesterday"}}]}`,
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc)); !errors.Is(err, ErrInvalidChangeSet) {
			t.Errorf("%s: expected ErrInvalidChangeSet, got %v", name, err)
		}
	}
}

func TestIssueFieldsApplyOnlySetFields(t *testing.T) {
	set, err := Parse([]byte(validSet))
	if err != nil {
		t.Fatal(err)
	}
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	is := model.Issue{ID: "i1", Title: "Local", Content: "keep me", CreatedDate: created, Priority: 0}
	set.Changes[1].Issue.Apply(&is)

	want := model.Issue{
		ID:           "i1",
		Title:        "From cloud",
		Content:      "keep me",
		CreatedDate:  created,
		ModifiedDate: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
		Completed:    true,
		Priority:     2,
		TagIDs:       []string{"t1"},
	}
	if diff := cmp.Diff(want, is); diff != "" {
		t.Fatalf("apply mismatch (-want +got):\n%s", diff)
	}

	tag := model.Tag{ID: "t1", Name: "Old"}
	set.Changes[0].Tag.Apply(&tag)
	if tag.Name != "Remote" {
		t.Fatalf("tag name = %q", tag.Name)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	title := "x"
	data, err := Marshal(ChangeSet{Changes: []Change{{Entity: EntityIssue, Op: OpUpsert, ID: "1", Issue: &IssueFields{Title: &title}}}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Parse(data); err != nil {
		t.Fatalf("marshalled set rejected: %v", err)
	}
	empty, _ := Marshal(ChangeSet{})
	if _, err := Parse(empty); err != nil {
		t.Fatalf("empty set rejected: %v", err)
	}
}

func TestMarshalKeepsClearedTags(t *testing.T) {
	set, err := Parse([]byte(`{"changes": [{"entity": "issue", "op": "upsert", "id": "i1", "issue": {"tags": []}}]}`))
	if err != nil {
		t.Fatal(err)
	}
	if tags := set.Changes[0].Issue.Tags; tags == nil || len(*tags) != 0 {
		t.Fatalf("tags = %v, want an empty list", tags)
	}

	data, err := Marshal(set)
	if err != nil {
		t.Fatal(err)
	}
	again, err := Parse(data)
	if err != nil {
		t.Fatalf("re-encoded set rejected: %v\n%s", err, data)
	}
	if again.Changes[0].Issue.Tags == nil {
		t.Fatalf("cleared tags lost on re-encode: %s", data)
	}

	is := model.Issue{ID: "i1", TagIDs: []string{"t1", "t2"}}
	again.Changes[0].Issue.Apply(&is)
	if len(is.TagIDs) != 0 {
		t.Fatalf("tags not cleared: %v", is.TagIDs)
	}

	// A nil list behind a set pointer still encodes as a clear.
	var none []string
	data, err = Marshal(ChangeSet{Changes: []Change{{Entity: EntityIssue, Op: OpUpsert, ID: "i1", Issue: &IssueFields{Tags: &none}}}})
	if err != nil {
		t.Fatal(err)
	}
	if again, err = Parse(data); err != nil || again.Changes[0].Issue.Tags == nil {
		t.Fatalf("nil tag list: %v\n%s", err, data)
	}

	// Absent tags stay absent.
	title := "x"
	data, _ = Marshal(ChangeSet{Changes: []Change{{Entity: EntityIssue, Op: OpUpsert, ID: "i1", Issue: &IssueFields{Title: &title}}}})
	if again, err = Parse(data); err != nil || again.Changes[0].Issue.Tags != nil {
		t.Fatalf("absent tags: %v\n%s", err, data)
	}
}

// ============================================================
// Inbox directory feed
// ============================================================

func writeInbox(t *testing.T, dir, name, body string) {
	t.Helper()
	tmp := filepath.Join(dir, "."+name+".tmp")
	if err := os.WriteFile(tmp, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, name)); err != nil {
		t.Fatal(err)
	}
}

func TestDirFeedDrain(t *testing.T) {
	dir := t.TempDir()
	sink := &recordingSink{}
	feed := NewDirFeed(dir, sink, quiet)
	if err := feed.prepare(); err != nil {
		t.Fatal(err)
	}
	writeInbox(t, dir, "002.json", `{"changes": [{"entity": "issue", "op": "delete", "id": "b"}]}`)
	writeInbox(t, dir, "001.json", `{"changes": [{"entity": "issue", "op": "delete", "id": "a"}]}`)
	writeInbox(t, dir, "003.json", `{"changes": "nope"}`)

	if err := feed.Drain(); err != nil {
		t.Fatal(err)
	}
	if sink.count() != 2 {
		t.Fatalf("applied %d sets, want 2", sink.count())
	}
	if sink.sets[0].Changes[0].ID != "a" {
		t.Fatal("inbox not drained in name order")
	}
	if _, err := os.Stat(filepath.Join(dir, "processed", "001.json")); err != nil {
		t.Fatalf("applied file not archived: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "rejected", "003.json")); err != nil {
		t.Fatalf("invalid file not rejected: %v", err)
	}
}

func TestDirFeedKeepsFileWhenSinkFails(t *testing.T) {
	dir := t.TempDir()
	sink := &recordingSink{err: errors.New("store down")}
	feed := NewDirFeed(dir, sink, quiet)
	if err := feed.prepare(); err != nil {
		t.Fatal(err)
	}
	writeInbox(t, dir, "001.json", validSet)
	if err := feed.Drain(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "001.json")); err != nil {
		t.Fatalf("failed file should stay in the inbox: %v", err)
	}
}

func TestDirFeedRunWatches(t *testing.T) {
	dir := t.TempDir()
	sink := &recordingSink{}
	feed := NewDirFeed(dir, sink, quiet)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- feed.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// Wait for Run to create the archive directories, then drop a file.
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := os.Stat(filepath.Join(dir, "rejected")); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("feed never started")
		}
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	writeInbox(t, dir, "live.json", validSet)

	for sink.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("watched file was never applied")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDirFeedRunRetriesFailedFile(t *testing.T) {
	dir := t.TempDir()
	sink := &recordingSink{err: errors.New("store busy")}
	feed := NewDirFeed(dir, sink, quiet)
	feed.retryDelay = 20 * time.Millisecond
	if err := feed.prepare(); err != nil {
		t.Fatal(err)
	}
	writeInbox(t, dir, "001.json", validSet)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- feed.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	time.Sleep(60 * time.Millisecond)
	if sink.count() != 0 {
		t.Fatal("failing sink recorded a set")
	}
	sink.setErr(nil)

	deadline := time.Now().Add(5 * time.Second)
	for sink.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("failed file was never retried")
		}
		time.Sleep(10 * time.Millisecond)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "processed", "001.json")); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("retried file not archived")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// ============================================================
// Poller
// ============================================================

type memFeed struct {
	envs []Envelope
	err  error
}

func (f *memFeed) Pull(_ context.Context, after int64, limit int) ([]Envelope, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []Envelope
	for _, e := range f.envs {
		if e.Seq > after && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

type memCursor struct{ v string }

func (c *memCursor) RemoteCursor() (string, error)  { return c.v, nil }
func (c *memCursor) SetRemoteCursor(v string) error { c.v = v; return nil }

func deleteEnvelope(seq int64) Envelope {
	return Envelope{Seq: seq, Payload: []byte(`{"changes": [{"entity": "issue", "op": "delete", "id": "` + strconv.FormatInt(seq, 10) + `"}]}`)}
}

func TestPollOnceAdvancesCursor(t *testing.T) {
	feed := &memFeed{}
	for i := int64(1); i <= 5; i++ {
		feed.envs = append(feed.envs, deleteEnvelope(i))
	}
	feed.envs[2].Payload = []byte(`garbage`)
	sink := &recordingSink{}
	cursor := &memCursor{}
	p := NewPoller(feed, sink, cursor, PollerOptions{BatchSize: 2, Logger: quiet})

	n, err := p.PollOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 || sink.count() != 4 {
		t.Fatalf("applied %d (sink %d), want 4", n, sink.count())
	}
	if cursor.v != "5" {
		t.Fatalf("cursor = %q, want 5", cursor.v)
	}

	n, err = p.PollOnce(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("second poll applied %d, err %v", n, err)
	}
}

func TestPollOnceStopsOnSinkFailure(t *testing.T) {
	feed := &memFeed{envs: []Envelope{deleteEnvelope(1), deleteEnvelope(2)}}
	sink := &recordingSink{err: errors.New("busy")}
	cursor := &memCursor{}
	p := NewPoller(feed, sink, cursor, PollerOptions{Logger: quiet})

	if _, err := p.PollOnce(context.Background()); err == nil {
		t.Fatal("expected sink error")
	}
	if cursor.v != "" {
		t.Fatalf("cursor advanced past failure: %q", cursor.v)
	}
}

func TestPollOnceFeedError(t *testing.T) {
	p := NewPoller(&memFeed{err: errors.New("offline")}, &recordingSink{}, &memCursor{}, PollerOptions{Logger: quiet})
	if _, err := p.PollOnce(context.Background()); err == nil {
		t.Fatal("expected feed error")
	}
}

func TestNewPostgresFeedRequiresDSN(t *testing.T) {
	if _, err := NewPostgresFeed("  "); !errors.Is(err, ErrNoDSN) {
		t.Fatalf("expected ErrNoDSN, got %v", err)
	}
}

func TestPostgresFeedIntegration(t *testing.T) {
	dsn := os.Getenv("ISSUEDESK_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ISSUEDESK_TEST_POSTGRES_DSN not set")
	}
	feed, err := NewPostgresFeed(dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer feed.Close()

	ctx := context.Background()
	title := "integration"
	seq, err := feed.Publish(ctx, ChangeSet{Changes: []Change{{Entity: EntityIssue, Op: OpUpsert, ID: "pg-1", Issue: &IssueFields{Title: &title}}}})
	if err != nil {
		t.Fatal(err)
	}
	envs, err := feed.Pull(ctx, seq-1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(envs) == 0 || envs[0].Seq != seq {
		t.Fatalf("pulled %v, want seq %d first", envs, seq)
	}
	if _, err := Parse(envs[0].Payload); err != nil {
		t.Fatalf("published payload invalid: %v", err)
	}
}
