package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sadopc/issuedesk/internal/model"
)

type document struct {
	ExportedAt string   `json:"exported_at" yaml:"exported_at"`
	Count      int      `json:"count" yaml:"count"`
	Issues     []record `json:"issues" yaml:"issues"`
}

type record struct {
	ID       string   `json:"id" yaml:"id"`
	Title    string   `json:"title" yaml:"title"`
	Content  string   `json:"content,omitempty" yaml:"content,omitempty"`
	Status   string   `json:"status" yaml:"status"`
	Priority string   `json:"priority" yaml:"priority"`
	Tags     []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Created  string   `json:"created" yaml:"created"`
	Modified string   `json:"modified" yaml:"modified"`
	Reminder string   `json:"reminder,omitempty" yaml:"reminder,omitempty"`
}

func newDocument(snap *model.Snapshot, issues []model.Issue) document {
	doc := document{
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Count:      len(issues),
		Issues:     make([]record, 0, len(issues)),
	}
	for _, is := range issues {
		r := record{
			ID:       is.ID,
			Title:    is.Title,
			Content:  is.Content,
			Status:   is.Status(),
			Priority: is.PriorityLabel(),
			Created:  formatTime(is.CreatedDate),
			Modified: formatTime(is.ModifiedDate),
		}
		for _, t := range snap.IssueTags(is) {
			r.Tags = append(r.Tags, t.Name)
		}
		if is.ReminderEnabled {
			r.Reminder = formatTime(is.ReminderTime)
		}
		doc.Issues = append(doc.Issues, r)
	}
	return doc
}

func ToJSON(snap *model.Snapshot, issues []model.Issue, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create json file: %w", err)
	}
	defer f.Close()
	return WriteJSON(f, snap, issues)
}

func WriteJSON(w io.Writer, snap *model.Snapshot, issues []model.Issue) error {
	data, err := json.MarshalIndent(newDocument(snap, issues), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write json: %w", err)
	}
	return nil
}
