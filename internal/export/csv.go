package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/sadopc/issuedesk/internal/model"
)

var csvHeader = []string{"ID", "Title", "Status", "Priority", "Tags", "Created", "Modified", "Reminder", "Content"}

func ToCSV(snap *model.Snapshot, issues []model.Issue, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}
	defer f.Close()
	return WriteCSV(f, snap, issues)
}

func WriteCSV(out io.Writer, snap *model.Snapshot, issues []model.Issue) error {
	w := csv.NewWriter(out)
	if err := w.Write(csvHeader); err != nil {
		return err
	}

	for _, is := range issues {
		reminder := ""
		if is.ReminderEnabled {
			reminder = formatTime(is.ReminderTime)
		}
		row := []string{
			is.ID,
			is.Title,
			is.Status(),
			strconv.Itoa(is.Priority),
			snap.TagList(is),
			formatTime(is.CreatedDate),
			formatTime(is.ModifiedDate),
			reminder,
			is.Content,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(time.RFC3339)
}
