package export

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sadopc/issuedesk/internal/model"
)

func ToYAML(snap *model.Snapshot, issues []model.Issue, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create yaml file: %w", err)
	}
	defer f.Close()
	return WriteYAML(f, snap, issues)
}

func WriteYAML(w io.Writer, snap *model.Snapshot, issues []model.Issue) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(newDocument(snap, issues)); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}
