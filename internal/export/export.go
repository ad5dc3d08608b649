// Package export writes issue lists as CSV, JSON or YAML.
package export

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/sadopc/issuedesk/internal/model"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// FormatForPath picks the format from the file extension.
func FormatForPath(path string) (Format, error) {
	return ParseFormat(filepath.Ext(path))
}

func Write(w io.Writer, f Format, snap *model.Snapshot, issues []model.Issue) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, snap, issues)
	case FormatJSON:
		return WriteJSON(w, snap, issues)
	case FormatYAML:
		return WriteYAML(w, snap, issues)
	}
	return fmt.Errorf("unknown export format %q", f)
}

// ToFile writes issues to path in the format its extension names.
func ToFile(snap *model.Snapshot, issues []model.Issue, path string) error {
	f, err := FormatForPath(path)
	if err != nil {
		return err
	}
	switch f {
	case FormatCSV:
		return ToCSV(snap, issues, path)
	case FormatJSON:
		return ToJSON(snap, issues, path)
	default:
		return ToYAML(snap, issues, path)
	}
}
