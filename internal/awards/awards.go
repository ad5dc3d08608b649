// Package awards holds the bundled award catalog and decides which awards
// have been earned from aggregate counts.
package awards

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/sadopc/issuedesk/internal/schema"
)

const (
	CriterionIssues = "issues"
	CriterionClosed = "closed"
	CriterionTags   = "tags"
	CriterionUnlock = "unlock"
)

var (
	//go:embed awards.json
	catalogJSON []byte
	//go:embed awards.schema.json
	catalogSchema []byte
)

type Award struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Color       string `json:"color"`
	Criterion   string `json:"criterion"`
	Value       int    `json:"value"`
	Image       string `json:"image"`
}

// ID is the award's name; names are unique within a catalog.
func (a Award) ID() string { return a.Name }

// Counts are the aggregates an award can depend on.
type Counts struct {
	Issues   int
	Closed   int
	Tags     int
	Unlocked bool
}

// HasEarned reports whether c satisfies the award. Unknown criteria are
// never earned.
func HasEarned(c Counts, a Award) bool {
	switch a.Criterion {
	case CriterionIssues:
		return c.Issues >= a.Value
	case CriterionClosed:
		return c.Closed >= a.Value
	case CriterionTags:
		return c.Tags >= a.Value
	case CriterionUnlock:
		return c.Unlocked
	default:
		return false
	}
}

// Known reports whether the criterion is one HasEarned understands.
func Known(criterion string) bool {
	switch criterion {
	case CriterionIssues, CriterionClosed, CriterionTags, CriterionUnlock:
		return true
	}
	return false
}

// Parse validates data against the catalog schema and decodes it.
func Parse(data []byte) ([]Award, error) {
	sch, err := schema.Compile("awards.schema.json", catalogSchema)
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(sch, data); err != nil {
		return nil, fmt.Errorf("invalid award catalog: %w", err)
	}
	var list []Award
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode award catalog: %w", err)
	}
	return list, nil
}

var (
	catalogOnce sync.Once
	catalog     []Award
)

// All returns the bundled catalog. It is loaded once; a broken bundle
// panics since nothing can recover from it at runtime.
func All() []Award {
	catalogOnce.Do(func() {
		list, err := Parse(catalogJSON)
		if err != nil {
			panic(err)
		}
		for _, a := range list {
			if !Known(a.Criterion) {
				slog.Warn("award has unknown criterion", "award", a.Name, "criterion", a.Criterion)
			}
		}
		catalog = list
	})
	return slices.Clone(catalog)
}

// Earned filters list down to the awards c satisfies.
func Earned(c Counts, list []Award) []Award {
	var out []Award
	for _, a := range list {
		if HasEarned(c, a) {
			out = append(out, a)
		}
	}
	return out
}

// Progress is how far c is toward the award, in [0, 1].
func Progress(c Counts, a Award) float64 {
	var have int
	switch a.Criterion {
	case CriterionIssues:
		have = c.Issues
	case CriterionClosed:
		have = c.Closed
	case CriterionTags:
		have = c.Tags
	case CriterionUnlock:
		if c.Unlocked {
			return 1
		}
		return 0
	default:
		return 0
	}
	if a.Value <= 0 || have >= a.Value {
		return 1
	}
	return float64(have) / float64(a.Value)
}
