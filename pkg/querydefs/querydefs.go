// pkg/querydefs/querydefs.go
package querydefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"crowd-monitor/internal/common/validation"
	"crowd-monitor/internal/models"
)

func Load(path string) (*Definitions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var defs Definitions
	if err := json.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &defs, nil
}

// Save writes defs to path, creating parent directories.
func Save(defs *Definitions, path string) error {
	data, err := json.MarshalIndent(defs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal definitions: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write definitions file: %w", err)
	}
	return nil
}

// Add appends d unless a draft with the same name exists.
func (defs *Definitions) Add(d models.QueryDraft, now time.Time) error {
	for _, existing := range defs.Queries {
		if strings.EqualFold(existing.Name, d.Name) {
			return fmt.Errorf("query named %q already exists", d.Name)
		}
	}
	defs.Queries = append(defs.Queries, d)
	defs.LastUpdated = now.Format(time.RFC3339)
	return nil
}

// Validate checks every draft against the query rules and reports all
// problems at once. Names must be unique.
func Validate(defs *Definitions, loc *time.Location) error {
	if len(defs.Queries) == 0 {
		return errors.New("definitions contain no queries")
	}

	var problems []error
	names := make(map[string]int)
	for i, d := range defs.Queries {
		if _, err := validation.ValidateQueryDraft(d, loc); err != nil {
			problems = append(problems, fmt.Errorf("queries[%d] (%s): %w", i, d.Name, err))
		}
		key := strings.ToLower(strings.TrimSpace(d.Name))
		if prev, ok := names[key]; ok && key != "" {
			problems = append(problems, fmt.Errorf("queries[%d]: duplicate name %q (first at queries[%d])", i, d.Name, prev))
			continue
		}
		names[key] = i
	}
	return errors.Join(problems...)
}

// Poster is the HTTP client surface Seed needs.
type Poster interface {
	PostJSON(ctx context.Context, path string, in, out interface{}) error
}

// SeedResult records what happened to one draft.
type SeedResult struct {
	Name string
	ID   string
	Err  error
}

// Seed posts each draft to the running service's /query/new endpoint. It
// keeps going after a failure so one bad draft does not block the rest.
func Seed(ctx context.Context, client Poster, defs *Definitions) []SeedResult {
	results := make([]SeedResult, 0, len(defs.Queries))
	for _, d := range defs.Queries {
		var resp struct {
			Query models.Query `json:"query"`
		}
		err := client.PostJSON(ctx, "/query/new", d, &resp)
		results = append(results, SeedResult{Name: d.Name, ID: resp.Query.ID, Err: err})
		if ctx.Err() != nil {
			break
		}
	}
	return results
}
