package validation

import (
	"fmt"
	"strings"
	"time"

	apperrors "crowd-monitor/internal/common/errors"
	"crowd-monitor/internal/models"

	"github.com/xeipuuv/gojsonschema"
)

// QueryDraftSchema is the JSON schema every query draft must satisfy.
var QueryDraftSchema = map[string]interface{}{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type":    "object",
	"required": []string{
		"name", "location", "startDate", "endDate", "keywords", "frequency", "maxTweets",
	},
	"properties": map[string]interface{}{
		"name":      map[string]interface{}{"type": "string", "minLength": 1},
		"location":  map[string]interface{}{"type": "string", "minLength": 1},
		"startDate": map[string]interface{}{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`},
		"endDate":   map[string]interface{}{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`},
		"keywords": map[string]interface{}{
			"type":     "array",
			"minItems": 1,
			"items":    map[string]interface{}{"type": "string", "minLength": 1},
		},
		"frequency": map[string]interface{}{
			"type":    "number",
			"minimum": models.MinFrequency,
			"maximum": models.MaxFrequency,
		},
		"maxTweets": map[string]interface{}{"type": "integer", "minimum": 1},
	},
}

var draftSchema *gojsonschema.Schema

func init() {
	s, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(QueryDraftSchema))
	if err != nil {
		panic(fmt.Sprintf("query draft schema: %v", err))
	}
	draftSchema = s
}

// ValidateDocument checks an arbitrary decoded JSON value (or Go struct with
// json tags) against the draft schema and returns one message per violation.
func ValidateDocument(doc interface{}) ([]string, error) {
	result, err := draftSchema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}
	errs := make([]string, len(result.Errors()))
	for i, desc := range result.Errors() {
		errs[i] = desc.String()
	}
	return errs, nil
}

// ValidateQueryDraft enforces the query invariants on d and returns the
// normalized query. loc is the zone the calendar dates are read in.
func ValidateQueryDraft(d models.QueryDraft, loc *time.Location) (models.Query, error) {
	violations, err := ValidateDocument(d)
	if err != nil {
		return models.Query{}, apperrors.NewValidationError(err.Error())
	}

	for i, k := range d.Keywords {
		if strings.TrimSpace(models.StripGrouping(k)) == "" {
			violations = append(violations, fmt.Sprintf("keywords.%d: must not be blank", i))
		}
	}
	if strings.TrimSpace(d.Name) == "" && len(d.Name) > 0 {
		violations = append(violations, "name: must not be blank")
	}
	if d.Location != "" {
		if _, err := models.ParseLocation(d.Location); err != nil {
			violations = append(violations, err.Error())
		}
	}
	if len(violations) > 0 {
		return models.Query{}, apperrors.NewValidationError(strings.Join(violations, "; "))
	}

	q, err := d.Build(loc)
	if err != nil {
		return models.Query{}, apperrors.NewValidationError(err.Error())
	}
	if q.Interval() <= 0 {
		return models.Query{}, apperrors.NewValidationError(fmt.Sprintf("frequency: %v minutes cannot be scheduled", d.Frequency))
	}
	if q.StartDate.After(q.EndDate) {
		return models.Query{}, apperrors.NewValidationError("startDate must not be after endDate")
	}
	return q, nil
}
