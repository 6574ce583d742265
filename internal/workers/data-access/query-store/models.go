// internal/workers/data-access/query-store/models.go
package querystore

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"crowd-monitor/internal/models"
)

// timeLayouts are the textual forms a timestamp may come back in when the
// driver hands us text instead of time.Time.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

// dbTime scans timestamps from either dialect.
type dbTime struct {
	Time time.Time
}

func (t *dbTime) Scan(src interface{}) error {
	switch v := src.(type) {
	case time.Time:
		t.Time = v
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	case nil:
		t.Time = time.Time{}
		return nil
	}
	return fmt.Errorf("cannot scan %T into timestamp", src)
}

func (t *dbTime) parse(s string) error {
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

// jsonText stores a value as JSON in a TEXT column.
type jsonText struct {
	v interface{}
}

func (j jsonText) Value() (driver.Value, error) {
	b, err := json.Marshal(j.v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func decodeJSONText(raw string, dst interface{}) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), dst)
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanQuery(row rowScanner, extra ...interface{}) (models.Query, error) {
	var (
		q          models.Query
		start, end dbTime
		keywords   string
	)
	dest := append([]interface{}{
		&q.ID, &q.Name, &q.Location, &start, &end, &keywords, &q.Frequency, &q.MaxTweets,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return models.Query{}, err
	}
	if err := decodeJSONText(keywords, &q.Keywords); err != nil {
		return models.Query{}, fmt.Errorf("decode keywords for %s: %w", q.ID, err)
	}
	q.StartDate = start.Time
	q.EndDate = end.Time
	q.State = models.QueryStateActive
	return q, nil
}

func scanArchivedQuery(row rowScanner) (models.ArchivedQuery, error) {
	var (
		isPublic   bool
		archivedAt dbTime
	)
	q, err := scanQuery(row, &isPublic, &archivedAt)
	if err != nil {
		return models.ArchivedQuery{}, err
	}
	q.State = models.QueryStateArchived
	return models.ArchivedQuery{Query: q, IsPublic: isPublic, ArchivedAt: archivedAt.Time}, nil
}

func scanScoredPost(row rowScanner) (models.ScoredPost, error) {
	var (
		p      models.ScoredPost
		posted dbTime
		media  string
	)
	err := row.Scan(
		&p.ID, &p.QueryID, &p.Likes, &p.Retweets, &p.Replies, &posted,
		&p.Location.Lon, &p.Location.Lat, &p.Content, &media,
		&p.MediaCount, &p.KeywordCount, &p.InteractionScore, &p.RelatabilityScore,
	)
	if err != nil {
		return models.ScoredPost{}, err
	}
	p.Date = posted.Time
	p.Media = []models.Media{}
	if err := decodeJSONText(media, &p.Media); err != nil {
		return models.ScoredPost{}, fmt.Errorf("decode media for %s: %w", p.ID, err)
	}
	return p, nil
}
