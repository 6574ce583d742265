// internal/models/query.go
package models

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the calendar-day format accepted for query windows.
const DateLayout = "2006-01-02"

// Frequency bounds in minutes. MinFrequency keeps Interval at or above one
// millisecond; MaxFrequency (one year) keeps it far from Duration overflow.
const (
	MinFrequency = 1.0 / 60000
	MaxFrequency = 525600.0
)

// QueryState distinguishes active from archived queries.
type QueryState string

const (
	QueryStateActive   QueryState = "active"
	QueryStateArchived QueryState = "archived"
)

// QueryDraft is the user-supplied shape of a query before validation.
type QueryDraft struct {
	Name      string   `json:"name"`
	Location  string   `json:"location"`
	StartDate string   `json:"startDate"`
	EndDate   string   `json:"endDate"`
	Keywords  []string `json:"keywords"`
	Frequency float64  `json:"frequency"`
	MaxTweets int      `json:"maxTweets"`
}

// Query is a standing search criterion.
type Query struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Location  string     `json:"location"`
	StartDate time.Time  `json:"startDate"`
	EndDate   time.Time  `json:"endDate"`
	Keywords  []string   `json:"keywords"`
	Frequency float64    `json:"frequency"`
	MaxTweets int        `json:"maxTweets"`
	State     QueryState `json:"state"`
}

// ArchivedQuery is a retired query kept for read-only access.
type ArchivedQuery struct {
	Query
	IsPublic   bool      `json:"isPublic"`
	ArchivedAt time.Time `json:"archivedAt"`
}

// Interval converts Frequency (minutes, fractional allowed) to a duration.
// It returns 0 for a frequency outside [MinFrequency, MaxFrequency].
func (q Query) Interval() time.Duration {
	if q.Frequency < MinFrequency || q.Frequency > MaxFrequency {
		return 0
	}
	return time.Duration(q.Frequency * float64(time.Minute))
}

// SameParameters reports whether q and other describe the same search.
// ID and State are not compared.
func (q Query) SameParameters(other Query) bool {
	return q.Name == other.Name &&
		q.Location == other.Location &&
		q.StartDate.Equal(other.StartDate) &&
		q.EndDate.Equal(other.EndDate) &&
		slices.Equal(q.Keywords, other.Keywords) &&
		q.Frequency == other.Frequency &&
		q.MaxTweets == other.MaxTweets
}

// Expired reports whether now is past the end of the query window.
func (q Query) Expired(now time.Time) bool {
	return now.After(q.EndDate)
}

// Center parses the query location.
func (q Query) Center() (Location, error) {
	return ParseLocation(q.Location)
}

// NormalizeKeyword trims k and parenthesizes it when it holds whitespace so
// search providers treat it as a phrase.
func NormalizeKeyword(k string) string {
	k = strings.TrimSpace(k)
	if strings.ContainsAny(k, " \t") && !(strings.HasPrefix(k, "(") && strings.HasSuffix(k, ")")) {
		return "(" + k + ")"
	}
	return k
}

// StripGrouping removes the parentheses added by NormalizeKeyword.
func StripGrouping(k string) string {
	return strings.NewReplacer("(", "", ")", "").Replace(k)
}

// Build turns a draft into a Query. Dates are read in loc and EndDate is
// moved to 23:59:59 of its day. Build does not enforce invariants beyond
// parsing; callers validate the draft first.
func (d QueryDraft) Build(loc *time.Location) (Query, error) {
	if loc == nil {
		loc = time.UTC
	}

	start, err := time.ParseInLocation(DateLayout, strings.TrimSpace(d.StartDate), loc)
	if err != nil {
		return Query{}, fmt.Errorf("startDate: %w", err)
	}
	end, err := time.ParseInLocation(DateLayout, strings.TrimSpace(d.EndDate), loc)
	if err != nil {
		return Query{}, fmt.Errorf("endDate: %w", err)
	}
	end = time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, 0, loc)

	keywords := make([]string, 0, len(d.Keywords))
	for _, k := range d.Keywords {
		keywords = append(keywords, NormalizeKeyword(k))
	}

	return Query{
		Name:      strings.TrimSpace(d.Name),
		Location:  strings.TrimSpace(d.Location),
		StartDate: start,
		EndDate:   end,
		Keywords:  keywords,
		Frequency: d.Frequency,
		MaxTweets: d.MaxTweets,
		State:     QueryStateActive,
	}, nil
}

// Location is a geo center plus search radius, e.g. "43.65,-79.38,10km".
type Location struct {
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Radius string  `json:"radius"`
}

// ParseLocation parses "lat,lon,radiusUnit". The radius must be a positive
// number followed by km or mi.
func ParseLocation(s string) (Location, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return Location{}, fmt.Errorf("location %q: want lat,lon,radius", s)
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil || lat < -90 || lat > 90 {
		return Location{}, fmt.Errorf("location %q: invalid latitude", s)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil || lon < -180 || lon > 180 {
		return Location{}, fmt.Errorf("location %q: invalid longitude", s)
	}

	radius := strings.ToLower(strings.TrimSpace(parts[2]))
	var unit string
	switch {
	case strings.HasSuffix(radius, "km"):
		unit = "km"
	case strings.HasSuffix(radius, "mi"):
		unit = "mi"
	default:
		return Location{}, fmt.Errorf("location %q: radius unit must be km or mi", s)
	}
	n, err := strconv.ParseFloat(strings.TrimSuffix(radius, unit), 64)
	if err != nil || n <= 0 {
		return Location{}, fmt.Errorf("location %q: invalid radius", s)
	}

	return Location{Lat: lat, Lon: lon, Radius: radius}, nil
}

// Point returns the center as a point geometry.
func (l Location) Point() Point {
	return Point{Lon: l.Lon, Lat: l.Lat}
}

// LifecycleEvent describes a registry transition for notifiers.
type LifecycleEvent struct {
	Type       string    `json:"eventType"`
	QueryID    string    `json:"queryId"`
	QueryName  string    `json:"queryName"`
	IsPublic   *bool     `json:"isPublic,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

const (
	EventQueryCreated           = "query.created"
	EventQueryUpdated           = "query.updated"
	EventQueryArchived          = "query.archived"
	EventQueryRemoved           = "query.removed"
	EventArchivedQueryRemoved   = "query.archive_removed"
	EventQueryVisibilityChanged = "query.visibility_changed"
	EventQueryExpired           = "query.expired"
)
