// internal/workers/data-access/search-posts/models.go
package searchposts

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"crowd-monitor/internal/models"
)

// ContentSource yields raw posts matching a request. The sequence is lazy
// and may be unbounded; callers stop ranging once they have enough.
type ContentSource interface {
	Search(ctx context.Context, req SearchRequest) iter.Seq2[models.RawPost, error]
}

// SearchRequest is one tick's view of a query.
type SearchRequest struct {
	QueryID  string
	Keywords []string
	Start    time.Time
	End      time.Time
	Location models.Location
	// LocationRaw is the query's location string as the user wrote it.
	LocationRaw string
	Cap         int
}

// NewSearchRequest derives the request for q.
func NewSearchRequest(q models.Query) (SearchRequest, error) {
	center, err := q.Center()
	if err != nil {
		return SearchRequest{}, err
	}
	return SearchRequest{
		QueryID:     q.ID,
		Keywords:    append([]string(nil), q.Keywords...),
		Start:       q.StartDate,
		End:         q.EndDate,
		Location:    center,
		LocationRaw: q.Location,
		Cap:         q.MaxTweets,
	}, nil
}

// String renders the provider search expression, e.g.
//
//	storm OR (tornado warning) since:2024-06-01 until:2024-06-30 filter:media filter:has_engagement geocode:"43.65,-79.38,10km"
func (r SearchRequest) String() string {
	var b strings.Builder
	b.WriteString(strings.Join(r.Keywords, " OR "))
	fmt.Fprintf(&b, " since:%s until:%s", r.Start.Format(models.DateLayout), r.End.Format(models.DateLayout))
	b.WriteString(" filter:media filter:has_engagement")
	fmt.Fprintf(&b, " geocode:%q", r.LocationRaw)
	return b.String()
}

// indexedPost is a post document as stored in the search index. Location
// is the point the post was indexed under for geo filtering; Coordinates
// is only set when the author attached an exact position.
type indexedPost struct {
	models.RawPost
	Location *models.Coordinates `json:"location,omitempty"`
}
