// internal/workers/data-access/search-posts/queries/builders.go
package queries

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"crowd-monitor/internal/models"

	"github.com/elastic/go-elasticsearch/v8/esapi"
)

var (
	ErrMissingIndex    = errors.New("index name is required")
	ErrMissingKeywords = errors.New("at least one keyword is required")
)

// PostQuery describes one page of a post search.
type PostQuery struct {
	Index       string
	Keywords    []string
	Start       time.Time
	End         time.Time
	Center      models.Location
	Size        int
	SearchAfter []interface{}
}

// IndexMapping is the mapping the post index is created with.
const IndexMapping = `{
  "mappings": {
    "properties": {
      "id":           {"type": "keyword"},
      "content":      {"type": "text"},
      "date":         {"type": "date"},
      "likeCount":    {"type": "long"},
      "retweetCount": {"type": "long"},
      "replyCount":   {"type": "long"},
      "location":     {"type": "geo_point"},
      "coordinates":  {"type": "geo_point"},
      "media": {
        "properties": {
          "type": {"type": "keyword"},
          "url":  {"type": "keyword"},
          "variants": {
            "properties": {
              "url":         {"type": "keyword"},
              "contentType": {"type": "keyword"}
            }
          }
        }
      }
    }
  }
}`

// BuildSearchRequest builds the esapi request for one page of pq.
func BuildSearchRequest(pq PostQuery) (*esapi.SearchRequest, error) {
	if pq.Index == "" {
		return nil, ErrMissingIndex
	}
	if len(pq.Keywords) == 0 {
		return nil, ErrMissingKeywords
	}

	body, err := json.Marshal(BuildSearchBody(pq))
	if err != nil {
		return nil, err
	}

	return &esapi.SearchRequest{
		Index: []string{pq.Index},
		Body:  bytes.NewReader(body),
	}, nil
}

// BuildSearchBody returns the search DSL for pq: keyword match on content,
// the date window, a geo radius, media present and some engagement.
func BuildSearchBody(pq PostQuery) map[string]interface{} {
	filters := []interface{}{
		map[string]interface{}{
			"range": map[string]interface{}{
				"date": map[string]interface{}{
					"gte": pq.Start.Format(time.RFC3339),
					"lte": pq.End.Format(time.RFC3339),
				},
			},
		},
		map[string]interface{}{
			"geo_distance": map[string]interface{}{
				"distance": pq.Center.Radius,
				"location": map[string]interface{}{
					"lat": pq.Center.Lat,
					"lon": pq.Center.Lon,
				},
			},
		},
		map[string]interface{}{
			"exists": map[string]interface{}{"field": "media.type"},
		},
		map[string]interface{}{
			"bool": map[string]interface{}{
				"should": []interface{}{
					rangeGT("likeCount"),
					rangeGT("retweetCount"),
					rangeGT("replyCount"),
				},
				"minimum_should_match": 1,
			},
		},
	}

	body := map[string]interface{}{
		"size": pq.Size,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": []interface{}{
					map[string]interface{}{
						"query_string": map[string]interface{}{
							"query":            KeywordExpression(pq.Keywords),
							"default_field":    "content",
							"default_operator": "AND",
						},
					},
				},
				"filter": filters,
			},
		},
		"sort": []interface{}{
			map[string]interface{}{"date": "desc"},
			map[string]interface{}{"id": "asc"},
		},
	}
	if len(pq.SearchAfter) > 0 {
		body["search_after"] = pq.SearchAfter
	}
	return body
}

func rangeGT(field string) map[string]interface{} {
	return map[string]interface{}{
		"range": map[string]interface{}{
			field: map[string]interface{}{"gt": 0},
		},
	}
}

// KeywordExpression joins keywords with OR for query_string. Grouped
// keywords become quoted phrases.
func KeywordExpression(keywords []string) string {
	terms := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.TrimSpace(models.StripGrouping(k))
		if k == "" {
			continue
		}
		if strings.ContainsAny(k, " \t") {
			k = `"` + strings.ReplaceAll(k, `"`, `\"`) + `"`
		}
		terms = append(terms, k)
	}
	return strings.Join(terms, " OR ")
}
