// internal/workers/data-access/search-posts/handler.go
package searchposts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strings"

	apperrors "crowd-monitor/internal/common/errors"
	"crowd-monitor/internal/common/logger"
	"crowd-monitor/internal/models"
	"crowd-monitor/internal/workers/data-access/search-posts/queries"

	"github.com/elastic/go-elasticsearch/v8"
)

const (
	TaskType = "search-posts"
)

var (
	ErrSearchQueryFailed = errors.New("SEARCH_QUERY_FAILED")
	ErrSearchTimeout     = errors.New("SEARCH_TIMEOUT")
	ErrIndexNotFound     = errors.New("INDEX_NOT_FOUND")
	ErrDecodeFailed      = errors.New("SEARCH_DECODE_FAILED")
)

// Source is an Elasticsearch-backed ContentSource. Pages are fetched with
// search_after as the caller ranges, so an unbounded result set is never
// materialized.
type Source struct {
	config *Config
	client *elasticsearch.Client
	logger logger.Logger
}

var _ ContentSource = (*Source)(nil)

func NewSource(config *Config, client *elasticsearch.Client, log logger.Logger) *Source {
	return &Source{
		config: config,
		client: client,
		logger: log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

type searchResponse struct {
	Hits struct {
		Hits []searchHit `json:"hits"`
	} `json:"hits"`
}

type searchHit struct {
	ID     string          `json:"_id"`
	Source json.RawMessage `json:"_source"`
	Sort   []interface{}   `json:"sort"`
}

// Search ranges over matching posts, newest first. A failed page yields a
// SourceError and ends the sequence.
func (s *Source) Search(ctx context.Context, req SearchRequest) iter.Seq2[models.RawPost, error] {
	return func(yield func(models.RawPost, error) bool) {
		size := s.config.PageSize
		if req.Cap > 0 && req.Cap < size {
			size = req.Cap
		}

		pq := queries.PostQuery{
			Index:    s.config.Index,
			Keywords: req.Keywords,
			Start:    req.Start,
			End:      req.End,
			Center:   req.Location,
			Size:     size,
		}

		for {
			hits, err := s.page(ctx, pq)
			if err != nil {
				yield(models.RawPost{}, apperrors.NewSourceError(req.QueryID, err))
				return
			}

			for _, hit := range hits {
				post, err := decodeHit(hit)
				if err != nil {
					s.logger.Warn("skipping undecodable hit", map[string]interface{}{
						"queryId": req.QueryID,
						"docId":   hit.ID,
						"error":   err,
					})
					continue
				}
				if !yield(post, nil) {
					return
				}
			}

			if len(hits) < size {
				return
			}
			pq.SearchAfter = hits[len(hits)-1].Sort
			if len(pq.SearchAfter) == 0 {
				return
			}
		}
	}
}

func (s *Source) page(ctx context.Context, pq queries.PostQuery) ([]searchHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, s.mapContextError(err)
	}

	req, err := queries.BuildSearchRequest(pq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchQueryFailed, err)
	}

	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	res, err := req.Do(ctx, s.client)
	if err != nil {
		if ctx.Err() != nil {
			return nil, s.mapContextError(ctx.Err())
		}
		return nil, fmt.Errorf("%w: %v", ErrSearchQueryFailed, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		if res.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, pq.Index)
		}
		return nil, fmt.Errorf("%w: %s", ErrSearchQueryFailed, res.String())
	}

	var r searchResponse
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	return r.Hits.Hits, nil
}

func (s *Source) mapContextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrSearchTimeout
	}
	return err
}

func decodeHit(hit searchHit) (models.RawPost, error) {
	var doc indexedPost
	if err := json.Unmarshal(hit.Source, &doc); err != nil {
		return models.RawPost{}, err
	}
	post := doc.RawPost
	if post.ID == "" {
		post.ID = hit.ID
	}
	return post, nil
}

// EnsureIndex creates the post index with its mapping if it does not exist.
func (s *Source) EnsureIndex(ctx context.Context) error {
	res, err := s.client.Indices.Exists([]string{s.config.Index}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index %s: %w", s.config.Index, err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	res, err = s.client.Indices.Create(
		s.config.Index,
		s.client.Indices.Create.WithContext(ctx),
		s.client.Indices.Create.WithBody(strings.NewReader(queries.IndexMapping)),
	)
	if err != nil {
		return fmt.Errorf("create index %s: %w", s.config.Index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("create index %s: %s", s.config.Index, res.String())
	}

	s.logger.Info("created post index", map[string]interface{}{"index": s.config.Index})
	return nil
}

// IndexPost stores p under location for geo filtering.
func (s *Source) IndexPost(ctx context.Context, p models.RawPost, location models.Coordinates) error {
	body, err := json.Marshal(indexedPost{RawPost: p, Location: &location})
	if err != nil {
		return err
	}

	res, err := s.client.Index(
		s.config.Index,
		strings.NewReader(string(body)),
		s.client.Index.WithContext(ctx),
		s.client.Index.WithDocumentID(p.ID),
	)
	if err != nil {
		return fmt.Errorf("index post %s: %w", p.ID, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("index post %s: %s", p.ID, res.String())
	}
	return nil
}
