// internal/workers/posts/fetch-posts/handler.go
package fetchposts

import (
	"context"
	"errors"
	"time"

	apperrors "crowd-monitor/internal/common/errors"
	"crowd-monitor/internal/common/logger"
	"crowd-monitor/internal/common/metrics"
	"crowd-monitor/internal/common/observability"
	"crowd-monitor/internal/models"
	searchposts "crowd-monitor/internal/workers/data-access/search-posts"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

const (
	TaskType = "fetch-posts"
)

var (
	ErrInvalidQuery = errors.New("INVALID_QUERY")
	ErrFetchFailed  = errors.New("FETCH_FAILED")
)

// Handler runs the fetch-score-persist cycle for one query.
type Handler struct {
	config *Config
	source searchposts.ContentSource
	scorer Scorer
	store  PostWriter
	obs    *observability.Observability
	logger logger.Logger
}

func NewHandler(
	config *Config,
	source searchposts.ContentSource,
	scorer Scorer,
	store PostWriter,
	obs *observability.Observability,
	log logger.Logger,
) *Handler {
	return &Handler{
		config: config,
		source: source,
		scorer: scorer,
		store:  store,
		obs:    obs,
		logger: log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

// Execute matches scheduler.TickFunc.
func (h *Handler) Execute(ctx context.Context, q models.Query) error {
	_, err := h.Run(ctx, q)
	return err
}

// Run executes one tick and reports what it did.
func (h *Handler) Run(ctx context.Context, q models.Query) (*Output, error) {
	metrics.TicksActive.WithLabelValues(TaskType).Inc()
	defer metrics.TicksActive.WithLabelValues(TaskType).Dec()

	startTime := time.Now()
	output, err := h.execute(ctx, q)
	duration := time.Since(startTime)

	status := "success"
	if err != nil {
		status = "failed"
		metrics.TicksFailed.WithLabelValues(TaskType, string(apperrors.CodeOf(err))).Inc()
	} else {
		metrics.TicksCompleted.WithLabelValues(TaskType).Inc()
	}
	metrics.TickDuration.WithLabelValues(TaskType).Observe(duration.Seconds())
	if h.obs != nil {
		h.obs.RecordTickProcessed(ctx, status)
		h.obs.RecordTickDuration(ctx, duration, status)
	}

	if output != nil {
		output.Duration = duration
	}
	return output, err
}

func (h *Handler) execute(ctx context.Context, q models.Query) (out *Output, err error) {
	out = &Output{TickID: uuid.NewString(), QueryID: q.ID}
	log := h.logger.WithFields(map[string]interface{}{"queryId": q.ID, "tickId": out.TickID})

	req, err := searchposts.NewSearchRequest(q)
	if err != nil {
		return out, apperrors.NewValidationError(ErrInvalidQuery.Error() + ": " + err.Error())
	}

	ctx, span := h.obs.StartSpan(ctx, TaskType+".tick", q.ID)
	span.SetAttributes(
		attribute.String("tick.id", out.TickID),
		attribute.String("provider.query", req.String()),
	)
	defer func() { observability.EndSpan(span, err) }()

	log.Debug("tick started", map[string]interface{}{"providerQuery": req.String(), "cap": req.Cap})

	raw, err := h.fetch(ctx, req)
	out.Fetched = len(raw)
	if err != nil {
		log.Error("fetch failed, tick aborted", map[string]interface{}{"error": err, "fetched": len(raw)})
		return out, err
	}

	scored := h.score(ctx, log, q, raw)
	out.Dropped = len(raw) - len(scored)

	if len(scored) > 0 {
		if err = h.persist(ctx, scored); err != nil {
			log.Error("persist failed", map[string]interface{}{"error": err, "batch": len(scored)})
			return out, err
		}
	}
	out.Persisted = len(scored)
	if h.obs != nil {
		h.obs.RecordPostsScored(ctx, q.ID, len(scored))
	}

	log.Info("tick completed", map[string]interface{}{
		"fetched":   out.Fetched,
		"dropped":   out.Dropped,
		"persisted": out.Persisted,
	})
	return out, nil
}

// fetch ranges over the source until it is exhausted or req.Cap posts have
// been read. Nothing past the cap is requested.
func (h *Handler) fetch(ctx context.Context, req searchposts.SearchRequest) (raw []models.RawPost, err error) {
	ctx, span := h.obs.StartSpan(ctx, "search", req.QueryID)
	defer func() { observability.EndSpan(span, err) }()

	if req.Cap <= 0 {
		return nil, nil
	}

	raw = make([]models.RawPost, 0, min(req.Cap, 256))
	for post, err := range h.source.Search(ctx, req) {
		if err != nil {
			if _, ok := apperrors.AsStandard(err); !ok {
				err = apperrors.NewSourceError(req.QueryID, errors.Join(ErrFetchFailed, err))
			}
			return raw, err
		}
		raw = append(raw, post)
		if len(raw) >= req.Cap {
			break
		}
	}
	span.SetAttributes(attribute.Int("posts.fetched", len(raw)))
	return raw, nil
}

func (h *Handler) score(ctx context.Context, log logger.Logger, q models.Query, raw []models.RawPost) []models.ScoredPost {
	_, span := h.obs.StartSpan(ctx, "score", q.ID)
	defer span.End()

	scored := make([]models.ScoredPost, 0, len(raw))
	index := make(map[string]int, len(raw))
	for _, p := range raw {
		sp, err := h.scorer.Score(q, p)
		if err != nil {
			metrics.PostsDropped.WithLabelValues("invalid").Inc()
			log.Warn("dropping invalid post", map[string]interface{}{"postId": p.ID, "error": err})
			continue
		}
		if h.config.DedupeBatch {
			if i, ok := index[sp.ID]; ok {
				metrics.PostsDropped.WithLabelValues("duplicate").Inc()
				scored[i] = sp
				continue
			}
			index[sp.ID] = len(scored)
		}
		scored = append(scored, sp)
	}
	span.SetAttributes(attribute.Int("posts.scored", len(scored)))
	return scored
}

func (h *Handler) persist(ctx context.Context, scored []models.ScoredPost) (err error) {
	ctx, span := h.obs.StartSpan(ctx, "persist", scored[0].QueryID)
	defer func() { observability.EndSpan(span, err) }()

	if err = h.store.UpsertScoredPosts(ctx, scored); err != nil {
		if _, ok := apperrors.AsStandard(err); !ok {
			err = apperrors.NewStoreError("upsert scored posts", err)
		}
	}
	return err
}
