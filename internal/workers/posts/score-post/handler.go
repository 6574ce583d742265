// internal/workers/posts/score-post/handler.go
package scorepost

import (
	"fmt"
	"math"
	"strings"

	apperrors "crowd-monitor/internal/common/errors"
	"crowd-monitor/internal/models"
)

const (
	TaskType = "score-post"
)

type Handler struct {
	blacklist []string
}

func NewHandler(config *Config) *Handler {
	blacklist := make([]string, 0, len(config.Blacklist))
	for _, term := range config.Blacklist {
		if term = strings.ToLower(strings.TrimSpace(term)); term != "" {
			blacklist = append(blacklist, term)
		}
	}
	return &Handler{blacklist: blacklist}
}

// Score derives a ScoredPost from p under q. It is a pure function of its
// inputs and the configured blacklist.
func (h *Handler) Score(q models.Query, p models.RawPost) (models.ScoredPost, error) {
	scored, _, err := h.execute(q, p)
	return scored, err
}

// Explain scores p like Score and also returns the intermediate terms.
func (h *Handler) Explain(q models.Query, p models.RawPost) (models.ScoredPost, Breakdown, error) {
	return h.execute(q, p)
}

func (h *Handler) execute(q models.Query, p models.RawPost) (models.ScoredPost, Breakdown, error) {
	if err := validateRawPost(p); err != nil {
		return models.ScoredPost{}, Breakdown{}, err
	}

	media := classifyMedia(p.Media)
	interaction := InteractionScore(p.LikeCount, p.RetweetCount, p.ReplyCount)
	keywords := KeywordCount(q.Keywords, p.Content)
	hits := h.BlacklistHits(p.Content)

	relatability := (float64(media.Count) + interaction) * float64(keywords)
	if hits > 0 {
		relatability = 0
	}

	location, err := postLocation(q, p)
	if err != nil {
		return models.ScoredPost{}, Breakdown{}, err
	}

	scored := models.ScoredPost{
		ID:                p.ID,
		QueryID:           q.ID,
		Likes:             p.LikeCount,
		Retweets:          p.RetweetCount,
		Replies:           p.ReplyCount,
		Date:              p.Date,
		Location:          location,
		Content:           p.Content,
		Media:             media.Items,
		MediaCount:        media.Count,
		KeywordCount:      keywords,
		InteractionScore:  interaction,
		RelatabilityScore: relatability,
	}
	return scored, Breakdown{
		MediaCount:       media.Count,
		InteractionScore: interaction,
		KeywordCount:     keywords,
		BlacklistHits:    hits,
	}, nil
}

func validateRawPost(p models.RawPost) error {
	if strings.TrimSpace(p.ID) == "" {
		return apperrors.NewValidationError("post id is required")
	}
	if p.LikeCount < 0 || p.RetweetCount < 0 || p.ReplyCount < 0 {
		return apperrors.NewValidationError(fmt.Sprintf(
			"post %s: negative engagement counts (likes=%d retweets=%d replies=%d)",
			p.ID, p.LikeCount, p.RetweetCount, p.ReplyCount,
		))
	}
	return nil
}

// classifyMedia counts photos and videos and emits one entry per photo and
// per non-streaming video variant. Animated items are dropped.
func classifyMedia(raw []models.RawMedia) mediaSummary {
	out := mediaSummary{Items: []models.Media{}}
	for _, m := range raw {
		switch m.Type {
		case models.MediaTypePhoto:
			out.Count++
			out.Items = append(out.Items, models.Media{Type: models.MediaTypePhoto, URL: m.URL})
		case models.MediaTypeVideo:
			out.Count++
			for _, v := range m.Variants {
				if v.ContentType == models.StreamingManifestType {
					continue
				}
				out.Items = append(out.Items, models.Media{
					Type:        models.MediaTypeVideo,
					URL:         v.URL,
					ContentType: v.ContentType,
				})
			}
		}
	}
	return out
}

// InteractionScore is (l²+rt²+rp)/sqrt(l²+rt²+rp²), or 0 with no engagement.
// Replies enter the numerator linearly.
func InteractionScore(likes, retweets, replies int64) float64 {
	if likes+retweets+replies == 0 {
		return 0
	}
	l, rt, rp := float64(likes), float64(retweets), float64(replies)
	return (l*l + rt*rt + rp) / math.Sqrt(l*l+rt*rt+rp*rp)
}

// KeywordCount sums case-insensitive occurrences of each keyword, with
// grouping parentheses stripped, in content.
func KeywordCount(keywords []string, content string) int {
	lower := strings.ToLower(content)
	total := 0
	for _, k := range keywords {
		total += countFold(lower, models.StripGrouping(k))
	}
	return total
}

// BlacklistHits counts case-insensitive occurrences of blacklisted terms.
func (h *Handler) BlacklistHits(content string) int {
	lower := strings.ToLower(content)
	hits := 0
	for _, term := range h.blacklist {
		hits += countFold(lower, term)
	}
	return hits
}

// countFold counts non-overlapping occurrences of term in lowered content.
// An empty term matches nothing.
func countFold(lowered, term string) int {
	term = strings.ToLower(term)
	if term == "" {
		return 0
	}
	return strings.Count(lowered, term)
}

func postLocation(q models.Query, p models.RawPost) (models.Point, error) {
	if p.Coordinates != nil {
		return models.Point{Lon: p.Coordinates.Lon, Lat: p.Coordinates.Lat}, nil
	}
	center, err := q.Center()
	if err != nil {
		return models.Point{}, apperrors.NewValidationError(fmt.Sprintf("query %s: %v", q.ID, err))
	}
	return center.Point(), nil
}
