// internal/workers/posts/score-post/models.go
package scorepost

import "crowd-monitor/internal/models"

// mediaSummary is the outcome of classifying a post's attachments.
type mediaSummary struct {
	Count int
	Items []models.Media
}

// Breakdown exposes the intermediate terms of a score, for debugging and
// the seeder's dry-run output.
type Breakdown struct {
	MediaCount       int     `json:"mediaCount"`
	InteractionScore float64 `json:"interactionScore"`
	KeywordCount     int     `json:"keywordCount"`
	BlacklistHits    int     `json:"blacklistHits"`
}
