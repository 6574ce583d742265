// internal/models/post.go
package models

import "time"

// MediaType values as reported by content sources.
const (
	MediaTypePhoto    = "photo"
	MediaTypeVideo    = "video"
	MediaTypeAnimated = "animated_gif"
)

// StreamingManifestType marks HLS variants, which are never emitted.
const StreamingManifestType = "application/x-mpegURL"

// RawPost is a post exactly as a ContentSource yields it.
type RawPost struct {
	ID           string       `json:"id"`
	Content      string       `json:"content"`
	Media        []RawMedia   `json:"media,omitempty"`
	LikeCount    int64        `json:"likeCount"`
	RetweetCount int64        `json:"retweetCount"`
	ReplyCount   int64        `json:"replyCount"`
	Date         time.Time    `json:"date"`
	Coordinates  *Coordinates `json:"coordinates,omitempty"`
}

// RawMedia is one attachment. Photos carry URL; videos and animated items
// carry Variants.
type RawMedia struct {
	Type     string         `json:"type"`
	URL      string         `json:"url,omitempty"`
	Variants []MediaVariant `json:"variants,omitempty"`
}

type MediaVariant struct {
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
}

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Point is a point geometry.
type Point struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Media is an emitted attachment on a scored post.
type Media struct {
	Type        string `json:"type"`
	URL         string `json:"url"`
	ContentType string `json:"contentType,omitempty"`
}

// ScoredPost is a fetched post enriched with derived scores. ID alone is
// its identity for upserts.
type ScoredPost struct {
	ID                string    `json:"id"`
	QueryID           string    `json:"queryId"`
	Likes             int64     `json:"likes"`
	Retweets          int64     `json:"retweets"`
	Replies           int64     `json:"replies"`
	Date              time.Time `json:"date"`
	Location          Point     `json:"location"`
	Content           string    `json:"content"`
	Media             []Media   `json:"media"`
	MediaCount        int       `json:"mediaCount"`
	KeywordCount      int       `json:"keywordCount"`
	InteractionScore  float64   `json:"interactionScore"`
	RelatabilityScore float64   `json:"relatabilityScore"`
}
