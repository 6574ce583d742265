// pkg/querydefs/schema.go
package querydefs

import "crowd-monitor/internal/models"

// Definitions is a versioned file of query drafts to seed a deployment with.
type Definitions struct {
	Version     string              `json:"version"`
	LastUpdated string              `json:"lastUpdated"`
	Queries     []models.QueryDraft `json:"queries"`
}
