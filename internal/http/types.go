package http

import "github.com/fyrsmithlabs/contextkeeper/internal/collector"

// SnapshotRequest is the request body for POST /api/v1/snapshots.
type SnapshotRequest struct {
	URL  string `json:"url" validate:"required,url"`
	HTML string `json:"html" validate:"required"`
	// Flush scans inserted nodes immediately instead of after the debounce.
	Flush bool `json:"flush"`
}

// SnapshotResponse is the response body for POST /api/v1/snapshots.
type SnapshotResponse struct {
	Source         string            `json:"source"`
	ConversationID string            `json:"conversation_id"`
	Full           *collector.Result `json:"full,omitempty"`
	Inserted       int               `json:"inserted"`
	Flushed        *collector.Result `json:"flushed,omitempty"`
}

// StatusResponse is the response body for GET /api/v1/status.
type StatusResponse struct {
	Status    string           `json:"status"`
	Version   string           `json:"version,omitempty"`
	Collector collector.Status `json:"collector"`
	Sessions  []string         `json:"sessions"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}
