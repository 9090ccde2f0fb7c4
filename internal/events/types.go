package events

import "time"

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeBatchProgress reports per-query progress during a batch comparison
	EventTypeBatchProgress EventType = "batch_progress"
	// EventTypeBatchComplete reports a finished batch comparison
	EventTypeBatchComplete EventType = "batch_complete"
	// EventTypeLibraryUpdated reports index mutations
	EventTypeLibraryUpdated EventType = "library_updated"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
)

// Event represents a WebSocket event sent to viewer clients
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// BatchProgressEvent carries comparison progress counts
type BatchProgressEvent struct {
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Metric    string `json:"metric"`
}

// BatchCompleteEvent summarizes a finished comparison
type BatchCompleteEvent struct {
	Queries     int     `json:"queries"`
	Candidates  int     `json:"candidates"`
	FailedCells int     `json:"failed_cells"`
	DurationMS  float64 `json:"duration_ms"`
}

// LibraryUpdatedEvent reports a change to the served library
type LibraryUpdatedEvent struct {
	Library    string `json:"library"`
	Action     string `json:"action"` // "load" for the startup bulk load
	SpectrumID string `json:"spectrum_id,omitempty"`
	Size       int    `json:"size"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action   string `json:"action"` // "connected", "disconnected"
	ClientID string `json:"client_id"`
}

// HubStats tracks WebSocket hub statistics
type HubStats struct {
	TotalConnections  int64
	ActiveConnections int64
	TotalBroadcasts   int64
}
