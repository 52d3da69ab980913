package models

// Item represents one article in a session's batch.
// Items are immutable once loaded for a session.
type Item struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	SourceOrder int    `json:"source_order"`
}
