// Package tasks defines the structure for events that are sent to Kafka.
package tasks

import "time"

// ChatInteractionEvent represents one persisted chat turn, emitted for
// offline analytics aggregation.
type ChatInteractionEvent struct {
	UserID         uint      `json:"user_id"`
	SessionID      string    `json:"session_id"`
	ChatType       string    `json:"chat_type"`
	Role           string    `json:"role"`
	ResponseTimeMs int       `json:"response_time_ms"`
	OccurredAt     time.Time `json:"occurred_at"`
}
