package models

import "time"

// MoodChange captures one participant's mood delta when a conversation ends.
type MoodChange struct {
	Before string  `json:"before"`
	After  string  `json:"after"`
	Score  float64 `json:"score"`
}

// AuditEntry is the permanent archive of a finished conversation.
type AuditEntry struct {
	ID           int64                `json:"id"`
	UserID       int64                `json:"user_id"`
	Topic        string               `json:"topic"`
	Participants []Participant        `json:"participants"`
	Messages     []Message            `json:"messages"`
	MoodChanges  map[int64]MoodChange `json:"mood_changes"`
	CreatedAt    time.Time            `json:"created_at"`
}
