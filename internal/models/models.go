package models

import "time"

// Participant is one creature taking part in a conversation.
// The participant list is fixed when the conversation starts.
type Participant struct {
	CreatureID int64  `json:"creature_id"`
	Name       string `json:"name"`
}

// Message is a single line spoken in a conversation.
type Message struct {
	Turn       int    `json:"turn"`
	CreatureID int64  `json:"creature_id"`
	Speaker    string `json:"speaker"`
	Text       string `json:"text"`
	LineType   string `json:"line_type"`
}

// Conversation is the live, session-scoped state of an ongoing chat.
// Exactly one active conversation may exist per user; the record is
// deleted once the conversation ends and is archived to the audit log.
type Conversation struct {
	ID               string            `json:"id"`
	UserID           int64             `json:"user_id"`
	TopicID          int64             `json:"topic_id"`
	Participants     []Participant     `json:"participants"`
	CurrentTurn      int               `json:"current_turn"`
	LastSpeakerIndex int               `json:"last_speaker_index"`
	LastLineType     string            `json:"last_line_type"`
	SentimentScores  map[int64]float64 `json:"sentiment_scores"`
	Messages         []Message         `json:"messages"`
	LastActivity     time.Time         `json:"last_activity"`
}

// LineEvent is what GetNextLine returns to the polling caller.
type LineEvent struct {
	Speaker           string `json:"speaker,omitempty"`
	CreatureID        int64  `json:"creature_id,omitempty"`
	Text              string `json:"text,omitempty"`
	Turn              int    `json:"turn,omitempty"`
	Topic             string `json:"topic,omitempty"`
	Continues         bool   `json:"continues"`
	ConversationEnded bool   `json:"conversation_ended,omitempty"`
}
