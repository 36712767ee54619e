package models

// Sentiment categories used by chat lines and topics.
const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
)

// ChatLine is an immutable template line from the curated library.
// Text may contain a {topic} placeholder interpolated at render time.
type ChatLine struct {
	ID                 int64    `json:"id"`
	LineType           string   `json:"line_type"`
	Text               string   `json:"text"`
	Sentiment          string   `json:"sentiment"`
	Intensity          float64  `json:"intensity"`
	CanEndConversation bool     `json:"can_end_conversation"`
	TopicTags          []string `json:"topic_tags,omitempty"`
}

// FlowOption is one legal transition out of a line type, valid while
// the conversation turn falls inside [MinTurn, MaxTurn].
type FlowOption struct {
	ToLineType string  `json:"to_line_type"`
	Weight     float64 `json:"weight"`
}

// Topic is a trending conversation subject.
type Topic struct {
	ID           int64  `json:"id"`
	Text         string `json:"topic_text"`
	CategoryTag  string `json:"category,omitempty"`
	SentimentTag string `json:"sentiment,omitempty"`
	IsActive     bool   `json:"is_active"`
}
