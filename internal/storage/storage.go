package storage

import (
	"context"
	"errors"
	"time"

	"github.com/chatlings/chatlings/internal/models"
)

// ErrNotFound is returned when referenced data is missing from storage.
// This is a data-integrity fault, not an expected steady-state outcome.
var ErrNotFound = errors.New("storage: not found")

// ErrNotInRunawayPool is returned by recovery operations when the
// creature has no unrecovered runaway record for the user.
var ErrNotInRunawayPool = errors.New("storage: creature not in runaway pool")

// ConversationStore holds the live, session-scoped conversation state.
// There is at most one active conversation per user.
type ConversationStore interface {
	// ActiveConversation returns the user's active conversation, or
	// (nil, nil) when the user is idle.
	ActiveConversation(ctx context.Context, userID int64) (*models.Conversation, error)
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	UpdateConversation(ctx context.Context, conv *models.Conversation) error
	DeleteConversation(ctx context.Context, userID int64, id string) error
}

// ReferenceStore serves the immutable conversation reference data:
// topics, the chat line library, and the flow-rule table.
type ReferenceStore interface {
	// ActiveTopic returns a random active topic, or (nil, nil) when none exist.
	ActiveTopic(ctx context.Context) (*models.Topic, error)
	// Topic returns the topic by id, or ErrNotFound.
	Topic(ctx context.Context, id int64) (*models.Topic, error)
	// SelectChatLine returns a random line of the given type. A non-empty
	// topicTags narrows the pool to untagged lines plus lines sharing a
	// tag. Returns (nil, nil) when nothing matches.
	SelectChatLine(ctx context.Context, lineType string, topicTags []string) (*models.ChatLine, error)
	// FlowOptions returns the transitions legal from the given line type
	// at the given turn.
	FlowOptions(ctx context.Context, fromLineType string, turn int) ([]models.FlowOption, error)
	// LineTypeCanEnd reports whether lines of the given type may close a
	// conversation.
	LineTypeCanEnd(ctx context.Context, lineType string) (bool, error)
}

// CollectionStore manages user collections, per-creature moods, and the
// runaway pool.
type CollectionStore interface {
	// EligibleCreatures returns the user's creatures that can join a
	// conversation (mood != runaway).
	EligibleCreatures(ctx context.Context, userID int64) ([]models.Participant, error)
	// LikelihoodMultiplier returns the user's conversation-start
	// multiplier, defaulting to 1.0.
	LikelihoodMultiplier(ctx context.Context, userID int64) (float64, error)
	// LastConversationAt returns when the user's most recent conversation
	// was archived, or (nil, nil) if there is none.
	LastConversationAt(ctx context.Context, userID int64) (*time.Time, error)
	// CreatureMood returns the mood record for a user-creature pairing,
	// or (nil, nil) when the creature is not in the user's collection.
	CreatureMood(ctx context.Context, userID, creatureID int64) (*models.CreatureMood, error)
	SetCreatureMood(ctx context.Context, mood *models.CreatureMood) error
	// MoveToRunawayPool removes the creature from the user's collection
	// and records the runaway with its recovery difficulty.
	MoveToRunawayPool(ctx context.Context, userID, creatureID int64, unhappyCount int, difficulty string) error
	// RunawayRecord returns the unrecovered runaway record, or
	// ErrNotInRunawayPool.
	RunawayRecord(ctx context.Context, userID, creatureID int64) (*models.Runaway, error)
	SetRunawayDifficulty(ctx context.Context, runawayID int64, difficulty string) error
	// RestoreFromRunaway marks the runaway recovered and puts the
	// creature back in the collection with a neutral mood.
	RestoreFromRunaway(ctx context.Context, userID, creatureID int64) error
	// UsersWithCreatures lists users owning at least one creature, for
	// the daemon's poll sweep.
	UsersWithCreatures(ctx context.Context) ([]int64, error)
}

// AuditStore archives finished conversations.
type AuditStore interface {
	AppendAuditLog(ctx context.Context, entry *models.AuditEntry) error
	// AuditLog returns the user's archived conversations, newest first.
	AuditLog(ctx context.Context, userID int64, limit int) ([]*models.AuditEntry, error)
}

// Storage is the full persistence surface the engine consumes.
type Storage interface {
	ConversationStore
	ReferenceStore
	CollectionStore
	AuditStore
	Close() error
}
