package models

import "time"

// Mood statuses for a user's creature.
const (
	MoodHappy   = "happy"
	MoodNeutral = "neutral"
	MoodUnhappy = "unhappy"
	MoodRunaway = "runaway"
)

// Recovery difficulties for runaway creatures.
const (
	DifficultyEasy   = "easy"
	DifficultyNormal = "normal"
	DifficultyHard   = "hard"
)

// CreatureMood tracks the mood of one creature in one user's collection.
// UnhappyCount only grows while the creature stays unhappy; three or
// more consecutive unhappy outcomes make the creature eligible to run away.
type CreatureMood struct {
	UserID             int64      `json:"user_id"`
	CreatureID         int64      `json:"creature_id"`
	MoodStatus         string     `json:"mood_status"`
	UnhappyCount       int        `json:"unhappy_count"`
	LastConversationAt *time.Time `json:"last_conversation_at,omitempty"`
}

// Runaway records a creature that left a user's collection due to
// sustained unhappiness. Difficulty starts from the unhappy count at
// departure and escalates on failed recovery attempts, capped at hard.
type Runaway struct {
	ID                 int64      `json:"id"`
	UserID             int64      `json:"user_id"`
	CreatureID         int64      `json:"creature_id"`
	UnhappyCount       int        `json:"unhappy_count"`
	RecoveryDifficulty string     `json:"recovery_difficulty"`
	Recovered          bool       `json:"is_recovered"`
	RecoveredAt        *time.Time `json:"recovered_at,omitempty"`
}

// RecoveryDifficultyFor maps the unhappy count at departure to an
// initial recovery difficulty.
func RecoveryDifficultyFor(unhappyCount int) string {
	switch {
	case unhappyCount <= 4:
		return DifficultyEasy
	case unhappyCount <= 6:
		return DifficultyNormal
	default:
		return DifficultyHard
	}
}

// EscalateDifficulty moves a difficulty one step harder. Hard is a floor.
func EscalateDifficulty(difficulty string) string {
	switch difficulty {
	case DifficultyEasy:
		return DifficultyNormal
	default:
		return DifficultyHard
	}
}
