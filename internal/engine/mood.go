package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/chatlings/chatlings/internal/models"
	"github.com/chatlings/chatlings/internal/storage"
)

// Sentiment score thresholds for mood transitions. The bounds are
// strict: a score of exactly +2 or -2 changes nothing.
const (
	happyThreshold   = 2.0
	unhappyThreshold = -2.0
)

// recoveryChances maps difficulty to recovery success probability.
var recoveryChances = map[string]float64{
	models.DifficultyEasy:   0.80,
	models.DifficultyNormal: 0.50,
	models.DifficultyHard:   0.20,
}

// endConversation applies mood transitions from the accumulated
// sentiment scores, rolls for runaways, archives the transcript, and
// deletes the live record. Moods are computed before anything is
// written; the audit entry lands before the live record goes away.
func (e *Engine) endConversation(ctx context.Context, conv *models.Conversation) error {
	topicText := "Unknown"
	topic, err := e.store.Topic(ctx, conv.TopicID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("loading topic: %w", err)
	}
	if topic != nil {
		topicText = topic.Text
	}

	moodChanges := make(map[int64]models.MoodChange)
	for _, p := range conv.Participants {
		mood, err := e.store.CreatureMood(ctx, conv.UserID, p.CreatureID)
		if err != nil {
			return fmt.Errorf("loading mood for creature %d: %w", p.CreatureID, err)
		}
		if mood == nil {
			continue
		}

		score := conv.SentimentScores[p.CreatureID]
		newStatus, newCount := applyMoodTransition(mood.MoodStatus, mood.UnhappyCount, score)
		moodChanges[p.CreatureID] = models.MoodChange{
			Before: mood.MoodStatus,
			After:  newStatus,
			Score:  score,
		}

		mood.MoodStatus = newStatus
		mood.UnhappyCount = newCount
		if err := e.store.SetCreatureMood(ctx, mood); err != nil {
			return fmt.Errorf("updating mood for creature %d: %w", p.CreatureID, err)
		}

		if newCount >= e.cfg.RunawayThreshold && e.rand.Float64() < e.cfg.RunawayChance {
			difficulty := models.RecoveryDifficultyFor(newCount)
			if err := e.store.MoveToRunawayPool(ctx, conv.UserID, p.CreatureID, newCount, difficulty); err != nil {
				return fmt.Errorf("moving creature %d to runaway pool: %w", p.CreatureID, err)
			}
			e.logger.Warn("creature ran away",
				zap.Int64("user_id", conv.UserID),
				zap.Int64("creature_id", p.CreatureID),
				zap.Int("unhappy_count", newCount),
				zap.String("difficulty", difficulty))
		}
	}

	entry := &models.AuditEntry{
		UserID:       conv.UserID,
		Topic:        topicText,
		Participants: conv.Participants,
		Messages:     conv.Messages,
		MoodChanges:  moodChanges,
	}
	if err := e.store.AppendAuditLog(ctx, entry); err != nil {
		return fmt.Errorf("appending audit log: %w", err)
	}

	if err := e.store.DeleteConversation(ctx, conv.UserID, conv.ID); err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}

	e.logger.Info("conversation ended",
		zap.Int64("user_id", conv.UserID),
		zap.String("conversation_id", conv.ID),
		zap.Int("turns", conv.CurrentTurn))

	return nil
}

// applyMoodTransition implements the threshold table. unhappyCount
// never goes negative and only grows while the creature stays unhappy.
func applyMoodTransition(status string, unhappyCount int, score float64) (string, int) {
	switch {
	case score > happyThreshold:
		count := unhappyCount - 1
		if count < 0 {
			count = 0
		}
		return models.MoodHappy, count
	case score < unhappyThreshold:
		switch status {
		case models.MoodHappy:
			return models.MoodNeutral, unhappyCount
		case models.MoodNeutral:
			return models.MoodUnhappy, 1
		default:
			return models.MoodUnhappy, unhappyCount + 1
		}
	default:
		return status, unhappyCount
	}
}

// RecoveryResult reports the outcome of a recovery attempt.
type RecoveryResult struct {
	Recovered bool
	// Difficulty after the attempt: unchanged on success, escalated one
	// step (hard floor) on failure.
	Difficulty string
}

// RecoverRunaway attempts to bring a runaway creature back. Success
// restores it to the collection with a neutral mood; failure escalates
// the recovery difficulty. Returns storage.ErrNotInRunawayPool when the
// creature has no unrecovered runaway record. No cooldown is enforced;
// throttling retries is the caller's concern.
func (e *Engine) RecoverRunaway(ctx context.Context, userID, creatureID int64) (*RecoveryResult, error) {
	record, err := e.store.RunawayRecord(ctx, userID, creatureID)
	if err != nil {
		return nil, err
	}

	chance, ok := recoveryChances[record.RecoveryDifficulty]
	if !ok {
		chance = recoveryChances[models.DifficultyNormal]
	}

	if e.rand.Float64() < chance {
		if err := e.store.RestoreFromRunaway(ctx, userID, creatureID); err != nil {
			return nil, fmt.Errorf("restoring creature %d: %w", creatureID, err)
		}
		e.logger.Info("creature recovered",
			zap.Int64("user_id", userID),
			zap.Int64("creature_id", creatureID))
		return &RecoveryResult{Recovered: true, Difficulty: record.RecoveryDifficulty}, nil
	}

	escalated := models.EscalateDifficulty(record.RecoveryDifficulty)
	if escalated != record.RecoveryDifficulty {
		if err := e.store.SetRunawayDifficulty(ctx, record.ID, escalated); err != nil {
			return nil, fmt.Errorf("escalating recovery difficulty: %w", err)
		}
	}
	return &RecoveryResult{Recovered: false, Difficulty: escalated}, nil
}
