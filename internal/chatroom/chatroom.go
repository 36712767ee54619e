package chatroom

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/chatlings/chatlings/internal/generator"
	"github.com/chatlings/chatlings/internal/models"
	"github.com/chatlings/chatlings/internal/rng"
	"github.com/chatlings/chatlings/internal/storage"
)

// InactivityCategory marks topics about the owner's absence; they take
// the generator's punitive branch.
const InactivityCategory = "inactivity"

// Runaway roll parameters for the batch path.
const (
	runawayThreshold = 3
	runawayChance    = 0.10
)

// participantWeights is the distribution over conversation sizes.
var participantWeights = map[int]float64{
	2: 0.40,
	3: 0.30,
	4: 0.20,
	5: 0.10,
}

// Service is the batch conversation path: it scripts a whole
// conversation in one call and applies its mood impact, as opposed to
// the engine's incremental polling path. The two paths deliberately use
// different mood models and are not interchangeable.
type Service struct {
	store  storage.Storage
	gen    *generator.Generator
	rand   rng.Source
	logger *zap.Logger
}

func New(store storage.Storage, gen *generator.Generator, rand rng.Source, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		gen:    gen,
		rand:   rand,
		logger: logger,
	}
}

// RunForUser generates and archives one conversation for the user.
// Returns (nil, nil) when the user has fewer than two eligible
// creatures or no topic is active.
func (s *Service) RunForUser(ctx context.Context, userID int64) (*models.AuditEntry, error) {
	creatures, err := s.store.EligibleCreatures(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading eligible creatures: %w", err)
	}
	if len(creatures) < 2 {
		s.logger.Debug("skipping conversation, not enough creatures",
			zap.Int64("user_id", userID), zap.Int("count", len(creatures)))
		return nil, nil
	}

	participants := s.selectParticipants(creatures)

	topic, err := s.store.ActiveTopic(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading active topic: %w", err)
	}
	if topic == nil {
		s.logger.Debug("skipping conversation, no active topics")
		return nil, nil
	}

	script := s.gen.Generate(participants, topic, topic.CategoryTag == InactivityCategory)

	moodChanges, err := s.applyMoodImpact(ctx, userID, script.MoodImpact)
	if err != nil {
		return nil, err
	}

	entry := &models.AuditEntry{
		UserID:       userID,
		Topic:        topic.Text,
		Participants: participants,
		Messages:     scriptToMessages(script, participants),
		MoodChanges:  moodChanges,
	}
	if err := s.store.AppendAuditLog(ctx, entry); err != nil {
		return nil, fmt.Errorf("appending audit log: %w", err)
	}

	if err := s.checkRunaways(ctx, userID, script.MoodImpact.Unhappy); err != nil {
		return nil, err
	}

	s.logger.Info("generated conversation",
		zap.Int64("user_id", userID),
		zap.Int64("topic_id", topic.ID),
		zap.Int("participants", len(participants)),
		zap.Int("messages", len(script.Messages)))

	return entry, nil
}

// selectParticipants picks a weighted size and shuffles the pool.
func (s *Service) selectParticipants(creatures []models.Participant) []models.Participant {
	count := s.weightedCount()
	if count > len(creatures) {
		count = len(creatures)
	}

	shuffled := append([]models.Participant(nil), creatures...)
	for i := len(shuffled) - 1; i > 0; i-- {
		j := s.rand.Intn(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	return shuffled[:count]
}

func (s *Service) weightedCount() int {
	roll := s.rand.Float64()
	var cumulative float64
	for _, count := range []int{2, 3, 4, 5} {
		cumulative += participantWeights[count]
		if roll < cumulative {
			return count
		}
	}
	return 2
}

// applyMoodImpact writes the batch-path mood rules: happy resets the
// unhappy count to zero, neutral leaves it alone, unhappy increments.
func (s *Service) applyMoodImpact(ctx context.Context, userID int64, impact generator.MoodImpact) (map[int64]models.MoodChange, error) {
	changes := make(map[int64]models.MoodChange)

	set := func(creatureID int64, status string, mutate func(*models.CreatureMood)) error {
		mood, err := s.store.CreatureMood(ctx, userID, creatureID)
		if err != nil {
			return fmt.Errorf("loading mood for creature %d: %w", creatureID, err)
		}
		if mood == nil {
			return nil
		}
		changes[creatureID] = models.MoodChange{Before: mood.MoodStatus, After: status}
		mood.MoodStatus = status
		mutate(mood)
		if err := s.store.SetCreatureMood(ctx, mood); err != nil {
			return fmt.Errorf("updating mood for creature %d: %w", creatureID, err)
		}
		return nil
	}

	for _, id := range impact.Happy {
		if err := set(id, models.MoodHappy, func(m *models.CreatureMood) { m.UnhappyCount = 0 }); err != nil {
			return nil, err
		}
	}
	for _, id := range impact.Neutral {
		if err := set(id, models.MoodNeutral, func(m *models.CreatureMood) {}); err != nil {
			return nil, err
		}
	}
	for _, id := range impact.Unhappy {
		if err := set(id, models.MoodUnhappy, func(m *models.CreatureMood) { m.UnhappyCount++ }); err != nil {
			return nil, err
		}
	}

	return changes, nil
}

// checkRunaways rolls for each unhappy participant that has crossed the
// threshold while still unhappy.
func (s *Service) checkRunaways(ctx context.Context, userID int64, unhappy []int64) error {
	for _, creatureID := range unhappy {
		mood, err := s.store.CreatureMood(ctx, userID, creatureID)
		if err != nil {
			return fmt.Errorf("loading mood for creature %d: %w", creatureID, err)
		}
		if mood == nil {
			continue
		}
		if mood.UnhappyCount < runawayThreshold || mood.MoodStatus != models.MoodUnhappy {
			continue
		}
		if s.rand.Float64() >= runawayChance {
			continue
		}

		difficulty := models.RecoveryDifficultyFor(mood.UnhappyCount)
		if err := s.store.MoveToRunawayPool(ctx, userID, creatureID, mood.UnhappyCount, difficulty); err != nil {
			return fmt.Errorf("moving creature %d to runaway pool: %w", creatureID, err)
		}
		s.logger.Warn("creature ran away",
			zap.Int64("user_id", userID),
			zap.Int64("creature_id", creatureID),
			zap.String("difficulty", difficulty))
	}
	return nil
}

func scriptToMessages(script *generator.Script, participants []models.Participant) []models.Message {
	names := make(map[int64]string, len(participants))
	for _, p := range participants {
		names[p.CreatureID] = p.Name
	}

	messages := make([]models.Message, 0, len(script.Messages))
	for _, m := range script.Messages {
		messages = append(messages, models.Message{
			Turn:       m.Order + 1,
			CreatureID: m.CreatureID,
			Speaker:    names[m.CreatureID],
			Text:       m.Text,
			LineType:   m.Sentiment,
		})
	}
	return messages
}
