package storage

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/chatlings/chatlings/internal/models"
)

type flowRule struct {
	fromType string
	toType   string
	weight   float64
	minTurn  int
	maxTurn  int
}

// MemoryStorage is an in-memory Storage used for tests and for running
// without a database. Data is lost on restart.
type MemoryStorage struct {
	mu            sync.RWMutex
	conversations map[int64]*models.Conversation // userID -> active conversation
	topics        []*models.Topic
	lines         []*models.ChatLine
	flows         []flowRule
	collections   map[int64][]int64 // userID -> owned creature IDs, insertion order
	moods         map[string]*models.CreatureMood
	names         map[int64]string // creatureID -> name
	multipliers   map[int64]float64
	runaways      []*models.Runaway
	audit         map[int64][]*models.AuditEntry
	nextRunawayID int64
	nextAuditID   int64
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		conversations: make(map[int64]*models.Conversation),
		collections:   make(map[int64][]int64),
		moods:         make(map[string]*models.CreatureMood),
		names:         make(map[int64]string),
		multipliers:   make(map[int64]float64),
		audit:         make(map[int64][]*models.AuditEntry),
	}
}

func moodKey(userID, creatureID int64) string {
	return fmt.Sprintf("%d:%d", userID, creatureID)
}

// ─── Seed helpers (tests and local runs) ───

func (s *MemoryStorage) AddTopic(topic *models.Topic) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics = append(s.topics, topic)
}

func (s *MemoryStorage) AddChatLine(line *models.ChatLine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, line)
}

func (s *MemoryStorage) AddFlowRule(fromType, toType string, weight float64, minTurn, maxTurn int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flows = append(s.flows, flowRule{fromType, toType, weight, minTurn, maxTurn})
}

func (s *MemoryStorage) AddCreature(userID, creatureID int64, name, moodStatus string, unhappyCount int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[userID] = append(s.collections[userID], creatureID)
	s.names[creatureID] = name
	s.moods[moodKey(userID, creatureID)] = &models.CreatureMood{
		UserID:       userID,
		CreatureID:   creatureID,
		MoodStatus:   moodStatus,
		UnhappyCount: unhappyCount,
	}
}

func (s *MemoryStorage) SetLikelihoodMultiplier(userID int64, multiplier float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.multipliers[userID] = multiplier
}

// ─── ConversationStore ───

func (s *MemoryStorage) ActiveConversation(ctx context.Context, userID int64) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[userID]
	if !ok {
		return nil, nil
	}
	return cloneConversation(conv), nil
}

func (s *MemoryStorage) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[conv.UserID] = cloneConversation(conv)
	return nil
}

func (s *MemoryStorage) UpdateConversation(ctx context.Context, conv *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.conversations[conv.UserID]
	if !ok || existing.ID != conv.ID {
		return ErrNotFound
	}
	s.conversations[conv.UserID] = cloneConversation(conv)
	return nil
}

func (s *MemoryStorage) DeleteConversation(ctx context.Context, userID int64, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv, ok := s.conversations[userID]; ok && conv.ID == id {
		delete(s.conversations, userID)
	}
	return nil
}

// ─── ReferenceStore ───

func (s *MemoryStorage) ActiveTopic(ctx context.Context) (*models.Topic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var active []*models.Topic
	for _, t := range s.topics {
		if t.IsActive {
			active = append(active, t)
		}
	}
	if len(active) == 0 {
		return nil, nil
	}
	t := *active[rand.Intn(len(active))]
	return &t, nil
}

func (s *MemoryStorage) Topic(ctx context.Context, id int64) (*models.Topic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.topics {
		if t.ID == id {
			copy := *t
			return &copy, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) SelectChatLine(ctx context.Context, lineType string, topicTags []string) (*models.ChatLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matches []*models.ChatLine
	for _, l := range s.lines {
		if l.LineType != lineType {
			continue
		}
		if len(topicTags) > 0 && len(l.TopicTags) > 0 && !tagsOverlap(l.TopicTags, topicTags) {
			continue
		}
		matches = append(matches, l)
	}
	if len(matches) == 0 {
		return nil, nil
	}
	line := *matches[rand.Intn(len(matches))]
	return &line, nil
}

func (s *MemoryStorage) FlowOptions(ctx context.Context, fromLineType string, turn int) ([]models.FlowOption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var options []models.FlowOption
	for _, f := range s.flows {
		if f.fromType == fromLineType && f.minTurn <= turn && f.maxTurn >= turn {
			options = append(options, models.FlowOption{ToLineType: f.toType, Weight: f.weight})
		}
	}
	return options, nil
}

func (s *MemoryStorage) LineTypeCanEnd(ctx context.Context, lineType string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, l := range s.lines {
		if l.LineType == lineType {
			return l.CanEndConversation, nil
		}
	}
	return false, nil
}

// ─── CollectionStore ───

func (s *MemoryStorage) EligibleCreatures(ctx context.Context, userID int64) ([]models.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var eligible []models.Participant
	for _, creatureID := range s.collections[userID] {
		mood := s.moods[moodKey(userID, creatureID)]
		if mood == nil || mood.MoodStatus == models.MoodRunaway {
			continue
		}
		eligible = append(eligible, models.Participant{
			CreatureID: creatureID,
			Name:       s.names[creatureID],
		})
	}
	return eligible, nil
}

func (s *MemoryStorage) LikelihoodMultiplier(ctx context.Context, userID int64) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.multipliers[userID]; ok {
		return m, nil
	}
	return 1.0, nil
}

func (s *MemoryStorage) LastConversationAt(ctx context.Context, userID int64) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.audit[userID]
	if len(entries) == 0 {
		return nil, nil
	}
	latest := entries[len(entries)-1].CreatedAt
	return &latest, nil
}

func (s *MemoryStorage) CreatureMood(ctx context.Context, userID, creatureID int64) (*models.CreatureMood, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mood, ok := s.moods[moodKey(userID, creatureID)]
	if !ok {
		return nil, nil
	}
	copy := *mood
	return &copy, nil
}

func (s *MemoryStorage) SetCreatureMood(ctx context.Context, mood *models.CreatureMood) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy := *mood
	s.moods[moodKey(mood.UserID, mood.CreatureID)] = &copy
	return nil
}

func (s *MemoryStorage) MoveToRunawayPool(ctx context.Context, userID, creatureID int64, unhappyCount int, difficulty string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	owned := s.collections[userID]
	for i, id := range owned {
		if id == creatureID {
			s.collections[userID] = append(owned[:i], owned[i+1:]...)
			break
		}
	}
	delete(s.moods, moodKey(userID, creatureID))
	s.nextRunawayID++
	s.runaways = append(s.runaways, &models.Runaway{
		ID:                 s.nextRunawayID,
		UserID:             userID,
		CreatureID:         creatureID,
		UnhappyCount:       unhappyCount,
		RecoveryDifficulty: difficulty,
	})
	return nil
}

func (s *MemoryStorage) RunawayRecord(ctx context.Context, userID, creatureID int64) (*models.Runaway, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.runaways {
		if r.UserID == userID && r.CreatureID == creatureID && !r.Recovered {
			copy := *r
			return &copy, nil
		}
	}
	return nil, ErrNotInRunawayPool
}

func (s *MemoryStorage) SetRunawayDifficulty(ctx context.Context, runawayID int64, difficulty string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.runaways {
		if r.ID == runawayID {
			r.RecoveryDifficulty = difficulty
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStorage) RestoreFromRunaway(ctx context.Context, userID, creatureID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.runaways {
		if r.UserID == userID && r.CreatureID == creatureID && !r.Recovered {
			now := time.Now()
			r.Recovered = true
			r.RecoveredAt = &now
			s.collections[userID] = append(s.collections[userID], creatureID)
			s.moods[moodKey(userID, creatureID)] = &models.CreatureMood{
				UserID:     userID,
				CreatureID: creatureID,
				MoodStatus: models.MoodNeutral,
			}
			return nil
		}
	}
	return ErrNotInRunawayPool
}

func (s *MemoryStorage) UsersWithCreatures(ctx context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]int64, 0, len(s.collections))
	for userID, owned := range s.collections {
		if len(owned) > 0 {
			users = append(users, userID)
		}
	}
	return users, nil
}

// ─── AuditStore ───

func (s *MemoryStorage) AppendAuditLog(ctx context.Context, entry *models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextAuditID++
	copy := *entry
	copy.ID = s.nextAuditID
	if copy.CreatedAt.IsZero() {
		copy.CreatedAt = time.Now()
	}
	copy.Participants = append([]models.Participant(nil), entry.Participants...)
	copy.Messages = append([]models.Message(nil), entry.Messages...)
	s.audit[entry.UserID] = append(s.audit[entry.UserID], &copy)
	return nil
}

func (s *MemoryStorage) AuditLog(ctx context.Context, userID int64, limit int) ([]*models.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.audit[userID]
	result := make([]*models.AuditEntry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		if limit > 0 && len(result) >= limit {
			break
		}
		copy := *entries[i]
		result = append(result, &copy)
	}
	return result, nil
}

func (s *MemoryStorage) Close() error {
	return nil
}

func tagsOverlap(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

func cloneConversation(conv *models.Conversation) *models.Conversation {
	clone := *conv
	clone.Participants = append([]models.Participant(nil), conv.Participants...)
	clone.Messages = append([]models.Message(nil), conv.Messages...)
	clone.SentimentScores = make(map[int64]float64, len(conv.SentimentScores))
	for k, v := range conv.SentimentScores {
		clone.SentimentScores[k] = v
	}
	return &clone
}

var _ Storage = (*MemoryStorage)(nil)
