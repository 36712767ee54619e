package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chatlings/chatlings/internal/models"
	"github.com/chatlings/chatlings/internal/rng"
	"github.com/chatlings/chatlings/internal/storage"
)

// Config holds the engine tunables. Production values come from
// pkg/config; tests shrink the delays.
type Config struct {
	// BaseStartChance is the per-poll probability of starting a new
	// conversation before the user multiplier is applied. 0.001 with
	// 30-second polling works out to roughly two conversations per day.
	BaseStartChance float64
	// RecentWindow dampens the start chance for users who already had a
	// conversation recently.
	RecentWindow  time.Duration
	RecentDamping float64
	// MinTurnDelay is the minimum wall-clock gap between turns.
	MinTurnDelay time.Duration
	// StaleAfter force-ends a conversation with no activity.
	StaleAfter time.Duration
	// SoftEndTurn is the turn from which lines tagged can-end may close
	// the conversation with SoftEndChance probability.
	SoftEndTurn   int
	SoftEndChance float64
	// MaxTurns force-ends the conversation unconditionally.
	MaxTurns int
	// RandomSpeakerChance is the probability of jumping to a random
	// other participant instead of rotating.
	RandomSpeakerChance float64
	// RunawayThreshold and RunawayChance gate the runaway roll applied
	// after mood updates.
	RunawayThreshold int
	RunawayChance    float64
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		BaseStartChance:     0.001,
		RecentWindow:        6 * time.Hour,
		RecentDamping:       0.1,
		MinTurnDelay:        5 * time.Second,
		StaleAfter:          5 * time.Minute,
		SoftEndTurn:         4,
		SoftEndChance:       0.5,
		MaxTurns:            12,
		RandomSpeakerChance: 0.3,
		RunawayThreshold:    3,
		RunawayChance:       0.1,
	}
}

// participantWeights is the fixed distribution over conversation sizes.
var participantWeights = []struct {
	count  int
	weight float64
}{
	{2, 0.40},
	{3, 0.30},
	{4, 0.20},
	{5, 0.10},
}

// LineTypeStarter opens every conversation.
const LineTypeStarter = "starter"

// Engine is the polled conversation state machine. One instance serves
// all users; per-user locking keeps the one-active-conversation
// invariant under concurrent polls.
type Engine struct {
	store  storage.Storage
	cfg    Config
	rand   rng.Source
	logger *zap.Logger

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func New(store storage.Storage, cfg Config, rand rng.Source, logger *zap.Logger) *Engine {
	return &Engine{
		store:  store,
		cfg:    cfg,
		rand:   rand,
		logger: logger,
		locks:  make(map[int64]*sync.Mutex),
	}
}

func (e *Engine) userLock(userID int64) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[userID] = lock
	}
	return lock
}

// GetNextLine is the sole polled entry point. It returns the next line
// of the user's active conversation, starts a new conversation when the
// likelihood roll passes, or returns (nil, nil) when nothing is due.
func (e *Engine) GetNextLine(ctx context.Context, userID int64) (*models.LineEvent, error) {
	lock := e.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	conv, err := e.store.ActiveConversation(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading active conversation: %w", err)
	}
	if conv != nil {
		return e.continueConversation(ctx, conv)
	}

	start, err := e.checkStartLikelihood(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !start {
		return nil, nil
	}
	return e.startConversation(ctx, userID)
}

// checkStartLikelihood draws one uniform sample against the adjusted
// start chance. Probabilistic, not scheduled.
func (e *Engine) checkStartLikelihood(ctx context.Context, userID int64) (bool, error) {
	multiplier, err := e.store.LikelihoodMultiplier(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("loading likelihood multiplier: %w", err)
	}
	adjusted := e.cfg.BaseStartChance * multiplier

	last, err := e.store.LastConversationAt(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("loading last conversation time: %w", err)
	}
	if last != nil && time.Since(*last) < e.cfg.RecentWindow {
		adjusted *= e.cfg.RecentDamping
	}

	return e.rand.Float64() < adjusted, nil
}

func (e *Engine) startConversation(ctx context.Context, userID int64) (*models.LineEvent, error) {
	eligible, err := e.store.EligibleCreatures(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading eligible creatures: %w", err)
	}
	if len(eligible) < 2 {
		return nil, nil
	}

	count := e.participantCount()
	if count > len(eligible) {
		count = len(eligible)
	}
	participants := e.shuffle(eligible)[:count]

	topic, err := e.store.ActiveTopic(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading active topic: %w", err)
	}
	if topic == nil {
		return nil, nil
	}

	var tags []string
	if topic.CategoryTag != "" {
		tags = []string{topic.CategoryTag}
	}
	starter, err := e.store.SelectChatLine(ctx, LineTypeStarter, tags)
	if err != nil {
		return nil, fmt.Errorf("selecting starter line: %w", err)
	}
	if starter == nil && len(tags) > 0 {
		starter, err = e.store.SelectChatLine(ctx, LineTypeStarter, nil)
		if err != nil {
			return nil, fmt.Errorf("selecting starter line: %w", err)
		}
	}
	if starter == nil {
		return nil, nil
	}

	opener := participants[0]
	text := renderLine(starter.Text, topic.Text)
	conv := &models.Conversation{
		ID:               uuid.New().String(),
		UserID:           userID,
		TopicID:          topic.ID,
		Participants:     participants,
		CurrentTurn:      1,
		LastSpeakerIndex: 0,
		LastLineType:     starter.LineType,
		SentimentScores:  make(map[int64]float64),
		Messages: []models.Message{{
			Turn:       1,
			CreatureID: opener.CreatureID,
			Speaker:    opener.Name,
			Text:       text,
			LineType:   starter.LineType,
		}},
		LastActivity: time.Now(),
	}

	if err := e.store.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}

	e.logger.Info("conversation started",
		zap.Int64("user_id", userID),
		zap.String("conversation_id", conv.ID),
		zap.Int64("topic_id", topic.ID),
		zap.Int("participants", len(participants)))

	return &models.LineEvent{
		Speaker:    opener.Name,
		CreatureID: opener.CreatureID,
		Text:       text,
		Turn:       1,
		Topic:      topic.Text,
		Continues:  true,
	}, nil
}

func (e *Engine) continueConversation(ctx context.Context, conv *models.Conversation) (*models.LineEvent, error) {
	now := time.Now()

	end, err := e.shouldEnd(ctx, conv, now)
	if err != nil {
		return nil, err
	}
	if end {
		if err := e.endConversation(ctx, conv); err != nil {
			return nil, err
		}
		return &models.LineEvent{Continues: false, ConversationEnded: true}, nil
	}

	// Too soon since the last turn; caller polls again later.
	if now.Sub(conv.LastActivity) < e.cfg.MinTurnDelay {
		return nil, nil
	}

	speakerIndex := e.nextSpeakerIndex(conv)
	speaker := conv.Participants[speakerIndex]
	turn := conv.CurrentTurn + 1

	line, err := e.selectNextLine(ctx, conv.LastLineType, turn)
	if err != nil {
		return nil, err
	}
	if line == nil {
		// Flow dead end: nothing may legally follow, so wrap up.
		if err := e.endConversation(ctx, conv); err != nil {
			return nil, err
		}
		return &models.LineEvent{Continues: false, ConversationEnded: true}, nil
	}

	text := line.Text
	if strings.Contains(text, "{topic}") {
		topic, err := e.store.Topic(ctx, conv.TopicID)
		if err != nil {
			// Data-integrity fault; leave the conversation untouched.
			return nil, fmt.Errorf("loading topic %d: %w", conv.TopicID, err)
		}
		text = renderLine(text, topic.Text)
	}

	conv.Messages = append(conv.Messages, models.Message{
		Turn:       turn,
		CreatureID: speaker.CreatureID,
		Speaker:    speaker.Name,
		Text:       text,
		LineType:   line.LineType,
	})
	conv.SentimentScores[speaker.CreatureID] += sentimentDelta(line.Sentiment, line.Intensity)
	conv.CurrentTurn = turn
	conv.LastSpeakerIndex = speakerIndex
	conv.LastLineType = line.LineType
	conv.LastActivity = now

	if err := e.store.UpdateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("updating conversation: %w", err)
	}

	return &models.LineEvent{
		Speaker:    speaker.Name,
		CreatureID: speaker.CreatureID,
		Text:       text,
		Turn:       turn,
		Continues:  true,
	}, nil
}

// nextSpeakerIndex rotates through participants, occasionally jumping
// to a random other participant. The previous speaker never repeats.
func (e *Engine) nextSpeakerIndex(conv *models.Conversation) int {
	next := (conv.LastSpeakerIndex + 1) % len(conv.Participants)
	if e.rand.Float64() < e.cfg.RandomSpeakerChance {
		others := make([]int, 0, len(conv.Participants)-1)
		for i := range conv.Participants {
			if i != conv.LastSpeakerIndex {
				others = append(others, i)
			}
		}
		next = others[e.rand.Intn(len(others))]
	}
	return next
}

// selectNextLine applies the flow rules for the coming turn and picks a
// weighted-random next line type, then a uniform line of that type.
// Returns (nil, nil) when the flow graph offers no continuation.
func (e *Engine) selectNextLine(ctx context.Context, fromLineType string, turn int) (*models.ChatLine, error) {
	options, err := e.store.FlowOptions(ctx, fromLineType, turn)
	if err != nil {
		return nil, fmt.Errorf("loading flow options: %w", err)
	}
	if len(options) == 0 {
		return nil, nil
	}

	weights := make([]float64, len(options))
	for i, opt := range options {
		weights[i] = opt.Weight
	}
	toType := options[rng.WeightedIndex(e.rand, weights)].ToLineType

	line, err := e.store.SelectChatLine(ctx, toType, nil)
	if err != nil {
		return nil, fmt.Errorf("selecting chat line: %w", err)
	}
	return line, nil
}

// shouldEnd evaluates the end conditions in order; the first match wins.
func (e *Engine) shouldEnd(ctx context.Context, conv *models.Conversation, now time.Time) (bool, error) {
	if conv.CurrentTurn >= e.cfg.SoftEndTurn {
		canEnd, err := e.store.LineTypeCanEnd(ctx, conv.LastLineType)
		if err != nil {
			return false, fmt.Errorf("checking line type: %w", err)
		}
		if canEnd && e.rand.Float64() < e.cfg.SoftEndChance {
			return true, nil
		}
	}

	if conv.CurrentTurn >= e.cfg.MaxTurns {
		return true, nil
	}

	if now.Sub(conv.LastActivity) > e.cfg.StaleAfter {
		return true, nil
	}

	return false, nil
}

func (e *Engine) participantCount() int {
	roll := e.rand.Float64()
	var cumulative float64
	for _, pw := range participantWeights {
		cumulative += pw.weight
		if roll < cumulative {
			return pw.count
		}
	}
	return participantWeights[0].count
}

// shuffle returns a Fisher-Yates-shuffled copy.
func (e *Engine) shuffle(participants []models.Participant) []models.Participant {
	shuffled := append([]models.Participant(nil), participants...)
	for i := len(shuffled) - 1; i > 0; i-- {
		j := e.rand.Intn(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	return shuffled
}

func sentimentDelta(sentiment string, intensity float64) float64 {
	switch sentiment {
	case models.SentimentPositive:
		return intensity
	case models.SentimentNegative:
		return -intensity
	default:
		return 0
	}
}

func renderLine(text, topicText string) string {
	return strings.ReplaceAll(text, "{topic}", topicText)
}
