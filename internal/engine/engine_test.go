package engine

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/chatlings/chatlings/internal/models"
	"github.com/chatlings/chatlings/internal/storage"
)

// constSource returns fixed values, making every probabilistic branch
// deterministic.
type constSource struct {
	f float64
	n int
}

func (s constSource) Float64() float64 { return s.f }
func (s constSource) Intn(n int) int   { return s.n % n }

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.BaseStartChance = 1.0
	cfg.MinTurnDelay = 0
	cfg.StaleAfter = time.Hour
	return cfg
}

// seedStore builds a store with two neutral creatures, one topic and a
// flow graph that never reaches a can-end line, so conversations only
// stop at the forced turn limit.
func seedStore() *storage.MemoryStorage {
	store := storage.NewMemoryStorage()
	store.AddCreature(1, 101, "Pip", models.MoodNeutral, 0)
	store.AddCreature(1, 102, "Momo", models.MoodNeutral, 0)
	store.AddTopic(&models.Topic{ID: 1, Text: "the weather", CategoryTag: "casual", IsActive: true})
	store.AddChatLine(&models.ChatLine{ID: 1, LineType: "starter", Text: "Anyone hear about {topic}?", Sentiment: models.SentimentNeutral})
	store.AddChatLine(&models.ChatLine{ID: 2, LineType: "chat", Text: "I have thoughts.", Sentiment: models.SentimentNeutral})
	store.AddFlowRule("starter", "chat", 1.0, 1, 100)
	store.AddFlowRule("chat", "chat", 1.0, 1, 100)
	return store
}

func newTestEngine(store storage.Storage, cfg Config) *Engine {
	return New(store, cfg, constSource{f: 0.0}, zap.NewNop())
}

func TestStartConversation(t *testing.T) {
	store := seedStore()
	eng := newTestEngine(store, testConfig())

	line, err := eng.GetNextLine(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetNextLine: %v", err)
	}
	if line == nil {
		t.Fatal("expected a starter line, got nil")
	}
	if line.Turn != 1 {
		t.Errorf("turn = %d, want 1", line.Turn)
	}
	if !line.Continues {
		t.Error("starter line should continue the conversation")
	}
	if line.Text != "Anyone hear about the weather?" {
		t.Errorf("topic not interpolated: %q", line.Text)
	}

	conv, err := store.ActiveConversation(context.Background(), 1)
	if err != nil || conv == nil {
		t.Fatalf("active conversation missing after start: %v", err)
	}
	if conv.CurrentTurn != 1 || len(conv.Messages) != 1 {
		t.Errorf("turn=%d messages=%d, want 1/1", conv.CurrentTurn, len(conv.Messages))
	}
	if conv.Messages[0].Speaker != line.Speaker {
		t.Errorf("opener %q does not match event speaker %q", conv.Messages[0].Speaker, line.Speaker)
	}
}

func TestNoStartWithSingleCreature(t *testing.T) {
	store := storage.NewMemoryStorage()
	store.AddCreature(1, 101, "Pip", models.MoodNeutral, 0)
	store.AddTopic(&models.Topic{ID: 1, Text: "lunch", IsActive: true})
	store.AddChatLine(&models.ChatLine{ID: 1, LineType: "starter", Text: "hi"})
	eng := newTestEngine(store, testConfig())

	line, err := eng.GetNextLine(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetNextLine: %v", err)
	}
	if line != nil {
		t.Error("conversation started with fewer than two creatures")
	}
}

func TestNoStartWithoutActiveTopic(t *testing.T) {
	store := storage.NewMemoryStorage()
	store.AddCreature(1, 101, "Pip", models.MoodNeutral, 0)
	store.AddCreature(1, 102, "Momo", models.MoodNeutral, 0)
	store.AddTopic(&models.Topic{ID: 2, Text: "old news", IsActive: false})
	store.AddChatLine(&models.ChatLine{ID: 1, LineType: "starter", Text: "hi"})
	eng := newTestEngine(store, testConfig())

	line, err := eng.GetNextLine(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetNextLine: %v", err)
	}
	if line != nil {
		t.Error("conversation started without an active topic")
	}
}

func TestStarterTagFallback(t *testing.T) {
	store := storage.NewMemoryStorage()
	store.AddCreature(1, 101, "Pip", models.MoodNeutral, 0)
	store.AddCreature(1, 102, "Momo", models.MoodNeutral, 0)
	store.AddTopic(&models.Topic{ID: 1, Text: "playoffs", CategoryTag: "sports", IsActive: true})
	// Only starter is tagged for a different category; the untagged
	// retry should still find it.
	store.AddChatLine(&models.ChatLine{ID: 1, LineType: "starter", Text: "So, {topic}...", TopicTags: []string{"food"}})
	eng := newTestEngine(store, testConfig())

	line, err := eng.GetNextLine(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetNextLine: %v", err)
	}
	if line == nil {
		t.Fatal("expected fallback starter, got nil")
	}
}

func TestRecentConversationDampsStartChance(t *testing.T) {
	store := seedStore()
	store.AppendAuditLog(context.Background(), &models.AuditEntry{UserID: 1, Topic: "old"})

	cfg := testConfig()
	// Damped chance is 1.0 * 0.1; a 0.5 roll must not start.
	eng := New(store, cfg, constSource{f: 0.5}, zap.NewNop())

	line, err := eng.GetNextLine(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetNextLine: %v", err)
	}
	if line != nil {
		t.Error("start chance was not damped after a recent conversation")
	}
}

func TestMessagesTrackTurnAndSpeakersNeverRepeat(t *testing.T) {
	store := seedStore()
	cfg := testConfig()
	eng := newTestEngine(store, cfg)
	ctx := context.Background()

	ended := false
	for i := 0; i < cfg.MaxTurns+5; i++ {
		line, err := eng.GetNextLine(ctx, 1)
		if err != nil {
			t.Fatalf("GetNextLine: %v", err)
		}
		if line == nil {
			t.Fatal("unexpected idle poll mid-conversation")
		}
		if line.ConversationEnded {
			ended = true
			break
		}

		conv, err := store.ActiveConversation(ctx, 1)
		if err != nil || conv == nil {
			t.Fatalf("active conversation missing: %v", err)
		}
		if len(conv.Messages) != conv.CurrentTurn {
			t.Fatalf("turn %d has %d messages", conv.CurrentTurn, len(conv.Messages))
		}
		for j := 1; j < len(conv.Messages); j++ {
			if conv.Messages[j].Speaker == conv.Messages[j-1].Speaker {
				t.Fatalf("speaker %q repeated at turn %d", conv.Messages[j].Speaker, j+1)
			}
		}
	}
	if !ended {
		t.Fatal("conversation never ended")
	}
}

func TestForcedEndAtMaxTurns(t *testing.T) {
	store := seedStore()
	cfg := testConfig()
	eng := newTestEngine(store, cfg)
	ctx := context.Background()

	lastTurn := 0
	for i := 0; i < cfg.MaxTurns+5; i++ {
		line, err := eng.GetNextLine(ctx, 1)
		if err != nil {
			t.Fatalf("GetNextLine: %v", err)
		}
		if line.ConversationEnded {
			break
		}
		lastTurn = line.Turn
	}
	// None of the seeded line types can end a conversation, so only the
	// hard turn limit applies.
	if lastTurn != cfg.MaxTurns {
		t.Errorf("conversation ended after turn %d, want %d", lastTurn, cfg.MaxTurns)
	}
}

func TestMinTurnDelayRateLimits(t *testing.T) {
	store := seedStore()
	cfg := testConfig()
	cfg.MinTurnDelay = time.Hour
	eng := newTestEngine(store, cfg)
	ctx := context.Background()

	if _, err := eng.GetNextLine(ctx, 1); err != nil {
		t.Fatalf("start: %v", err)
	}
	line, err := eng.GetNextLine(ctx, 1)
	if err != nil {
		t.Fatalf("GetNextLine: %v", err)
	}
	if line != nil {
		t.Error("expected nil during the turn delay window")
	}

	conv, _ := store.ActiveConversation(ctx, 1)
	if conv.CurrentTurn != 1 {
		t.Errorf("rate-limited poll advanced the conversation to turn %d", conv.CurrentTurn)
	}
}

func TestStaleConversationEnds(t *testing.T) {
	store := seedStore()
	cfg := testConfig()
	cfg.StaleAfter = 5 * time.Minute
	eng := newTestEngine(store, cfg)
	ctx := context.Background()

	if _, err := eng.GetNextLine(ctx, 1); err != nil {
		t.Fatalf("start: %v", err)
	}
	conv, _ := store.ActiveConversation(ctx, 1)
	conv.LastActivity = time.Now().Add(-10 * time.Minute)
	if err := store.UpdateConversation(ctx, conv); err != nil {
		t.Fatalf("backdating: %v", err)
	}

	line, err := eng.GetNextLine(ctx, 1)
	if err != nil {
		t.Fatalf("GetNextLine: %v", err)
	}
	if line == nil || !line.ConversationEnded {
		t.Fatal("stale conversation did not end")
	}
}

func TestFlowDeadEndEnds(t *testing.T) {
	store := storage.NewMemoryStorage()
	store.AddCreature(1, 101, "Pip", models.MoodNeutral, 0)
	store.AddCreature(1, 102, "Momo", models.MoodNeutral, 0)
	store.AddTopic(&models.Topic{ID: 1, Text: "snacks", IsActive: true})
	store.AddChatLine(&models.ChatLine{ID: 1, LineType: "starter", Text: "hey"})
	// No flow rules at all: nothing may follow the starter.
	eng := newTestEngine(store, testConfig())
	ctx := context.Background()

	if _, err := eng.GetNextLine(ctx, 1); err != nil {
		t.Fatalf("start: %v", err)
	}
	line, err := eng.GetNextLine(ctx, 1)
	if err != nil {
		t.Fatalf("GetNextLine: %v", err)
	}
	if line == nil || !line.ConversationEnded {
		t.Fatal("dead-end flow did not end the conversation")
	}
}

func TestSoftEndRequiresCanEndLine(t *testing.T) {
	store := storage.NewMemoryStorage()
	store.AddCreature(1, 101, "Pip", models.MoodNeutral, 0)
	store.AddCreature(1, 102, "Momo", models.MoodNeutral, 0)
	store.AddTopic(&models.Topic{ID: 1, Text: "the news", IsActive: true})
	store.AddChatLine(&models.ChatLine{ID: 1, LineType: "starter", Text: "heard about {topic}?"})
	store.AddChatLine(&models.ChatLine{ID: 3, LineType: "closing", Text: "bye", CanEndConversation: true})
	store.AddFlowRule("starter", "closing", 1.0, 1, 100)
	store.AddFlowRule("closing", "closing", 1.0, 1, 100)

	cfg := testConfig()
	cfg.SoftEndChance = 1.0
	eng := newTestEngine(store, cfg)
	ctx := context.Background()

	endedAt := 0
	for i := 0; i < cfg.MaxTurns+5; i++ {
		line, err := eng.GetNextLine(ctx, 1)
		if err != nil {
			t.Fatalf("GetNextLine: %v", err)
		}
		if line.ConversationEnded {
			break
		}
		endedAt = line.Turn
	}
	if endedAt >= cfg.MaxTurns {
		t.Errorf("soft end never fired, conversation ran to turn %d", endedAt)
	}
	if endedAt < cfg.SoftEndTurn {
		t.Errorf("conversation ended at turn %d, before the soft-end threshold", endedAt)
	}
}

func TestEndedConversationRoundTrip(t *testing.T) {
	store := seedStore()
	cfg := testConfig()
	eng := newTestEngine(store, cfg)
	ctx := context.Background()

	var lastLive []models.Message
	for i := 0; i < cfg.MaxTurns+5; i++ {
		line, err := eng.GetNextLine(ctx, 1)
		if err != nil {
			t.Fatalf("GetNextLine: %v", err)
		}
		if line.ConversationEnded {
			break
		}
		conv, _ := store.ActiveConversation(ctx, 1)
		lastLive = conv.Messages
	}

	conv, err := store.ActiveConversation(ctx, 1)
	if err != nil {
		t.Fatalf("ActiveConversation: %v", err)
	}
	if conv != nil {
		t.Error("active conversation still present after end")
	}

	entries, err := store.AuditLog(ctx, 1, 1)
	if err != nil || len(entries) != 1 {
		t.Fatalf("audit log entries = %d, err = %v", len(entries), err)
	}
	archived := entries[0].Messages
	if len(archived) != len(lastLive) {
		t.Fatalf("archived %d messages, live had %d", len(archived), len(lastLive))
	}
	for i := range archived {
		if archived[i] != lastLive[i] {
			t.Errorf("message %d differs: %+v vs %+v", i, archived[i], lastLive[i])
		}
	}
}

func TestMoodTransitionTable(t *testing.T) {
	tests := []struct {
		name       string
		status     string
		count      int
		score      float64
		wantStatus string
		wantCount  int
	}{
		{"big positive makes happy", models.MoodNeutral, 2, 3.0, models.MoodHappy, 1},
		{"happy outcome floors count at zero", models.MoodHappy, 0, 5.0, models.MoodHappy, 0},
		{"exactly plus two is no change", models.MoodNeutral, 1, 2.0, models.MoodNeutral, 1},
		{"exactly minus two is no change", models.MoodNeutral, 1, -2.0, models.MoodNeutral, 1},
		{"negative drops happy to neutral", models.MoodHappy, 0, -3.0, models.MoodNeutral, 0},
		{"negative drops neutral to unhappy", models.MoodNeutral, 0, -2.5, models.MoodUnhappy, 1},
		{"negative increments unhappy count", models.MoodUnhappy, 2, -4.0, models.MoodUnhappy, 3},
		{"mid-range score is inert", models.MoodUnhappy, 2, 1.5, models.MoodUnhappy, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, count := applyMoodTransition(tt.status, tt.count, tt.score)
			if status != tt.wantStatus || count != tt.wantCount {
				t.Errorf("got (%s, %d), want (%s, %d)", status, count, tt.wantStatus, tt.wantCount)
			}
		})
	}
}

func TestRunawayRequiresThreshold(t *testing.T) {
	ctx := context.Background()

	endWithScore := func(t *testing.T, unhappyCount int, score float64) *storage.MemoryStorage {
		t.Helper()
		store := storage.NewMemoryStorage()
		store.AddCreature(1, 101, "Pip", models.MoodUnhappy, unhappyCount)
		store.AddCreature(1, 102, "Momo", models.MoodNeutral, 0)
		store.AddTopic(&models.Topic{ID: 1, Text: "rain", IsActive: true})

		cfg := testConfig()
		cfg.RunawayChance = 1.0
		eng := newTestEngine(store, cfg)

		conv := &models.Conversation{
			ID:     "c1",
			UserID: 1,
			Participants: []models.Participant{
				{CreatureID: 101, Name: "Pip"},
				{CreatureID: 102, Name: "Momo"},
			},
			TopicID:         1,
			CurrentTurn:     5,
			SentimentScores: map[int64]float64{101: score},
			Messages:        []models.Message{{Turn: 1, CreatureID: 101, Speaker: "Pip", Text: "ugh"}},
		}
		if err := store.CreateConversation(ctx, conv); err != nil {
			t.Fatalf("seeding conversation: %v", err)
		}
		if err := eng.endConversation(ctx, conv); err != nil {
			t.Fatalf("endConversation: %v", err)
		}
		return store
	}

	t.Run("count at threshold runs away", func(t *testing.T) {
		store := endWithScore(t, 2, -3.0) // becomes 3
		record, err := store.RunawayRecord(ctx, 1, 101)
		if err != nil {
			t.Fatalf("expected runaway record: %v", err)
		}
		if record.RecoveryDifficulty != models.DifficultyEasy {
			t.Errorf("difficulty = %q, want easy for count 3", record.RecoveryDifficulty)
		}
	})

	t.Run("count below threshold stays home", func(t *testing.T) {
		store := endWithScore(t, 1, -3.0) // becomes 2
		if _, err := store.RunawayRecord(ctx, 1, 101); err != storage.ErrNotInRunawayPool {
			t.Errorf("expected no runaway record, got err=%v", err)
		}
	})
}

func TestRecoverRunaway(t *testing.T) {
	ctx := context.Background()

	seed := func(difficulty string) *storage.MemoryStorage {
		store := storage.NewMemoryStorage()
		store.AddCreature(1, 101, "Pip", models.MoodUnhappy, 5)
		store.MoveToRunawayPool(ctx, 1, 101, 5, difficulty)
		return store
	}

	t.Run("success restores with neutral mood", func(t *testing.T) {
		store := seed(models.DifficultyEasy)
		eng := New(store, testConfig(), constSource{f: 0.0}, zap.NewNop())

		result, err := eng.RecoverRunaway(ctx, 1, 101)
		if err != nil {
			t.Fatalf("RecoverRunaway: %v", err)
		}
		if !result.Recovered {
			t.Fatal("expected recovery to succeed")
		}
		mood, _ := store.CreatureMood(ctx, 1, 101)
		if mood == nil || mood.MoodStatus != models.MoodNeutral {
			t.Errorf("restored mood = %+v, want neutral", mood)
		}
	})

	t.Run("failure escalates difficulty", func(t *testing.T) {
		store := seed(models.DifficultyEasy)
		eng := New(store, testConfig(), constSource{f: 0.99}, zap.NewNop())

		result, err := eng.RecoverRunaway(ctx, 1, 101)
		if err != nil {
			t.Fatalf("RecoverRunaway: %v", err)
		}
		if result.Recovered {
			t.Fatal("expected recovery to fail")
		}
		if result.Difficulty != models.DifficultyNormal {
			t.Errorf("difficulty = %q, want normal", result.Difficulty)
		}
		record, _ := store.RunawayRecord(ctx, 1, 101)
		if record.RecoveryDifficulty != models.DifficultyNormal {
			t.Errorf("stored difficulty = %q, want normal", record.RecoveryDifficulty)
		}
	})

	t.Run("hard is the escalation floor", func(t *testing.T) {
		store := seed(models.DifficultyHard)
		eng := New(store, testConfig(), constSource{f: 0.99}, zap.NewNop())

		result, err := eng.RecoverRunaway(ctx, 1, 101)
		if err != nil {
			t.Fatalf("RecoverRunaway: %v", err)
		}
		if result.Difficulty != models.DifficultyHard {
			t.Errorf("difficulty = %q, want hard", result.Difficulty)
		}
	})

	t.Run("not in pool is a reported error", func(t *testing.T) {
		store := storage.NewMemoryStorage()
		store.AddCreature(1, 101, "Pip", models.MoodNeutral, 0)
		eng := New(store, testConfig(), constSource{f: 0.0}, zap.NewNop())

		if _, err := eng.RecoverRunaway(ctx, 1, 101); err != storage.ErrNotInRunawayPool {
			t.Errorf("err = %v, want ErrNotInRunawayPool", err)
		}
	})
}

func TestParticipantCountDistribution(t *testing.T) {
	cfg := testConfig()
	tests := []struct {
		roll float64
		want int
	}{
		{0.0, 2},
		{0.39, 2},
		{0.40, 3},
		{0.69, 3},
		{0.70, 4},
		{0.89, 4},
		{0.90, 5},
		{0.999, 5},
	}
	for _, tt := range tests {
		eng := New(storage.NewMemoryStorage(), cfg, constSource{f: tt.roll}, zap.NewNop())
		if got := eng.participantCount(); got != tt.want {
			t.Errorf("roll %.3f: count = %d, want %d", tt.roll, got, tt.want)
		}
	}
}

func TestSentimentAccumulates(t *testing.T) {
	store := storage.NewMemoryStorage()
	store.AddCreature(1, 101, "Pip", models.MoodNeutral, 0)
	store.AddCreature(1, 102, "Momo", models.MoodNeutral, 0)
	store.AddTopic(&models.Topic{ID: 1, Text: "dessert", IsActive: true})
	store.AddChatLine(&models.ChatLine{ID: 1, LineType: "starter", Text: "cake?"})
	store.AddChatLine(&models.ChatLine{ID: 2, LineType: "cheer", Text: "yes!", Sentiment: models.SentimentPositive, Intensity: 1.5})
	store.AddFlowRule("starter", "cheer", 1.0, 1, 100)

	eng := newTestEngine(store, testConfig())
	ctx := context.Background()

	if _, err := eng.GetNextLine(ctx, 1); err != nil {
		t.Fatalf("start: %v", err)
	}
	line, err := eng.GetNextLine(ctx, 1)
	if err != nil {
		t.Fatalf("continue: %v", err)
	}

	conv, _ := store.ActiveConversation(ctx, 1)
	if got := conv.SentimentScores[line.CreatureID]; got != 1.5 {
		t.Errorf("sentiment score = %v, want 1.5", got)
	}
}
