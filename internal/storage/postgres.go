package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/chatlings/chatlings/internal/models"
)

//go:embed schema.sql
var schema embed.FS

type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	UseInMemory bool
}

// PostgresStorage implements Storage on PostgreSQL.
type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresStorage(config DatabaseConfig, logger *zap.Logger) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &PostgresStorage{db: db, logger: logger}

	if err := storage.initializeSchema(); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	schemaSQL, err := schema.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("error reading schema file: %w", err)
	}
	if _, err := s.db.Exec(string(schemaSQL)); err != nil {
		return fmt.Errorf("error executing schema: %w", err)
	}
	return nil
}

// ─── ConversationStore ───

func (s *PostgresStorage) ActiveConversation(ctx context.Context, userID int64) (*models.Conversation, error) {
	query := `
		SELECT id, user_id, topic_id, participants, current_turn,
		       last_speaker_index, last_line_type, sentiment_scores, messages, last_activity
		FROM active_conversations
		WHERE user_id = $1`

	conv := &models.Conversation{}
	var participants, scores, messages []byte
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&conv.ID,
		&conv.UserID,
		&conv.TopicID,
		&participants,
		&conv.CurrentTurn,
		&conv.LastSpeakerIndex,
		&conv.LastLineType,
		&scores,
		&messages,
		&conv.LastActivity,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying active conversation: %w", err)
	}

	if err := json.Unmarshal(participants, &conv.Participants); err != nil {
		return nil, fmt.Errorf("error decoding participants: %w", err)
	}
	if err := json.Unmarshal(scores, &conv.SentimentScores); err != nil {
		return nil, fmt.Errorf("error decoding sentiment scores: %w", err)
	}
	if err := json.Unmarshal(messages, &conv.Messages); err != nil {
		return nil, fmt.Errorf("error decoding messages: %w", err)
	}
	return conv, nil
}

func (s *PostgresStorage) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	participants, scores, messages, err := encodeConversation(conv)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO active_conversations
			(id, user_id, topic_id, participants, current_turn, last_speaker_index,
			 last_line_type, sentiment_scores, messages, last_activity)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = s.db.ExecContext(ctx, query,
		conv.ID, conv.UserID, conv.TopicID, participants, conv.CurrentTurn,
		conv.LastSpeakerIndex, conv.LastLineType, scores, messages, conv.LastActivity)
	if err != nil {
		return fmt.Errorf("error creating conversation: %w", err)
	}
	return nil
}

func (s *PostgresStorage) UpdateConversation(ctx context.Context, conv *models.Conversation) error {
	participants, scores, messages, err := encodeConversation(conv)
	if err != nil {
		return err
	}

	query := `
		UPDATE active_conversations
		SET current_turn = $1,
		    last_speaker_index = $2,
		    last_line_type = $3,
		    sentiment_scores = $4,
		    messages = $5,
		    participants = $6,
		    last_activity = $7
		WHERE id = $8`

	result, err := s.db.ExecContext(ctx, query,
		conv.CurrentTurn, conv.LastSpeakerIndex, conv.LastLineType,
		scores, messages, participants, conv.LastActivity, conv.ID)
	if err != nil {
		return fmt.Errorf("error updating conversation: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) DeleteConversation(ctx context.Context, userID int64, id string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM active_conversations WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		return fmt.Errorf("error deleting conversation: %w", err)
	}
	return nil
}

func encodeConversation(conv *models.Conversation) (participants, scores, messages []byte, err error) {
	if participants, err = json.Marshal(conv.Participants); err != nil {
		return nil, nil, nil, fmt.Errorf("error encoding participants: %w", err)
	}
	if scores, err = json.Marshal(conv.SentimentScores); err != nil {
		return nil, nil, nil, fmt.Errorf("error encoding sentiment scores: %w", err)
	}
	if messages, err = json.Marshal(conv.Messages); err != nil {
		return nil, nil, nil, fmt.Errorf("error encoding messages: %w", err)
	}
	return participants, scores, messages, nil
}

// ─── ReferenceStore ───

func (s *PostgresStorage) ActiveTopic(ctx context.Context) (*models.Topic, error) {
	query := `
		SELECT id, topic_text, COALESCE(category, ''), COALESCE(sentiment, ''), is_active
		FROM trending_topics
		WHERE is_active = true
		ORDER BY RANDOM()
		LIMIT 1`

	topic := &models.Topic{}
	err := s.db.QueryRowContext(ctx, query).Scan(
		&topic.ID, &topic.Text, &topic.CategoryTag, &topic.SentimentTag, &topic.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying active topic: %w", err)
	}
	return topic, nil
}

func (s *PostgresStorage) Topic(ctx context.Context, id int64) (*models.Topic, error) {
	query := `
		SELECT id, topic_text, COALESCE(category, ''), COALESCE(sentiment, ''), is_active
		FROM trending_topics
		WHERE id = $1`

	topic := &models.Topic{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&topic.ID, &topic.Text, &topic.CategoryTag, &topic.SentimentTag, &topic.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying topic: %w", err)
	}
	return topic, nil
}

func (s *PostgresStorage) SelectChatLine(ctx context.Context, lineType string, topicTags []string) (*models.ChatLine, error) {
	query := `
		SELECT id, line_type, text, sentiment, intensity, can_end_conversation, topic_tags
		FROM chat_lines
		WHERE line_type = $1`
	args := []interface{}{lineType}

	if len(topicTags) > 0 {
		query += ` AND (topic_tags IS NULL OR topic_tags && $2)`
		args = append(args, pq.Array(topicTags))
	}
	query += ` ORDER BY RANDOM() LIMIT 1`

	line := &models.ChatLine{}
	var tags pq.StringArray
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&line.ID, &line.LineType, &line.Text, &line.Sentiment,
		&line.Intensity, &line.CanEndConversation, &tags)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error selecting chat line: %w", err)
	}
	line.TopicTags = []string(tags)
	return line, nil
}

func (s *PostgresStorage) FlowOptions(ctx context.Context, fromLineType string, turn int) ([]models.FlowOption, error) {
	query := `
		SELECT to_type, weight
		FROM chat_flow_rules
		WHERE from_type = $1
		AND min_turn <= $2
		AND max_turn >= $2`

	rows, err := s.db.QueryContext(ctx, query, fromLineType, turn)
	if err != nil {
		return nil, fmt.Errorf("error querying flow options: %w", err)
	}
	defer rows.Close()

	var options []models.FlowOption
	for rows.Next() {
		var opt models.FlowOption
		if err := rows.Scan(&opt.ToLineType, &opt.Weight); err != nil {
			return nil, fmt.Errorf("error scanning flow option: %w", err)
		}
		options = append(options, opt)
	}
	return options, rows.Err()
}

func (s *PostgresStorage) LineTypeCanEnd(ctx context.Context, lineType string) (bool, error) {
	var canEnd bool
	err := s.db.QueryRowContext(ctx,
		`SELECT can_end_conversation FROM chat_lines WHERE line_type = $1 LIMIT 1`,
		lineType).Scan(&canEnd)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("error querying line type: %w", err)
	}
	return canEnd, nil
}

// ─── CollectionStore ───

func (s *PostgresStorage) EligibleCreatures(ctx context.Context, userID int64) ([]models.Participant, error) {
	query := `
		SELECT creature_id, creature_name
		FROM user_rewards
		WHERE user_id = $1
		AND mood_status != 'runaway'`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying eligible creatures: %w", err)
	}
	defer rows.Close()

	var participants []models.Participant
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.CreatureID, &p.Name); err != nil {
			return nil, fmt.Errorf("error scanning creature: %w", err)
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

func (s *PostgresStorage) LikelihoodMultiplier(ctx context.Context, userID int64) (float64, error) {
	var multiplier float64
	err := s.db.QueryRowContext(ctx,
		`SELECT likelihood_multiplier FROM chat_likelihood WHERE user_id = $1`,
		userID).Scan(&multiplier)
	if errors.Is(err, sql.ErrNoRows) {
		return 1.0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("error querying likelihood multiplier: %w", err)
	}
	return multiplier, nil
}

func (s *PostgresStorage) LastConversationAt(ctx context.Context, userID int64) (*time.Time, error) {
	var at time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT created_at FROM conversation_audit_log WHERE user_id = $1 ORDER BY created_at DESC LIMIT 1`,
		userID).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying last conversation: %w", err)
	}
	return &at, nil
}

func (s *PostgresStorage) CreatureMood(ctx context.Context, userID, creatureID int64) (*models.CreatureMood, error) {
	query := `
		SELECT user_id, creature_id, mood_status, unhappy_count, last_conversation_at
		FROM user_rewards
		WHERE user_id = $1 AND creature_id = $2`

	mood := &models.CreatureMood{}
	var lastAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, userID, creatureID).Scan(
		&mood.UserID, &mood.CreatureID, &mood.MoodStatus, &mood.UnhappyCount, &lastAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying creature mood: %w", err)
	}
	if lastAt.Valid {
		mood.LastConversationAt = &lastAt.Time
	}
	return mood, nil
}

func (s *PostgresStorage) SetCreatureMood(ctx context.Context, mood *models.CreatureMood) error {
	query := `
		UPDATE user_rewards
		SET mood_status = $1,
		    unhappy_count = $2,
		    last_conversation_at = now()
		WHERE user_id = $3 AND creature_id = $4`

	result, err := s.db.ExecContext(ctx, query,
		mood.MoodStatus, mood.UnhappyCount, mood.UserID, mood.CreatureID)
	if err != nil {
		return fmt.Errorf("error updating creature mood: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) MoveToRunawayPool(ctx context.Context, userID, creatureID int64, unhappyCount int, difficulty string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runaway_chatlings (user_id, creature_id, unhappy_count, recovery_difficulty)
		VALUES ($1, $2, $3, $4)`,
		userID, creatureID, unhappyCount, difficulty)
	if err != nil {
		return fmt.Errorf("error inserting runaway record: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM user_rewards WHERE user_id = $1 AND creature_id = $2`,
		userID, creatureID)
	if err != nil {
		return fmt.Errorf("error removing creature from collection: %w", err)
	}

	return tx.Commit()
}

func (s *PostgresStorage) RunawayRecord(ctx context.Context, userID, creatureID int64) (*models.Runaway, error) {
	query := `
		SELECT id, user_id, creature_id, unhappy_count, recovery_difficulty, is_recovered, recovered_at
		FROM runaway_chatlings
		WHERE user_id = $1 AND creature_id = $2 AND is_recovered = false`

	r := &models.Runaway{}
	var recoveredAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, userID, creatureID).Scan(
		&r.ID, &r.UserID, &r.CreatureID, &r.UnhappyCount,
		&r.RecoveryDifficulty, &r.Recovered, &recoveredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotInRunawayPool
	}
	if err != nil {
		return nil, fmt.Errorf("error querying runaway record: %w", err)
	}
	if recoveredAt.Valid {
		r.RecoveredAt = &recoveredAt.Time
	}
	return r, nil
}

func (s *PostgresStorage) SetRunawayDifficulty(ctx context.Context, runawayID int64, difficulty string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE runaway_chatlings SET recovery_difficulty = $1 WHERE id = $2`,
		difficulty, runawayID)
	if err != nil {
		return fmt.Errorf("error updating runaway difficulty: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) RestoreFromRunaway(ctx context.Context, userID, creatureID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE runaway_chatlings
		SET is_recovered = true, recovered_at = now()
		WHERE user_id = $1 AND creature_id = $2 AND is_recovered = false`,
		userID, creatureID)
	if err != nil {
		return fmt.Errorf("error marking runaway recovered: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotInRunawayPool
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO user_rewards (user_id, creature_id, mood_status, unhappy_count)
		VALUES ($1, $2, 'neutral', 0)
		ON CONFLICT (user_id, creature_id)
		DO UPDATE SET mood_status = 'neutral', unhappy_count = 0`,
		userID, creatureID)
	if err != nil {
		return fmt.Errorf("error restoring creature to collection: %w", err)
	}

	return tx.Commit()
}

func (s *PostgresStorage) UsersWithCreatures(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM user_rewards`)
	if err != nil {
		return nil, fmt.Errorf("error querying users: %w", err)
	}
	defer rows.Close()

	var users []int64
	for rows.Next() {
		var userID int64
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("error scanning user id: %w", err)
		}
		users = append(users, userID)
	}
	return users, rows.Err()
}

// ─── AuditStore ───

func (s *PostgresStorage) AppendAuditLog(ctx context.Context, entry *models.AuditEntry) error {
	participants, err := json.Marshal(entry.Participants)
	if err != nil {
		return fmt.Errorf("error encoding participants: %w", err)
	}
	messages, err := json.Marshal(entry.Messages)
	if err != nil {
		return fmt.Errorf("error encoding messages: %w", err)
	}
	moodChanges, err := json.Marshal(entry.MoodChanges)
	if err != nil {
		return fmt.Errorf("error encoding mood changes: %w", err)
	}

	query := `
		INSERT INTO conversation_audit_log (user_id, topic, participants, messages, mood_changes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err = s.db.QueryRowContext(ctx, query,
		entry.UserID, entry.Topic, participants, messages, moodChanges).
		Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("error appending audit log: %w", err)
	}
	return nil
}

func (s *PostgresStorage) AuditLog(ctx context.Context, userID int64, limit int) ([]*models.AuditEntry, error) {
	query := `
		SELECT id, user_id, topic, participants, messages, mood_changes, created_at
		FROM conversation_audit_log
		WHERE user_id = $1
		ORDER BY created_at DESC`
	args := []interface{}{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying audit log: %w", err)
	}
	defer rows.Close()

	var entries []*models.AuditEntry
	for rows.Next() {
		entry := &models.AuditEntry{}
		var participants, messages, moodChanges []byte
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Topic,
			&participants, &messages, &moodChanges, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning audit entry: %w", err)
		}
		if err := json.Unmarshal(participants, &entry.Participants); err != nil {
			return nil, fmt.Errorf("error decoding participants: %w", err)
		}
		if err := json.Unmarshal(messages, &entry.Messages); err != nil {
			return nil, fmt.Errorf("error decoding messages: %w", err)
		}
		if err := json.Unmarshal(moodChanges, &entry.MoodChanges); err != nil {
			return nil, fmt.Errorf("error decoding mood changes: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

var _ Storage = (*PostgresStorage)(nil)
