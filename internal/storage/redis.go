package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chatlings/chatlings/internal/models"
)

// RedisConversationStore keeps live conversations in Redis. Active
// conversations are session-scoped and deleted when they end, so they
// fit Redis better than the relational store; reference and collection
// data stay behind the full Storage they are layered onto.
// Keys are namespaced as "{prefix}:conv:{userID}".
type RedisConversationStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisConfig configures the live-conversation store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // key prefix, default "chatlings"
	TTL      time.Duration // safety expiry for abandoned records, 0 = none
}

func NewRedisConversationStore(cfg RedisConfig) (*RedisConversationStore, error) {
	if cfg.Prefix == "" {
		cfg.Prefix = "chatlings"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("error connecting to redis: %w", err)
	}
	return &RedisConversationStore{
		client: client,
		prefix: cfg.Prefix,
		ttl:    cfg.TTL,
	}, nil
}

func (r *RedisConversationStore) key(userID int64) string {
	return fmt.Sprintf("%s:conv:%d", r.prefix, userID)
}

func (r *RedisConversationStore) ActiveConversation(ctx context.Context, userID int64) (*models.Conversation, error) {
	raw, err := r.client.Get(ctx, r.key(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading conversation: %w", err)
	}
	conv := &models.Conversation{}
	if err := json.Unmarshal([]byte(raw), conv); err != nil {
		return nil, fmt.Errorf("error decoding conversation: %w", err)
	}
	return conv, nil
}

func (r *RedisConversationStore) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	return r.save(ctx, conv)
}

func (r *RedisConversationStore) UpdateConversation(ctx context.Context, conv *models.Conversation) error {
	existing, err := r.ActiveConversation(ctx, conv.UserID)
	if err != nil {
		return err
	}
	if existing == nil || existing.ID != conv.ID {
		return ErrNotFound
	}
	return r.save(ctx, conv)
}

func (r *RedisConversationStore) save(ctx context.Context, conv *models.Conversation) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("error encoding conversation: %w", err)
	}
	if err := r.client.Set(ctx, r.key(conv.UserID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("error writing conversation: %w", err)
	}
	return nil
}

func (r *RedisConversationStore) DeleteConversation(ctx context.Context, userID int64, id string) error {
	existing, err := r.ActiveConversation(ctx, userID)
	if err != nil {
		return err
	}
	if existing == nil || existing.ID != id {
		return nil
	}
	if err := r.client.Del(ctx, r.key(userID)).Err(); err != nil {
		return fmt.Errorf("error deleting conversation: %w", err)
	}
	return nil
}

func (r *RedisConversationStore) Close() error {
	return r.client.Close()
}

var _ ConversationStore = (*RedisConversationStore)(nil)

// Layered overlays a ConversationStore on top of a full Storage, so
// live conversation state can live in Redis while everything else
// stays relational.
type Layered struct {
	Storage
	conversations ConversationStore
}

func NewLayered(base Storage, conversations ConversationStore) *Layered {
	return &Layered{Storage: base, conversations: conversations}
}

func (l *Layered) ActiveConversation(ctx context.Context, userID int64) (*models.Conversation, error) {
	return l.conversations.ActiveConversation(ctx, userID)
}

func (l *Layered) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	return l.conversations.CreateConversation(ctx, conv)
}

func (l *Layered) UpdateConversation(ctx context.Context, conv *models.Conversation) error {
	return l.conversations.UpdateConversation(ctx, conv)
}

func (l *Layered) DeleteConversation(ctx context.Context, userID int64, id string) error {
	return l.conversations.DeleteConversation(ctx, userID, id)
}

var _ Storage = (*Layered)(nil)
