package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrSessionNotFound 会话不存在或已过期
var ErrSessionNotFound = errors.New("session not found")

// ErrTurnTooLarge rejects turn content over the configured limit.
var ErrTurnTooLarge = errors.New("turn content exceeds size limit")

// Session is one conversation thread owned by the API layer.
type Session struct {
	ID        string            `json:"id"`
	Status    string            `json:"status"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Turn is a single exchange appended to a session.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionConfig configures the session store.
type SessionConfig struct {
	Addr       string        `yaml:"addr"`
	Password   string        `yaml:"password"`
	DB         int           `yaml:"db"`
	TTL        time.Duration `yaml:"ttl"`         // bounded retention per session
	MaxContent int           `yaml:"max_content"` // max turn content bytes
}

// DefaultSessionConfig returns store defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Addr:       "localhost:6379",
		TTL:        24 * time.Hour,
		MaxContent: 64 * 1024,
	}
}

// SessionStore keeps sessions and their turns in redis with bounded
// retention. Session IDs are UUID-derived and not enumerable.
type SessionStore struct {
	client *redis.Client
	cfg    SessionConfig
	logger *zap.Logger
}

// NewSessionStore connects to redis and returns the store.
func NewSessionStore(cfg SessionConfig, logger *zap.Logger) *SessionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultSessionConfig().TTL
	}
	if cfg.MaxContent <= 0 {
		cfg.MaxContent = DefaultSessionConfig().MaxContent
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &SessionStore{
		client: client,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "session_store")),
	}
}

// Close releases the redis connection.
func (s *SessionStore) Close() error { return s.client.Close() }

// Ping verifies connectivity.
func (s *SessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func sessionKey(id string) string { return "roundtable:session:" + id }
func turnsKey(id string) string   { return "roundtable:session:" + id + ":turns" }

// Create stores a new session and returns it.
func (s *SessionStore) Create(ctx context.Context, metadata map[string]string) (*Session, error) {
	session := &Session{
		ID:        "session_" + uuid.NewString()[:16],
		Status:    "active",
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	raw, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(session.ID), raw, s.cfg.TTL).Err(); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	s.logger.Info("session created", zap.String("session_id", session.ID))
	return session, nil
}

// Get fetches a session by ID and refreshes its retention window.
func (s *SessionStore) Get(ctx context.Context, id string) (*Session, error) {
	raw, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch session: %w", err)
	}
	var session Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	// Touch refreshes retention on access.
	s.client.Expire(ctx, sessionKey(id), s.cfg.TTL)
	s.client.Expire(ctx, turnsKey(id), s.cfg.TTL)
	return &session, nil
}

// AppendTurn validates and appends a turn to the session.
func (s *SessionStore) AppendTurn(ctx context.Context, id string, turn Turn) error {
	if len(turn.Content) > s.cfg.MaxContent {
		return ErrTurnTooLarge
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("marshal turn: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, turnsKey(id), raw)
	pipe.Expire(ctx, turnsKey(id), s.cfg.TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

// Turns returns every turn of a session in append order.
func (s *SessionStore) Turns(ctx context.Context, id string) ([]Turn, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	raws, err := s.client.LRange(ctx, turnsKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch turns: %w", err)
	}
	turns := make([]Turn, 0, len(raws))
	for _, raw := range raws {
		var t Turn
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			s.logger.Warn("skipping corrupt turn", zap.String("session_id", id), zap.Error(err))
			continue
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// TurnCount returns the number of turns in a session.
func (s *SessionStore) TurnCount(ctx context.Context, id string) (int64, error) {
	return s.client.LLen(ctx, turnsKey(id)).Result()
}
