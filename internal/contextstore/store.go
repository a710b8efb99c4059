package contextstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	defaultMaxTurns = 6
	defaultTTL      = 24 * time.Hour
	historyPrefix   = "chat_history:"
)

// redisAPI is the subset of *redis.Client used by Store and Gate.
type redisAPI interface {
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// Store keeps a short rolling window of recent turns per subscriber. It is a
// cache: every failure degrades to "no context" instead of an error.
type Store struct {
	rdb      redisAPI
	maxTurns int
	ttl      time.Duration
	logger   *slog.Logger
}

type Option func(*Store)

func WithMaxTurns(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxTurns = n
		}
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Store over the given Redis client.
func New(rdb redisAPI, opts ...Option) (*Store, error) {
	if rdb == nil {
		return nil, errors.New("contextstore: redis client must not be nil")
	}
	s := &Store{
		rdb:      rdb,
		maxTurns: defaultMaxTurns,
		ttl:      defaultTTL,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func historyKey(subscriberID string) string {
	return historyPrefix + subscriberID
}

// FormatTurn renders one exchange the way it is stored and replayed to the
// model.
func FormatTurn(userText, replyText string) string {
	return "User: " + userText + "\nAssistant: " + replyText
}

// Append pushes the exchange to the front of the window, trims the window and
// resets its inactivity expiry.
func (s *Store) Append(ctx context.Context, subscriberID, userText, replyText string) {
	if err := s.append(ctx, subscriberID, userText, replyText); err != nil {
		s.logger.Warn("failed to store conversation turn", "subscriber_id", subscriberID, "err", err)
	}
}

func (s *Store) append(ctx context.Context, subscriberID, userText, replyText string) error {
	if strings.TrimSpace(subscriberID) == "" {
		return errors.New("contextstore: subscriber id is required")
	}
	key := historyKey(subscriberID)
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, key, FormatTurn(userText, replyText))
		p.LTrim(ctx, key, 0, int64(s.maxTurns-1))
		p.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("contextstore: append %q: %w", key, err)
	}
	return nil
}

// Recent returns up to maxTurns stored exchanges, newest first. A missing key
// or an unreachable cache yields an empty slice.
func (s *Store) Recent(ctx context.Context, subscriberID string) []string {
	if strings.TrimSpace(subscriberID) == "" {
		return []string{}
	}
	key := historyKey(subscriberID)
	items, err := s.rdb.LRange(ctx, key, 0, int64(s.maxTurns-1)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("failed to get conversation history", "subscriber_id", subscriberID, "err", err)
		}
		return []string{}
	}
	if items == nil {
		return []string{}
	}
	return items
}
