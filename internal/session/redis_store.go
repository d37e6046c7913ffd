package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	xerrors "FinMitra/internal/errors"
)

// RedisConfig describes the Redis conversation store connection.
type RedisConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
	MaxTurns  int
}

// RedisStore keeps each session's history in a Redis list, so history
// survives process restarts and can be shared across replicas. The turn pair
// is pushed and trimmed inside one MULTI/EXEC, which gives the same per-key
// append atomicity the in-memory store provides with its mutex.
type RedisStore struct {
	client   *redis.Client
	prefix   string
	maxTurns int
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Address == "" {
		return nil, errors.New("redis address must not be empty")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "finmitra:session:"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeSessionFailure, err, "connect to redis")
	}
	return &RedisStore{
		client:   client,
		prefix:   prefix,
		maxTurns: normalizeCap(cfg.MaxTurns),
	}, nil
}

// GetOrCreate returns the stored history for a key this store has written
// before, or mints a fresh key. Keys only become known after their first
// successful Append, so a failed run never reserves key space.
func (r *RedisStore) GetOrCreate(ctx context.Context, key string) (string, []Turn, error) {
	key = strings.TrimSpace(key)
	if key != "" {
		exists, err := r.client.Exists(ctx, r.prefix+key).Result()
		if err != nil {
			return "", nil, xerrors.Wrap(xerrors.CodeSessionFailure, err, "check session key")
		}
		if exists > 0 {
			turns, err := r.load(ctx, key)
			if err != nil {
				return "", nil, err
			}
			return key, turns, nil
		}
	}
	return uuid.NewString(), nil, nil
}

// Append pushes both turns and trims to the cap in a single transaction,
// then returns the resulting snapshot.
func (r *RedisStore) Append(ctx context.Context, key, userText, assistantText string) ([]Turn, error) {
	if strings.TrimSpace(userText) == "" || strings.TrimSpace(assistantText) == "" {
		return nil, ErrEmptyTurn
	}

	now := time.Now().Unix()
	userTurn, err := json.Marshal(Turn{Role: RoleUser, Text: userText, CreatedAt: now})
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeSessionFailure, err, "encode user turn")
	}
	assistantTurn, err := json.Marshal(Turn{Role: RoleAssistant, Text: assistantText, CreatedAt: now})
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeSessionFailure, err, "encode assistant turn")
	}

	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, r.prefix+key, userTurn, assistantTurn)
	pipe.LTrim(ctx, r.prefix+key, int64(-r.maxTurns), -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeSessionFailure, err, "append turns")
	}

	return r.load(ctx, key)
}

// Close releases the Redis connection.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) load(ctx context.Context, key string) ([]Turn, error) {
	raw, err := r.client.LRange(ctx, r.prefix+key, 0, -1).Result()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeSessionFailure, err, "load session history")
	}
	turns := make([]Turn, 0, len(raw))
	for _, entry := range raw {
		var turn Turn
		if err := json.Unmarshal([]byte(entry), &turn); err != nil {
			// A corrupt entry should not make the whole session unreadable.
			continue
		}
		turns = append(turns, turn)
	}
	if len(turns) == 0 {
		return nil, nil
	}
	return turns, nil
}
