package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/stationai/npc-engine/pkg/npc"
)

// maxStoredTurns bounds the history list per player; older turns are
// trimmed away on append.
const maxStoredTurns = 100

// RedisStore implements the Store interface using Redis lists, one
// list per player, oldest turn first.
type RedisStore struct {
	client *redis.Client
	logger *slog.Logger
}

// Ensure RedisStore implements Store interface
var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a new Redis history store instance.
func NewRedisStore(redisURL string, logger *slog.Logger) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr: redisURL,
	})

	return &RedisStore{
		client: rdb,
		logger: logger,
	}
}

func historyKey(playerID string) string {
	return "history:player:" + playerID
}

func (r *RedisStore) Ping(ctx context.Context) error {
	cmd := r.client.Ping(ctx)
	if err := cmd.Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}

	r.logger.Debug("Redis ping successful", "result", cmd.Val())
	return nil
}

// GetRecent returns up to max turns for a player, oldest first.
func (r *RedisStore) GetRecent(ctx context.Context, playerID string, max int) ([]npc.Turn, error) {
	if max <= 0 {
		return nil, nil
	}

	key := historyKey(playerID)
	values, err := r.client.LRange(ctx, key, int64(-max), -1).Result()
	if err != nil {
		r.logger.Error("Redis LRANGE failed", "key", key, "error", err)
		return nil, fmt.Errorf("redis lrange failed: %w", err)
	}

	turns := make([]npc.Turn, 0, len(values))
	for _, raw := range values {
		var turn npc.Turn
		if err := json.Unmarshal([]byte(raw), &turn); err != nil {
			// Skip corrupt entries rather than failing the request
			r.logger.Warn("Skipping malformed history entry", "key", key, "error", err)
			continue
		}
		turns = append(turns, turn)
	}

	return turns, nil
}

// Append adds a turn to the tail of a player's history and trims the
// list to the retention bound.
func (r *RedisStore) Append(ctx context.Context, playerID string, turn npc.Turn) error {
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("failed to marshal turn: %w", err)
	}

	key := historyKey(playerID)
	if err := r.client.RPush(ctx, key, data).Err(); err != nil {
		r.logger.Error("Redis RPUSH failed", "key", key, "error", err)
		return fmt.Errorf("redis rpush failed: %w", err)
	}

	if err := r.client.LTrim(ctx, key, int64(-maxStoredTurns), -1).Err(); err != nil {
		r.logger.Error("Redis LTRIM failed", "key", key, "error", err)
		return fmt.Errorf("redis ltrim failed: %w", err)
	}

	return nil
}

func (r *RedisStore) Close() error {
	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}
	return nil
}
