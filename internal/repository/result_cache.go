package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"talk-trainer-server/internal/model"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const resultKeyPrefix = "eval_result:"

// RedisResultCache stores finished evaluation results so a session page reload
// does not re-run the AI evaluation. Entries expire after the configured TTL.
type RedisResultCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisResultCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisResultCache {
	return &RedisResultCache{
		client: client,
		ttl:    ttl,
		logger: logger.Named("ResultCache"),
	}
}

// Get returns the cached result for a session, or (nil, nil) on a miss.
// Cache failures degrade to a miss: the caller re-evaluates instead of erroring.
func (c *RedisResultCache) Get(ctx context.Context, sessionID string) (*model.EvaluationResult, error) {
	raw, err := c.client.Get(ctx, resultKeyPrefix+sessionID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		c.logger.Warn("Result cache read failed, treating as miss",
			zap.String("sessionID", sessionID), zap.Error(err))
		return nil, nil
	}

	var result model.EvaluationResult
	if err := json.Unmarshal(raw, &result); err != nil {
		c.logger.Warn("Corrupt cached result, treating as miss",
			zap.String("sessionID", sessionID), zap.Error(err))
		return nil, nil
	}
	return &result, nil
}

// Set stores a result under the session key with the configured TTL.
func (c *RedisResultCache) Set(ctx context.Context, sessionID string, result *model.EvaluationResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal evaluation result: %w", err)
	}
	if err := c.client.Set(ctx, resultKeyPrefix+sessionID, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache evaluation result for session %s: %w", sessionID, err)
	}
	return nil
}
