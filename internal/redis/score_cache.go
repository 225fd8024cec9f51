package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/auratask/auratask/internal/domain"
)

const scoreTTL = 15 * time.Minute

func scoreKey(taskID string) string { return "task:score:" + taskID }

// ScoreCache keeps the most recently published urgency score per task so the
// gateway can sort dashboards without touching Postgres. Values expire: the
// cache is a read-through accelerator, never the source of truth.
type ScoreCache interface {
	SetScore(ctx context.Context, taskID string, score float64) error
	GetScore(ctx context.Context, taskID string) (float64, error)
	SetScores(ctx context.Context, scores map[string]float64) error
}

type scoreCache struct {
	client *redis.Client
}

// NewScoreCache creates a Redis-backed ScoreCache.
func NewScoreCache(client *redis.Client) ScoreCache {
	return &scoreCache{client: client}
}

func (c *scoreCache) SetScore(ctx context.Context, taskID string, score float64) error {
	err := c.client.Set(ctx, scoreKey(taskID), strconv.FormatFloat(score, 'f', -1, 64), scoreTTL).Err()
	if err != nil {
		return fmt.Errorf("redis set score for %s: %w", taskID, err)
	}
	return nil
}

func (c *scoreCache) GetScore(ctx context.Context, taskID string) (float64, error) {
	val, err := c.client.Get(ctx, scoreKey(taskID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, &domain.TaskNotFoundError{TaskID: taskID}
		}
		return 0, fmt.Errorf("redis get score for %s: %w", taskID, err)
	}
	score, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("parse cached score for %s: %w", taskID, err)
	}
	return score, nil
}

// SetScores writes a re-rank batch in one pipeline round trip.
func (c *scoreCache) SetScores(ctx context.Context, scores map[string]float64) error {
	if len(scores) == 0 {
		return nil
	}
	pipe := c.client.Pipeline()
	for id, score := range scores {
		pipe.Set(ctx, scoreKey(id), strconv.FormatFloat(score, 'f', -1, 64), scoreTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set score batch: %w", err)
	}
	return nil
}
