// Package cache provides a tiny Redis client wrapper for run checkpoint state
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// State is the resumable progress of a run: the counters carried across
// epochs plus the best validation loss seen so far.
type State struct {
	Epoch        int
	NumUpdates   int
	LossSum      float64
	BestValiLoss float64
	BestEpoch    int
}

// Cache wraps a Redis client for run state storage
type Cache struct {
	client *redis.Client
}

// New creates a new Cache instance connected to the specified Redis address
// If addr is empty, defaults to localhost:6379
func New(ctx context.Context, addr string) (*Cache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: "", // No password by default
		DB:       0,  // Default DB
	})

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	return &Cache{client: client}, nil
}

func stateKey(runID string) string {
	return fmt.Sprintf("forecast:run:%s:state", runID)
}

// SaveState stores the run's state as a hash
func (c *Cache) SaveState(ctx context.Context, runID string, s State) error {
	if c.client == nil {
		return fmt.Errorf("cache client is nil")
	}

	err := c.client.HSet(ctx, stateKey(runID),
		"epoch", s.Epoch,
		"num_updates", s.NumUpdates,
		"loss_sum", strconv.FormatFloat(s.LossSum, 'g', -1, 64),
		"best_vali_loss", strconv.FormatFloat(s.BestValiLoss, 'g', -1, 64),
		"best_epoch", s.BestEpoch,
	).Err()
	if err != nil {
		return fmt.Errorf("failed to save state for run %s: %w", runID, err)
	}

	return nil
}

// LoadState retrieves the run's state. ok is false when nothing was stored.
func (c *Cache) LoadState(ctx context.Context, runID string) (s State, ok bool, err error) {
	if c.client == nil {
		return State{}, false, fmt.Errorf("cache client is nil")
	}

	fields, err := c.client.HGetAll(ctx, stateKey(runID)).Result()
	if errors.Is(err, redis.Nil) || (err == nil && len(fields) == 0) {
		return State{}, false, nil // Key does not exist
	}
	if err != nil {
		return State{}, false, fmt.Errorf("failed to load state for run %s: %w", runID, err)
	}

	s, err = parseState(fields)
	if err != nil {
		return State{}, false, fmt.Errorf("corrupt state for run %s: %w", runID, err)
	}
	return s, true, nil
}

// DeleteState removes the run's stored state
func (c *Cache) DeleteState(ctx context.Context, runID string) error {
	if c.client == nil {
		return fmt.Errorf("cache client is nil")
	}
	if err := c.client.Del(ctx, stateKey(runID)).Err(); err != nil {
		return fmt.Errorf("failed to delete state for run %s: %w", runID, err)
	}
	return nil
}

func parseState(fields map[string]string) (State, error) {
	var s State
	var err error
	if s.Epoch, err = strconv.Atoi(fields["epoch"]); err != nil {
		return State{}, fmt.Errorf("epoch: %w", err)
	}
	if s.NumUpdates, err = strconv.Atoi(fields["num_updates"]); err != nil {
		return State{}, fmt.Errorf("num_updates: %w", err)
	}
	if s.LossSum, err = strconv.ParseFloat(fields["loss_sum"], 64); err != nil {
		return State{}, fmt.Errorf("loss_sum: %w", err)
	}
	if s.BestValiLoss, err = strconv.ParseFloat(fields["best_vali_loss"], 64); err != nil {
		return State{}, fmt.Errorf("best_vali_loss: %w", err)
	}
	if s.BestEpoch, err = strconv.Atoi(fields["best_epoch"]); err != nil {
		return State{}, fmt.Errorf("best_epoch: %w", err)
	}
	return s, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
