package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// GradingQueue pushes closed attempts onto the Redis list consumed by the
// grading worker.
type GradingQueue struct {
	rdb *redis.Client
}

// NewGradingQueue creates a new GradingQueue.
func NewGradingQueue(rdb *redis.Client) *GradingQueue {
	return &GradingQueue{rdb: rdb}
}

// Enqueue asks for attemptIDs to be graded.
func (q *GradingQueue) Enqueue(ctx context.Context, attemptIDs ...uuid.UUID) error {
	if len(attemptIDs) == 0 {
		return nil
	}
	payloads := make([]interface{}, 0, len(attemptIDs))
	for _, id := range attemptIDs {
		raw, err := json.Marshal(model.GradeJob{AttemptID: id})
		if err != nil {
			return fmt.Errorf("marshal grade job: %w", err)
		}
		payloads = append(payloads, raw)
	}
	if err := q.rdb.RPush(ctx, config.WorkerKey.GradeAttemptsQueue, payloads...).Err(); err != nil {
		return fmt.Errorf("enqueue grading: %w", err)
	}
	return nil
}
