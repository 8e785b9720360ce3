package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/service"
)

const (
	GradePollTimeout = 1 * time.Second
	GradeRetryDelay  = 5 * time.Second
	GradeLockTTL     = time.Minute
)

// errAttemptLocked means another worker is grading the attempt. The job is
// requeued because that run may have read data the job was meant to cover.
var errAttemptLocked = errors.New("attempt is being graded elsewhere")

// AttemptStore is the attempt data the grading worker reads and writes.
type AttemptStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error)
	ListAnswers(ctx context.Context, attemptID uuid.UUID) ([]model.AnswerRow, error)
	ListDrafts(ctx context.Context, attemptID uuid.UUID) ([]model.DraftRow, error)
	ListUngraded(ctx context.Context) ([]uuid.UUID, error)
	SaveGrade(ctx context.Context, attemptID uuid.UUID, perQuestion, perTask map[int64]bool, blocks map[model.Block]int, total int) (bool, error)
}

// ContentStore looks up the questions and tasks referenced by an attempt.
type ContentStore interface {
	GetByIDs(ctx context.Context, ids []int64) (map[int64]model.Question, error)
	GetTasksByIDs(ctx context.Context, ids []int64) (map[int64]model.ProgTask, error)
}

// attemptLocker keeps two workers off the same attempt.
type attemptLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string)
}

type redisLocker struct {
	rdb *redis.Client
}

func (l redisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.rdb.SetNX(ctx, key, 1, ttl).Result()
}

func (l redisLocker) Unlock(ctx context.Context, key string) {
	l.rdb.Del(ctx, key)
}

// GradingWorker consumes grade_attempts_queue and stores scores.
type GradingWorker struct {
	attempts AttemptStore
	content  ContentStore
	rdb      *redis.Client
	locks    attemptLocker
	log      zerolog.Logger
}

// NewGradingWorker creates a new GradingWorker.
func NewGradingWorker(attempts AttemptStore, content ContentStore, rdb *redis.Client, log zerolog.Logger) *GradingWorker {
	return &GradingWorker{
		attempts: attempts,
		content:  content,
		rdb:      rdb,
		locks:    redisLocker{rdb: rdb},
		log:      log.With().Str("component", "grading_worker").Logger(),
	}
}

// ─── Worker loop ────────────────────────────────────────────────────────────

// Start begins the worker loop and blocks until ctx is cancelled. Closed
// attempts that were never graded are queued again first.
func (w *GradingWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")
	w.requeueUngraded(ctx)

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *GradingWorker) requeueUngraded(ctx context.Context) {
	ids, err := w.attempts.ListUngraded(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("List ungraded attempts failed")
		return
	}
	if len(ids) == 0 {
		return
	}
	if err := service.NewGradingQueue(w.rdb).Enqueue(ctx, ids...); err != nil {
		w.log.Error().Err(err).Msg("Requeue ungraded attempts failed")
		return
	}
	w.log.Info().Int("count", len(ids)).Msg("Requeued ungraded attempts")
}

func (w *GradingWorker) processNext(ctx context.Context) {
	item, err := w.rdb.BLPop(ctx, GradePollTimeout, config.WorkerKey.GradeAttemptsQueue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}
	if len(item) < 2 {
		return
	}

	if err := w.handle(ctx, item[1]); err != nil {
		if errors.Is(err, errAttemptLocked) {
			w.log.Debug().Str("payload", item[1]).Msg("Attempt locked, requeueing")
		} else {
			w.log.Error().Err(err).Msg("Grading failed, requeueing")
		}
		w.rdb.RPush(context.Background(), config.WorkerKey.GradeAttemptsQueue, item[1])
		select {
		case <-ctx.Done():
		case <-time.After(GradeRetryDelay):
		}
	}
}

// drain grades what is left in the queue before shutdown.
func (w *GradingWorker) drain(ctx context.Context) {
	drained := 0
	for {
		raw, err := w.rdb.LPop(ctx, config.WorkerKey.GradeAttemptsQueue).Result()
		if err != nil {
			break
		}
		if err := w.handle(ctx, raw); err != nil {
			w.log.Error().Err(err).Msg("Drain grading error")
			w.rdb.RPush(ctx, config.WorkerKey.GradeAttemptsQueue, raw)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}

// handle decodes one job and grades it under a per-attempt lock. Malformed
// jobs are dropped.
func (w *GradingWorker) handle(ctx context.Context, raw string) error {
	var job model.GradeJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil || job.AttemptID == uuid.Nil {
		w.log.Error().Err(err).Str("payload", raw).Msg("Invalid grade job")
		return nil
	}

	lockKey := config.CacheKey.GradingLockKey(job.AttemptID.String())
	locked, err := w.locks.TryLock(ctx, lockKey, GradeLockTTL)
	if err != nil {
		return fmt.Errorf("acquire grading lock: %w", err)
	}
	if !locked {
		return errAttemptLocked
	}
	defer w.locks.Unlock(context.Background(), lockKey)

	return w.Grade(ctx, job.AttemptID)
}

// ─── Grading ────────────────────────────────────────────────────────────────

// Grade scores one attempt and stores the result. Attempts that are still
// in progress, already graded or gone are skipped.
func (w *GradingWorker) Grade(ctx context.Context, attemptID uuid.UUID) error {
	log := w.log.With().Str("attempt_id", attemptID.String()).Logger()

	a, err := w.attempts.GetByID(ctx, attemptID)
	if errors.Is(err, pgx.ErrNoRows) {
		log.Warn().Msg("Attempt vanished before grading")
		return nil
	}
	if err != nil {
		return fmt.Errorf("get attempt: %w", err)
	}
	if !a.Status.IsTerminal() || a.GradedAt != nil {
		return nil
	}

	answers, err := w.attempts.ListAnswers(ctx, attemptID)
	if err != nil {
		return fmt.Errorf("list answers: %w", err)
	}
	drafts, err := w.attempts.ListDrafts(ctx, attemptID)
	if err != nil {
		return fmt.Errorf("list drafts: %w", err)
	}

	qids := make([]int64, 0, len(answers))
	for _, row := range answers {
		qids = append(qids, row.QuestionID)
	}
	tids := make([]int64, 0, len(drafts))
	for _, row := range drafts {
		tids = append(tids, row.TaskID)
	}
	questions, err := w.content.GetByIDs(ctx, qids)
	if err != nil {
		return fmt.Errorf("get questions: %w", err)
	}
	tasks, err := w.content.GetTasksByIDs(ctx, tids)
	if err != nil {
		return fmt.Errorf("get tasks: %w", err)
	}

	g := service.GradeAttempt(questions, tasks, answers, drafts)
	saved, err := w.attempts.SaveGrade(ctx, attemptID, g.PerQuestion, g.PerTask, g.Blocks, g.Total)
	if err != nil {
		return fmt.Errorf("save grade: %w", err)
	}
	if saved {
		log.Info().Int("score_total", g.Total).Interface("score_blocks", g.Blocks).Msg("Attempt graded")
	}
	return nil
}
