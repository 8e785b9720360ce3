package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-attempt/internal/model"
)

var (
	ErrAttemptExists = errors.New("user already has an attempt")
	ErrDraftNotFound = errors.New("draft not found")
)

// AttemptRepository handles attempts and their answers and drafts.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

const attemptColumns = `id, user_id, status, started_at, ends_at, submitted_at, score_total, score_blocks, graded_at`

func scanAttempt(row pgx.Row) (*model.Attempt, error) {
	a := &model.Attempt{}
	if err := row.Scan(&a.ID, &a.UserID, &a.Status, &a.StartedAt, &a.EndsAt, &a.SubmittedAt,
		&a.ScoreTotal, &a.ScoreBlocks, &a.GradedAt); err != nil {
		return nil, err
	}
	return a, nil
}

// GetByUser returns the user's attempt or pgx.ErrNoRows.
func (r *AttemptRepository) GetByUser(ctx context.Context, userID int) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM exam_attempts WHERE user_id = $1`, userID))
}

// GetByID returns an attempt or pgx.ErrNoRows.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM exam_attempts WHERE id = $1`, id))
}

// Create inserts an in-progress attempt ending after duration. A second
// attempt for the same user returns ErrAttemptExists.
func (r *AttemptRepository) Create(ctx context.Context, userID int, duration time.Duration) (*model.Attempt, error) {
	a, err := scanAttempt(r.pool.QueryRow(ctx,
		`INSERT INTO exam_attempts (user_id, status, started_at, ends_at)
		 VALUES ($1, $2, NOW(), NOW() + make_interval(secs => $3))
		 ON CONFLICT (user_id) DO NOTHING
		 RETURNING `+attemptColumns,
		userID, model.AttemptStatusInProgress, duration.Seconds(),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAttemptExists
	}
	return a, err
}

// Close moves an in-progress attempt to a terminal status. It reports false
// when the attempt was no longer in progress.
func (r *AttemptRepository) Close(ctx context.Context, id uuid.UUID, status model.AttemptStatus) (bool, error) {
	if !status.IsTerminal() {
		return false, fmt.Errorf("close attempt: %q is not terminal", status)
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_attempts
		 SET status = $1, submitted_at = NOW()
		 WHERE id = $2 AND status = $3`,
		status, id, model.AttemptStatusInProgress)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// TimeOutExpired closes every in-progress attempt past its deadline and
// returns their ids.
func (r *AttemptRepository) TimeOutExpired(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`UPDATE exam_attempts
		 SET status = $1, submitted_at = NOW()
		 WHERE status = $2 AND ends_at <= NOW()
		 RETURNING id`,
		model.AttemptStatusTimedOut, model.AttemptStatusInProgress)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

// ListUngraded returns closed attempts that have no grade yet.
func (r *AttemptRepository) ListUngraded(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM exam_attempts
		 WHERE status <> $1 AND graded_at IS NULL
		 ORDER BY submitted_at`,
		model.AttemptStatusInProgress)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

// UpsertAnswer replaces the answer for one question. A nil index is stored
// as NULL.
func (r *AttemptRepository) UpsertAnswer(ctx context.Context, attemptID uuid.UUID, questionID int64, selectedIndex *int) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO attempt_answers (attempt_id, question_id, selected_index)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (attempt_id, question_id)
		 DO UPDATE SET selected_index = EXCLUDED.selected_index, updated_at = NOW()`,
		attemptID, questionID, selectedIndex)
	return err
}

// UpsertDraft replaces the whole draft for one task.
func (r *AttemptRepository) UpsertDraft(ctx context.Context, attemptID uuid.UUID, taskID int64, draft model.Draft) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO attempt_prog (attempt_id, task_id, language, code)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (attempt_id, task_id)
		 DO UPDATE SET language = EXCLUDED.language, code = EXCLUDED.code, updated_at = NOW()`,
		attemptID, taskID, draft.Language, draft.Code)
	return err
}

// ListAnswers returns every stored answer of an attempt.
func (r *AttemptRepository) ListAnswers(ctx context.Context, attemptID uuid.UUID) ([]model.AnswerRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_id, selected_index, is_correct
		 FROM attempt_answers WHERE attempt_id = $1`, attemptID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.AnswerRow, error) {
		var a model.AnswerRow
		err := row.Scan(&a.QuestionID, &a.SelectedIndex, &a.IsCorrect)
		return a, err
	})
}

// ListDrafts returns every stored draft of an attempt.
func (r *AttemptRepository) ListDrafts(ctx context.Context, attemptID uuid.UUID) ([]model.DraftRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT task_id, language, code, is_correct
		 FROM attempt_prog WHERE attempt_id = $1`, attemptID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.DraftRow, error) {
		var d model.DraftRow
		err := row.Scan(&d.TaskID, &d.Language, &d.Code, &d.IsCorrect)
		return d, err
	})
}

// SaveGrade stores per-question correctness and the scores in one
// transaction. Attempts that already have a grade are left untouched.
func (r *AttemptRepository) SaveGrade(ctx context.Context, attemptID uuid.UUID, perQuestion map[int64]bool, perTask map[int64]bool, blocks map[model.Block]int, total int) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for qid, ok := range perQuestion {
		batch.Queue(`UPDATE attempt_answers SET is_correct = $1 WHERE attempt_id = $2 AND question_id = $3`, ok, attemptID, qid)
	}
	for tid, ok := range perTask {
		batch.Queue(`UPDATE attempt_prog SET is_correct = $1 WHERE attempt_id = $2 AND task_id = $3`, ok, attemptID, tid)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return false, fmt.Errorf("update verdicts: %w", err)
		}
	}

	tag, err := tx.Exec(ctx,
		`UPDATE exam_attempts
		 SET score_total = $1, score_blocks = $2, graded_at = NOW()
		 WHERE id = $3 AND graded_at IS NULL AND status <> $4`,
		total, blocks, attemptID, model.AttemptStatusInProgress)
	if err != nil {
		return false, fmt.Errorf("update scores: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	return true, tx.Commit(ctx)
}

// SetDraftVerdict records the judge's verdict on a draft. A closed attempt
// loses its grade so it can be graded again; the returned flag reports that.
func (r *AttemptRepository) SetDraftVerdict(ctx context.Context, attemptID uuid.UUID, taskID int64, correct bool) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE attempt_prog SET is_correct = $1 WHERE attempt_id = $2 AND task_id = $3`,
		correct, attemptID, taskID)
	if err != nil {
		return false, fmt.Errorf("update verdict: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, ErrDraftNotFound
	}

	tag, err = tx.Exec(ctx,
		`UPDATE exam_attempts SET graded_at = NULL
		 WHERE id = $1 AND status <> $2 AND graded_at IS NOT NULL`,
		attemptID, model.AttemptStatusInProgress)
	if err != nil {
		return false, fmt.Errorf("reset grade: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Stats counts attempts by status and registered users.
func (r *AttemptRepository) Stats(ctx context.Context) (*model.AttemptStats, error) {
	s := &model.AttemptStats{}
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE status = $1),
		        COUNT(*) FILTER (WHERE status = $2),
		        COUNT(*) FILTER (WHERE status = $3),
		        COUNT(*) FILTER (WHERE graded_at IS NOT NULL),
		        (SELECT COUNT(*) FROM users WHERE NOT is_admin)
		 FROM exam_attempts`,
		model.AttemptStatusInProgress, model.AttemptStatusSubmitted, model.AttemptStatusTimedOut,
	).Scan(&s.Total, &s.InProgress, &s.Submitted, &s.TimedOut, &s.Graded, &s.Users)
	if err != nil {
		return nil, err
	}
	return s, nil
}
