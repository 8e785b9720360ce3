package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-attempt/internal/model"
)

// QuestionRepository handles exam content: multiple-choice questions and
// programming tasks.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListPublished returns the published questions of a subject in id order.
func (r *QuestionRepository) ListPublished(ctx context.Context, subject model.Block) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, subject, question, options, correct_index, points, published
		 FROM questions
		 WHERE subject = $1 AND published
		 ORDER BY id`, subject,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanQuestion)
}

// GetByIDs returns the questions with the given ids, keyed by id.
func (r *QuestionRepository) GetByIDs(ctx context.Context, ids []int64) (map[int64]model.Question, error) {
	out := make(map[int64]model.Question, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, subject, question, options, correct_index, points, published
		 FROM questions
		 WHERE id = ANY($1)`, ids,
	)
	if err != nil {
		return nil, err
	}
	questions, err := pgx.CollectRows(rows, scanQuestion)
	if err != nil {
		return nil, err
	}
	for _, q := range questions {
		out[q.ID] = q
	}
	return out, nil
}

// Create inserts a question. Options are stored as a JSON array.
func (r *QuestionRepository) Create(ctx context.Context, q *model.Question) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO questions (subject, question, options, correct_index, points, published)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		q.Subject, q.Text, q.Options, q.CorrectIndex, q.Points, q.Published,
	).Scan(&q.ID)
}

// ListPublishedTasks returns the published programming tasks in id order.
func (r *QuestionRepository) ListPublishedTasks(ctx context.Context) ([]model.ProgTask, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, statement, points, published
		 FROM prog_tasks
		 WHERE published
		 ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanTask)
}

// GetTasksByIDs returns the tasks with the given ids, keyed by id.
func (r *QuestionRepository) GetTasksByIDs(ctx context.Context, ids []int64) (map[int64]model.ProgTask, error) {
	out := make(map[int64]model.ProgTask, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, statement, points, published FROM prog_tasks WHERE id = ANY($1)`, ids,
	)
	if err != nil {
		return nil, err
	}
	tasks, err := pgx.CollectRows(rows, scanTask)
	if err != nil {
		return nil, err
	}
	for _, t := range tasks {
		out[t.ID] = t
	}
	return out, nil
}

// CreateTask inserts a programming task.
func (r *QuestionRepository) CreateTask(ctx context.Context, t *model.ProgTask) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO prog_tasks (title, statement, points, published)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		t.Title, t.Statement, t.Points, t.Published,
	).Scan(&t.ID)
}

// CountPublished returns the number of published questions and tasks.
func (r *QuestionRepository) CountPublished(ctx context.Context) (questions, tasks int, err error) {
	err = r.pool.QueryRow(ctx,
		`SELECT (SELECT COUNT(*) FROM questions WHERE published),
		        (SELECT COUNT(*) FROM prog_tasks WHERE published)`,
	).Scan(&questions, &tasks)
	return questions, tasks, err
}

func scanQuestion(row pgx.CollectableRow) (model.Question, error) {
	var q model.Question
	err := row.Scan(&q.ID, &q.Subject, &q.Text, &q.Options, &q.CorrectIndex, &q.Points, &q.Published)
	return q, err
}

func scanTask(row pgx.CollectableRow) (model.ProgTask, error) {
	var t model.ProgTask
	err := row.Scan(&t.ID, &t.Title, &t.Statement, &t.Points, &t.Published)
	return t, err
}

// ListAll returns every question, published or not, in id order.
func (r *QuestionRepository) ListAll(ctx context.Context) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, subject, question, options, correct_index, points, published
		 FROM questions
		 ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanQuestion)
}

// ListAllTasks returns every programming task in id order.
func (r *QuestionRepository) ListAllTasks(ctx context.Context) ([]model.ProgTask, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, statement, points, published FROM prog_tasks ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanTask)
}

// TogglePublished flips a question's publish flag and returns the new
// value, or pgx.ErrNoRows.
func (r *QuestionRepository) TogglePublished(ctx context.Context, id int64) (bool, error) {
	var published bool
	err := r.pool.QueryRow(ctx,
		`UPDATE questions SET published = NOT published WHERE id = $1 RETURNING published`, id,
	).Scan(&published)
	return published, err
}

// ToggleTaskPublished flips a task's publish flag and returns the new
// value, or pgx.ErrNoRows.
func (r *QuestionRepository) ToggleTaskPublished(ctx context.Context, id int64) (bool, error) {
	var published bool
	err := r.pool.QueryRow(ctx,
		`UPDATE prog_tasks SET published = NOT published WHERE id = $1 RETURNING published`, id,
	).Scan(&published)
	return published, err
}
