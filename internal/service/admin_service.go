package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/repository"
)

// Admin errors.
var (
	ErrNotFound             = errors.New("not found")
	ErrCorrectIndexOutRange = errors.New("correct_index must point at one of the options")
)

// AdminService manages exam content, judge verdicts and attempt stats.
type AdminService struct {
	questions *repository.QuestionRepository
	attempts  *repository.AttemptRepository
	queue     *GradingQueue
	log       zerolog.Logger
}

// NewAdminService creates a new AdminService.
func NewAdminService(
	questions *repository.QuestionRepository,
	attempts *repository.AttemptRepository,
	queue *GradingQueue,
	log zerolog.Logger,
) *AdminService {
	return &AdminService{
		questions: questions,
		attempts:  attempts,
		queue:     queue,
		log:       log.With().Str("component", "admin_service").Logger(),
	}
}

// ListQuestions returns every question including its answer key.
func (s *AdminService) ListQuestions(ctx context.Context) ([]model.QuestionAdminView, error) {
	qs, err := s.questions.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	out := make([]model.QuestionAdminView, 0, len(qs))
	for _, q := range qs {
		out = append(out, model.QuestionAdminView{Question: q, CorrectIndex: q.CorrectIndex, Published: q.Published})
	}
	return out, nil
}

// CreateQuestion stores a new question.
func (s *AdminService) CreateQuestion(ctx context.Context, req *model.QuestionRequest) (*model.QuestionAdminView, error) {
	if req.CorrectIndex >= len(req.Options) {
		return nil, ErrCorrectIndexOutRange
	}
	q := &model.Question{
		Subject:      req.Subject,
		Text:         req.Text,
		Options:      req.Options,
		CorrectIndex: req.CorrectIndex,
		Points:       req.Points,
		Published:    req.Published,
	}
	if err := s.questions.Create(ctx, q); err != nil {
		return nil, fmt.Errorf("create question: %w", err)
	}
	return &model.QuestionAdminView{Question: *q, CorrectIndex: q.CorrectIndex, Published: q.Published}, nil
}

// ListTasks returns every programming task.
func (s *AdminService) ListTasks(ctx context.Context) ([]model.TaskAdminView, error) {
	ts, err := s.questions.ListAllTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	out := make([]model.TaskAdminView, 0, len(ts))
	for _, t := range ts {
		out = append(out, model.TaskAdminView{ProgTask: t, Published: t.Published})
	}
	return out, nil
}

// CreateTask stores a new programming task.
func (s *AdminService) CreateTask(ctx context.Context, req *model.TaskRequest) (*model.TaskAdminView, error) {
	t := &model.ProgTask{
		Title:     req.Title,
		Statement: req.Statement,
		Points:    req.Points,
		Published: req.Published,
	}
	if err := s.questions.CreateTask(ctx, t); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return &model.TaskAdminView{ProgTask: *t, Published: t.Published}, nil
}

// TogglePublished flips the publish flag of a question or task. entity is
// "questions" or "prog_tasks".
func (s *AdminService) TogglePublished(ctx context.Context, entity string, id int64) (bool, error) {
	var (
		published bool
		err       error
	)
	switch entity {
	case "questions":
		published, err = s.questions.TogglePublished(ctx, id)
	case "prog_tasks":
		published, err = s.questions.ToggleTaskPublished(ctx, id)
	default:
		return false, ErrNotFound
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("toggle %s: %w", entity, err)
	}
	return published, nil
}

// RecordVerdict stores the judge's verdict for a draft and regrades the
// attempt when it already had a grade.
func (s *AdminService) RecordVerdict(ctx context.Context, attemptID uuid.UUID, taskID int64, correct bool) error {
	regrade, err := s.attempts.SetDraftVerdict(ctx, attemptID, taskID, correct)
	if errors.Is(err, repository.ErrDraftNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("record verdict: %w", err)
	}
	if regrade {
		s.log.Info().Str("attempt_id", attemptID.String()).Int64("task_id", taskID).Msg("Verdict changed, regrading")
		if err := s.queue.Enqueue(ctx, attemptID); err != nil {
			return err
		}
	}
	return nil
}

// Stats returns attempt counts.
func (s *AdminService) Stats(ctx context.Context) (*model.AttemptStats, error) {
	st, err := s.attempts.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("attempt stats: %w", err)
	}
	return st, nil
}
