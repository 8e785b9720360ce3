package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/repository"
)

// Exam errors surfaced to handlers.
var (
	ErrAttemptNotFound = errors.New("attempt not found")
	ErrAttemptExists   = errors.New("attempt already exists")
	ErrAttemptClosed   = errors.New("attempt is closed")
	ErrAttemptTimeOver = errors.New("attempt time is over")
	ErrUnknownItem     = errors.New("question or task is not part of the exam")
	ErrInvalidOption   = errors.New("selected option is out of range")
	ErrResultNotReady  = errors.New("result is not ready")
)

// ExamService runs the attempt lifecycle: start, state, answer and draft
// writes, submit and result.
type ExamService struct {
	attempts  *repository.AttemptRepository
	questions *repository.QuestionRepository
	queue     *GradingQueue
	duration  time.Duration
	clock     clock.PassiveClock
	log       zerolog.Logger
}

// NewExamService creates a new ExamService. Attempts last duration.
func NewExamService(
	attempts *repository.AttemptRepository,
	questions *repository.QuestionRepository,
	queue *GradingQueue,
	duration time.Duration,
	clk clock.PassiveClock,
	log zerolog.Logger,
) *ExamService {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &ExamService{
		attempts:  attempts,
		questions: questions,
		queue:     queue,
		duration:  duration,
		clock:     clk,
		log:       log.With().Str("component", "exam_service").Logger(),
	}
}

// ─── Lifecycle ──────────────────────────────────────────────────────────────

// Start opens the user's single attempt and returns its state.
func (s *ExamService) Start(ctx context.Context, userID int) (*model.ExamState, error) {
	a, err := s.attempts.Create(ctx, userID, s.duration)
	if err != nil {
		if errors.Is(err, repository.ErrAttemptExists) {
			return nil, ErrAttemptExists
		}
		return nil, fmt.Errorf("create attempt: %w", err)
	}
	s.log.Info().Int("user_id", userID).Str("attempt_id", a.ID.String()).
		Time("ends_at", a.EndsAt).Msg("Attempt started")
	return s.buildState(ctx, a)
}

// GetState returns the user's attempt. An in-progress attempt past its
// deadline is timed out first.
func (s *ExamService) GetState(ctx context.Context, userID int) (*model.ExamState, error) {
	a, err := s.attemptOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	if a.Overdue(s.clock.Now()) {
		if err := s.timeOut(ctx, a); err != nil {
			return nil, err
		}
	}
	return s.buildState(ctx, a)
}

// SaveAnswer stores the selected option of a multiple-choice question.
// A nil index clears the selection.
func (s *ExamService) SaveAnswer(ctx context.Context, userID int, questionID int64, selected *int) error {
	a, err := s.openAttempt(ctx, userID)
	if err != nil {
		return err
	}

	found, err := s.questions.GetByIDs(ctx, []int64{questionID})
	if err != nil {
		return fmt.Errorf("get question: %w", err)
	}
	q, ok := found[questionID]
	if !ok || !q.Published || (q.Subject != model.BlockMath && q.Subject != model.BlockRu) {
		return ErrUnknownItem
	}
	if selected != nil && (*selected < 0 || *selected >= len(q.Options)) {
		return ErrInvalidOption
	}

	if err := s.attempts.UpsertAnswer(ctx, a.ID, questionID, selected); err != nil {
		return fmt.Errorf("save answer: %w", err)
	}
	return nil
}

// SaveDraft replaces the draft of a programming task.
func (s *ExamService) SaveDraft(ctx context.Context, userID int, taskID int64, draft model.Draft) error {
	a, err := s.openAttempt(ctx, userID)
	if err != nil {
		return err
	}

	found, err := s.questions.GetTasksByIDs(ctx, []int64{taskID})
	if err != nil {
		return fmt.Errorf("get task: %w", err)
	}
	if t, ok := found[taskID]; !ok || !t.Published {
		return ErrUnknownItem
	}

	if err := s.attempts.UpsertDraft(ctx, a.ID, taskID, draft); err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

// Submit closes the attempt and queues it for grading.
func (s *ExamService) Submit(ctx context.Context, userID int) error {
	a, err := s.openAttempt(ctx, userID)
	if err != nil {
		return err
	}

	closed, err := s.attempts.Close(ctx, a.ID, model.AttemptStatusSubmitted)
	if err != nil {
		return fmt.Errorf("submit attempt: %w", err)
	}
	if !closed {
		return ErrAttemptClosed
	}
	s.log.Info().Int("user_id", userID).Str("attempt_id", a.ID.String()).Msg("Attempt submitted")
	s.enqueue(ctx, a.ID)
	return nil
}

// Result returns the graded result. Until the grading worker has stored
// scores the call returns ErrResultNotReady.
func (s *ExamService) Result(ctx context.Context, userID int) (*model.Result, error) {
	a, err := s.attemptOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	if a.Overdue(s.clock.Now()) {
		if err := s.timeOut(ctx, a); err != nil {
			return nil, err
		}
	}
	if !a.Status.IsTerminal() || a.GradedAt == nil {
		return nil, ErrResultNotReady
	}

	var (
		answers []model.AnswerRow
		drafts  []model.DraftRow
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		answers, err = s.attempts.ListAnswers(gctx, a.ID)
		return err
	})
	g.Go(func() (err error) {
		drafts, err = s.attempts.ListDrafts(gctx, a.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load verdicts: %w", err)
	}

	res := &model.Result{
		AttemptID:   a.ID,
		Status:      a.Status,
		ScoreBlocks: make(map[model.Block]int, len(model.Blocks)),
		PerQuestion: make(map[int64]bool, len(answers)),
		PerTask:     make(map[int64]bool, len(drafts)),
		GradedAt:    a.GradedAt,
	}
	if a.ScoreTotal != nil {
		res.ScoreTotal = *a.ScoreTotal
	}
	for _, b := range model.Blocks {
		res.ScoreBlocks[b] = a.ScoreBlocks[b]
	}
	for _, row := range answers {
		res.PerQuestion[row.QuestionID] = row.IsCorrect != nil && *row.IsCorrect
	}
	for _, row := range drafts {
		res.PerTask[row.TaskID] = row.IsCorrect != nil && *row.IsCorrect
	}
	return res, nil
}

// ─── Internal helpers ───────────────────────────────────────────────────────

func (s *ExamService) attemptOf(ctx context.Context, userID int) (*model.Attempt, error) {
	a, err := s.attempts.GetByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	return a, nil
}

// openAttempt returns the user's attempt when it still accepts writes.
func (s *ExamService) openAttempt(ctx context.Context, userID int) (*model.Attempt, error) {
	a, err := s.attemptOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	if a.Status != model.AttemptStatusInProgress {
		return nil, ErrAttemptClosed
	}
	if a.Overdue(s.clock.Now()) {
		if err := s.timeOut(ctx, a); err != nil {
			return nil, err
		}
		if a.Status == model.AttemptStatusTimedOut {
			return nil, ErrAttemptTimeOver
		}
		return nil, ErrAttemptClosed
	}
	return a, nil
}

// timeOut flips an overdue attempt to timed_out and queues it for grading.
// a is updated in place.
func (s *ExamService) timeOut(ctx context.Context, a *model.Attempt) error {
	closed, err := s.attempts.Close(ctx, a.ID, model.AttemptStatusTimedOut)
	if err != nil {
		return fmt.Errorf("time out attempt: %w", err)
	}
	if !closed {
		// Closed concurrently; re-read the winner.
		fresh, err := s.attempts.GetByID(ctx, a.ID)
		if err != nil {
			return fmt.Errorf("reload attempt: %w", err)
		}
		*a = *fresh
		return nil
	}
	now := s.clock.Now()
	a.Status = model.AttemptStatusTimedOut
	a.SubmittedAt = &now
	s.log.Info().Str("attempt_id", a.ID.String()).Msg("Attempt timed out")
	s.enqueue(ctx, a.ID)
	return nil
}

// enqueue logs instead of failing: the grading worker picks up ungraded
// attempts again on startup.
func (s *ExamService) enqueue(ctx context.Context, id uuid.UUID) {
	if err := s.queue.Enqueue(ctx, id); err != nil {
		s.log.Error().Err(err).Str("attempt_id", id.String()).Msg("Failed to enqueue grading")
	}
}

func (s *ExamService) buildState(ctx context.Context, a *model.Attempt) (*model.ExamState, error) {
	var (
		math, ru []model.Question
		tasks    []model.ProgTask
		answers  []model.AnswerRow
		drafts   []model.DraftRow
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		math, err = s.questions.ListPublished(gctx, model.BlockMath)
		return err
	})
	g.Go(func() (err error) {
		ru, err = s.questions.ListPublished(gctx, model.BlockRu)
		return err
	})
	g.Go(func() (err error) {
		tasks, err = s.questions.ListPublishedTasks(gctx)
		return err
	})
	g.Go(func() (err error) {
		answers, err = s.attempts.ListAnswers(gctx, a.ID)
		return err
	})
	g.Go(func() (err error) {
		drafts, err = s.attempts.ListDrafts(gctx, a.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load exam state: %w", err)
	}

	return assembleState(a, math, ru, tasks, answers, drafts), nil
}

// assembleState builds the client view of an attempt from stored rows.
func assembleState(
	a *model.Attempt,
	math, ru []model.Question,
	tasks []model.ProgTask,
	answers []model.AnswerRow,
	drafts []model.DraftRow,
) *model.ExamState {
	st := &model.ExamState{
		AttemptID:     a.ID,
		Status:        a.Status,
		StartedAt:     a.StartedAt,
		EndsAt:        a.EndsAt,
		MathQuestions: make([]model.QuestionView, 0, len(math)),
		RuQuestions:   make([]model.QuestionView, 0, len(ru)),
		ProgTasks:     make([]model.ProgTaskView, 0, len(tasks)),
		Answers:       make(map[int64]*int, len(answers)),
		Drafts:        make(map[int64]model.Draft, len(drafts)),
	}
	for _, q := range math {
		st.MathQuestions = append(st.MathQuestions, q.View())
	}
	for _, q := range ru {
		st.RuQuestions = append(st.RuQuestions, q.View())
	}
	for _, t := range tasks {
		st.ProgTasks = append(st.ProgTasks, t.View())
	}
	for _, row := range answers {
		st.Answers[row.QuestionID] = row.SelectedIndex
	}
	for _, row := range drafts {
		st.Drafts[row.TaskID] = model.Draft{Language: row.Language, Code: row.Code}
	}
	return st
}
