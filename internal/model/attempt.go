package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates attempt lifecycle states.
type AttemptStatus string

const (
	AttemptStatusNotStarted AttemptStatus = "not_started"
	AttemptStatusInProgress AttemptStatus = "in_progress"
	AttemptStatusSubmitted  AttemptStatus = "submitted"
	AttemptStatusTimedOut   AttemptStatus = "timed_out"
)

// IsTerminal reports whether no further transition can leave this status.
func (s AttemptStatus) IsTerminal() bool {
	return s == AttemptStatusSubmitted || s == AttemptStatusTimedOut
}

// CanTransitionTo reports whether moving from s to next is a forward step.
func (s AttemptStatus) CanTransitionTo(next AttemptStatus) bool {
	switch s {
	case AttemptStatusNotStarted:
		return next == AttemptStatusInProgress
	case AttemptStatusInProgress:
		return next == AttemptStatusSubmitted || next == AttemptStatusTimedOut
	default:
		return false
	}
}

// Block identifies one of the three subject blocks of the exam.
type Block string

const (
	BlockProg Block = "prog"
	BlockMath Block = "math"
	BlockRu   Block = "ru"
)

// Blocks lists the exam blocks in display order.
var Blocks = []Block{BlockProg, BlockMath, BlockRu}

// Languages accepted for programming drafts.
const (
	LanguagePython = "python"
	LanguageCpp    = "cpp"
	LanguageNode   = "node"

	DefaultLanguage = LanguagePython
)

// IsSupportedLanguage reports whether lang can be stored on a draft.
func IsSupportedLanguage(lang string) bool {
	switch lang {
	case LanguagePython, LanguageCpp, LanguageNode:
		return true
	}
	return false
}

// Draft is a saved, in-progress code solution for a programming task.
type Draft struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

// ExamState is the full attempt snapshot returned by the exam API.
// Answers and Drafts are keyed by question/task id.
type ExamState struct {
	AttemptID     uuid.UUID       `json:"attempt_id"`
	Status        AttemptStatus   `json:"status"`
	StartedAt     time.Time       `json:"started_at"`
	EndsAt        time.Time       `json:"ends_at"`
	MathQuestions []QuestionView  `json:"math_questions"`
	RuQuestions   []QuestionView  `json:"ru_questions"`
	ProgTasks     []ProgTaskView  `json:"prog_tasks"`
	Answers       map[int64]*int  `json:"answers"`
	Drafts        map[int64]Draft `json:"drafts"`
}

// Questions returns the multiple-choice questions of a block, nil for prog.
func (s *ExamState) Questions(b Block) []QuestionView {
	switch b {
	case BlockMath:
		return s.MathQuestions
	case BlockRu:
		return s.RuQuestions
	}
	return nil
}

// FindQuestion looks a multiple-choice question up across both MC blocks.
func (s *ExamState) FindQuestion(id int64) (QuestionView, Block, bool) {
	for _, b := range []Block{BlockMath, BlockRu} {
		for _, q := range s.Questions(b) {
			if q.ID == id {
				return q, b, true
			}
		}
	}
	return QuestionView{}, "", false
}

// FindTask looks a programming task up by id.
func (s *ExamState) FindTask(id int64) (ProgTaskView, bool) {
	for _, t := range s.ProgTasks {
		if t.ID == id {
			return t, true
		}
	}
	return ProgTaskView{}, false
}

// Clone returns a deep copy so callers can't mutate the owner's records.
func (s *ExamState) Clone() *ExamState {
	if s == nil {
		return nil
	}
	out := *s
	out.MathQuestions = append([]QuestionView(nil), s.MathQuestions...)
	out.RuQuestions = append([]QuestionView(nil), s.RuQuestions...)
	out.ProgTasks = append([]ProgTaskView(nil), s.ProgTasks...)
	out.Answers = CloneAnswers(s.Answers)
	out.Drafts = make(map[int64]Draft, len(s.Drafts))
	for k, v := range s.Drafts {
		out.Drafts[k] = v
	}
	return &out
}

// CloneAnswers copies an answer record including the pointed-to indexes.
func CloneAnswers(in map[int64]*int) map[int64]*int {
	out := make(map[int64]*int, len(in))
	for k, v := range in {
		if v == nil {
			out[k] = nil
			continue
		}
		idx := *v
		out[k] = &idx
	}
	return out
}

// Result is the terminal grading payload of an attempt.
type Result struct {
	AttemptID   uuid.UUID      `json:"attempt_id"`
	Status      AttemptStatus  `json:"status"`
	ScoreTotal  int            `json:"score_total"`
	ScoreBlocks map[Block]int  `json:"score_blocks"`
	PerQuestion map[int64]bool `json:"per_question"`
	PerTask     map[int64]bool `json:"per_task"`
	GradedAt    *time.Time     `json:"graded_at,omitempty"`
}

// AnswerRequest is the payload for saving a single multiple-choice answer.
// A null selected_index records a deselection.
type AnswerRequest struct {
	SelectedIndex *int `json:"selected_index" binding:"omitempty,min=0"`
}

// DraftRequest is the payload for saving a programming draft.
type DraftRequest struct {
	Language string `json:"language" binding:"required,language"`
	Code     string `json:"code" binding:"max=65536"`
}

// Attempt is the stored attempt row.
type Attempt struct {
	ID          uuid.UUID     `json:"attempt_id"`
	UserID      int           `json:"user_id"`
	Status      AttemptStatus `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	EndsAt      time.Time     `json:"ends_at"`
	SubmittedAt *time.Time    `json:"submitted_at,omitempty"`
	ScoreTotal  *int          `json:"score_total,omitempty"`
	ScoreBlocks map[Block]int `json:"score_blocks,omitempty"`
	GradedAt    *time.Time    `json:"graded_at,omitempty"`
}

// Overdue reports whether an in-progress attempt has passed its deadline.
func (a *Attempt) Overdue(now time.Time) bool {
	return a.Status == AttemptStatusInProgress && !now.Before(a.EndsAt)
}

// AnswerRow is a stored multiple-choice answer.
type AnswerRow struct {
	QuestionID    int64
	SelectedIndex *int
	IsCorrect     *bool
}

// DraftRow is a stored programming draft. IsCorrect is set by the judge.
type DraftRow struct {
	TaskID    int64
	Language  string
	Code      string
	IsCorrect *bool
}

// GradeJob is the queue payload asking the grading worker to score an attempt.
type GradeJob struct {
	AttemptID uuid.UUID `json:"attempt_id"`
}
