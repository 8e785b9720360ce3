package model

// QuestionRequest is the payload for creating a multiple-choice question.
type QuestionRequest struct {
	Subject      Block    `json:"subject" binding:"required,oneof=math ru"`
	Text         string   `json:"question" binding:"required"`
	Options      []string `json:"options" binding:"required,min=2,dive,required"`
	CorrectIndex int      `json:"correct_index" binding:"min=0"`
	Points       int      `json:"points" binding:"min=0"`
	Published    bool     `json:"published"`
}

// TaskRequest is the payload for creating a programming task.
type TaskRequest struct {
	Title     string `json:"title" binding:"required,max=255"`
	Statement string `json:"statement" binding:"required"`
	Points    int    `json:"points" binding:"min=0"`
	Published bool   `json:"published"`
}

// VerdictRequest carries the judge's verdict for one programming draft.
type VerdictRequest struct {
	IsCorrect *bool `json:"is_correct" binding:"required"`
}

// QuestionAdminView is a question including its answer key.
type QuestionAdminView struct {
	Question
	CorrectIndex int  `json:"correct_index"`
	Published    bool `json:"published"`
}

// TaskAdminView is a programming task including its publish flag.
type TaskAdminView struct {
	ProgTask
	Published bool `json:"published"`
}

// AttemptStats counts attempts by status.
type AttemptStats struct {
	Total      int `json:"total"`
	InProgress int `json:"in_progress"`
	Submitted  int `json:"submitted"`
	TimedOut   int `json:"timed_out"`
	Graded     int `json:"graded"`
	Users      int `json:"users"`
}
