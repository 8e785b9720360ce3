package model

// Question is a published multiple-choice question as stored by the exam API.
type Question struct {
	ID           int64    `json:"id"`
	Subject      Block    `json:"subject"`
	Text         string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"-"`
	Points       int      `json:"points"`
	Published    bool     `json:"-"`
}

// View strips the answer key for delivery to a test-taker.
func (q Question) View() QuestionView {
	return QuestionView{ID: q.ID, Text: q.Text, Options: q.Options, Points: q.Points}
}

// QuestionView is a question as shown inside an attempt.
type QuestionView struct {
	ID      int64    `json:"id"`
	Text    string   `json:"question"`
	Options []string `json:"options"`
	Points  int      `json:"points"`
}

// ProgTask is a programming task. Test cases live with the external judge.
type ProgTask struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Statement string `json:"statement"`
	Points    int    `json:"points"`
	Published bool   `json:"-"`
}

// View returns the task as shown inside an attempt.
func (t ProgTask) View() ProgTaskView {
	return ProgTaskView{ID: t.ID, Title: t.Title, Statement: t.Statement, Points: t.Points}
}

// ProgTaskView is a programming task as shown inside an attempt.
type ProgTaskView struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Statement string `json:"statement"`
	Points    int    `json:"points"`
}
