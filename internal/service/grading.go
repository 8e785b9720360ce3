package service

import (
	"github.com/stemsi/exstem-attempt/internal/model"
)

// Grade is the outcome of grading one attempt.
type Grade struct {
	PerQuestion map[int64]bool
	PerTask     map[int64]bool
	Blocks      map[model.Block]int
	Total       int
}

// GradeAttempt scores stored answers and drafts.
//
// A multiple-choice answer is correct when it selects the question's
// correct_index. A draft is correct only when the judge marked it so and it
// has code; drafts the judge never saw count as wrong. Rows for unknown
// questions or tasks are skipped.
func GradeAttempt(
	questions map[int64]model.Question,
	tasks map[int64]model.ProgTask,
	answers []model.AnswerRow,
	drafts []model.DraftRow,
) Grade {
	g := Grade{
		PerQuestion: make(map[int64]bool, len(answers)),
		PerTask:     make(map[int64]bool, len(drafts)),
		Blocks:      make(map[model.Block]int, len(model.Blocks)),
	}
	for _, b := range model.Blocks {
		g.Blocks[b] = 0
	}

	for _, a := range answers {
		q, ok := questions[a.QuestionID]
		if !ok {
			continue
		}
		correct := a.SelectedIndex != nil && *a.SelectedIndex == q.CorrectIndex
		g.PerQuestion[a.QuestionID] = correct
		if correct && (q.Subject == model.BlockMath || q.Subject == model.BlockRu) {
			g.Blocks[q.Subject] += q.Points
		}
	}

	for _, d := range drafts {
		t, ok := tasks[d.TaskID]
		if !ok {
			continue
		}
		correct := d.Code != "" && d.Language != "" && d.IsCorrect != nil && *d.IsCorrect
		g.PerTask[d.TaskID] = correct
		if correct {
			g.Blocks[model.BlockProg] += t.Points
		}
	}

	for _, pts := range g.Blocks {
		g.Total += pts
	}
	return g
}
