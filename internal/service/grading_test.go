package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stemsi/exstem-attempt/internal/model"
)

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func TestGradeAttemptScoresBlocks(t *testing.T) {
	questions := map[int64]model.Question{
		1: {ID: 1, Subject: model.BlockMath, CorrectIndex: 2, Points: 3},
		2: {ID: 2, Subject: model.BlockMath, CorrectIndex: 0, Points: 3},
		3: {ID: 3, Subject: model.BlockRu, CorrectIndex: 1, Points: 2},
	}
	tasks := map[int64]model.ProgTask{
		10: {ID: 10, Points: 10},
		11: {ID: 11, Points: 15},
		12: {ID: 12, Points: 20},
	}
	answers := []model.AnswerRow{
		{QuestionID: 1, SelectedIndex: intPtr(2)},
		{QuestionID: 2, SelectedIndex: nil},
		{QuestionID: 3, SelectedIndex: intPtr(1)},
	}
	drafts := []model.DraftRow{
		{TaskID: 10, Language: "python", Code: "print(1)", IsCorrect: boolPtr(true)},
		{TaskID: 11, Language: "cpp", Code: "int main(){}", IsCorrect: nil},
		{TaskID: 12, Language: "node", Code: "", IsCorrect: boolPtr(true)},
	}

	g := GradeAttempt(questions, tasks, answers, drafts)

	assert.Equal(t, map[int64]bool{1: true, 2: false, 3: true}, g.PerQuestion)
	assert.Equal(t, map[int64]bool{10: true, 11: false, 12: false}, g.PerTask)
	assert.Equal(t, map[model.Block]int{model.BlockMath: 3, model.BlockRu: 2, model.BlockProg: 10}, g.Blocks)
	assert.Equal(t, 15, g.Total)
}

func TestGradeAttemptEmptyAttemptHasZeroBlocks(t *testing.T) {
	g := GradeAttempt(nil, nil, nil, nil)

	assert.Empty(t, g.PerQuestion)
	assert.Empty(t, g.PerTask)
	assert.Equal(t, map[model.Block]int{model.BlockMath: 0, model.BlockRu: 0, model.BlockProg: 0}, g.Blocks)
	assert.Zero(t, g.Total)
}

func TestGradeAttemptSkipsUnknownItems(t *testing.T) {
	g := GradeAttempt(
		map[int64]model.Question{},
		map[int64]model.ProgTask{},
		[]model.AnswerRow{{QuestionID: 99, SelectedIndex: intPtr(0)}},
		[]model.DraftRow{{TaskID: 98, Language: "python", Code: "x", IsCorrect: boolPtr(true)}},
	)

	assert.NotContains(t, g.PerQuestion, int64(99))
	assert.NotContains(t, g.PerTask, int64(98))
	assert.Zero(t, g.Total)
}
