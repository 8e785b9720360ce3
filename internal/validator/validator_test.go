package validator

import (
	"testing"

	"github.com/gin-gonic/gin/binding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-attempt/internal/model"
)

func init() {
	Setup()
}

func TestValidPhone(t *testing.T) {
	assert.True(t, ValidPhone("+7 (999) 123-45-67"))
	assert.True(t, ValidPhone("89991234567"))
	assert.False(t, ValidPhone("12345"))
	assert.False(t, ValidPhone("+7 999 abc 45 67"))
	assert.Equal(t, "+79991234567", NormalizePhone(" +7 (999) 123-45-67 "))
}

func TestRegisterRequestValidation(t *testing.T) {
	req := model.RegisterRequest{
		LastName:  "Иванов",
		FirstName: "Иван",
		Phone:     "+79991234567",
		Faculty:   "ИТ",
	}
	require.NoError(t, binding.Validator.ValidateStruct(&req))

	req.Phone = "call me"
	err := binding.Validator.ValidateStruct(&req)
	require.Error(t, err)

	fields := TranslateErrors(err)
	assert.Contains(t, fields, "phone")
	assert.Contains(t, fields["phone"], "phone number")
}

func TestDraftRequestLanguage(t *testing.T) {
	require.NoError(t, binding.Validator.ValidateStruct(&model.DraftRequest{Language: "cpp", Code: "int main(){}"}))

	err := binding.Validator.ValidateStruct(&model.DraftRequest{Language: "rust"})
	require.Error(t, err)
	assert.Contains(t, TranslateErrors(err)["language"], "python, cpp, node")
}

func TestAnswerRequestRejectsNegativeIndex(t *testing.T) {
	neg := -1
	require.NoError(t, binding.Validator.ValidateStruct(&model.AnswerRequest{}))
	require.Error(t, binding.Validator.ValidateStruct(&model.AnswerRequest{SelectedIndex: &neg}))
}
