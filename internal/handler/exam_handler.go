package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-attempt/internal/middleware"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/response"
	"github.com/stemsi/exstem-attempt/internal/service"
	"github.com/stemsi/exstem-attempt/internal/validator"
)

// ExamService is the attempt lifecycle used by ExamHandler.
type ExamService interface {
	Start(ctx context.Context, userID int) (*model.ExamState, error)
	GetState(ctx context.Context, userID int) (*model.ExamState, error)
	SaveAnswer(ctx context.Context, userID int, questionID int64, selected *int) error
	SaveDraft(ctx context.Context, userID int, taskID int64, draft model.Draft) error
	Submit(ctx context.Context, userID int) error
	Result(ctx context.Context, userID int) (*model.Result, error)
}

// ExamHandler handles the test-taker's attempt endpoints.
type ExamHandler struct {
	examService ExamService
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(examService ExamService) *ExamHandler {
	return &ExamHandler{examService: examService}
}

// Start godoc
// POST /api/v1/exam/start
// Opens the caller's only attempt and returns its state.
func (h *ExamHandler) Start(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	state, err := h.examService.Start(c.Request.Context(), claims.UserID)
	if err != nil {
		failExam(c, err)
		return
	}
	response.Success(c, http.StatusCreated, state)
}

// GetState godoc
// GET /api/v1/exam/state
// Returns questions, tasks, saved answers and drafts of the caller's attempt.
func (h *ExamHandler) GetState(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	state, err := h.examService.GetState(c.Request.Context(), claims.UserID)
	if err != nil {
		failExam(c, err)
		return
	}
	response.Success(c, http.StatusOK, state)
}

// SaveAnswer godoc
// PUT /api/v1/exam/answer/:question_id
// Body: {"selected_index": 2} or {"selected_index": null}
func (h *ExamHandler) SaveAnswer(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	questionID, ok := parseItemID(c, "question_id")
	if !ok {
		return
	}

	var req model.AnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.examService.SaveAnswer(c.Request.Context(), claims.UserID, questionID, req.SelectedIndex); err != nil {
		failExam(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "ok"})
}

// SaveDraft godoc
// PUT /api/v1/exam/draft/:task_id
// Body: {"language": "python", "code": "..."}
func (h *ExamHandler) SaveDraft(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	taskID, ok := parseItemID(c, "task_id")
	if !ok {
		return
	}

	var req model.DraftRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	draft := model.Draft{Language: req.Language, Code: req.Code}
	if err := h.examService.SaveDraft(c.Request.Context(), claims.UserID, taskID, draft); err != nil {
		failExam(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "ok"})
}

// Submit godoc
// POST /api/v1/exam/submit
func (h *ExamHandler) Submit(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	if err := h.examService.Submit(c.Request.Context(), claims.UserID); err != nil {
		failExam(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": model.AttemptStatusSubmitted})
}

// GetResult godoc
// GET /api/v1/exam/result
// Returns RESULT_NOT_READY until grading has finished.
func (h *ExamHandler) GetResult(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	res, err := h.examService.Result(c.Request.Context(), claims.UserID)
	if err != nil {
		failExam(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func parseItemID(c *gin.Context, param string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(param), 10, 64)
	if err != nil || id <= 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return 0, false
	}
	return id, true
}

// examErrCode maps service errors to API error codes. Unknown errors map
// to ErrInternal.
func examErrCode(err error) response.ErrCode {
	switch {
	case errors.Is(err, service.ErrAttemptNotFound):
		return response.ErrAttemptNotFound
	case errors.Is(err, service.ErrAttemptExists):
		return response.ErrAttemptExists
	case errors.Is(err, service.ErrAttemptClosed):
		return response.ErrAttemptClosed
	case errors.Is(err, service.ErrAttemptTimeOver):
		return response.ErrAttemptTimeOver
	case errors.Is(err, service.ErrUnknownItem):
		return response.ErrUnknownItem
	case errors.Is(err, service.ErrResultNotReady):
		return response.ErrResultNotReady
	case errors.Is(err, service.ErrInvalidOption):
		return response.ErrValidation
	default:
		return response.ErrInternal
	}
}

func failExam(c *gin.Context, err error) {
	code := examErrCode(err)
	switch code {
	case response.ErrInternal:
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Str("path", c.FullPath()).Msg("Exam request failed")
	case response.ErrValidation:
		response.FailWithFields(c, response.HTTPStatus(code), code, map[string]string{"selected_index": err.Error()})
		return
	}
	response.Fail(c, response.HTTPStatus(code), code)
}
