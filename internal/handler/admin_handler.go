package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/response"
	"github.com/stemsi/exstem-attempt/internal/service"
	"github.com/stemsi/exstem-attempt/internal/validator"
)

// AdminService is the content and judge API used by AdminHandler.
type AdminService interface {
	ListQuestions(ctx context.Context) ([]model.QuestionAdminView, error)
	CreateQuestion(ctx context.Context, req *model.QuestionRequest) (*model.QuestionAdminView, error)
	ListTasks(ctx context.Context) ([]model.TaskAdminView, error)
	CreateTask(ctx context.Context, req *model.TaskRequest) (*model.TaskAdminView, error)
	TogglePublished(ctx context.Context, entity string, id int64) (bool, error)
	RecordVerdict(ctx context.Context, attemptID uuid.UUID, taskID int64, correct bool) error
	Stats(ctx context.Context) (*model.AttemptStats, error)
}

// AdminHandler handles content management and the judge callback.
type AdminHandler struct {
	adminService AdminService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(adminService AdminService) *AdminHandler {
	return &AdminHandler{adminService: adminService}
}

// ListQuestions godoc
// GET /api/v1/admin/questions
func (h *AdminHandler) ListQuestions(c *gin.Context) {
	questions, err := h.adminService.ListQuestions(c.Request.Context())
	if err != nil {
		h.internal(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"questions": questions})
}

// CreateQuestion godoc
// POST /api/v1/admin/questions
func (h *AdminHandler) CreateQuestion(c *gin.Context) {
	var req model.QuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	q, err := h.adminService.CreateQuestion(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrCorrectIndexOutRange) {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
				map[string]string{"correct_index": err.Error()})
			return
		}
		h.internal(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"question": q})
}

// ListTasks godoc
// GET /api/v1/admin/prog_tasks
func (h *AdminHandler) ListTasks(c *gin.Context) {
	tasks, err := h.adminService.ListTasks(c.Request.Context())
	if err != nil {
		h.internal(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"prog_tasks": tasks})
}

// CreateTask godoc
// POST /api/v1/admin/prog_tasks
func (h *AdminHandler) CreateTask(c *gin.Context) {
	var req model.TaskRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	t, err := h.adminService.CreateTask(c.Request.Context(), &req)
	if err != nil {
		h.internal(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"prog_task": t})
}

// TogglePublished godoc
// POST /api/v1/admin/publish/:entity/:id
// entity is questions or prog_tasks.
func (h *AdminHandler) TogglePublished(c *gin.Context) {
	id, ok := parseItemID(c, "id")
	if !ok {
		return
	}

	published, err := h.adminService.TogglePublished(c.Request.Context(), c.Param("entity"), id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		h.internal(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"id": id, "published": published})
}

// RecordVerdict godoc
// PUT /api/v1/admin/attempts/:attempt_id/prog/:task_id/verdict
// Body: {"is_correct": true}. Called by the code judge.
func (h *AdminHandler) RecordVerdict(c *gin.Context) {
	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}
	taskID, ok := parseItemID(c, "task_id")
	if !ok {
		return
	}

	var req model.VerdictRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.adminService.RecordVerdict(c.Request.Context(), attemptID, taskID, *req.IsCorrect); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		h.internal(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "ok"})
}

// Stats godoc
// GET /api/v1/admin/stats
func (h *AdminHandler) Stats(c *gin.Context) {
	st, err := h.adminService.Stats(c.Request.Context())
	if err != nil {
		h.internal(c, err)
		return
	}
	response.Success(c, http.StatusOK, st)
}

func (h *AdminHandler) internal(c *gin.Context, err error) {
	zerolog.Ctx(c.Request.Context()).Error().Err(err).Str("path", c.FullPath()).Msg("Admin request failed")
	response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
}
