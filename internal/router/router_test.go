package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/handler"
	"github.com/stemsi/exstem-attempt/internal/response"
	"github.com/stemsi/exstem-attempt/internal/service"
)

type stubAuth struct{}

func (stubAuth) ValidateToken(tok string) (*service.Claims, error) {
	switch tok {
	case "user":
		return &service.Claims{UserID: 1}, nil
	case "admin":
		return &service.Claims{UserID: 2, IsAdmin: true}, nil
	}
	return nil, errors.New("bad token")
}

func (stubAuth) ValidateUserSession(context.Context, int, string) error { return nil }

func testRouter() *gin.Engine {
	cfg := &config.Config{GinMode: gin.TestMode}
	handlers := &Handlers{
		Auth:  handler.NewAuthHandler(nil),
		Exam:  handler.NewExamHandler(nil),
		Admin: handler.NewAdminHandler(nil),
	}
	return SetupRouter(stubAuth{}, nil, handlers, cfg, zerolog.Nop())
}

func serve(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthCarriesRequestID(t *testing.T) {
	r := testRouter()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(response.HeaderRequestID, "req-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-123", w.Header().Get(response.HeaderRequestID))

	var env response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, "req-123", env.Metadata.RequestID)
}

func TestExamRoutesRequireToken(t *testing.T) {
	r := testRouter()
	for _, path := range []string{"/api/v1/exam/state", "/api/v1/exam/result"} {
		w := serve(r, http.MethodGet, path, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
	w := serve(r, http.MethodPost, "/api/v1/exam/submit", "garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	r := testRouter()

	w := serve(r, http.MethodGet, "/api/v1/admin/stats", "user")
	assert.Equal(t, http.StatusForbidden, w.Code)

	var env response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.NotNil(t, env.Error)
	assert.Equal(t, response.ErrAdminOnly, env.Error.Code)
}
