package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-attempt/internal/middleware"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/response"
	"github.com/stemsi/exstem-attempt/internal/service"
)

type fakeAuthService struct {
	registerErr error
	loginErr    error
	user        *model.User
	userErr     error
	gotPhone    string
}

func (f *fakeAuthService) Register(_ context.Context, req *model.RegisterRequest) (string, *model.User, error) {
	if f.registerErr != nil {
		return "", nil, f.registerErr
	}
	return "tok-" + req.Phone, &model.User{ID: 1, Phone: req.Phone}, nil
}

func (f *fakeAuthService) Login(_ context.Context, phone string) (string, *model.User, error) {
	f.gotPhone = phone
	if f.loginErr != nil {
		return "", nil, f.loginErr
	}
	return "tok-login", &model.User{ID: 1, Phone: phone}, nil
}

func (f *fakeAuthService) GetUser(_ context.Context, _ int) (*model.User, error) {
	return f.user, f.userErr
}

func authRouter(svc AuthService) *gin.Engine {
	h := NewAuthHandler(svc)
	r := gin.New()
	r.POST("/auth/register", h.Register)
	r.POST("/auth/login", h.Login)
	r.GET("/auth/me", func(c *gin.Context) {
		c.Set(middleware.ContextKeyClaims, &service.Claims{UserID: 1})
		c.Next()
	}, h.Me)
	return r
}

const validRegistration = `{"last_name":"Иванов","first_name":"Иван","phone":"+79991234567","faculty":"ИТ"}`

func TestRegisterIssuesToken(t *testing.T) {
	r := authRouter(&fakeAuthService{})

	w := do(r, http.MethodPost, "/auth/register", validRegistration)
	require.Equal(t, http.StatusCreated, w.Code)
	var tok model.TokenResponse
	assert.Nil(t, decodeEnvelope(t, w, &tok))
	assert.Equal(t, "tok-+79991234567", tok.AccessToken)
	assert.Equal(t, "bearer", tok.TokenType)
}

func TestRegisterErrors(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		err    error
		status int
		code   response.ErrCode
	}{
		{"invalid phone", `{"last_name":"A","first_name":"B","phone":"123","faculty":"ИТ"}`, nil, http.StatusBadRequest, response.ErrValidation},
		{"faculty", validRegistration, service.ErrInvalidFaculty, http.StatusBadRequest, response.ErrInvalidFaculty},
		{"duplicate", validRegistration, service.ErrPhoneTaken, http.StatusConflict, response.ErrPhoneTaken},
		{"internal", validRegistration, errors.New("db down"), http.StatusInternalServerError, response.ErrInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := authRouter(&fakeAuthService{registerErr: tc.err})
			w := do(r, http.MethodPost, "/auth/register", tc.body)
			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.code, decodeEnvelope(t, w, nil).Code)
		})
	}
}

func TestLogin(t *testing.T) {
	svc := &fakeAuthService{}
	r := authRouter(svc)

	w := do(r, http.MethodPost, "/auth/login", `{"phone":"8 999 123 45 67"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "8 999 123 45 67", svc.gotPhone)

	svc.loginErr = service.ErrInvalidCredentials
	w = do(r, http.MethodPost, "/auth/login", `{"phone":"+79990000000"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, response.ErrInvalidCredentials, decodeEnvelope(t, w, nil).Code)
}

func TestMe(t *testing.T) {
	svc := &fakeAuthService{user: &model.User{ID: 1, FirstName: "Иван", PasswordHash: "secret"}}
	r := authRouter(svc)

	w := do(r, http.MethodGet, "/auth/me", "")
	require.Equal(t, http.StatusOK, w.Code)
	var u model.User
	decodeEnvelope(t, w, &u)
	assert.Equal(t, "Иван", u.FirstName)
	assert.NotContains(t, w.Body.String(), "secret")

	svc.user, svc.userErr = nil, pgx.ErrNoRows
	w = do(r, http.MethodGet, "/auth/me", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
