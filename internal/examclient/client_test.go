package examclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/response"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func writeData(t *testing.T, w http.ResponseWriter, status int, data any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(response.Response{Data: data}))
}

func writeError(t *testing.T, w http.ResponseWriter, code response.ErrCode) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(response.HTTPStatus(code))
	require.NoError(t, json.NewEncoder(w).Encode(response.Response{
		Error: &response.ErrorBody{Code: code, Message: response.GetMessage(code)},
	}))
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL, srv.Client(), zerolog.Nop())
}

func TestFetchStateSendsTokenAndDecodesEnvelope(t *testing.T) {
	id := uuid.New()
	idx := 2
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/exam/state", r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get(response.HeaderRequestID))
		writeData(t, w, http.StatusOK, model.ExamState{
			AttemptID:     id,
			Status:        model.AttemptStatusInProgress,
			EndsAt:        time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC),
			MathQuestions: []model.QuestionView{{ID: 7, Text: "2+2", Options: []string{"3", "4", "5"}, Points: 1}},
			Answers:       map[int64]*int{7: &idx},
			Drafts:        map[int64]model.Draft{3: {Language: "cpp", Code: "int main(){}"}},
		})
	})
	c.SetToken("tok-1")

	state, err := c.FetchState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, id, state.AttemptID)
	assert.Equal(t, model.AttemptStatusInProgress, state.Status)
	require.Contains(t, state.Answers, int64(7))
	assert.Equal(t, 2, *state.Answers[7])
	assert.Equal(t, model.Draft{Language: "cpp", Code: "int main(){}"}, state.Drafts[3])
}

func TestErrorCodesMapToSentinels(t *testing.T) {
	cases := []struct {
		code response.ErrCode
		want error
	}{
		{response.ErrAttemptNotFound, ErrNotFound},
		{response.ErrAttemptExists, ErrAlreadyExists},
		{response.ErrAttemptClosed, ErrNotInProgress},
		{response.ErrAttemptTimeOver, ErrNotInProgress},
		{response.ErrResultNotReady, ErrResultNotReady},
		{response.ErrTokenInvalid, ErrUnauthorized},
		{response.ErrSessionInvalidated, ErrUnauthorized},
	}
	for _, tc := range cases {
		t.Run(string(tc.code), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeError(t, w, tc.code)
			})
			_, err := c.FetchResult(context.Background())
			require.ErrorIs(t, err, tc.want)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tc.code, apiErr.Code)
			assert.False(t, IsRetryable(err))
		})
	}
}

func TestUnknownCodeIsPlainAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeError(t, w, response.ErrUnknownItem)
	})
	err := c.PutAnswer(context.Background(), 99, nil)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestBareUnauthorizedStatusMapsToUnauthorized(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	err := c.SubmitAttempt(context.Background())
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestServerErrorIsTransportFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeError(t, w, response.ErrInternal)
	})
	err := c.PutDraft(context.Background(), 1, model.Draft{Language: "python", Code: "print(1)"})
	require.ErrorIs(t, err, ErrTransport)
	assert.True(t, IsRetryable(err))

	var tErr *TransportError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, http.StatusInternalServerError, tErr.StatusCode)
}

func TestNetworkErrorIsTransportFailure(t *testing.T) {
	c := New("http://example.test", &http.Client{
		Transport: roundTripperFunc(func(*http.Request) (*http.Response, error) {
			return nil, errors.New("dial error")
		}),
	}, zerolog.Nop())

	err := c.SubmitAttempt(context.Background())
	require.ErrorIs(t, err, ErrTransport)
	assert.Contains(t, err.Error(), "dial error")
}

func TestCancelledContextIsNotTransportFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeData(t, w, http.StatusOK, nil)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.SubmitAttempt(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTransport)
}

func TestPutAnswerSendsNullForDeselection(t *testing.T) {
	var bodies []map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/v1/exam/answer/12", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		bodies = append(bodies, body)
		writeData(t, w, http.StatusOK, map[string]string{"status": "ok"})
	})

	one := 1
	require.NoError(t, c.PutAnswer(context.Background(), 12, &one))
	require.NoError(t, c.PutAnswer(context.Background(), 12, nil))

	require.Len(t, bodies, 2)
	assert.Equal(t, float64(1), bodies[0]["selected_index"])
	assert.Contains(t, bodies[1], "selected_index")
	assert.Nil(t, bodies[1]["selected_index"])
}

func TestPutDraftSendsWholeRecord(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/exam/draft/4", r.URL.Path)
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.JSONEq(t, `{"language":"node","code":""}`, string(raw))
		writeData(t, w, http.StatusOK, map[string]string{"status": "ok"})
	})
	require.NoError(t, c.PutDraft(context.Background(), 4, model.Draft{Language: "node"}))
}

func TestBrotliEncodedResponsesAreDecoded(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "br", r.Header.Get("Accept-Encoding"))
		w.Header().Set("Content-Encoding", "br")
		w.WriteHeader(http.StatusOK)
		bw := brotli.NewWriter(w)
		require.NoError(t, json.NewEncoder(bw).Encode(response.Response{Data: model.Result{
			Status:      model.AttemptStatusSubmitted,
			ScoreTotal:  9,
			ScoreBlocks: map[model.Block]int{model.BlockMath: 4, model.BlockRu: 5},
			PerQuestion: map[int64]bool{1: true},
		}}))
		require.NoError(t, bw.Close())
	})

	result, err := c.FetchResult(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9, result.ScoreTotal)
	assert.Equal(t, 5, result.ScoreBlocks[model.BlockRu])
	assert.True(t, result.PerQuestion[1])
}

func TestLoginStoresToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/login":
			var req model.LoginRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "+79991234567", req.Phone)
			writeData(t, w, http.StatusOK, model.TokenResponse{AccessToken: "jwt-abc", TokenType: "bearer"})
		case "/api/v1/auth/me":
			assert.Equal(t, "Bearer jwt-abc", r.Header.Get("Authorization"))
			writeData(t, w, http.StatusOK, model.User{ID: 5, Phone: "+79991234567"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	tok, err := c.Login(context.Background(), "+79991234567")
	require.NoError(t, err)
	assert.Equal(t, "jwt-abc", tok.AccessToken)
	assert.Equal(t, "jwt-abc", c.Token())

	me, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, me.ID)
}
