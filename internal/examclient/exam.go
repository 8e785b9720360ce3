package examclient

import (
	"context"
	"net/http"
	"strconv"

	"github.com/stemsi/exstem-attempt/internal/model"
)

// FetchState returns the caller's attempt. ErrNotFound means no attempt exists.
func (c *Client) FetchState(ctx context.Context) (*model.ExamState, error) {
	var state model.ExamState
	if err := c.doJSON(ctx, http.MethodGet, "/exam/state", nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// CreateAttempt starts the caller's attempt. ErrAlreadyExists means one is
// already open and the caller should re-fetch.
func (c *Client) CreateAttempt(ctx context.Context) (*model.ExamState, error) {
	var state model.ExamState
	if err := c.doJSON(ctx, http.MethodPost, "/exam/start", nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// PutAnswer replaces the answer for a question. A nil index clears it.
func (c *Client) PutAnswer(ctx context.Context, questionID int64, selectedIndex *int) error {
	path := "/exam/answer/" + strconv.FormatInt(questionID, 10)
	return c.doJSON(ctx, http.MethodPut, path, model.AnswerRequest{SelectedIndex: selectedIndex}, nil)
}

// PutDraft replaces the whole draft for a programming task.
func (c *Client) PutDraft(ctx context.Context, taskID int64, draft model.Draft) error {
	path := "/exam/draft/" + strconv.FormatInt(taskID, 10)
	return c.doJSON(ctx, http.MethodPut, path, model.DraftRequest{Language: draft.Language, Code: draft.Code}, nil)
}

// SubmitAttempt closes the attempt. ErrNotInProgress means it is already closed.
func (c *Client) SubmitAttempt(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, "/exam/submit", nil, nil)
}

// FetchResult returns the graded result or ErrResultNotReady.
func (c *Client) FetchResult(ctx context.Context) (*model.Result, error) {
	var result model.Result
	if err := c.doJSON(ctx, http.MethodGet, "/exam/result", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
