package session

import (
	"errors"

	"github.com/stemsi/exstem-attempt/internal/examclient"
)

// Lifecycle errors shared with the exam client so errors.Is works across both.
var (
	ErrNotInProgress = examclient.ErrNotInProgress
	ErrAlreadyExists = examclient.ErrAlreadyExists
	ErrUnauthorized  = examclient.ErrUnauthorized
)

var (
	ErrNoAttempt           = errors.New("no attempt loaded")
	ErrUnknownItem         = errors.New("question or task is not part of the attempt")
	ErrInvalidOption       = errors.New("selected option is out of range")
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrSubmitInProgress    = errors.New("submit already in progress")
	ErrInvalidated         = errors.New("session invalidated, sign in again")
	ErrClosed              = errors.New("session closed")
)
