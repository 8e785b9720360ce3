// Package session owns the editable state of one exam attempt on the client.
//
// Edits are applied locally first and persisted through a per-item debounced
// write. The countdown runs from the attempt's fixed deadline. The server stays
// authoritative for lifecycle transitions; the Store only adopts them.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"k8s.io/utils/clock"

	"github.com/stemsi/exstem-attempt/internal/countdown"
	"github.com/stemsi/exstem-attempt/internal/debounce"
	"github.com/stemsi/exstem-attempt/internal/examclient"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// DefaultSaveDelay is the quiet period before an edit is written.
const DefaultSaveDelay = 1200 * time.Millisecond

const (
	kindAnswer = "answer"
	kindDraft  = "draft"
)

// Remote is the exam API as seen by the Store.
type Remote interface {
	FetchState(ctx context.Context) (*model.ExamState, error)
	CreateAttempt(ctx context.Context) (*model.ExamState, error)
	PutAnswer(ctx context.Context, questionID int64, selectedIndex *int) error
	PutDraft(ctx context.Context, taskID int64, draft model.Draft) error
	SubmitAttempt(ctx context.Context) error
}

// Clock drives both the save timers and the countdown.
type Clock interface {
	clock.WithTicker
	AfterFunc(d time.Duration, f func()) clock.Timer
}

// Events are optional UI callbacks. They run on timer or network goroutines
// and must not call Store mutators.
type Events struct {
	OnSaveStatus   func(key string, status debounce.Status, err error)
	OnTick         func(remaining time.Duration)
	OnExpire       func()
	OnUnauthorized func(err error)
}

// Options configures a Store.
type Options struct {
	Clock      Clock
	SaveDelay  time.Duration
	TickPeriod time.Duration
	Logger     zerolog.Logger
	Events     Events
}

// Store is the single owner of one attempt's answers, drafts and status.
type Store struct {
	remote Remote
	clock  Clock
	delay  time.Duration
	period time.Duration
	events Events
	log    zerolog.Logger
	saver  *debounce.Scheduler

	// editMu serializes mutators so local records and scheduled writes
	// are updated in the same order.
	editMu sync.Mutex

	mu          sync.Mutex
	state       *model.ExamState
	countdown   *countdown.Clock
	submitting  bool
	invalidated bool
	closed      bool
}

// New creates an empty Store. Call Load to populate it.
func New(remote Remote, opts Options) *Store {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.SaveDelay <= 0 {
		opts.SaveDelay = DefaultSaveDelay
	}
	if opts.TickPeriod <= 0 {
		opts.TickPeriod = countdown.DefaultPeriod
	}

	s := &Store{
		remote: remote,
		clock:  opts.Clock,
		delay:  opts.SaveDelay,
		period: opts.TickPeriod,
		events: opts.Events,
		log:    opts.Logger.With().Str("component", "session_store").Logger(),
	}
	s.saver = debounce.New(opts.Clock, s.onSaveStatus)
	return s
}

// ─── Lifecycle ──────────────────────────────────────────────────────────────

// Load replaces the local snapshot with the server's. When no attempt exists
// the Store holds "no attempt" and only Start is valid. Local edits that have
// not been confirmed yet are kept on top of the server snapshot.
func (s *Store) Load(ctx context.Context) error {
	if err := s.usable(); err != nil {
		return err
	}
	state, err := s.remote.FetchState(ctx)
	if errors.Is(err, examclient.ErrNotFound) {
		s.adopt(nil)
		return nil
	}
	if err != nil {
		return s.remoteFailure("load attempt", err)
	}
	s.adopt(state)
	return nil
}

// Start creates the attempt. If an attempt is already loaded, or the server
// already has one, it is fetched and adopted instead.
func (s *Store) Start(ctx context.Context) error {
	if err := s.usable(); err != nil {
		return err
	}
	s.mu.Lock()
	has := s.state != nil
	s.mu.Unlock()
	if has {
		return s.Load(ctx)
	}

	state, err := s.remote.CreateAttempt(ctx)
	if errors.Is(err, examclient.ErrAlreadyExists) {
		s.log.Info().Msg("Attempt already exists on the server, re-fetching")
		return s.Load(ctx)
	}
	if err != nil {
		return s.remoteFailure("start attempt", err)
	}
	s.adopt(state)
	s.log.Info().Str("attempt_id", state.AttemptID.String()).Time("ends_at", state.EndsAt).Msg("Attempt started")
	return nil
}

// Submit flushes every pending save, then closes the attempt on the server.
// Edits are rejected while it runs; if it fails they are accepted again.
func (s *Store) Submit(ctx context.Context) error {
	s.editMu.Lock()
	s.mu.Lock()
	if err := s.editableLocked(); err != nil {
		s.mu.Unlock()
		s.editMu.Unlock()
		return err
	}
	s.submitting = true
	s.mu.Unlock()
	s.editMu.Unlock()

	if err := s.saver.Flush(ctx); err != nil {
		s.endSubmit()
		if errors.Is(err, examclient.ErrUnauthorized) {
			return s.remoteFailure("flush pending saves", err)
		}
		return fmt.Errorf("flush pending saves: %w", err)
	}

	if err := s.remote.SubmitAttempt(ctx); err != nil {
		s.endSubmit()
		if errors.Is(err, examclient.ErrNotInProgress) {
			s.reconcile(ctx)
		}
		return s.remoteFailure("submit attempt", err)
	}

	s.mu.Lock()
	s.state.Status = model.AttemptStatusSubmitted
	s.submitting = false
	cd := s.countdown
	s.countdown = nil
	s.mu.Unlock()
	if cd != nil {
		cd.Stop()
	}
	s.log.Info().Str("attempt_id", s.attemptID()).Msg("Attempt submitted")
	return nil
}

// Flush writes every pending edit now and waits for the writes to finish.
func (s *Store) Flush(ctx context.Context) error {
	if err := s.usable(); err != nil {
		return err
	}
	if err := s.saver.Flush(ctx); err != nil {
		if errors.Is(err, examclient.ErrUnauthorized) {
			return s.remoteFailure("flush pending saves", err)
		}
		return fmt.Errorf("flush pending saves: %w", err)
	}
	return nil
}

// Close cancels pending saves and stops the countdown. Writes already on the
// wire are aborted. It is safe to call more than once.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cd := s.countdown
	s.countdown = nil
	s.mu.Unlock()

	s.saver.Close()
	if cd != nil {
		cd.Stop()
	}
}

// ─── Edits ──────────────────────────────────────────────────────────────────

// SetAnswer records the selected option of a multiple-choice question.
// A nil index clears the answer and is persisted as such.
func (s *Store) SetAnswer(questionID int64, selectedIndex *int) error {
	s.editMu.Lock()
	defer s.editMu.Unlock()

	s.mu.Lock()
	if err := s.editableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	q, _, ok := s.state.FindQuestion(questionID)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("question %d: %w", questionID, ErrUnknownItem)
	}
	var value *int
	if selectedIndex != nil {
		if *selectedIndex < 0 || *selectedIndex >= len(q.Options) {
			s.mu.Unlock()
			return fmt.Errorf("question %d option %d: %w", questionID, *selectedIndex, ErrInvalidOption)
		}
		idx := *selectedIndex
		value = &idx
	}
	if s.state.Answers == nil {
		s.state.Answers = make(map[int64]*int)
	}
	s.state.Answers[questionID] = value
	s.mu.Unlock()

	s.saver.Schedule(debounce.Key(kindAnswer, questionID), s.delay, s.persist(func(ctx context.Context) error {
		return s.remote.PutAnswer(ctx, questionID, value)
	}))
	return nil
}

// SetDraft replaces the whole draft of a programming task.
func (s *Store) SetDraft(taskID int64, language, code string) error {
	s.editMu.Lock()
	defer s.editMu.Unlock()
	return s.setDraft(taskID, func(model.Draft) (model.Draft, error) {
		return model.Draft{Language: language, Code: code}, nil
	})
}

// SetLanguage changes the language of a draft and keeps its current code.
func (s *Store) SetLanguage(taskID int64, language string) error {
	s.editMu.Lock()
	defer s.editMu.Unlock()
	return s.setDraft(taskID, func(cur model.Draft) (model.Draft, error) {
		cur.Language = language
		return cur, nil
	})
}

// SetCode changes the code of a draft and keeps its current language.
func (s *Store) SetCode(taskID int64, code string) error {
	s.editMu.Lock()
	defer s.editMu.Unlock()
	return s.setDraft(taskID, func(cur model.Draft) (model.Draft, error) {
		cur.Code = code
		return cur, nil
	})
}

func (s *Store) setDraft(taskID int64, update func(model.Draft) (model.Draft, error)) error {
	s.mu.Lock()
	if err := s.editableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if _, ok := s.state.FindTask(taskID); !ok {
		s.mu.Unlock()
		return fmt.Errorf("task %d: %w", taskID, ErrUnknownItem)
	}
	cur, ok := s.state.Drafts[taskID]
	if !ok {
		cur = model.Draft{Language: model.DefaultLanguage}
	}
	next, err := update(cur)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if !model.IsSupportedLanguage(next.Language) {
		s.mu.Unlock()
		return fmt.Errorf("%q: %w", next.Language, ErrUnsupportedLanguage)
	}
	if s.state.Drafts == nil {
		s.state.Drafts = make(map[int64]model.Draft)
	}
	s.state.Drafts[taskID] = next
	s.mu.Unlock()

	s.saver.Schedule(debounce.Key(kindDraft, taskID), s.delay, s.persist(func(ctx context.Context) error {
		return s.remote.PutDraft(ctx, taskID, next)
	}))
	return nil
}

// ─── Reads ──────────────────────────────────────────────────────────────────

// HasAttempt reports whether an attempt is loaded.
func (s *Store) HasAttempt() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != nil
}

// Status returns the attempt status, or "" when there is no attempt.
func (s *Store) Status() model.AttemptStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return ""
	}
	return s.state.Status
}

// Snapshot returns a deep copy of the attempt, or nil when there is none.
func (s *Store) Snapshot() *model.ExamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Answer returns the selected option for a question. ok is false when the
// question has no recorded answer.
func (s *Store) Answer(questionID int64) (selected *int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return nil, false
	}
	v, ok := s.state.Answers[questionID]
	if !ok || v == nil {
		return nil, ok
	}
	idx := *v
	return &idx, true
}

// Draft returns the draft of a programming task.
func (s *Store) Draft(taskID int64) (model.Draft, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return model.Draft{}, false
	}
	d, ok := s.state.Drafts[taskID]
	return d, ok
}

// AnsweredCount counts non-null answers in a multiple-choice block, or drafts
// with non-blank code in the programming block.
func (s *Store) AnsweredCount(block model.Block) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return 0
	}

	n := 0
	if block == model.BlockProg {
		for _, t := range s.state.ProgTasks {
			if d, ok := s.state.Drafts[t.ID]; ok && strings.TrimSpace(d.Code) != "" {
				n++
			}
		}
		return n
	}
	for _, q := range s.state.Questions(block) {
		if v, ok := s.state.Answers[q.ID]; ok && v != nil {
			n++
		}
	}
	return n
}

// Remaining returns the time left until the deadline.
func (s *Store) Remaining() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return 0
	}
	left := s.state.EndsAt.Sub(s.clock.Now())
	if left < 0 {
		return 0
	}
	return left
}

// Expired reports whether the local countdown has signalled expiry.
func (s *Store) Expired() bool {
	s.mu.Lock()
	cd := s.countdown
	s.mu.Unlock()
	return cd != nil && cd.Expired()
}

// Unsaved returns the number of edits not yet confirmed by the server.
func (s *Store) Unsaved() int {
	return len(s.saver.Unsaved())
}

// ─── Internals ──────────────────────────────────────────────────────────────

func (s *Store) usable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		return ErrClosed
	case s.invalidated:
		return ErrInvalidated
	}
	return nil
}

func (s *Store) editableLocked() error {
	switch {
	case s.closed:
		return ErrClosed
	case s.invalidated:
		return ErrInvalidated
	case s.state == nil:
		return ErrNoAttempt
	case s.submitting:
		return ErrSubmitInProgress
	case s.state.Status != model.AttemptStatusInProgress:
		return ErrNotInProgress
	}
	return nil
}

func (s *Store) endSubmit() {
	s.mu.Lock()
	s.submitting = false
	s.mu.Unlock()
}

func (s *Store) attemptID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return ""
	}
	return s.state.AttemptID.String()
}

// adopt installs a server snapshot and (re)starts or stops the countdown.
func (s *Store) adopt(next *model.ExamState) {
	var unsaved map[string]struct{}
	if next != nil && next.Status == model.AttemptStatusInProgress {
		unsaved = s.saver.Unsaved()
	} else {
		s.saver.CancelAll()
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	prev := s.state
	if next != nil && prev != nil && prev.AttemptID == next.AttemptID && len(unsaved) > 0 {
		overlayUnsaved(next, prev, unsaved)
	}
	s.state = next

	old := s.countdown
	var fresh *countdown.Clock
	switch {
	case next == nil || next.Status != model.AttemptStatusInProgress:
		s.countdown = nil
	case old != nil && prev != nil && prev.AttemptID == next.AttemptID && old.EndsAt().Equal(next.EndsAt):
		old = nil
	default:
		fresh = countdown.New(next.EndsAt, s.clock, countdown.Options{
			Period:   s.period,
			Active:   s.countdownActive,
			OnTick:   s.events.OnTick,
			OnExpire: s.onExpire,
		})
		s.countdown = fresh
	}
	s.mu.Unlock()

	if old != nil {
		old.Stop()
	}
	if fresh != nil {
		fresh.Start()
	}
}

func overlayUnsaved(next, prev *model.ExamState, unsaved map[string]struct{}) {
	if next.Answers == nil {
		next.Answers = make(map[int64]*int)
	}
	for id, v := range prev.Answers {
		if _, ok := unsaved[debounce.Key(kindAnswer, id)]; ok {
			next.Answers[id] = v
		}
	}
	if next.Drafts == nil {
		next.Drafts = make(map[int64]model.Draft)
	}
	for id, d := range prev.Drafts {
		if _, ok := unsaved[debounce.Key(kindDraft, id)]; ok {
			next.Drafts[id] = d
		}
	}
}

// reconcile re-reads the attempt after the server rejected a write or submit
// as out of time. Failures are only logged; the next Load retries.
func (s *Store) reconcile(ctx context.Context) {
	state, err := s.remote.FetchState(ctx)
	if err != nil {
		if errors.Is(err, examclient.ErrUnauthorized) {
			s.invalidate(err)
			return
		}
		s.log.Warn().Err(err).Msg("Failed to reconcile attempt state")
		return
	}
	s.adopt(state)
	s.log.Info().Str("status", string(state.Status)).Msg("Attempt state reconciled with server")
}

// persist wraps a remote write with the Store's error policy.
func (s *Store) persist(write func(ctx context.Context) error) debounce.Action {
	return func(ctx context.Context) error {
		err := write(ctx)
		switch {
		case err == nil:
		case errors.Is(err, examclient.ErrUnauthorized):
			s.invalidate(err)
		case errors.Is(err, examclient.ErrNotInProgress):
			s.reconcile(ctx)
		}
		return err
	}
}

func (s *Store) remoteFailure(op string, err error) error {
	if errors.Is(err, examclient.ErrUnauthorized) {
		s.invalidate(err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// invalidate drops pending work after an authorization failure. The UI is
// expected to send the user back to sign in.
func (s *Store) invalidate(cause error) {
	s.mu.Lock()
	if s.invalidated || s.closed {
		s.mu.Unlock()
		return
	}
	s.invalidated = true
	cd := s.countdown
	s.countdown = nil
	s.mu.Unlock()

	s.saver.CancelAll()
	if cd != nil {
		cd.Stop()
	}
	s.log.Warn().Err(cause).Msg("Session invalidated by the server")
	if s.events.OnUnauthorized != nil {
		s.events.OnUnauthorized(cause)
	}
}

func (s *Store) countdownActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != nil && s.state.Status == model.AttemptStatusInProgress
}

// onExpire only signals. The server decides when the attempt is timed out.
func (s *Store) onExpire() {
	s.log.Info().Str("attempt_id", s.attemptID()).Msg("Attempt deadline reached")
	if s.events.OnExpire != nil {
		s.events.OnExpire()
	}
}

func (s *Store) onSaveStatus(key string, status debounce.Status, err error) {
	if status == debounce.StatusFailed && !errors.Is(err, context.Canceled) {
		s.log.Warn().Err(err).Str("key", key).Msg("Failed to save edit")
	}
	if s.events.OnSaveStatus != nil {
		s.events.OnSaveStatus(key, status, err)
	}
}
