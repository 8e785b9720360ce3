// Package poller waits for the asynchronously graded result of an attempt.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"k8s.io/utils/clock"

	"github.com/stemsi/exstem-attempt/internal/examclient"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// DefaultInterval is the fixed pause between result requests.
const DefaultInterval = 2 * time.Second

// ErrStopped is returned by Run when the poller was stopped before a result arrived.
var ErrStopped = errors.New("poller stopped")

// Source is the part of the exam API the poller reads.
type Source interface {
	FetchResult(ctx context.Context) (*model.Result, error)
	FetchState(ctx context.Context) (*model.ExamState, error)
}

// State is the poller's progress.
type State int

const (
	StateWaiting State = iota
	StateReady
)

func (s State) String() string {
	if s == StateReady {
		return "ready"
	}
	return "waiting"
}

// Outcome is what the result view shows: the grading payload plus the attempt
// it belongs to. Attempt is nil if it could not be read.
type Outcome struct {
	Result  *model.Result
	Attempt *model.ExamState
}

// Options configures a Poller.
type Options struct {
	Clock    clock.WithTicker
	Interval time.Duration
	Logger   zerolog.Logger
}

// Poller requests the result on a fixed interval until it is ready. It never
// gives up on its own; only Stop or context cancellation end it early.
type Poller struct {
	source   Source
	clock    clock.WithTicker
	interval time.Duration
	log      zerolog.Logger

	mu      sync.Mutex
	state   State
	outcome *Outcome
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a Poller.
func New(source Source, opts Options) *Poller {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	return &Poller{
		source:   source,
		clock:    opts.Clock,
		interval: opts.Interval,
		log:      opts.Logger.With().Str("component", "result_poller").Logger(),
	}
}

// State returns the current state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Outcome returns the held result once ready.
func (p *Poller) Outcome() (*Outcome, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outcome, p.outcome != nil
}

// Run polls until the result is ready and returns it. Only one Run may be
// active at a time. Unauthorized is returned immediately; any other failure
// is treated like "not ready" and retried on the next interval.
func (p *Poller) Run(ctx context.Context) (*Outcome, error) {
	p.mu.Lock()
	if p.outcome != nil {
		out := p.outcome
		p.mu.Unlock()
		return out, nil
	}
	if p.done != nil {
		p.mu.Unlock()
		return nil, errors.New("poller already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	defer func() {
		cancel()
		p.mu.Lock()
		p.cancel = nil
		p.done = nil
		p.mu.Unlock()
		close(done)
	}()

	attemptState, err := p.fetchState(ctx)
	if err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		result, err := p.source.FetchResult(ctx)
		if err == nil {
			return p.ready(ctx, result, attemptState)
		}
		if ctx.Err() != nil {
			return nil, ErrStopped
		}
		if errors.Is(err, examclient.ErrUnauthorized) {
			return nil, fmt.Errorf("fetch result: %w", err)
		}
		if errors.Is(err, examclient.ErrResultNotReady) {
			p.log.Debug().Int("attempt", attempt).Msg("Result not ready yet")
		} else {
			p.log.Warn().Err(err).Int("attempt", attempt).Msg("Failed to fetch result, retrying")
		}

		// The pause starts once the previous request is answered, so a slow
		// round trip never shortens the next wait.
		select {
		case <-ctx.Done():
			return nil, ErrStopped
		case <-p.clock.After(p.interval):
		}
	}
}

func (p *Poller) ready(ctx context.Context, result *model.Result, attemptState *model.ExamState) (*Outcome, error) {
	if attemptState == nil {
		var err error
		if attemptState, err = p.fetchState(ctx); err != nil {
			return nil, err
		}
	}

	out := &Outcome{Result: result, Attempt: attemptState}
	p.mu.Lock()
	p.state = StateReady
	p.outcome = out
	p.mu.Unlock()

	p.log.Info().Int("score_total", result.ScoreTotal).Msg("Result received")
	return out, nil
}

// fetchState reads the attempt for display. Only Unauthorized is an error;
// other failures leave the attempt nil.
func (p *Poller) fetchState(ctx context.Context) (*model.ExamState, error) {
	state, err := p.source.FetchState(ctx)
	switch {
	case err == nil:
		return state, nil
	case errors.Is(err, examclient.ErrUnauthorized):
		return nil, fmt.Errorf("fetch attempt: %w", err)
	case ctx.Err() != nil:
		return nil, ErrStopped
	}
	p.log.Warn().Err(err).Msg("Failed to read the attempt")
	return nil, nil
}

// Stop cancels a running Run and waits for it to return.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
