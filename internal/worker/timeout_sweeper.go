package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"k8s.io/utils/clock"
)

// Expirer closes in-progress attempts whose deadline has passed.
type Expirer interface {
	TimeOutExpired(ctx context.Context) ([]uuid.UUID, error)
}

// Enqueuer hands attempts to the grading queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, attemptIDs ...uuid.UUID) error
}

// TimeoutSweeper periodically times out attempts nobody touched after
// their deadline. Reads and writes time attempts out lazily; the sweeper
// covers test-takers who simply walked away.
type TimeoutSweeper struct {
	attempts Expirer
	queue    Enqueuer
	clock    clock.WithTicker
	interval time.Duration
	log      zerolog.Logger
}

// NewTimeoutSweeper creates a new TimeoutSweeper. A nil clk uses the real clock.
func NewTimeoutSweeper(attempts Expirer, queue Enqueuer, clk clock.WithTicker, interval time.Duration, log zerolog.Logger) *TimeoutSweeper {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &TimeoutSweeper{
		attempts: attempts,
		queue:    queue,
		clock:    clk,
		interval: interval,
		log:      log.With().Str("component", "timeout_sweeper").Logger(),
	}
}

// Start sweeps once and then on every tick until ctx is cancelled.
func (s *TimeoutSweeper) Start(ctx context.Context) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", s.interval).Msg("Sweeper started")
	s.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Sweeper stopped")
			return
		case <-ticker.C():
			s.Sweep(ctx)
		}
	}
}

// Sweep times out overdue attempts and queues them for grading.
func (s *TimeoutSweeper) Sweep(ctx context.Context) {
	ids, err := s.attempts.TimeOutExpired(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Error().Err(err).Msg("Time out expired attempts failed")
		}
		return
	}
	if len(ids) == 0 {
		return
	}

	s.log.Info().Int("count", len(ids)).Msg("Timed out expired attempts")
	if err := s.queue.Enqueue(ctx, ids...); err != nil {
		// The grading worker requeues ungraded attempts on its next start.
		s.log.Error().Err(err).Msg("Enqueue timed out attempts failed")
	}
}
