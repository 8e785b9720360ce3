// Package debounce coalesces bursts of edits into a single delayed write per key.
package debounce

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"
)

// Status describes the progress of a scheduled write.
type Status int

const (
	// StatusSaving is reported when a write is scheduled and not yet confirmed.
	StatusSaving Status = iota
	// StatusSaved is reported when the write for a key succeeded.
	StatusSaved
	// StatusFailed is reported when the write for a key returned an error.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSaving:
		return "saving"
	case StatusSaved:
		return "saved"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Action performs the delayed write for a key.
type Action func(ctx context.Context) error

// StatusFunc receives write progress. err is only set for StatusFailed.
type StatusFunc func(key string, status Status, err error)

// Key builds the composite key for an item, e.g. Key("answer", 12) == "answer:12".
func Key(kind string, id int64) string {
	return kind + ":" + strconv.FormatInt(id, 10)
}

type entry struct {
	seq    uint64
	timer  clock.Timer
	action Action
}

// Scheduler runs at most one write per key after a quiet period.
//
// A new Schedule for a key replaces the pending one. Writes for the same key
// never overlap: a write that becomes due while the previous one is still on
// the wire waits for it, and is dropped if an even newer write has fired in
// the meantime. Failed writes are not retried on their own; they are kept
// until superseded by the next edit or re-sent by Flush. A failure of a write
// whose key already has a newer write scheduled or started is neither kept
// nor reported.
type Scheduler struct {
	clock    clock.WithDelayedExecution
	onStatus StatusFunc

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	seq      uint64
	pending  map[string]*entry
	failed   map[string]*entry
	latest   map[string]uint64
	inflight map[string]chan struct{}
	active   int
	idle     chan struct{}
	closed   bool
}

// New creates a Scheduler. onStatus may be nil.
func New(clk clock.WithDelayedExecution, onStatus StatusFunc) *Scheduler {
	if clk == nil {
		clk = clock.RealClock{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)
	return &Scheduler{
		clock:    clk,
		onStatus: onStatus,
		ctx:      ctx,
		cancel:   cancel,
		pending:  make(map[string]*entry),
		failed:   make(map[string]*entry),
		latest:   make(map[string]uint64),
		inflight: make(map[string]chan struct{}),
		idle:     idle,
	}
}

// Schedule registers action to run after delay of inactivity on key.
// It never runs action synchronously.
func (s *Scheduler) Schedule(key string, delay time.Duration, action Action) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if prev, ok := s.pending[key]; ok {
		prev.timer.Stop()
	}
	delete(s.failed, key)

	s.seq++
	e := &entry{seq: s.seq, action: action}
	e.timer = s.clock.AfterFunc(delay, func() { s.fire(key, e) })
	s.pending[key] = e
	s.mu.Unlock()

	s.report(key, StatusSaving, nil)
}

// CancelAll drops every pending write. Writes already on the wire finish.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, e := range s.pending {
		e.timer.Stop()
		delete(s.pending, key)
	}
	for key := range s.failed {
		delete(s.failed, key)
	}
}

// Close cancels pending writes, aborts in-flight ones and rejects new ones.
func (s *Scheduler) Close() {
	s.CancelAll()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
}

// Pending returns the number of writes waiting for their timer.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Failed returns the keys whose last write failed and has not been superseded.
func (s *Scheduler) Failed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.failed))
	for key := range s.failed {
		keys = append(keys, key)
	}
	return keys
}

// Unsaved returns the keys whose latest value has not been confirmed yet:
// pending, running or failed.
func (s *Scheduler) Unsaved() map[string]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make(map[string]struct{}, len(s.pending)+len(s.failed)+len(s.latest))
	for key := range s.pending {
		keys[key] = struct{}{}
	}
	for key := range s.failed {
		keys[key] = struct{}{}
	}
	for key := range s.latest {
		keys[key] = struct{}{}
	}
	return keys
}

// Wait blocks until no write is running.
func (s *Scheduler) Wait(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.active == 0 {
			s.mu.Unlock()
			return nil
		}
		idle := s.idle
		s.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Flush sends every pending and previously failed write now and waits for
// all of them, including writes that were already running. It returns the
// first failure; failed writes stay queued for the next Flush.
func (s *Scheduler) Flush(ctx context.Context) error {
	// The batch is taken under the same lock hold that observed no running
	// write, so a timer cannot slip a write in between.
	s.mu.Lock()
	for s.active > 0 {
		idle := s.idle
		s.mu.Unlock()
		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
		s.mu.Lock()
	}

	batch := make(map[string]*entry, len(s.pending)+len(s.failed))
	for key, e := range s.failed {
		batch[key] = e
		delete(s.failed, key)
	}
	for key, e := range s.pending {
		e.timer.Stop()
		batch[key] = e
		delete(s.pending, key)
	}
	for key, e := range batch {
		s.beginLocked(key, e)
	}
	s.mu.Unlock()

	var g errgroup.Group
	for key, e := range batch {
		g.Go(func() error { return s.run(key, e) })
	}
	return g.Wait()
}

func (s *Scheduler) fire(key string, e *entry) {
	s.mu.Lock()
	if s.pending[key] != e {
		// Replaced, cancelled or already taken by Flush.
		s.mu.Unlock()
		return
	}
	delete(s.pending, key)
	s.beginLocked(key, e)
	s.mu.Unlock()

	go func() { _ = s.run(key, e) }()
}

func (s *Scheduler) beginLocked(key string, e *entry) {
	s.latest[key] = e.seq
	if s.active == 0 {
		s.idle = make(chan struct{})
	}
	s.active++
}

func (s *Scheduler) end() {
	s.mu.Lock()
	s.active--
	if s.active == 0 {
		close(s.idle)
	}
	s.mu.Unlock()
}

func (s *Scheduler) run(key string, e *entry) error {
	defer s.end()

	s.mu.Lock()
	for {
		busy, ok := s.inflight[key]
		if !ok {
			break
		}
		s.mu.Unlock()
		<-busy
		s.mu.Lock()
	}
	if s.latest[key] != e.seq {
		s.mu.Unlock()
		return nil
	}
	done := make(chan struct{})
	s.inflight[key] = done
	s.mu.Unlock()

	err := e.action(s.ctx)

	s.mu.Lock()
	delete(s.inflight, key)
	close(done)
	// A newer value for the key is pending or already began; this write's
	// outcome no longer decides what the server ends up holding.
	current := s.latest[key] == e.seq
	if current {
		delete(s.latest, key)
	}
	_, pending := s.pending[key]
	stale := !current || pending
	if err == nil {
		if f, ok := s.failed[key]; ok && f.seq < e.seq {
			delete(s.failed, key)
		}
	} else if !stale && !s.closed {
		s.failed[key] = e
	}
	s.mu.Unlock()

	if err != nil && stale {
		return nil
	}
	if err != nil {
		s.report(key, StatusFailed, err)
		return err
	}
	s.report(key, StatusSaved, nil)
	return nil
}

func (s *Scheduler) report(key string, status Status, err error) {
	if s.onStatus != nil {
		s.onStatus(key, status, err)
	}
}
