package debounce

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

const delay = 1200 * time.Millisecond

type recorder struct {
	mu       sync.Mutex
	calls    []string
	statuses []Status
	errs     []error
}

func (r *recorder) action(value string, err error) Action {
	return func(ctx context.Context) error {
		r.mu.Lock()
		r.calls = append(r.calls, value)
		r.mu.Unlock()
		return err
	}
}

func (r *recorder) onStatus(key string, status Status, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
	if err != nil {
		r.errs = append(r.errs, err)
	}
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recorder) lastStatus() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.statuses) == 0 {
		return -1
	}
	return r.statuses[len(r.statuses)-1]
}

func TestKey(t *testing.T) {
	assert.Equal(t, "answer:12", Key("answer", 12))
	assert.Equal(t, "draft:3", Key("draft", 3))
}

func TestScheduleCoalescesEditsPerKey(t *testing.T) {
	clk := testingclock.NewFakeClock(time.Now())
	rec := &recorder{}
	s := New(clk, rec.onStatus)
	defer s.Close()

	s.Schedule("answer:1", delay, rec.action("0", nil))
	clk.Step(500 * time.Millisecond)
	s.Schedule("answer:1", delay, rec.action("1", nil))
	clk.Step(500 * time.Millisecond)
	s.Schedule("answer:1", delay, rec.action("2", nil))

	assert.Empty(t, rec.snapshot(), "nothing may run inside Schedule")
	assert.Equal(t, 1, s.Pending())

	clk.Step(delay - time.Millisecond)
	assert.Empty(t, rec.snapshot())

	clk.Step(time.Millisecond)
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"2"}, rec.snapshot())
	require.NoError(t, s.Wait(context.Background()))
	assert.Equal(t, StatusSaved, rec.lastStatus())
	assert.Zero(t, s.Pending())
}

func TestScheduleKeysAreIndependent(t *testing.T) {
	clk := testingclock.NewFakeClock(time.Now())
	rec := &recorder{}
	s := New(clk, nil)
	defer s.Close()

	s.Schedule("answer:1", delay, rec.action("a1", nil))
	s.Schedule("draft:1", delay, rec.action("d1", nil))
	assert.Equal(t, 2, s.Pending())

	clk.Step(delay)
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []string{"a1", "d1"}, rec.snapshot())
}

func TestCancelAllDropsPendingWrites(t *testing.T) {
	clk := testingclock.NewFakeClock(time.Now())
	rec := &recorder{}
	s := New(clk, nil)

	s.Schedule("answer:1", delay, rec.action("a1", nil))
	s.Schedule("draft:2", delay, rec.action("d2", nil))
	s.CancelAll()
	assert.Zero(t, s.Pending())

	clk.Step(2 * delay)
	assert.Never(t, func() bool { return len(rec.snapshot()) > 0 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestCloseRejectsNewSchedules(t *testing.T) {
	clk := testingclock.NewFakeClock(time.Now())
	rec := &recorder{}
	s := New(clk, nil)
	s.Close()

	s.Schedule("answer:1", delay, rec.action("a1", nil))
	assert.Zero(t, s.Pending())
	clk.Step(delay)
	assert.Never(t, func() bool { return len(rec.snapshot()) > 0 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestFlushSendsPendingWritesImmediately(t *testing.T) {
	clk := testingclock.NewFakeClock(time.Now())
	rec := &recorder{}
	s := New(clk, nil)
	defer s.Close()

	s.Schedule("answer:1", delay, rec.action("a1", nil))
	s.Schedule("draft:7", delay, rec.action("d7", nil))

	require.NoError(t, s.Flush(context.Background()))
	assert.ElementsMatch(t, []string{"a1", "d7"}, rec.snapshot())
	assert.Zero(t, s.Pending())

	// The stopped timers must not fire a second write.
	clk.Step(2 * delay)
	assert.Never(t, func() bool { return len(rec.snapshot()) > 2 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestFailedWriteIsReportedAndResentByFlush(t *testing.T) {
	clk := testingclock.NewFakeClock(time.Now())
	rec := &recorder{}
	s := New(clk, rec.onStatus)
	defer s.Close()

	boom := errors.New("connection reset")
	s.Schedule("draft:1", delay, rec.action("v1", boom))
	clk.Step(delay)

	require.Eventually(t, func() bool { return rec.lastStatus() == StatusFailed }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"draft:1"}, s.Failed())

	// No background retry.
	clk.Step(10 * delay)
	assert.Never(t, func() bool { return len(rec.snapshot()) > 1 }, 50*time.Millisecond, 5*time.Millisecond)

	err := s.Flush(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"v1", "v1"}, rec.snapshot())
}

func TestNextEditSupersedesFailedWrite(t *testing.T) {
	clk := testingclock.NewFakeClock(time.Now())
	rec := &recorder{}
	s := New(clk, rec.onStatus)
	defer s.Close()

	s.Schedule("answer:4", delay, rec.action("v1", errors.New("timeout")))
	clk.Step(delay)
	require.Eventually(t, func() bool { return len(s.Failed()) == 1 }, time.Second, 5*time.Millisecond)

	s.Schedule("answer:4", delay, rec.action("v2", nil))
	assert.Empty(t, s.Failed())

	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, []string{"v1", "v2"}, rec.snapshot())
}

func TestUnsavedTracksPendingAndFailedKeys(t *testing.T) {
	clk := testingclock.NewFakeClock(time.Now())
	rec := &recorder{}
	s := New(clk, nil)
	defer s.Close()

	s.Schedule("answer:1", delay, rec.action("a1", errors.New("offline")))
	s.Schedule("draft:2", delay, rec.action("d2", nil))
	assert.Len(t, s.Unsaved(), 2)

	clk.Step(delay)
	require.Eventually(t, func() bool { return len(s.Failed()) == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Wait(context.Background()))

	unsaved := s.Unsaved()
	assert.Contains(t, unsaved, "answer:1")
	assert.NotContains(t, unsaved, "draft:2")
}

func TestWritesForSameKeyNeverOverlap(t *testing.T) {
	clk := testingclock.NewFakeClock(time.Now())
	s := New(clk, nil)
	defer s.Close()

	var (
		mu      sync.Mutex
		running int
		maxRun  int
		sent    []string
	)
	gate := make(chan struct{})
	write := func(value string, block bool) Action {
		return func(ctx context.Context) error {
			mu.Lock()
			running++
			if running > maxRun {
				maxRun = running
			}
			mu.Unlock()
			if block {
				<-gate
			}
			mu.Lock()
			running--
			sent = append(sent, value)
			mu.Unlock()
			return nil
		}
	}

	s.Schedule("draft:1", delay, write("v1", true))
	clk.Step(delay)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return running == 1
	}, time.Second, 5*time.Millisecond)

	s.Schedule("draft:1", delay, write("v2", false))
	clk.Step(delay)
	s.Schedule("draft:1", delay, write("v3", false))
	clk.Step(delay)

	close(gate)
	require.NoError(t, s.Flush(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, maxRun)
	assert.Equal(t, "v3", sent[len(sent)-1])
	assert.NotContains(t, sent, "v2")
}

func TestFailureOfSupersededWriteIsNotResent(t *testing.T) {
	clk := testingclock.NewFakeClock(time.Now())
	rec := &recorder{}
	s := New(clk, rec.onStatus)
	defer s.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	s.Schedule("answer:1", delay, func(ctx context.Context) error {
		close(started)
		<-release
		rec.mu.Lock()
		rec.calls = append(rec.calls, "old")
		rec.mu.Unlock()
		return errors.New("connection reset")
	})
	clk.Step(delay)
	<-started

	// The newer write fires while the old one is still on the wire.
	s.Schedule("answer:1", delay, rec.action("new", nil))
	clk.Step(delay)
	require.Eventually(t, func() bool { return s.Pending() == 0 }, time.Second, 5*time.Millisecond)

	close(release)
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Wait(context.Background()))

	assert.Equal(t, []string{"old", "new"}, rec.snapshot())
	assert.Empty(t, s.Failed())
	assert.Empty(t, s.Unsaved())
	assert.Equal(t, StatusSaved, rec.lastStatus())

	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, []string{"old", "new"}, rec.snapshot(), "flush must not replay the superseded write")
}

func TestFlushAwaitsWritesAlreadyRunning(t *testing.T) {
	clk := testingclock.NewFakeClock(time.Now())
	rec := &recorder{}
	s := New(clk, nil)
	defer s.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	s.Schedule("draft:1", delay, func(ctx context.Context) error {
		close(started)
		<-release
		rec.mu.Lock()
		rec.calls = append(rec.calls, "d1")
		rec.mu.Unlock()
		return nil
	})
	s.Schedule("answer:2", delay, rec.action("a2", nil))
	clk.Step(delay)
	<-started

	flushed := make(chan error, 1)
	go func() { flushed <- s.Flush(context.Background()) }()

	assert.Never(t, func() bool { return len(flushed) > 0 }, 50*time.Millisecond, 5*time.Millisecond)
	close(release)
	require.NoError(t, <-flushed)
	assert.ElementsMatch(t, []string{"d1", "a2"}, rec.snapshot())
	assert.Empty(t, s.Unsaved())
}
