package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/seo-monitor/internal/ingest"
	"github.com/AngelCh415/seo-monitor/internal/models"
	"github.com/AngelCh415/seo-monitor/internal/realtime"
)

type fakeCollector struct {
	full, quick atomic.Int32
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	started     chan struct{}
	release     chan struct{}
	runErr      error
	quickErr    error
}

func (f *fakeCollector) enter() func() {
	n := f.inFlight.Add(1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	return func() { f.inFlight.Add(-1) }
}

func (f *fakeCollector) RunCheck(ctx context.Context) (*models.Snapshot, error) {
	defer f.enter()()
	f.full.Add(1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if f.runErr != nil {
		return nil, f.runErr
	}
	return &models.Snapshot{Timestamp: time.Now().UTC()}, nil
}

func (f *fakeCollector) QuickCheck(context.Context) (*models.QuickPerformance, error) {
	defer f.enter()()
	f.quick.Add(1)
	if f.quickErr != nil {
		return nil, f.quickErr
	}
	return &models.QuickPerformance{Performance: 90}, nil
}

type fakeStore struct {
	saves    atomic.Int32
	cleanups atomic.Int32
	saveErr  error
}

func (f *fakeStore) Save(context.Context, *models.Snapshot) error {
	f.saves.Add(1)
	return f.saveErr
}

func (f *fakeStore) Cleanup(context.Context) (int, error) {
	f.cleanups.Add(1)
	return 2, nil
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) Broadcast(eventType string, _ any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, eventType)
}

func (r *recorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// start runs a scheduler without cron jobs and with the startup run pushed
// out of the test window.
func start(t *testing.T, c Collector, st Store, hub Broadcaster) *Scheduler {
	t.Helper()
	s, err := New(c, st, hub, Schedules{StartupDelay: time.Hour}, quietLogger())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return s
}

func TestFullRunSavesAndBroadcasts(t *testing.T) {
	c, st, hub := &fakeCollector{}, &fakeStore{}, &recorder{}
	s := start(t, c, st, hub)

	s.Trigger(KindFull)
	require.Eventually(t, func() bool { return len(hub.got()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{realtime.EventSEOUpdate}, hub.got())
	assert.EqualValues(t, 1, st.saves.Load())
}

func TestSaveFailureStillBroadcasts(t *testing.T) {
	c, st, hub := &fakeCollector{}, &fakeStore{saveErr: errors.New("disk full")}, &recorder{}
	s := start(t, c, st, hub)

	s.Trigger(KindFull)
	require.Eventually(t, func() bool { return len(hub.got()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{realtime.EventSEOUpdate}, hub.got())
}

func TestCollectorErrorBroadcastsError(t *testing.T) {
	c, st, hub := &fakeCollector{runErr: errors.New("collector panic: boom")}, &fakeStore{}, &recorder{}
	s := start(t, c, st, hub)

	s.Trigger(KindFull)
	require.Eventually(t, func() bool { return len(hub.got()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{realtime.EventError}, hub.got())
	assert.Zero(t, st.saves.Load())

	// the next request runs normally
	c.runErr = nil
	s.Trigger(KindFull)
	require.Eventually(t, func() bool { return len(hub.got()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, realtime.EventSEOUpdate, hub.got()[1])
}

func TestRequestsCoalesceWhileRunning(t *testing.T) {
	c := &fakeCollector{started: make(chan struct{}, 4), release: make(chan struct{})}
	st, hub := &fakeStore{}, &recorder{}
	s := start(t, c, st, hub)

	s.Trigger(KindFull)
	<-c.started

	for i := 0; i < 5; i++ {
		s.Trigger(KindFull)
		s.Trigger(KindDeep)
		s.Trigger(KindQuick)
	}
	close(c.release)

	require.Eventually(t, func() bool { return len(hub.got()) == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 2, c.full.Load())
	assert.Zero(t, c.quick.Load())
	assert.EqualValues(t, 1, c.maxInFlight.Load())
}

func TestQuickRun(t *testing.T) {
	c, st, hub := &fakeCollector{}, &fakeStore{}, &recorder{}
	s := start(t, c, st, hub)

	s.Trigger(KindQuick)
	require.Eventually(t, func() bool { return len(hub.got()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{realtime.EventPerformanceUpdate}, hub.got())
	assert.Zero(t, st.saves.Load())
}

func TestQuickRunUnconfiguredIsSilent(t *testing.T) {
	c, st, hub := &fakeCollector{quickErr: ingest.ErrNotConfigured}, &fakeStore{}, &recorder{}
	s := start(t, c, st, hub)

	s.Trigger(KindQuick)
	require.Eventually(t, func() bool { return c.quick.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, hub.got())
}

func TestCleanupRun(t *testing.T) {
	c, st, hub := &fakeCollector{}, &fakeStore{}, &recorder{}
	s := start(t, c, st, hub)

	s.Trigger(KindCleanup)
	require.Eventually(t, func() bool { return st.cleanups.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, hub.got())
}

func TestStartupRun(t *testing.T) {
	c, st, hub := &fakeCollector{}, &fakeStore{}, &recorder{}
	s, err := New(c, st, hub, Schedules{StartupDelay: 20 * time.Millisecond}, quietLogger())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Serve(ctx) }()

	require.Eventually(t, func() bool { return c.full.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestServeReturnsOnCancel(t *testing.T) {
	s, err := New(&fakeCollector{}, &fakeStore{}, &recorder{}, Schedules{Full: "0 * * * *", StartupDelay: time.Hour}, quietLogger())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Serve(ctx) }()
	cancel()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestNewRejectsBadSchedule(t *testing.T) {
	_, err := New(&fakeCollector{}, &fakeStore{}, &recorder{}, Schedules{Quick: "every 15 minutes"}, quietLogger())
	assert.ErrorContains(t, err, "invalid quick schedule")
}

func TestNextPriority(t *testing.T) {
	s, err := New(&fakeCollector{}, &fakeStore{}, &recorder{}, Schedules{}, quietLogger())
	require.NoError(t, err)
	s.pending[KindCleanup] = true
	s.pending[KindQuick] = true
	s.pending[KindDeep] = true

	k, ok := s.next()
	require.True(t, ok)
	assert.Equal(t, KindDeep, k)
	k, _ = s.next()
	assert.Equal(t, KindCleanup, k)
	_, ok = s.next()
	assert.False(t, ok)
}
