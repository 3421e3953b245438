package syncq

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/beunreal/config"
	"github.com/d60-Lab/beunreal/internal/apiclient"
	"github.com/d60-Lab/beunreal/internal/connectivity"
	"github.com/d60-Lab/beunreal/internal/kv"
	"github.com/d60-Lab/beunreal/internal/metrics"
	"github.com/d60-Lab/beunreal/internal/model"
	"github.com/d60-Lab/beunreal/internal/repository"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	queue   *Queue
	coord   *Coordinator
	monitor *connectivity.Monitor
	clock   *fakeClock
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, online bool) *fixture {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	m := metrics.New(prometheus.NewRegistry())
	st := repository.NewStorage(kv.NewMemoryStore())
	q := NewQueue(st, WithQueueClock(clock.Now), WithQueueMetrics(m))
	mon := connectivity.NewMonitor(online)
	c := NewCoordinator(q, mon, config.SyncConfig{
		MaxAttempts:   3,
		BaseBackoff:   time.Second,
		MaxBackoff:    4 * time.Second,
		DrainInterval: time.Hour,
	}, WithClock(clock.Now), WithMetrics(m))
	return &fixture{queue: q, coord: c, monitor: mon, clock: clock, metrics: m}
}

type followPayload struct {
	UserID string `json:"userId"`
}

func TestQueue_DedupLatestWins(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, err := f.queue.Enqueue(ctx, KindPrivacyUpdate, model.LocationPrivacy{ShareWith: model.ShareEveryone}, "privacy")
	require.NoError(t, err)
	_, err = f.queue.Enqueue(ctx, KindLocationUpdate, model.LocationData{Latitude: 1}, "location")
	require.NoError(t, err)
	_, err = f.queue.Enqueue(ctx, KindPrivacyUpdate, model.LocationPrivacy{ShareWith: model.ShareNobody}, "privacy")
	require.NoError(t, err)

	entries, err := f.queue.Pending(ctx, KindPrivacyUpdate)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	var p model.LocationPrivacy
	require.NoError(t, entries[0].Decode(&p))
	assert.Equal(t, model.ShareNobody, p.ShareWith)

	n, err := f.queue.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Pending.WithLabelValues(string(KindPrivacyUpdate))))
}

func TestQueue_FollowThenUnfollowCancels(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	_, err := f.queue.Enqueue(ctx, KindFollow, followPayload{UserID: "b"}, "b")
	require.NoError(t, err)

	removed, err := f.queue.Cancel(ctx, KindFollow, "b")
	require.NoError(t, err)
	assert.True(t, removed)

	n, err := f.queue.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCoordinator_SkipsEntryCancelledAfterSnapshot(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	var replayed []string
	require.NoError(t, f.coord.Register(KindFollow, func(ctx context.Context, e Entry) error {
		var p followPayload
		require.NoError(t, e.Decode(&p))
		replayed = append(replayed, p.UserID)
		if p.UserID == "b" {
			removed, err := f.queue.Cancel(ctx, KindFollow, "c")
			assert.NoError(t, err)
			assert.True(t, removed)
		}
		return nil
	}))
	for _, id := range []string{"b", "c"} {
		_, err := f.queue.Enqueue(ctx, KindFollow, followPayload{UserID: id}, id)
		require.NoError(t, err)
	}

	res, err := f.coord.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, replayed)
	assert.Equal(t, 1, res.Replayed)
	n, err := f.queue.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCoordinator_CancelWhileReplaying(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	fail := true
	require.NoError(t, f.coord.Register(KindFollow, func(ctx context.Context, e Entry) error {
		r, err := f.queue.Withdraw(ctx, KindFollow, "b")
		assert.NoError(t, err)
		assert.Equal(t, InFlight, r)
		if fail {
			return errors.New("connection reset")
		}
		return nil
	}))

	// 失败的条目不再重试
	_, err := f.queue.Enqueue(ctx, KindFollow, followPayload{UserID: "b"}, "b")
	require.NoError(t, err)
	res, err := f.coord.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Retried)
	n, err := f.queue.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// 成功的条目正常删除
	fail = false
	_, err = f.queue.Enqueue(ctx, KindFollow, followPayload{UserID: "b"}, "b")
	require.NoError(t, err)
	res, err = f.coord.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Replayed)
	n, err = f.queue.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	dead, err := f.queue.DeadLetters(ctx)
	require.NoError(t, err)
	assert.Empty(t, dead)
}

func TestQueue_CancelledTombstoneDroppedOnNextDrain(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	var calls int32
	require.NoError(t, f.coord.Register(KindFollow, func(context.Context, Entry) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}))
	e, err := f.queue.Enqueue(ctx, KindFollow, followPayload{UserID: "b"}, "b")
	require.NoError(t, err)
	// 模拟上次重放中途退出
	ok, err := f.queue.claim(ctx, e)
	require.NoError(t, err)
	require.True(t, ok)
	r, err := f.queue.Withdraw(ctx, KindFollow, "b")
	require.NoError(t, err)
	require.Equal(t, InFlight, r)

	_, err = f.coord.Drain(ctx)
	require.NoError(t, err)
	assert.Zero(t, atomic.LoadInt32(&calls))
	n, err := f.queue.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestQueue_UnknownKind(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.queue.Enqueue(context.Background(), Kind("teleport"), nil, "")
	assert.ErrorIs(t, err, ErrUnknownKind)
	assert.ErrorIs(t, f.coord.Register(Kind("teleport"), nil), ErrUnknownKind)
}

func TestCoordinator_OfflineDrainDoesNothing(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	var calls int32
	require.NoError(t, f.coord.Register(KindFollow, func(context.Context, Entry) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}))
	_, err := f.queue.Enqueue(ctx, KindFollow, followPayload{UserID: "b"}, "b")
	require.NoError(t, err)

	res, err := f.coord.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, DrainResult{}, res)
	assert.Zero(t, atomic.LoadInt32(&calls))

	// 在线但离线模式同样不重放
	f.monitor.Set(true)
	f.coord.SetMode(model.ModeOffline)
	assert.False(t, f.coord.UseOnline())
	_, err = f.coord.Drain(ctx)
	require.NoError(t, err)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestCoordinator_DrainIsIdempotent(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	var calls int32
	require.NoError(t, f.coord.Register(KindFollow, func(_ context.Context, e Entry) error {
		var p followPayload
		require.NoError(t, e.Decode(&p))
		assert.Equal(t, "b", p.UserID)
		atomic.AddInt32(&calls, 1)
		return nil
	}))
	_, err := f.queue.Enqueue(ctx, KindFollow, followPayload{UserID: "b"}, "b")
	require.NoError(t, err)

	res, err := f.coord.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Replayed)

	// 队列已空，再次触发不产生远端调用
	res, err = f.coord.Drain(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Replayed)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCoordinator_BackoffAndDeadLetter(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	var calls int32
	require.NoError(t, f.coord.Register(KindMediaDelete, func(context.Context, Entry) error {
		atomic.AddInt32(&calls, 1)
		return &apiclient.StatusError{Status: 503}
	}))
	_, err := f.queue.Enqueue(ctx, KindMediaDelete, map[string]string{"mediaId": "m1"}, "m1")
	require.NoError(t, err)

	res, err := f.coord.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Retried)

	entries, _ := f.queue.Pending(ctx, KindMediaDelete)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].Attempts)
	assert.Equal(t, f.clock.Now().Add(time.Second), entries[0].NextAttemptAt)
	assert.NotEmpty(t, entries[0].LastError)

	// 未到期的条目被跳过
	res, err = f.coord.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	f.clock.Advance(time.Second)
	res, err = f.coord.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Retried)
	entries, _ = f.queue.Pending(ctx, KindMediaDelete)
	assert.Equal(t, f.clock.Now().Add(2*time.Second), entries[0].NextAttemptAt)

	f.clock.Advance(2 * time.Second)
	res, err = f.coord.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.DeadLettered)

	entries, _ = f.queue.Pending(ctx, KindMediaDelete)
	assert.Empty(t, entries)
	dead, err := f.queue.DeadLetters(ctx)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, 3, dead[0].Attempts)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.DeadLettered.WithLabelValues(string(KindMediaDelete))))

	requeued, err := f.queue.Requeue(ctx, dead[0].ID)
	require.NoError(t, err)
	assert.Zero(t, requeued.Attempts)
	dead, _ = f.queue.DeadLetters(ctx)
	assert.Empty(t, dead)
	entries, _ = f.queue.Pending(ctx, KindMediaDelete)
	assert.Len(t, entries, 1)
}

func TestCoordinator_PermanentFailureDeadLettersImmediately(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	var reported []map[string]string
	f.coord.report = func(err error, tags map[string]string) { reported = append(reported, tags) }
	require.NoError(t, f.coord.Register(KindUnfollow, func(context.Context, Entry) error {
		return &apiclient.StatusError{Status: 404}
	}))
	require.NoError(t, f.coord.Register(KindProfileUpdate, func(context.Context, Entry) error {
		return Permanent(errors.New("user gone"))
	}))
	_, err := f.queue.Enqueue(ctx, KindUnfollow, followPayload{UserID: "x"}, "x")
	require.NoError(t, err)
	_, err = f.queue.Enqueue(ctx, KindProfileUpdate, map[string]string{"bio": "hi"}, "profile")
	require.NoError(t, err)

	res, err := f.coord.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.DeadLettered)
	require.Len(t, reported, 2)
	assert.Equal(t, string(KindProfileUpdate), reported[0]["sync.kind"])
}

func TestCoordinator_KindOrder(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	var order []Kind
	rec := func(_ context.Context, e Entry) error {
		order = append(order, e.Kind)
		return nil
	}
	require.NoError(t, f.coord.Register(KindStoryCreate, rec))
	require.NoError(t, f.coord.Register(KindFollow, rec))
	require.NoError(t, f.coord.Register(KindProfileUpdate, rec))

	for _, k := range []Kind{KindStoryCreate, KindFollow, KindProfileUpdate, KindFollow} {
		_, err := f.queue.Enqueue(ctx, k, nil, "")
		require.NoError(t, err)
	}
	_, err := f.coord.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Kind{KindProfileUpdate, KindFollow, KindFollow, KindStoryCreate}, order)
}

func TestCoordinator_SingleFlight(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	release := make(chan struct{})
	var calls int32
	require.NoError(t, f.coord.Register(KindFollow, func(context.Context, Entry) error {
		atomic.AddInt32(&calls, 1)
		<-release
		return nil
	}))
	_, err := f.queue.Enqueue(ctx, KindFollow, followPayload{UserID: "b"}, "b")
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]DrainResult, 3)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = f.coord.Drain(ctx)
		}(i)
	}
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCoordinator_ReadyGuard(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.coord.ready = func(context.Context) bool { return false }
	var calls int32
	require.NoError(t, f.coord.Register(KindFollow, func(context.Context, Entry) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}))
	_, err := f.queue.Enqueue(ctx, KindFollow, followPayload{UserID: "b"}, "b")
	require.NoError(t, err)
	_, err = f.coord.Drain(ctx)
	require.NoError(t, err)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestCoordinator_RunDrainsOnReconnect(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	done := make(chan struct{}, 1)
	require.NoError(t, f.coord.Register(KindFollow, func(context.Context, Entry) error {
		done <- struct{}{}
		return nil
	}))
	_, err := f.queue.Enqueue(ctx, KindFollow, followPayload{UserID: "b"}, "b")
	require.NoError(t, err)

	stop := f.coord.Start()
	defer func() { require.NoError(t, stop(context.Background())) }()

	require.Eventually(t, func() bool {
		f.monitor.Set(false)
		f.monitor.Set(true)
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, 2*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		n, _ := f.queue.Len(ctx)
		return n == 0
	}, time.Second, 10*time.Millisecond)
}

func TestCoordinator_Backoff(t *testing.T) {
	f := newFixture(t, true)
	assert.Equal(t, time.Second, f.coord.Backoff(1))
	assert.Equal(t, 2*time.Second, f.coord.Backoff(2))
	assert.Equal(t, 4*time.Second, f.coord.Backoff(3))
	assert.Equal(t, 4*time.Second, f.coord.Backoff(10))
}
