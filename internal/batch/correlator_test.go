package batch

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storefront/internal/model"
)

var t0 = time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

// memFinder is an in-memory order table keyed by creation time.
type memFinder struct {
	mu     sync.Mutex
	orders []model.Order
	err    error
}

func (f *memFinder) add(uid, email string, at time.Time) *model.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := model.Order{ID: uint(len(f.orders) + 1), UniqueID: uid, CustomerEmail: email, CreatedAt: at}
	f.orders = append(f.orders, o)
	return &o
}

func (f *memFinder) RecentByEmail(_ context.Context, email string, since time.Time) ([]model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []model.Order
	for _, o := range f.orders {
		if strings.EqualFold(o.CustomerEmail, email) && !o.CreatedAt.Before(since) {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type recorder struct {
	mu      sync.Mutex
	singles []string
	groups  [][]string
}

func (r *recorder) Single(_ context.Context, o *model.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.singles = append(r.singles, o.UniqueID)
}

func (r *recorder) Grouped(_ context.Context, orders []model.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.UniqueID)
	}
	r.groups = append(r.groups, ids)
}

func (r *recorder) snapshot() (singles []string, groups [][]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.singles...), append([][]string(nil), r.groups...)
}

// waitFor blocks until the recorder satisfies cond. Fake clock timers fire on
// their own goroutine, so notifications land shortly after Advance returns.
func (r *recorder) waitFor(t *testing.T, cond func(singles []string, groups [][]string) bool) {
	t.Helper()
	assert.Eventually(t, func() bool { return cond(r.snapshot()) }, time.Second, time.Millisecond)
}

type failingScheduler struct{}

func (failingScheduler) Schedule(context.Context, time.Duration, Task) error {
	return errors.New("redis down")
}

type fixture struct {
	clk       *clockwork.FakeClock
	finder    *memFinder
	notes     *recorder
	scheduler *TimerScheduler
	c         *Correlator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clockwork.NewFakeClockAt(t0)
	f := &fixture{clk: clk, finder: &memFinder{}, notes: &recorder{}}
	f.scheduler = NewTimerScheduler(clk, zap.NewNop())
	t.Cleanup(func() { _ = f.scheduler.Close() })
	f.c = NewCorrelator(f.finder, f.notes, NewMemoryMarker(clk), f.scheduler,
		WithClock(clk), WithLogger(zap.NewNop()))
	f.scheduler.Bind(f.c.ConfirmBatch)
	return f
}

func (f *fixture) place(uid string, flagged bool) {
	o := f.finder.add(uid, "arta@example.com", f.clk.Now())
	f.c.Evaluate(context.Background(), o, flagged)
}

func TestCorrelator_FlaggedBurstGroupsOnce(t *testing.T) {
	f := newFixture(t)

	f.place("ORD-00000001", true)
	f.clk.Advance(time.Second)
	f.place("ORD-00000002", true)
	f.clk.Advance(time.Second)
	f.place("ORD-00000003", true)

	_, groups := f.notes.snapshot()
	assert.Empty(t, groups)
	assert.Equal(t, 1, f.scheduler.Pending())

	f.clk.Advance(time.Second)
	f.notes.waitFor(t, func(_ []string, groups [][]string) bool { return len(groups) == 1 })

	singles, groups := f.notes.snapshot()
	assert.Empty(t, singles)
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"ORD-00000001", "ORD-00000002", "ORD-00000003"}, groups[0])

	f.clk.Advance(time.Minute)
	assert.Never(t, func() bool {
		_, groups := f.notes.snapshot()
		return len(groups) != 1
	}, 50*time.Millisecond, time.Millisecond)
}

func TestCorrelator_FlaggedLoneOrderSendsSingle(t *testing.T) {
	f := newFixture(t)

	f.place("ORD-00000001", true)
	f.clk.Advance(2 * time.Second)
	singles, _ := f.notes.snapshot()
	assert.Empty(t, singles)

	f.clk.Advance(time.Second)
	f.notes.waitFor(t, func(singles []string, _ [][]string) bool { return len(singles) == 1 })

	singles, groups := f.notes.snapshot()
	assert.Equal(t, []string{"ORD-00000001"}, singles)
	assert.Empty(t, groups)
}

func TestCorrelator_MarkerExpiresAfterTTL(t *testing.T) {
	f := newFixture(t)

	f.place("ORD-00000001", true)
	f.clk.Advance(3 * time.Second)
	f.notes.waitFor(t, func(singles []string, _ [][]string) bool { return len(singles) == 1 })

	// t0+6s: the 5s marker from the first order has lapsed.
	f.clk.Advance(3 * time.Second)
	f.place("ORD-00000002", true)
	assert.Equal(t, 1, f.scheduler.Pending())

	f.clk.Advance(3 * time.Second)
	f.notes.waitFor(t, func(singles []string, _ [][]string) bool { return len(singles) == 2 })

	singles, groups := f.notes.snapshot()
	assert.Equal(t, []string{"ORD-00000001", "ORD-00000002"}, singles)
	assert.Empty(t, groups)
}

func TestCorrelator_UnflaggedDecidesNow(t *testing.T) {
	f := newFixture(t)

	f.place("ORD-00000001", false)
	assert.Equal(t, []string{"ORD-00000001"}, f.notes.singles)

	f.clk.Advance(4 * time.Second)
	f.place("ORD-00000002", false)
	require.Len(t, f.notes.groups, 1)
	assert.Equal(t, []string{"ORD-00000001", "ORD-00000002"}, f.notes.groups[0])

	f.clk.Advance(11 * time.Second)
	f.place("ORD-00000003", false)
	assert.Equal(t, []string{"ORD-00000001", "ORD-00000003"}, f.notes.singles)
	assert.Equal(t, 0, f.scheduler.Pending())
}

func TestCorrelator_SchedulerFailureFallsBackToSyncDecision(t *testing.T) {
	clk := clockwork.NewFakeClockAt(t0)
	finder := &memFinder{}
	notes := &recorder{}
	c := NewCorrelator(finder, notes, NewMemoryMarker(clk), failingScheduler{}, WithClock(clk))

	o := finder.add("ORD-00000001", "arta@example.com", clk.Now())
	c.Evaluate(context.Background(), o, true)

	assert.Equal(t, []string{"ORD-00000001"}, notes.singles)
}

func TestCorrelator_LookupFailureStillNotifiesOrder(t *testing.T) {
	clk := clockwork.NewFakeClockAt(t0)
	finder := &memFinder{err: errors.New("db gone")}
	notes := &recorder{}
	c := NewCorrelator(finder, notes, NewMemoryMarker(clk), failingScheduler{}, WithClock(clk))

	c.Evaluate(context.Background(), &model.Order{UniqueID: "ORD-00000009", CustomerEmail: "a@b.c"}, false)

	assert.Equal(t, []string{"ORD-00000009"}, notes.singles)
}

func TestCorrelator_ConfirmBatchWithNoOrders(t *testing.T) {
	f := newFixture(t)

	f.c.ConfirmBatch(context.Background(), Task{CustomerEmail: "ghost@example.com", OrderUniqueID: "ORD-00000000"})

	assert.Empty(t, f.notes.singles)
	assert.Empty(t, f.notes.groups)
}

func TestCorrelator_CustomWindows(t *testing.T) {
	clk := clockwork.NewFakeClockAt(t0)
	finder := &memFinder{}
	notes := &recorder{}
	c := NewCorrelator(finder, notes, NewMemoryMarker(clk), failingScheduler{},
		WithClock(clk), WithWindows(Windows{Recent: time.Second, Delay: time.Second, Confirm: time.Second, MarkerTTL: time.Second}))

	finder.add("ORD-00000001", "arta@example.com", clk.Now())
	clk.Advance(2 * time.Second)
	o := finder.add("ORD-00000002", "arta@example.com", clk.Now())
	c.Evaluate(context.Background(), o, false)

	assert.Equal(t, []string{"ORD-00000002"}, notes.singles)
}

func TestMarkerKey(t *testing.T) {
	assert.Equal(t, "order_batch_arta@example.com", MarkerKey(" Arta@Example.com "))
}
