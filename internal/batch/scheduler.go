package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

var (
	ErrSchedulerClosed = errors.New("scheduler closed")
	ErrNoHandler       = errors.New("scheduler has no handler")
)

// Handler processes a due Task.
type Handler func(ctx context.Context, task Task)

// TimerScheduler runs tasks in process on clock timers. Tasks are bound to the
// scheduler's lifetime: Close drops everything still pending and waits for
// running handlers. A task whose scheduling context is cancelled is dropped.
type TimerScheduler struct {
	clock clockwork.Clock
	log   *zap.Logger

	base   context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	handler Handler
	seq     uint64
	pending map[uint64]pendingTask
	closed  bool
	running sync.WaitGroup
}

type pendingTask struct {
	timer    clockwork.Timer
	stopWait func() bool
}

var _ Scheduler = (*TimerScheduler)(nil)

func NewTimerScheduler(clk clockwork.Clock, log *zap.Logger) *TimerScheduler {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if log == nil {
		log = zap.NewNop()
	}
	base, cancel := context.WithCancel(context.Background())
	return &TimerScheduler{
		clock:   clk,
		log:     log.Named("scheduler"),
		base:    base,
		cancel:  cancel,
		pending: make(map[uint64]pendingTask),
	}
}

// Bind sets the handler. It must be called before the first Schedule.
func (s *TimerScheduler) Bind(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

func (s *TimerScheduler) Schedule(ctx context.Context, delay time.Duration, task Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSchedulerClosed
	}
	if s.handler == nil {
		return ErrNoHandler
	}

	s.seq++
	id := s.seq
	timer := s.clock.AfterFunc(delay, func() { s.fire(id, task) })
	stopWait := context.AfterFunc(ctx, func() { s.drop(id) })
	s.pending[id] = pendingTask{timer: timer, stopWait: stopWait}
	return nil
}

// Pending is the number of tasks waiting to fire.
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *TimerScheduler) fire(id uint64, task Task) {
	s.mu.Lock()
	p, ok := s.pending[id]
	if !ok || s.closed {
		s.mu.Unlock()
		return
	}
	delete(s.pending, id)
	h := s.handler
	s.running.Add(1)
	s.mu.Unlock()

	p.stopWait()
	defer s.running.Done()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("deferred task panicked",
				zap.String("order_id", task.OrderUniqueID),
				zap.Error(fmt.Errorf("panic: %v", r)))
		}
	}()
	h(s.base, task)
}

func (s *TimerScheduler) drop(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pending[id]; ok {
		p.timer.Stop()
		delete(s.pending, id)
	}
}

// Close stops every pending task and waits for running ones to return.
func (s *TimerScheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for id, p := range s.pending {
		p.timer.Stop()
		p.stopWait()
		delete(s.pending, id)
	}
	s.mu.Unlock()

	s.cancel()
	s.running.Wait()
	return nil
}
