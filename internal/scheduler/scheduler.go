package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Scheduler runs tickFn on a fixed interval from a single goroutine, so two
// ticks never overlap. Ticks that come due while one is running are dropped.
type Scheduler struct {
	interval time.Duration
	tickFn   func(context.Context)
	log      *zap.Logger

	running  atomic.Bool
	lastTick atomic.Int64
	lastTook atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type Status struct {
	Running      bool          `json:"running"`
	Interval     time.Duration `json:"interval"`
	LastTick     *time.Time    `json:"lastTick,omitempty"`
	LastDuration time.Duration `json:"lastDuration"`
}

func New(interval time.Duration, tickFn func(context.Context), log *zap.Logger) (*Scheduler, error) {
	if interval <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	if tickFn == nil {
		return nil, errors.New("tickFn must not be nil")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		interval: interval,
		tickFn:   tickFn,
		log:      log,
		done:     make(chan struct{}),
	}, nil
}

func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.log.Info("scheduler started", zap.Duration("interval", s.interval))

		s.safeTick(ctx)

		for {
			select {
			case <-ctx.Done():
				s.log.Info("scheduler stopping")
				return
			case <-ticker.C:
				s.safeTick(ctx)
			}
		}
	}()

	return true
}

// Stop cancels the tick context and waits for the running tick to return.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return false
	}

	s.cancel()
	<-s.done
	s.running.Store(false)

	s.log.Info("scheduler stopped")
	return true
}

func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

func (s *Scheduler) Status() Status {
	st := Status{
		Running:      s.running.Load(),
		Interval:     s.interval,
		LastDuration: time.Duration(s.lastTook.Load()),
	}
	if ns := s.lastTick.Load(); ns != 0 {
		t := time.Unix(0, ns).UTC()
		st.LastTick = &t
	}
	return st
}

func (s *Scheduler) safeTick(ctx context.Context) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("scheduler tick panic recovered", zap.Any("panic", r))
		}
		s.lastTick.Store(start.UnixNano())
		s.lastTook.Store(int64(time.Since(start)))
	}()

	s.tickFn(ctx)
	s.log.Debug("scheduler tick completed", zap.Duration("duration", time.Since(start)))
}
