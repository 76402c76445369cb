package service

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/LeventeLantos/scheduled-messaging/internal/metrics"
	"github.com/LeventeLantos/scheduled-messaging/internal/model"
)

type SweepResult struct {
	Due    int
	Sent   int
	Failed int
	Stale  int
}

// DeliverDue delivers every scheduled message whose time has come, each in
// its own goroutine. A message is never skipped because a sibling failed.
func (s *MessageService) DeliverDue(ctx context.Context, now time.Time) (SweepResult, error) {
	now = model.UTC(now)
	due, err := s.messages.ListDue(ctx, now, s.batchSize)
	if err != nil {
		return SweepResult{}, err
	}

	var sent, failed, stale atomic.Int64

	// Deliveries already started finish even if the sweep is stopped.
	gctx := context.WithoutCancel(ctx)
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, m := range due {
		g.Go(func() error {
			if s.stale(m, now) {
				if _, err := s.Expire(gctx, m.ID); err != nil {
					s.log.Error("expire stale message", zap.Stringer("message_id", m.ID), zap.Error(err))
					return nil
				}
				stale.Add(1)
				return nil
			}

			out, err := s.Deliver(gctx, m.ID)
			if err != nil {
				s.log.Error("deliver due message", zap.Stringer("message_id", m.ID), zap.Error(err))
				return nil
			}
			switch out.Status {
			case model.Sent:
				sent.Add(1)
			case model.Failed:
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	return SweepResult{
		Due:    len(due),
		Sent:   int(sent.Load()),
		Failed: int(failed.Load()),
		Stale:  int(stale.Load()),
	}, nil
}

func (s *MessageService) stale(m model.Message, now time.Time) bool {
	return s.maxStaleness > 0 && m.ScheduledSendAt != nil && now.Sub(*m.ScheduledSendAt) > s.maxStaleness
}

// Dispatcher is the scheduler's tick body: one sweep per call.
type Dispatcher struct {
	svc     *MessageService
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewDispatcher(svc *MessageService, log *zap.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{svc: svc, log: log, metrics: m}
}

func (d *Dispatcher) Sweep(ctx context.Context) {
	start := time.Now()
	res, err := d.svc.DeliverDue(ctx, d.svc.clock())
	if err != nil {
		d.log.Error("sweep failed", zap.Error(err))
		return
	}

	if d.metrics != nil {
		d.metrics.SweepDuration.Observe(time.Since(start).Seconds())
		d.metrics.SweepDueTotal.Add(float64(res.Due))
		d.metrics.SweepStaleTotal.Add(float64(res.Stale))
	}
	if res.Due > 0 {
		d.log.Info("sweep delivered due messages",
			zap.Int("due", res.Due),
			zap.Int("sent", res.Sent),
			zap.Int("failed", res.Failed),
			zap.Int("stale", res.Stale),
		)
	}
}
