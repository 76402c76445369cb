package channel

import (
	"context"
	"time"

	"github.com/LeventeLantos/scheduled-messaging/internal/metrics"
)

// InstrumentedAdapter records send counts and latency around another adapter.
type InstrumentedAdapter struct {
	next    Adapter
	kind    Kind
	metrics *metrics.Metrics
}

func Instrument(kind Kind, next Adapter, m *metrics.Metrics) Adapter {
	if m == nil {
		return next
	}
	return &InstrumentedAdapter{next: next, kind: kind, metrics: m}
}

func (a *InstrumentedAdapter) Name() string { return a.next.Name() }

func (a *InstrumentedAdapter) Send(ctx context.Context, req SendRequest) Result {
	start := time.Now()
	res := a.next.Send(ctx, req)

	a.metrics.SendDuration.WithLabelValues(a.next.Name(), string(a.kind)).Observe(time.Since(start).Seconds())
	a.metrics.SendTotal.WithLabelValues(a.next.Name(), string(a.kind), string(res.Status)).Inc()
	return res
}
