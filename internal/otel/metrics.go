package otel

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/dumfing/skirmish/pkg/core"
)

// InstrumentationName scopes the game metrics.
const InstrumentationName = "github.com/dumfing/skirmish/internal/game"

// TickMetrics records per-tick server performance.
type TickMetrics struct {
	duration    metric.Float64Histogram
	soldiers    metric.Int64Gauge
	projectiles metric.Int64Gauge
	queueDepth  metric.Int64Gauge
	ticks       metric.Int64Counter
}

// NewTickMetrics creates the instruments on m.
func NewTickMetrics(m metric.Meter) (*TickMetrics, error) {
	var (
		tm  TickMetrics
		err error
	)

	tm.duration, err = m.Float64Histogram(
		"game.tick.duration",
		metric.WithDescription("Wall time spent in one tick"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating tick duration histogram: %w", err)
	}

	tm.soldiers, err = m.Int64Gauge("game.soldiers", metric.WithDescription("Soldiers in the world"))
	if err != nil {
		return nil, fmt.Errorf("creating soldiers gauge: %w", err)
	}

	tm.projectiles, err = m.Int64Gauge("game.projectiles", metric.WithDescription("Live projectiles"))
	if err != nil {
		return nil, fmt.Errorf("creating projectiles gauge: %w", err)
	}

	tm.queueDepth, err = m.Int64Gauge("game.events.queued", metric.WithDescription("Events waiting for the next tick"))
	if err != nil {
		return nil, fmt.Errorf("creating queue gauge: %w", err)
	}

	tm.ticks, err = m.Int64Counter("game.ticks", metric.WithDescription("Ticks run"))
	if err != nil {
		return nil, fmt.Errorf("creating tick counter: %w", err)
	}

	return &tm, nil
}

// Record observes one tick.
func (tm *TickMetrics) Record(ctx context.Context, s core.TickStats) {
	attrs := metric.WithAttributes(attribute.String("state", s.State))
	tm.duration.Record(ctx, float64(s.Duration.Microseconds())/1000, attrs)
	tm.soldiers.Record(ctx, int64(s.Soldiers), attrs)
	tm.projectiles.Record(ctx, int64(s.Projectiles), attrs)
	tm.queueDepth.Record(ctx, int64(s.QueueDepth), attrs)
	tm.ticks.Add(ctx, 1, attrs)
}
