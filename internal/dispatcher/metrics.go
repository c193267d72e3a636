package dispatcher

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// InstrumentationName scopes the dispatcher's instruments.
const InstrumentationName = "github.com/dumfing/skirmish/internal/dispatcher"

type instruments struct {
	queueLen metric.Int64ObservableGauge
	handled  metric.Int64Counter
	drop     metric.Int64Counter
	wait     metric.Float64Histogram
}

func newInstruments(m metric.Meter, lengths func(observe func(string, int))) (*instruments, error) {
	if m == nil {
		m = noop.NewMeterProvider().Meter(InstrumentationName)
	}

	var (
		in  instruments
		err error
	)
	in.queueLen, err = m.Int64ObservableGauge("dispatcher.queue.size",
		metric.WithDescription("Events waiting in a command queue"))
	if err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}
	_, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		lengths(func(cmd string, n int) {
			o.ObserveInt64(in.queueLen, int64(n), metric.WithAttributes(attribute.String("command", cmd)))
		})
		return nil
	}, in.queueLen)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	in.handled, err = m.Int64Counter("dispatcher.events.processed",
		metric.WithDescription("Events handed to their handler"))
	if err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}
	in.drop, err = m.Int64Counter("dispatcher.events.dropped",
		metric.WithDescription("Events rejected by a full queue"))
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}
	in.wait, err = m.Float64Histogram("dispatcher.queue.wait",
		metric.WithDescription("Time an event spent queued"), metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("creating queue wait histogram: %w", err)
	}
	return &in, nil
}

func commandAttr(cmd string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("command", cmd))
}

func (in *instruments) processed(cmd string) {
	in.handled.Add(context.Background(), 1, commandAttr(cmd))
}

func (in *instruments) dropped(cmd string) {
	in.drop.Add(context.Background(), 1, commandAttr(cmd))
}

func (in *instruments) waited(cmd string, d time.Duration) {
	in.wait.Record(context.Background(), float64(d.Microseconds())/1000, commandAttr(cmd))
}
