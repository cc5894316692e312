package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/wricardo/mcp-training/roadracer/game/service"

type raceMetrics struct {
	started  metric.Int64Counter
	finished metric.Int64Counter
	ticks    metric.Int64Counter
	elapsed  metric.Float64Histogram
}

// newRaceMetrics uses the global meter, a no-op unless a provider is installed
func newRaceMetrics() (*raceMetrics, error) {
	m := otel.Meter(instrumentationName)
	rm := &raceMetrics{}

	var err error
	rm.started, err = m.Int64Counter(
		"races.started",
		metric.WithDescription("Races started, including restarts"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating started counter: %w", err)
	}

	rm.finished, err = m.Int64Counter(
		"races.finished",
		metric.WithDescription("Races that crossed the finish line"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating finished counter: %w", err)
	}

	rm.ticks, err = m.Int64Counter(
		"race.ticks",
		metric.WithDescription("Simulation ticks that advanced a race"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating ticks counter: %w", err)
	}

	rm.elapsed, err = m.Float64Histogram(
		"race.elapsed_seconds",
		metric.WithDescription("Finish times"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating elapsed histogram: %w", err)
	}
	return rm, nil
}

func (rm *raceMetrics) raceStarted(ctx context.Context, difficulty string, restart bool) {
	rm.started.Add(ctx, 1, metric.WithAttributes(
		attribute.String("difficulty", difficulty),
		attribute.Bool("restart", restart),
	))
}

func (rm *raceMetrics) raceTicked(ctx context.Context, difficulty string, n int) {
	if n <= 0 {
		return
	}
	rm.ticks.Add(ctx, int64(n), metric.WithAttributes(attribute.String("difficulty", difficulty)))
}

func (rm *raceMetrics) raceFinished(ctx context.Context, difficulty string, elapsed float64) {
	attrs := metric.WithAttributes(attribute.String("difficulty", difficulty))
	rm.finished.Add(ctx, 1, attrs)
	rm.elapsed.Record(ctx, elapsed, attrs)
}
