package sim

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/wro-sim/simlink/internal/sim"

type metrics struct {
	ticks        metric.Int64Counter
	tickDuration metric.Float64Histogram
	sensorErrors metric.Int64Counter
}

func newMetrics() (*metrics, error) {
	m := otel.Meter(instrumentationName)
	out := &metrics{}

	var err error
	out.ticks, err = m.Int64Counter(
		"sim.ticks",
		metric.WithDescription("Simulation ticks run"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating ticks counter: %w", err)
	}

	out.tickDuration, err = m.Float64Histogram(
		"sim.tick.duration",
		metric.WithDescription("Wall time spent in one tick"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating tick duration histogram: %w", err)
	}

	out.sensorErrors, err = m.Int64Counter(
		"sim.sensor.errors",
		metric.WithDescription("Sensor writes rejected by the frame layout"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating sensor error counter: %w", err)
	}

	return out, nil
}
