package server

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/wro-sim/simlink/internal/server"

type metrics struct {
	peers         metric.Int64ObservableGauge
	controlFrames metric.Int64Counter
	sent          metric.Int64Counter
	dropped       metric.Int64Counter
	peerErrors    metric.Int64Counter
}

// newMetrics creates the server instruments on the global meter (no-op if not
// configured). peerCount backs the peers gauge.
func newMetrics(peerCount func() int) (*metrics, error) {
	m := otel.Meter(instrumentationName)
	out := &metrics{}

	var err error
	out.peers, err = m.Int64ObservableGauge(
		"server.peers",
		metric.WithDescription("Currently connected peers"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating peers gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(out.peers, int64(peerCount()))
			return nil
		},
		out.peers,
	)
	if err != nil {
		return nil, fmt.Errorf("registering peers callback: %w", err)
	}

	out.controlFrames, err = m.Int64Counter(
		"server.control.frames",
		metric.WithDescription("Control frames applied"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating control counter: %w", err)
	}

	out.sent, err = m.Int64Counter(
		"server.telemetry.sent",
		metric.WithDescription("Telemetry frames written to peers"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating sent counter: %w", err)
	}

	out.dropped, err = m.Int64Counter(
		"server.telemetry.dropped",
		metric.WithDescription("Telemetry frames replaced before a slow peer wrote them"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	out.peerErrors, err = m.Int64Counter(
		"server.peer.errors",
		metric.WithDescription("Peers dropped because of I/O errors or limits"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating peer error counter: %w", err)
	}

	return out, nil
}
