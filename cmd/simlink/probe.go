package main

import (
	"flag"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/wro-sim/simlink/internal/frame"
)

type probeOptions struct {
	addr        string
	speed       float64
	steer       float64
	frames      int
	orientation bool
	timeout     time.Duration
}

func parseProbeFlags(args []string) (probeOptions, error) {
	var o probeOptions
	fs := flag.NewFlagSet("probe", flag.ContinueOnError)
	fs.StringVar(&o.addr, "addr", "127.0.0.1:12345", "simulator address")
	fs.Float64Var(&o.speed, "speed", 0, "first control value (speed or power)")
	fs.Float64Var(&o.steer, "steer", 0, "second control value, steering percent in [-1, 1]")
	fs.IntVar(&o.frames, "frames", 1, "telemetry frames to read")
	fs.BoolVar(&o.orientation, "orientation", true, "expect the trailing orientation channel")
	fs.DurationVar(&o.timeout, "timeout", 5*time.Second, "dial and read timeout")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.frames < 1 {
		return o, fmt.Errorf("frames must be at least 1, got %d", o.frames)
	}
	return o, nil
}

func runProbe(args []string, out io.Writer) error {
	o, err := parseProbeFlags(args)
	if err != nil {
		return err
	}

	conn, err := net.DialTimeout("tcp", o.addr, o.timeout)
	if err != nil {
		return fmt.Errorf("dial %s: %w", o.addr, err)
	}
	defer conn.Close()

	return probe(conn, o, out)
}

// probe sends one control frame on conn and prints the next o.frames
// telemetry frames.
func probe(conn net.Conn, o probeOptions, out io.Writer) error {
	if _, err := conn.Write(frame.EncodeControl(float32(o.speed), float32(o.steer))); err != nil {
		return fmt.Errorf("send control: %w", err)
	}

	layout := frame.NewLayout(frame.ImageWidth, frame.ImageHeight, o.orientation)
	buf := make([]byte, layout.Size())
	for i := 0; i < o.frames; i++ {
		if err := conn.SetReadDeadline(time.Now().Add(o.timeout)); err != nil {
			return err
		}
		if _, err := io.ReadFull(conn, buf); err != nil {
			return fmt.Errorf("read frame %d: %w", i, err)
		}
		t, err := frame.DecodeTelemetry(layout, buf)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "frame %d: front=%.3f back=%.3f left=%.3f right=%.3f",
			i, t.Front, t.Back, t.Left, t.Right)
		if t.HasOrientation {
			fmt.Fprintf(out, " orientation=%.2f", t.Orientation)
		}
		fmt.Fprintf(out, " pixel0=%v\n", t.Image[:frame.ImageChannels])
	}
	return nil
}
