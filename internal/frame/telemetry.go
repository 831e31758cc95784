package frame

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Telemetry is a decoded telemetry frame, as seen by a client.
type Telemetry struct {
	Image          []byte
	Front          float32
	Back           float32
	Left           float32
	Right          float32
	Orientation    float32
	HasOrientation bool
}

// DecodeTelemetry splits a telemetry frame into its channels. Image aliases b.
func DecodeTelemetry(layout Layout, b []byte) (Telemetry, error) {
	if len(b) != layout.Size() {
		return Telemetry{}, fmt.Errorf("%w: telemetry frame is %d bytes, want %d", ErrFraming, len(b), layout.Size())
	}

	float := func(ch Channel) float32 {
		r, _ := layout.Region(ch)
		return math.Float32frombits(binary.LittleEndian.Uint32(b[r.Offset:r.End()]))
	}

	img, _ := layout.Region(ChannelImage)
	t := Telemetry{
		Image: b[img.Offset:img.End()],
		Front: float(ChannelFront),
		Back:  float(ChannelBack),
		Left:  float(ChannelLeft),
		Right: float(ChannelRight),
	}
	if layout.HasOrientation() {
		t.Orientation = float(ChannelOrientation)
		t.HasOrientation = true
	}
	return t, nil
}
