// Package sensor aggregates the readings of independent sensor producers into
// the telemetry frame broadcast to peers.
package sensor

import (
	"github.com/wro-sim/simlink/internal/frame"
)

// Direction identifies one of the four range sensors.
type Direction int

const (
	Front Direction = iota
	Back
	Left
	Right
)

// Directions lists the range sensors in wire order.
var Directions = [...]Direction{Front, Back, Left, Right}

func (d Direction) String() string {
	return d.channel().String()
}

func (d Direction) channel() frame.Channel {
	switch d {
	case Front:
		return frame.ChannelFront
	case Back:
		return frame.ChannelBack
	case Left:
		return frame.ChannelLeft
	default:
		return frame.ChannelRight
	}
}

// Reading is one range sensor sample. A reading without a hit means nothing
// was detected along the ray and the channel keeps its previous value.
type Reading struct {
	Hit      bool
	Distance float32
}

// Readings is a decoded view of the scalar channels.
type Readings struct {
	Front       float32
	Back        float32
	Left        float32
	Right       float32
	Orientation float32
}

// Aggregator is the shared snapshot updated in place by sensor producers.
// Every setter writes only its own region. Channels never written read as zero;
// channels not updated since the last tick keep their last value.
type Aggregator struct {
	buf *frame.Buffer
}

// New returns an all-zero aggregator for layout.
func New(layout frame.Layout) *Aggregator {
	return &Aggregator{buf: frame.NewBuffer(layout)}
}

// Layout returns the telemetry layout.
func (a *Aggregator) Layout() frame.Layout {
	return a.buf.Layout()
}

// SetFrontRange stores the front range distance.
func (a *Aggregator) SetFrontRange(v float32) { a.setRange(Front, v) }

// SetBackRange stores the back range distance.
func (a *Aggregator) SetBackRange(v float32) { a.setRange(Back, v) }

// SetLeftRange stores the left range distance.
func (a *Aggregator) SetLeftRange(v float32) { a.setRange(Left, v) }

// SetRightRange stores the right range distance.
func (a *Aggregator) SetRightRange(v float32) { a.setRange(Right, v) }

// range regions exist in every layout and are always 4 bytes.
func (a *Aggregator) setRange(d Direction, v float32) {
	_ = a.buf.WriteFloat(d.channel(), v)
}

// ApplyRange stores r for direction d when it carries a hit.
func (a *Aggregator) ApplyRange(d Direction, r Reading) {
	if !r.Hit {
		return
	}
	a.setRange(d, r.Distance)
}

// SetImage replaces the image region. It fails with frame.ErrLengthMismatch
// unless len(img) equals the layout's image size; the previous image is kept.
func (a *Aggregator) SetImage(img []byte) error {
	return a.buf.WriteRegion(frame.ChannelImage, img)
}

// SetOrientation stores the heading delta in degrees. It fails with
// frame.ErrUnknownRegion on layouts without the orientation field.
func (a *Aggregator) SetOrientation(deg float32) error {
	return a.buf.WriteFloat(frame.ChannelOrientation, deg)
}

// Snapshot returns a copy of the complete telemetry frame.
func (a *Aggregator) Snapshot() []byte {
	return a.buf.Snapshot()
}

// Readings decodes the scalar channels.
func (a *Aggregator) Readings() Readings {
	var r Readings
	r.Front, _ = a.buf.ReadFloat(frame.ChannelFront)
	r.Back, _ = a.buf.ReadFloat(frame.ChannelBack)
	r.Left, _ = a.buf.ReadFloat(frame.ChannelLeft)
	r.Right, _ = a.buf.ReadFloat(frame.ChannelRight)
	if a.Layout().HasOrientation() {
		r.Orientation, _ = a.buf.ReadFloat(frame.ChannelOrientation)
	}
	return r
}

// Observation is what the environment reports for one tick. A nil Image
// leaves the image channel unchanged.
type Observation struct {
	Ranges [len(Directions)]Reading
	Image  []byte
}

// Apply stores every range hit and the image, if any. Range hits are kept even
// when the image is rejected.
func (a *Aggregator) Apply(obs Observation) error {
	for _, d := range Directions {
		a.ApplyRange(d, obs.Ranges[d])
	}
	if obs.Image == nil {
		return nil
	}
	return a.SetImage(obs.Image)
}
