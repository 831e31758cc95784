// Package frame defines the two fixed-length wire messages exchanged with
// peers: the 8-byte control frame and the telemetry frame.
//
// Neither message carries a delimiter or length prefix. Receivers rely purely
// on the fixed sizes defined here.
package frame

import (
	"errors"
	"fmt"
)

// Image geometry of the camera channel.
const (
	ImageWidth    = 854
	ImageHeight   = 480
	ImageChannels = 3
	ImageBytes    = ImageWidth * ImageHeight * ImageChannels

	// FloatBytes is the size of every scalar telemetry field.
	FloatBytes = 4
)

var (
	// ErrFraming is returned when a buffer does not have the exact size of the
	// message it is decoded as.
	ErrFraming = errors.New("framing error")

	// ErrLengthMismatch is returned when data written into a frame region does
	// not match the region's declared length.
	ErrLengthMismatch = errors.New("length mismatch")

	// ErrUnknownRegion is returned when a channel is not part of the layout.
	ErrUnknownRegion = errors.New("unknown region")
)

// LengthMismatchError describes a rejected region write.
type LengthMismatchError struct {
	Channel Channel
	Want    int
	Got     int
}

func (e *LengthMismatchError) Error() string {
	return fmt.Sprintf("%s region: %v: want %d bytes, got %d", e.Channel, ErrLengthMismatch, e.Want, e.Got)
}

func (e *LengthMismatchError) Unwrap() error {
	return ErrLengthMismatch
}

// Channel identifies one region of the telemetry frame.
type Channel int

const (
	ChannelImage Channel = iota
	ChannelFront
	ChannelBack
	ChannelLeft
	ChannelRight
	ChannelOrientation

	numChannels
)

func (c Channel) String() string {
	switch c {
	case ChannelImage:
		return "image"
	case ChannelFront:
		return "front"
	case ChannelBack:
		return "back"
	case ChannelLeft:
		return "left"
	case ChannelRight:
		return "right"
	case ChannelOrientation:
		return "orientation"
	default:
		return fmt.Sprintf("channel(%d)", int(c))
	}
}
