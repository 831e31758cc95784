package frame

// Region is a contiguous byte window of the telemetry frame owned by one channel.
type Region struct {
	Channel Channel
	Offset  int
	Length  int
}

// End returns the offset one past the last byte of the region.
func (r Region) End() int {
	return r.Offset + r.Length
}

// Layout describes where each channel lives inside a telemetry frame.
// Regions are packed in channel order with no padding: image, front, back,
// left, right and, when enabled, orientation.
type Layout struct {
	regions [numChannels]Region
	present [numChannels]bool
	size    int
}

// NewLayout builds a layout for an image of width*height RGB pixels followed by
// the four range floats and an optional orientation float.
func NewLayout(width, height int, orientation bool) Layout {
	var l Layout
	add := func(ch Channel, length int) {
		l.regions[ch] = Region{Channel: ch, Offset: l.size, Length: length}
		l.present[ch] = true
		l.size += length
	}

	add(ChannelImage, width*height*ImageChannels)
	add(ChannelFront, FloatBytes)
	add(ChannelBack, FloatBytes)
	add(ChannelLeft, FloatBytes)
	add(ChannelRight, FloatBytes)
	if orientation {
		add(ChannelOrientation, FloatBytes)
	}
	return l
}

// DefaultLayout is the 854x480 layout with the trailing orientation field.
func DefaultLayout() Layout {
	return NewLayout(ImageWidth, ImageHeight, true)
}

// LegacyLayout is the 854x480 layout without the orientation field.
func LegacyLayout() Layout {
	return NewLayout(ImageWidth, ImageHeight, false)
}

// Size returns the total frame length in bytes.
func (l Layout) Size() int {
	return l.size
}

// ImageBytes returns the length of the image region.
func (l Layout) ImageBytes() int {
	return l.regions[ChannelImage].Length
}

// HasOrientation reports whether the layout carries the orientation field.
func (l Layout) HasOrientation() bool {
	return l.present[ChannelOrientation]
}

// Region returns the window owned by ch.
func (l Layout) Region(ch Channel) (Region, bool) {
	if ch < 0 || ch >= numChannels || !l.present[ch] {
		return Region{}, false
	}
	return l.regions[ch], true
}

// Regions returns every region of the layout in wire order.
func (l Layout) Regions() []Region {
	out := make([]Region, 0, numChannels)
	for ch := Channel(0); ch < numChannels; ch++ {
		if l.present[ch] {
			out = append(out, l.regions[ch])
		}
	}
	return out
}
