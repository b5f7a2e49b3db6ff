package audio

import "fmt"

// Framer slices an incoming stream of arbitrary-length sample chunks into
// fixed-size frames suitable for VAD classification. Any remainder that does
// not fill a complete frame is retained and prepended to the next push.
//
// A Framer never blocks and never drops samples. Create one per stream; it is
// not safe for concurrent use.
type Framer struct {
	frameSize int
	rest      []int16
}

// NewFramer creates a Framer producing frames of frameSize mono samples.
// Returns an error if frameSize is not positive.
func NewFramer(frameSize int) (*Framer, error) {
	if frameSize <= 0 {
		return nil, fmt.Errorf("audio: frame size must be positive, got %d", frameSize)
	}
	return &Framer{frameSize: frameSize}, nil
}

// Push accumulates samples and returns every complete frame that can now be
// formed, in order. Returned frames are freshly allocated and safe to retain;
// the input slice is not held after Push returns.
func (f *Framer) Push(samples []int16) [][]int16 {
	if len(samples) == 0 {
		return nil
	}
	f.rest = append(f.rest, samples...)

	n := len(f.rest) / f.frameSize
	if n == 0 {
		return nil
	}
	frames := make([][]int16, 0, n)
	for i := 0; i < n; i++ {
		frame := make([]int16, f.frameSize)
		copy(frame, f.rest[i*f.frameSize:(i+1)*f.frameSize])
		frames = append(frames, frame)
	}
	f.rest = append(f.rest[:0], f.rest[n*f.frameSize:]...)
	return frames
}

// PushBytes decodes chunk as 16-bit little-endian PCM and pushes the samples.
// Returns ErrInputFormat if the byte count is odd.
func (f *Framer) PushBytes(chunk []byte) ([][]int16, error) {
	if len(chunk)%2 != 0 {
		return nil, fmt.Errorf("%w: odd byte count %d for 16-bit PCM", ErrInputFormat, len(chunk))
	}
	return f.Push(BytesToInt16(chunk)), nil
}

// Pending returns a copy of the retained partial frame, which may be empty.
// Used at end of stream so trailing samples are not lost.
func (f *Framer) Pending() []int16 {
	if len(f.rest) == 0 {
		return nil
	}
	out := make([]int16, len(f.rest))
	copy(out, f.rest)
	return out
}

// Reset discards any retained partial frame.
func (f *Framer) Reset() {
	f.rest = f.rest[:0]
}

// FrameSize returns the configured frame size in samples.
func (f *Framer) FrameSize() int { return f.frameSize }
