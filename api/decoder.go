package api

import (
	"vincit.fi/image-viewer/api/apitype"
)

// FrameSink is the narrow surface a decoder publishes into. The image
// owns the sink; the decoder never holds the image itself.
type FrameSink interface {
	// PublishFrame appends one decoded frame. False means the ring is
	// full and the frame was not accepted.
	PublishFrame(frame *apitype.Frame) bool
	IsFull() bool
	// RewindToStart reports whether frame 0 is still buffered at the
	// front, in which case a restart needs no re-decode.
	RewindToStart() bool
	// Reset drops every buffered frame.
	Reset()
}

type DecoderProgress struct {
	FramesProduced int
	FramesTotal    int
	TotalKnown     bool
}

// Decoder produces frames on a background worker. Start may be called
// once after construction; every other operation is safe at any time.
type Decoder interface {
	Start(suspendWhenFull bool)
	Suspend()
	Resume()
	Restart(suspendWhenFull bool)
	Stop()
	Progress() DecoderProgress
}

// DecoderEvents receives worker-side milestones. Callbacks run on the
// decoder goroutine and must not block.
type DecoderEvents interface {
	MetadataDecoded(size apitype.Size, hasAlpha bool, frames int, totalKnown bool)
	FirstFramePublished()
	DecodeComplete(frameCount int)
	DecodeFailed(err error)
}

type DecoderFactory interface {
	NewDecoder(path string, sink FrameSink, events DecoderEvents) (Decoder, error)
}
