package image

import (
	"github.com/disintegration/imaging"
	"vincit.fi/image-viewer/api/apitype"
	"vincit.fi/image-viewer/common/logger"
)

// FrameSink implementation; called from the decoder goroutine.

func (s *Image) PublishFrame(frame *apitype.Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ring == nil || s.ring.IsFull() {
		return false
	}
	s.ring.SetWriteSlot(frame)
	s.ring.Publish()
	return true
}

func (s *Image) IsFull() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ring == nil || s.ring.IsFull()
}

func (s *Image) RewindToStart() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ring != nil && s.ringFirstFrame == 0 && !s.ring.IsEmpty()
}

func (s *Image) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ring != nil {
		s.ring.Reset()
	}
	s.ringFirstFrame = 0
	s.frameIndex = 0
}

// DecoderEvents implementation; also decoder goroutine side.

func (s *Image) MetadataDecoded(size apitype.Size, hasAlpha bool, frames int, totalKnown bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metaSize = size
	s.hasAlpha = hasAlpha
	s.totalFrames = frames
	s.totalKnown = totalKnown
}

// FirstFramePublished builds the thumbnail on the decoder thread so
// the UI never pays for the downscale.
func (s *Image) FirstFramePublished() {
	s.mu.Lock()
	front := s.ring.Front()
	maxEdge := s.thumbnailMaxEdge
	haveThumbnail := s.thumbnail != nil
	s.mu.Unlock()

	if front == nil || haveThumbnail {
		return
	}

	pixels := front.Pixels()
	bounds := pixels.Bounds()
	target := apitype.RectangleOfScaledToFit(bounds, apitype.SizeOf(maxEdge, maxEdge))
	if target.Width() < 1 || target.Height() < 1 {
		return
	}
	scaled := imaging.Resize(pixels, target.Width(), target.Height(), imaging.Linear)
	thumbnail := apitype.NewFrame(scaled, 0)

	s.mu.Lock()
	if s.thumbnail == nil && s.ring != nil {
		s.thumbnail = thumbnail
	}
	s.mu.Unlock()
}

func (s *Image) DecodeComplete(frameCount int) {
	s.mu.Lock()
	s.totalFrames = frameCount
	s.totalKnown = true
	s.completeSeen = true
	if s.State() == Loading {
		s.setState(Complete)
	}
	s.mu.Unlock()
	logger.Trace.Printf("'%s' complete with %d frames", s.absolutePath, frameCount)
}

func (s *Image) DecodeFailed(err error) {
	s.mu.Lock()
	if s.State() == Unloading || s.State() == Unloaded {
		s.mu.Unlock()
		return
	}
	s.errorText = err.Error()
	s.setState(LoadError)
	s.mu.Unlock()
	logger.Error.Printf("Image '%s' failed to load: %s", s.absolutePath, err)
}
