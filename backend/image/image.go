package image

import (
	"sync"
	"sync/atomic"

	"github.com/disintegration/imaging"
	"vincit.fi/image-viewer/api"
	"vincit.fi/image-viewer/api/apitype"
	"vincit.fi/image-viewer/backend/framering"
	"vincit.fi/image-viewer/common/logger"
)

type LoadState int32

const (
	Unloaded LoadState = iota
	Loading
	Complete
	Suspended
	Unloading
	LoadError
)

func (s LoadState) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Complete:
		return "complete"
	case Suspended:
		return "suspended"
	case Unloading:
		return "unloading"
	case LoadError:
		return "error"
	}
	return "unknown"
}

// Image is one viewable file: its decoder, its frame ring and its
// loader state. The mutex guards every mutable field; the state value
// is additionally atomic so observers can read it without locking.
//
// The image never calls into its decoder while holding the mutex;
// the decoder worker publishes frames through the FrameSink methods
// which take the mutex themselves.
type Image struct {
	file           *apitype.ImageFile
	absolutePath   string
	key            apitype.ImageKey
	decoderFactory api.DecoderFactory

	ringCapacity     int
	thumbnailMaxEdge int

	mu             sync.Mutex
	state          int32
	errorText      string
	ring           *framering.Ring
	decoder        api.Decoder
	ringFirstFrame int
	frameIndex     int
	metaSize       apitype.Size
	hasAlpha       bool
	totalFrames    int
	totalKnown     bool
	completeSeen   bool
	thumbnail      *apitype.Frame
	active         bool

	api.ImageHandle
	api.FrameSink
	api.DecoderEvents
}

func NewImage(file *apitype.ImageFile, absolutePath string, decoderFactory api.DecoderFactory,
	ringCapacity int, thumbnailMaxEdge int) *Image {
	return &Image{
		file:             file,
		absolutePath:     absolutePath,
		key:              file.Key(),
		decoderFactory:   decoderFactory,
		ringCapacity:     ringCapacity,
		thumbnailMaxEdge: thumbnailMaxEdge,
	}
}

func (s *Image) File() *apitype.ImageFile {
	return s.file
}

func (s *Image) Key() apitype.ImageKey {
	return s.key
}

func (s *Image) Path() string {
	return s.absolutePath
}

func (s *Image) State() LoadState {
	return LoadState(atomic.LoadInt32(&s.state))
}

func (s *Image) setState(state LoadState) {
	atomic.StoreInt32(&s.state, int32(state))
}

func (s *Image) IsError() bool {
	return s.State() == LoadError
}

func (s *Image) ErrorText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errorText
}

func (s *Image) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Image) Metadata() (apitype.Size, bool, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metaSize, s.hasAlpha, s.totalFrames, s.totalKnown
}

// StartLoading begins frame production. No-op for anything but an
// unloaded image, so callers can invoke it on every reconciliation.
func (s *Image) StartLoading(suspendWhenFull bool) {
	s.mu.Lock()
	if s.State() != Unloaded {
		s.mu.Unlock()
		return
	}
	if s.ring == nil {
		s.ring = framering.NewRing(s.ringCapacity)
	}

	decoder, err := s.decoderFactory.NewDecoder(s.absolutePath, s, s)
	if err != nil {
		s.errorText = err.Error()
		s.setState(LoadError)
		s.mu.Unlock()
		logger.Error.Printf("Cannot open decoder for '%s': %s", s.absolutePath, err)
		return
	}
	s.decoder = decoder
	s.setState(Loading)
	s.mu.Unlock()

	logger.Debug.Printf("Start loading '%s'", s.absolutePath)
	decoder.Start(suspendWhenFull)
}

// Unload stops the decoder and releases the frames and the thumbnail.
// Safe to call from the evictor goroutine; the decoder stop happens
// outside the image mutex.
func (s *Image) Unload() {
	s.mu.Lock()
	if s.State() == Unloaded || s.State() == Unloading {
		s.mu.Unlock()
		return
	}
	s.setState(Unloading)
	decoder := s.decoder
	s.mu.Unlock()

	if decoder != nil {
		decoder.Stop()
	}

	s.mu.Lock()
	s.decoder = nil
	if s.ring != nil {
		s.ring.Reset()
	}
	s.ring = nil
	s.thumbnail = nil
	s.ringFirstFrame = 0
	s.frameIndex = 0
	s.totalFrames = 0
	s.totalKnown = false
	s.completeSeen = false
	s.errorText = ""
	s.setState(Unloaded)
	s.mu.Unlock()

	logger.Debug.Printf("Unloaded '%s'", s.absolutePath)
}

// Reload drops everything, including a sticky error, and starts over.
func (s *Image) Reload() {
	s.Unload()
	s.StartLoading(false)
}

// Restart rewinds playback to frame 0. When the first frames are
// still buffered this touches no decoder state.
func (s *Image) Restart(suspendWhenFull bool) {
	state := s.State()
	if state == LoadError || state == Unloading {
		return
	}
	if state == Unloaded {
		s.StartLoading(suspendWhenFull)
		return
	}

	s.mu.Lock()
	s.frameIndex = 0
	cheap := s.ring != nil && s.ringFirstFrame == 0 && !s.ring.IsEmpty()
	decoder := s.decoder
	s.mu.Unlock()

	if cheap || decoder == nil {
		return
	}
	decoder.Restart(suspendWhenFull)
	s.mu.Lock()
	s.ringFirstFrame = 0
	s.mu.Unlock()
}

func (s *Image) Suspend() {
	s.mu.Lock()
	decoder := s.decoder
	state := s.State()
	if state == Loading || state == Complete {
		s.setState(Suspended)
	}
	s.mu.Unlock()

	if decoder != nil {
		decoder.Suspend()
	}
}

func (s *Image) Resume() {
	s.mu.Lock()
	decoder := s.decoder
	if s.State() == Suspended {
		if s.completeSeen {
			s.setState(Complete)
		} else {
			s.setState(Loading)
		}
	}
	s.mu.Unlock()

	if decoder != nil {
		decoder.Resume()
	}
}

// SetActive marks whether the image is on screen. Activation resumes
// a suspended decoder; it does not change the suspend-when-full mode
// the decoder was started with, so such a producer still parks on a
// full ring and continues when AdvanceToNextFrame frees a slot.
func (s *Image) SetActive(active bool) {
	s.mu.Lock()
	changed := s.active != active
	s.active = active
	s.mu.Unlock()

	if changed && active {
		s.Resume()
	}
}

// AdvanceToNextFrame moves animated playback one frame forward,
// wrapping at the total. Returns true when the visible frame changed.
func (s *Image) AdvanceToNextFrame() bool {
	s.mu.Lock()
	if s.ring == nil || s.ring.IsEmpty() || (s.totalKnown && s.totalFrames <= 1) {
		s.mu.Unlock()
		return false
	}
	if s.ring.Len() <= 1 && !s.totalKnown {
		// Keep the only visible frame until the producer is ahead.
		s.mu.Unlock()
		return false
	}
	s.ring.Advance()
	if s.totalKnown && s.totalFrames > 0 {
		s.ringFirstFrame = (s.ringFirstFrame + 1) % s.totalFrames
		s.frameIndex = (s.frameIndex + 1) % s.totalFrames
	} else {
		s.ringFirstFrame++
		s.frameIndex++
	}
	decoder := s.decoder
	s.mu.Unlock()

	if decoder != nil {
		// Free slot: let a producer parked on a full ring continue.
		decoder.Resume()
	}
	return true
}

func (s *Image) CurrentFrame() *apitype.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ring == nil {
		return nil
	}
	return s.ring.Front()
}

func (s *Image) CurrentFrameIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frameIndex
}

func (s *Image) Thumbnail() *apitype.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.thumbnail
}

// Rotate turns every buffered frame and the thumbnail by 90 degrees.
func (s *Image) Rotate(clockwise bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ring == nil {
		return
	}
	for _, frame := range s.ring.Frames() {
		if frame == nil || frame.Pixels() == nil {
			continue
		}
		rotated := rotateFrame(frame, clockwise)
		*frame = *rotated
	}
	if s.thumbnail != nil {
		s.thumbnail = rotateFrame(s.thumbnail, clockwise)
	}
	s.metaSize = apitype.SizeOf(s.metaSize.Height(), s.metaSize.Width())
}

func rotateFrame(frame *apitype.Frame, clockwise bool) *apitype.Frame {
	if clockwise {
		return apitype.NewFrame(imaging.Rotate270(frame.Pixels()), frame.Duration())
	}
	return apitype.NewFrame(imaging.Rotate90(frame.Pixels()), frame.Duration())
}

func (s *Image) RingLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ring == nil {
		return 0
	}
	return s.ring.Len()
}
