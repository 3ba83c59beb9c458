package decoder

import (
	"sync"
	"time"

	"vincit.fi/image-viewer/api"
	"vincit.fi/image-viewer/api/apitype"
	"vincit.fi/image-viewer/common/logger"
)

const fullRingRetryDelay = 10 * time.Millisecond

// frameProducer is one concrete decode strategy behind the engine.
// produce is called with the production cursor, which counts up from
// 0 and returns to 0 on a loop or a restart; returning a nil frame
// means the content has no frame at that index.
type frameProducer interface {
	produce(index int) (*apitype.Frame, error)
	// total frame count, and whether it is known yet
	total() (int, bool)
	metadata() (apitype.Size, bool)
	// loops reports whether production wraps to frame 0 after the
	// last frame. Animated content loops; static content does not.
	loops() bool
}

// Engine runs one producer on a background goroutine and implements
// the uniform decoder contract. There is no back reference to the
// owning image; frames go through the sink only.
type Engine struct {
	path     string
	producer frameProducer
	sink     api.FrameSink
	events   api.DecoderEvents

	mu              sync.Mutex
	cursor          int
	produced        int
	generation      int
	suspended       bool
	cancelled       bool
	started         bool
	completeSent    bool
	suspendWhenFull bool
	wake            chan struct{}
	exited          chan struct{}

	api.Decoder
}

func newEngine(path string, producer frameProducer, sink api.FrameSink, events api.DecoderEvents) *Engine {
	return &Engine{
		path:     path,
		producer: producer,
		sink:     sink,
		events:   events,
		wake:     make(chan struct{}, 1),
		exited:   make(chan struct{}),
	}
}

func (s *Engine) Start(suspendWhenFull bool) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		logger.Warn.Printf("Decoder for '%s' already started", s.path)
		return
	}
	s.started = true
	s.suspendWhenFull = suspendWhenFull
	s.mu.Unlock()

	go s.run()
}

func (s *Engine) Suspend() {
	s.mu.Lock()
	s.suspended = true
	s.mu.Unlock()
}

func (s *Engine) Resume() {
	s.mu.Lock()
	s.suspended = false
	s.mu.Unlock()
	s.signal()
}

// Restart rewinds production to frame 0. When the sink still holds
// frame 0 at its front the buffered frames are kept and production
// continues where it was.
func (s *Engine) Restart(suspendWhenFull bool) {
	s.mu.Lock()
	s.suspendWhenFull = suspendWhenFull
	if !s.sink.RewindToStart() {
		s.sink.Reset()
		s.cursor = 0
		s.generation++
	}
	s.suspended = false
	s.mu.Unlock()
	s.signal()
}

// Stop cancels the worker cooperatively and waits for it to exit.
// Frames already published stay in the sink.
func (s *Engine) Stop() {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return
	}
	s.cancelled = true
	started := s.started
	s.mu.Unlock()
	s.signal()

	if started {
		<-s.exited
	}
}

func (s *Engine) Progress() api.DecoderProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	total, known := s.producer.total()
	return api.DecoderProgress{
		FramesProduced: s.produced,
		FramesTotal:    total,
		TotalKnown:     known,
	}
}

func (s *Engine) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Engine) run() {
	defer close(s.exited)

	metadataSent := false
	for {
		s.mu.Lock()
		if s.cancelled {
			s.mu.Unlock()
			return
		}
		if s.suspended {
			s.mu.Unlock()
			<-s.wake
			continue
		}
		cursor := s.cursor
		generation := s.generation
		suspendWhenFull := s.suspendWhenFull
		s.mu.Unlock()

		if s.sink.IsFull() {
			if suspendWhenFull {
				s.mu.Lock()
				s.suspended = true
				s.mu.Unlock()
				continue
			}
			// Active image: wait for the consumer to advance.
			select {
			case <-s.wake:
			case <-time.After(fullRingRetryDelay):
			}
			continue
		}

		frame, err := s.producer.produce(cursor)
		if err != nil {
			logger.Error.Printf("Decode failed for '%s': %s", s.path, err)
			s.events.DecodeFailed(err)
			return
		}

		if !metadataSent {
			if size, hasAlpha := s.producer.metadata(); size.Width() > 0 {
				total, known := s.producer.total()
				s.events.MetadataDecoded(size, hasAlpha, total, known)
				metadataSent = true
			}
		}

		if frame == nil {
			// Produced everything there is.
			total, known := s.producer.total()
			if !known {
				total = cursor
			}
			s.markComplete(total)
			if !s.producer.loops() || total == 0 {
				return
			}
			s.mu.Lock()
			s.cursor = 0
			s.mu.Unlock()
			continue
		}

		s.mu.Lock()
		if s.generation != generation || s.cancelled {
			// Restarted or stopped while decoding; drop the frame.
			s.mu.Unlock()
			continue
		}
		if !s.sink.PublishFrame(frame) {
			s.mu.Unlock()
			continue
		}
		s.cursor++
		if s.cursor > s.produced {
			s.produced = s.cursor
		}
		firstFrame := s.cursor == 1
		s.mu.Unlock()

		if firstFrame {
			s.events.FirstFramePublished()
		}
		if logger.IsLevel(logger.TRACE) {
			logger.Trace.Printf("'%s': published frame %d", s.path, cursor)
		}

		if total, known := s.producer.total(); known && cursor+1 >= total {
			s.markComplete(total)
			if !s.producer.loops() {
				return
			}
			s.mu.Lock()
			if s.generation == generation {
				s.cursor = 0
			}
			s.mu.Unlock()
		}
	}
}

// markComplete emits the completion event exactly once even when a
// looping producer keeps refilling the ring.
func (s *Engine) markComplete(total int) {
	s.mu.Lock()
	if s.completeSent {
		s.mu.Unlock()
		return
	}
	s.completeSent = true
	s.mu.Unlock()
	s.events.DecodeComplete(total)
}
