package evictor

import (
	"sync"
	"time"

	"vincit.fi/image-viewer/api/apitype"
	"vincit.fi/image-viewer/backend/image"
	"vincit.fi/image-viewer/common/app"
	"vincit.fi/image-viewer/common/logger"
)

// maxSleep bounds the worker wait so shutdown stays prompt even when
// no wakeup arrives.
const maxSleep = 50 * time.Millisecond

// Evictor unloads images a grace period after they leave the prefetch
// window. Re-entering the window cancels the pending unload, which is
// what makes back and forth navigation cheap.
type Evictor struct {
	context *app.Context
	store   *image.Store
	delay   time.Duration

	mux       sync.Mutex
	deadlines map[apitype.ImageKey]time.Time
	running   bool
	wake      chan struct{}
	exited    chan struct{}
}

func NewEvictor(context *app.Context, store *image.Store, delay time.Duration) *Evictor {
	return &Evictor{
		context:   context,
		store:     store,
		delay:     delay,
		deadlines: map[apitype.ImageKey]time.Time{},
		wake:      make(chan struct{}, 1),
		exited:    make(chan struct{}),
	}
}

func (s *Evictor) Start() {
	s.mux.Lock()
	if s.running {
		s.mux.Unlock()
		return
	}
	s.running = true
	s.mux.Unlock()
	go s.run()
}

// Schedule queues the image for unload after the grace delay. An
// existing deadline is overwritten.
func (s *Evictor) Schedule(key apitype.ImageKey) {
	s.mux.Lock()
	s.deadlines[key] = time.Now().Add(s.delay)
	s.mux.Unlock()
	s.signal()
}

// Cancel removes a pending unload. No-op when the key is not queued.
func (s *Evictor) Cancel(key apitype.ImageKey) {
	s.mux.Lock()
	delete(s.deadlines, key)
	s.mux.Unlock()
}

func (s *Evictor) IsScheduled(key apitype.ImageKey) bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	_, ok := s.deadlines[key]
	return ok
}

func (s *Evictor) QueueLen() int {
	s.mux.Lock()
	defer s.mux.Unlock()
	return len(s.deadlines)
}

// Reclassify applies one prefetch window change atomically: images
// entering the window leave the queue, images leaving it get a
// deadline. Holding the evictor mutex for both halves keeps the
// window and the queue disjoint at every observable moment.
func (s *Evictor) Reclassify(entering []apitype.ImageKey, leaving []apitype.ImageKey) {
	now := time.Now()
	s.mux.Lock()
	for _, key := range entering {
		delete(s.deadlines, key)
	}
	for _, key := range leaving {
		s.deadlines[key] = now.Add(s.delay)
	}
	s.mux.Unlock()
	if len(leaving) > 0 {
		s.signal()
	}
}

func (s *Evictor) Stop() {
	s.mux.Lock()
	if !s.running {
		s.mux.Unlock()
		return
	}
	s.running = false
	s.mux.Unlock()
	s.signal()
	<-s.exited
}

func (s *Evictor) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Evictor) run() {
	defer close(s.exited)
	logger.Debug.Print("Evictor started")

	for {
		select {
		case <-s.wake:
		case <-time.After(maxSleep):
		}

		s.mux.Lock()
		if !s.running || s.context.IsQuitting() {
			s.mux.Unlock()
			logger.Debug.Print("Evictor stopped")
			return
		}

		now := time.Now()
		var due []apitype.ImageKey
		for key, deadline := range s.deadlines {
			if !deadline.After(now) {
				due = append(due, key)
			}
		}
		for _, key := range due {
			delete(s.deadlines, key)
		}
		s.mux.Unlock()

		// Unload outside the queue lock so a decoder stop cannot
		// block scheduling.
		for _, key := range due {
			if img := s.store.Get(key); img != nil {
				logger.Trace.Printf("Evicting %s", img.File())
				img.Unload()
			}
		}
	}
}
