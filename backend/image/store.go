package image

import (
	"sync"

	"vincit.fi/image-viewer/api"
	"vincit.fi/image-viewer/api/apitype"
	"vincit.fi/image-viewer/common/logger"
)

// Store maps image keys to images. Entries survive navigation so a
// re-entered image can resume from its suspended decoder; the evictor
// unloads the heavy state but the entry itself is reused.
type Store struct {
	mux            sync.Mutex
	images         map[apitype.ImageKey]*Image
	decoderFactory api.DecoderFactory

	ringCapacity     int
	thumbnailMaxEdge int
}

func NewStore(decoderFactory api.DecoderFactory, ringCapacity int, thumbnailMaxEdge int) *Store {
	logger.Debug.Printf("Initialize image store...")
	return &Store{
		images:           map[apitype.ImageKey]*Image{},
		decoderFactory:   decoderFactory,
		ringCapacity:     ringCapacity,
		thumbnailMaxEdge: thumbnailMaxEdge,
	}
}

func (s *Store) GetOrCreate(file *apitype.ImageFile, absolutePath string) *Image {
	s.mux.Lock()
	defer s.mux.Unlock()
	key := file.Key()
	if existing, ok := s.images[key]; ok {
		return existing
	}
	created := NewImage(file, absolutePath, s.decoderFactory, s.ringCapacity, s.thumbnailMaxEdge)
	s.images[key] = created
	return created
}

func (s *Store) Get(key apitype.ImageKey) *Image {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.images[key]
}

func (s *Store) Remove(key apitype.ImageKey) *Image {
	s.mux.Lock()
	removed := s.images[key]
	delete(s.images, key)
	s.mux.Unlock()
	return removed
}

func (s *Store) Len() int {
	s.mux.Lock()
	defer s.mux.Unlock()
	return len(s.images)
}

// CountByState tallies images per loader state, for diagnostics.
func (s *Store) CountByState() map[LoadState]int {
	s.mux.Lock()
	defer s.mux.Unlock()
	counts := map[LoadState]int{}
	for _, img := range s.images {
		counts[img.State()]++
	}
	return counts
}

// Purge unloads everything. Called on shutdown.
func (s *Store) Purge() {
	s.mux.Lock()
	images := make([]*Image, 0, len(s.images))
	for _, img := range s.images {
		images = append(images, img)
	}
	s.images = map[apitype.ImageKey]*Image{}
	s.mux.Unlock()

	for _, img := range images {
		img.Unload()
	}
}
