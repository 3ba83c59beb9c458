package decoder

import (
	"image"
	"image/draw"
	"image/gif"
	"os"
	"time"

	"vincit.fi/image-viewer/api/apitype"
	"vincit.fi/image-viewer/common/logger"
)

// animatedProducer decodes animated GIF content. The raw frames are
// decoded once; composited frames are built lazily per index so a
// restart to frame 0 costs nothing once cached.
type animatedProducer struct {
	path string

	decoded    bool
	raw        *gif.GIF
	bounds     image.Rectangle
	composited []*apitype.Frame
	canvas     *image.RGBA
	built      int
}

func newAnimatedProducer(path string) *animatedProducer {
	return &animatedProducer{
		path: path,
	}
}

func (s *animatedProducer) produce(index int) (*apitype.Frame, error) {
	if !s.decoded {
		if err := s.decode(); err != nil {
			return nil, err
		}
	}
	if index >= len(s.raw.Image) {
		return nil, nil
	}

	// Frames composite onto the previous canvas, so they have to be
	// built in order up to the requested index.
	for s.built <= index {
		s.buildNext()
	}
	return s.composited[index], nil
}

func (s *animatedProducer) total() (int, bool) {
	if !s.decoded {
		return 0, false
	}
	return len(s.raw.Image), true
}

func (s *animatedProducer) metadata() (apitype.Size, bool) {
	if !s.decoded {
		return apitype.SizeOf(0, 0), false
	}
	return apitype.SizeOf(s.bounds.Dx(), s.bounds.Dy()), true
}

func (s *animatedProducer) loops() bool {
	return true
}

func (s *animatedProducer) decode() error {
	file, err := os.Open(s.path)
	if err != nil {
		return err
	}
	defer file.Close()

	startTime := time.Now()
	raw, err := gif.DecodeAll(file)
	if err != nil {
		return err
	}

	s.raw = raw
	s.bounds = image.Rect(0, 0, raw.Config.Width, raw.Config.Height)
	if s.bounds.Empty() && len(raw.Image) > 0 {
		s.bounds = raw.Image[0].Bounds()
	}
	s.composited = make([]*apitype.Frame, 0, len(raw.Image))
	s.canvas = image.NewRGBA(s.bounds)
	s.decoded = true
	logger.Trace.Printf("'%s': %d animation frames decoded in %s",
		s.path, len(raw.Image), time.Since(startTime).String())
	return nil
}

func (s *animatedProducer) buildNext() {
	index := s.built
	paletted := s.raw.Image[index]

	draw.Draw(s.canvas, paletted.Bounds(), paletted, paletted.Bounds().Min, draw.Over)

	snapshot := image.NewRGBA(s.bounds)
	copy(snapshot.Pix, s.canvas.Pix)

	duration := time.Duration(s.raw.Delay[index]) * 10 * time.Millisecond
	s.composited = append(s.composited, apitype.NewFrame(snapshot, duration))
	s.built++
}
