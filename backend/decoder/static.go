package decoder

import (
	"errors"
	"image"
	"image/png"
	"os"
	"time"

	"github.com/pixiv/go-libjpeg/jpeg"
	"golang.org/x/image/bmp"
	"golang.org/x/image/webp"
	"vincit.fi/image-viewer/api/apitype"
	"vincit.fi/image-viewer/common/logger"
)

var jpegOptions = &jpeg.DecoderOptions{}

// staticProducer decodes still content: exactly one frame with no
// duration. The decode happens lazily on the first produce call so
// construction stays cheap.
type staticProducer struct {
	path   string
	format Format

	decoded  bool
	pixels   image.Image
	hasAlpha bool
}

func newStaticProducer(path string, format Format) *staticProducer {
	return &staticProducer{
		path:   path,
		format: format,
	}
}

func (s *staticProducer) produce(index int) (*apitype.Frame, error) {
	if index > 0 {
		return nil, nil
	}
	if !s.decoded {
		startTime := time.Now()
		pixels, err := s.decode()
		if err != nil {
			return nil, err
		}
		s.pixels = pixels
		s.hasAlpha = imageHasAlpha(pixels)
		s.decoded = true
		logger.Trace.Printf("'%s': decoded in %s", s.path, time.Since(startTime).String())
	}
	return apitype.NewFrame(s.pixels, 0), nil
}

func (s *staticProducer) total() (int, bool) {
	return 1, true
}

func (s *staticProducer) metadata() (apitype.Size, bool) {
	if !s.decoded {
		return apitype.SizeOf(0, 0), false
	}
	return apitype.SizeFromRectangle(s.pixels.Bounds()), s.hasAlpha
}

func (s *staticProducer) loops() bool {
	return false
}

func (s *staticProducer) decode() (image.Image, error) {
	file, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	switch s.format {
	case FormatJpeg:
		decoded, err := jpeg.Decode(file, jpegOptions)
		if err != nil {
			return nil, err
		}
		return exifRotateFile(s.path, decoded), nil
	case FormatPng:
		return png.Decode(file)
	case FormatBmp:
		return bmp.Decode(file)
	case FormatWebp:
		return webp.Decode(file)
	}
	return nil, errors.New("unsupported image format")
}

func imageHasAlpha(pixels image.Image) bool {
	switch pixels.(type) {
	case *image.NRGBA, *image.RGBA, *image.NRGBA64, *image.RGBA64:
		_, _, _, alpha := pixels.At(pixels.Bounds().Min.X, pixels.Bounds().Min.Y).RGBA()
		return alpha < 0xffff
	}
	return false
}
