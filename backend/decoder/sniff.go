package decoder

import (
	"bytes"
	"os"
)

type Format int

const (
	FormatUnknown Format = iota
	FormatJpeg
	FormatPng
	FormatGif
	FormatBmp
	FormatWebp
)

func (s Format) String() string {
	switch s {
	case FormatJpeg:
		return "jpeg"
	case FormatPng:
		return "png"
	case FormatGif:
		return "gif"
	case FormatBmp:
		return "bmp"
	case FormatWebp:
		return "webp"
	}
	return "unknown"
}

// Sniff inspects the leading bytes of the file. Unknown content falls
// back to the static decoder which will surface the real error.
func Sniff(path string) (Format, error) {
	file, err := os.Open(path)
	if err != nil {
		return FormatUnknown, err
	}
	defer file.Close()

	header := make([]byte, 12)
	n, err := file.Read(header)
	if err != nil {
		return FormatUnknown, err
	}
	header = header[:n]

	return sniffHeader(header), nil
}

func sniffHeader(header []byte) Format {
	switch {
	case len(header) >= 2 && header[0] == 0xFF && header[1] == 0xD8:
		return FormatJpeg
	case bytes.HasPrefix(header, []byte("\x89PNG")):
		return FormatPng
	case bytes.HasPrefix(header, []byte("GIF8")):
		return FormatGif
	case bytes.HasPrefix(header, []byte("BM")):
		return FormatBmp
	case len(header) >= 12 && bytes.HasPrefix(header, []byte("RIFF")) && bytes.Equal(header[8:12], []byte("WEBP")):
		return FormatWebp
	}
	return FormatUnknown
}
