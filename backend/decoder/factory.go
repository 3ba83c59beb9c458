package decoder

import (
	"vincit.fi/image-viewer/api"
	"vincit.fi/image-viewer/common/logger"
)

type Factory struct {
	api.DecoderFactory
}

func NewFactory() api.DecoderFactory {
	return &Factory{}
}

// NewDecoder sniffs the file and picks the decode strategy. Unknown
// formats get the static decoder so the failure surfaces as a decode
// error on that image alone.
func (s *Factory) NewDecoder(path string, sink api.FrameSink, events api.DecoderEvents) (api.Decoder, error) {
	format, err := Sniff(path)
	if err != nil {
		return nil, err
	}

	logger.Trace.Printf("'%s' sniffed as %s", path, format)
	switch format {
	case FormatGif:
		return newEngine(path, newAnimatedProducer(path), sink, events), nil
	default:
		return newEngine(path, newStaticProducer(path, format), sink, events), nil
	}
}
