package evictor

import (
	goimage "image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"vincit.fi/image-viewer/api"
	"vincit.fi/image-viewer/api/apitype"
	"vincit.fi/image-viewer/backend/image"
	"vincit.fi/image-viewer/common/app"
)

type StubDecoderFactory struct {
	api.DecoderFactory
}

type StubDecoder struct {
	sink   api.FrameSink
	events api.DecoderEvents

	api.Decoder
}

func (s *StubDecoderFactory) NewDecoder(path string, sink api.FrameSink, events api.DecoderEvents) (api.Decoder, error) {
	return &StubDecoder{sink: sink, events: events}, nil
}

func (s *StubDecoder) Start(suspendWhenFull bool) {
	s.sink.PublishFrame(apitype.NewFrame(goimage.NewRGBA(goimage.Rect(0, 0, 2, 2)), 0))
	s.events.FirstFramePublished()
	s.events.DecodeComplete(1)
}

func (s *StubDecoder) Suspend()                  {}
func (s *StubDecoder) Resume()                   {}
func (s *StubDecoder) Restart(suspendWhenFull bool) {}
func (s *StubDecoder) Stop()                     {}

func loadedTestImage(t *testing.T, store *image.Store, name string) *image.Image {
	t.Helper()
	file := apitype.NewImageFile(apitype.HashDir("/photos"), name, time.Time{})
	img := store.GetOrCreate(file, "/photos/"+name)
	img.StartLoading(false)
	if img.State() != image.Complete {
		t.Fatalf("image '%s' did not load", name)
	}
	return img
}

func TestEvictor_UnloadsAfterGrace(t *testing.T) {
	a := assert.New(t)

	store := image.NewStore(&StubDecoderFactory{}, 5, 64)
	sut := NewEvictor(app.NewContext(), store, 30*time.Millisecond)
	sut.Start()
	defer sut.Stop()

	img := loadedTestImage(t, store, "a.jpg")
	sut.Schedule(img.Key())
	a.True(sut.IsScheduled(img.Key()))

	a.Eventually(func() bool {
		return img.State() == image.Unloaded
	}, time.Second, 10*time.Millisecond)
	a.False(sut.IsScheduled(img.Key()))
}

func TestEvictor_CancelKeepsImageLoaded(t *testing.T) {
	a := assert.New(t)

	store := image.NewStore(&StubDecoderFactory{}, 5, 64)
	sut := NewEvictor(app.NewContext(), store, 30*time.Millisecond)
	sut.Start()
	defer sut.Stop()

	img := loadedTestImage(t, store, "a.jpg")
	sut.Schedule(img.Key())
	sut.Cancel(img.Key())

	time.Sleep(150 * time.Millisecond)
	a.Equal(image.Complete, img.State())
	a.False(sut.IsScheduled(img.Key()))
}

func TestEvictor_Reclassify(t *testing.T) {
	a := assert.New(t)

	store := image.NewStore(&StubDecoderFactory{}, 5, 64)
	sut := NewEvictor(app.NewContext(), store, time.Hour)
	sut.Start()
	defer sut.Stop()

	entering := loadedTestImage(t, store, "a.jpg")
	leaving := loadedTestImage(t, store, "b.jpg")
	sut.Schedule(entering.Key())

	sut.Reclassify([]apitype.ImageKey{entering.Key()}, []apitype.ImageKey{leaving.Key()})

	a.False(sut.IsScheduled(entering.Key()))
	a.True(sut.IsScheduled(leaving.Key()))
	a.Equal(1, sut.QueueLen())
}

func TestEvictor_StopIsPrompt(t *testing.T) {
	store := image.NewStore(&StubDecoderFactory{}, 5, 64)
	sut := NewEvictor(app.NewContext(), store, time.Hour)
	sut.Start()

	done := make(chan struct{})
	go func() {
		sut.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("evictor did not stop promptly")
	}
}
