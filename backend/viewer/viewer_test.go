package viewer

import (
	"errors"
	"fmt"
	goimage "image"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"vincit.fi/image-viewer/api"
	"vincit.fi/image-viewer/api/apitype"
	"vincit.fi/image-viewer/backend/evictor"
	"vincit.fi/image-viewer/backend/fileindex"
	"vincit.fi/image-viewer/backend/image"
	"vincit.fi/image-viewer/common/app"
)

var testExtensions = map[string]bool{"jpg": true, "jpeg": true, "png": true, "gif": true}

// RecordingSender collects every published command per topic.
type RecordingSender struct {
	mu       sync.Mutex
	commands map[api.Topic][]apitype.Command

	api.Sender
}

func NewRecordingSender() *RecordingSender {
	return &RecordingSender{commands: map[api.Topic][]apitype.Command{}}
}

func (s *RecordingSender) SendToTopic(topic api.Topic) {
	s.SendCommandToTopic(topic, nil)
}

func (s *RecordingSender) SendCommandToTopic(topic api.Topic, command apitype.Command) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands[topic] = append(s.commands[topic], command)
}

func (s *RecordingSender) SendError(message string, err error) {
	s.SendCommandToTopic(api.ShowError, &api.ErrorCommand{Message: message})
}

func (s *RecordingSender) Count(topic api.Topic) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.commands[topic])
}

func (s *RecordingSender) Last(topic api.Topic) apitype.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	recorded := s.commands[topic]
	if len(recorded) == 0 {
		return nil
	}
	return recorded[len(recorded)-1]
}

// SyncScheduler runs every task inline, which makes scan completion
// deterministic in tests.
type SyncScheduler struct {
	nextId api.TaskId

	api.Scheduler
}

func (s *SyncScheduler) Schedule(priority api.TaskPriority, fn func(id api.TaskId)) api.TaskId {
	s.nextId++
	id := s.nextId
	fn(id)
	return id
}

func (s *SyncScheduler) Cancel(id api.TaskId, waitUntilCancelled bool) {}

func (s *SyncScheduler) IsTaskCancelled(id api.TaskId) bool {
	return false
}

func (s *SyncScheduler) Close() {}

// FakeWatcher lets the test inject change events.
type FakeWatcher struct {
	mu          sync.Mutex
	nextId      int
	subscribers map[string]func(events []apitype.FileEvent)

	api.FileWatcher
}

func NewFakeWatcher() *FakeWatcher {
	return &FakeWatcher{subscribers: map[string]func(events []apitype.FileEvent){}}
}

func (s *FakeWatcher) Watch(root string, recursive bool) error {
	return nil
}

func (s *FakeWatcher) Subscribe(fn func(events []apitype.FileEvent)) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextId++
	handle := fmt.Sprintf("sub-%d", s.nextId)
	s.subscribers[handle] = fn
	return handle
}

func (s *FakeWatcher) Unsubscribe(handle string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscribers, handle)
}

func (s *FakeWatcher) Close() {}

func (s *FakeWatcher) Emit(events ...apitype.FileEvent) {
	s.mu.Lock()
	subscribers := make([]func(events []apitype.FileEvent), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subscribers = append(subscribers, fn)
	}
	s.mu.Unlock()
	for _, fn := range subscribers {
		fn(events)
	}
}

// StubDecoderFactory publishes one tiny frame synchronously, or fails
// for configured file names.
type StubDecoderFactory struct {
	mu      sync.Mutex
	failFor map[string]bool

	api.DecoderFactory
}

type StubDecoder struct {
	path     string
	sink     api.FrameSink
	events   api.DecoderEvents
	failWith error

	api.Decoder
}

func (s *StubDecoderFactory) NewDecoder(path string, sink api.FrameSink, events api.DecoderEvents) (api.Decoder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var failWith error
	if s.failFor[filepath.Base(path)] {
		failWith = errors.New("stub decode failure")
	}
	return &StubDecoder{path: path, sink: sink, events: events, failWith: failWith}, nil
}

func (s *StubDecoder) Start(suspendWhenFull bool) {
	if s.failWith != nil {
		s.events.DecodeFailed(s.failWith)
		return
	}
	s.sink.PublishFrame(apitype.NewFrame(goimage.NewRGBA(goimage.Rect(0, 0, 2, 2)), 0))
	s.events.FirstFramePublished()
	s.events.DecodeComplete(1)
}

func (s *StubDecoder) Suspend()                     {}
func (s *StubDecoder) Resume()                      {}
func (s *StubDecoder) Restart(suspendWhenFull bool) {}
func (s *StubDecoder) Stop()                        {}

type viewerFixture struct {
	root    string
	sender  *RecordingSender
	store   *image.Store
	evictor *evictor.Evictor
	watcher *FakeWatcher
	factory *StubDecoderFactory
	service *Service
}

func newFixture(t *testing.T, evictionDelay time.Duration, files ...string) *viewerFixture {
	t.Helper()
	root := t.TempDir()
	for _, name := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	context := app.NewContext()
	sender := NewRecordingSender()
	factory := &StubDecoderFactory{failFor: map[string]bool{}}
	store := image.NewStore(factory, 5, 64)
	imageEvictor := evictor.NewEvictor(context, store, evictionDelay)
	imageEvictor.Start()
	watcher := NewFakeWatcher()
	scanner := fileindex.NewScanner(fileindex.NewLister(), testExtensions)

	service := NewImageViewerService(context, sender, &SyncScheduler{}, watcher, scanner,
		store, imageEvictor, apitype.SortByName, apitype.SortAscending, false, 2, 2)

	t.Cleanup(func() {
		service.Close()
		imageEvictor.Stop()
		store.Purge()
	})

	return &viewerFixture{
		root:    root,
		sender:  sender,
		store:   store,
		evictor: imageEvictor,
		watcher: watcher,
		factory: factory,
		service: service,
	}
}

func (s *viewerFixture) open(target string) {
	path := s.root
	if target != "" {
		path = filepath.Join(s.root, filepath.FromSlash(target))
	}
	s.service.SetViewerPath(&api.SetPathCommand{Path: path})
	s.service.Tick()
}

func (s *viewerFixture) keyOf(relativePath string) apitype.ImageKey {
	return apitype.KeyOf(apitype.HashDir(s.root), relativePath)
}

func (s *viewerFixture) imageOf(relativePath string) *image.Image {
	return s.store.Get(s.keyOf(relativePath))
}

func TestViewer_StartupWithFileArgument(t *testing.T) {
	a := assert.New(t)

	sut := newFixture(t, time.Hour, "a.jpg", "b.jpg", "c.jpg", "d.jpg", "e.jpg")
	sut.open("c.jpg")

	a.Equal(5, sut.service.NumImages())
	a.Equal(2, sut.service.CurrentImageIndex())
	a.Equal("c.jpg", sut.service.CurrentFilepath(false))
	a.Equal(filepath.Join(sut.root, "c.jpg"), sut.service.CurrentFilepath(true))
	a.True(sut.service.IsFirstScanComplete())
	a.False(sut.service.IsScanningFiles())
	a.NotNil(sut.service.CurrentImage())

	// The whole window is resident and none of it is queued for
	// eviction.
	for _, name := range []string{"c.jpg", "d.jpg", "e.jpg", "a.jpg", "b.jpg"} {
		img := sut.imageOf(name)
		if a.NotNil(img, name) {
			a.NotEqual(image.Unloaded, img.State(), name)
		}
		a.False(sut.evictor.IsScheduled(sut.keyOf(name)), name)
	}
}

func TestViewer_ForwardNavigationThrash(t *testing.T) {
	a := assert.New(t)

	files := []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg", "e.jpg", "f.jpg", "g.jpg", "h.jpg", "i.jpg", "j.jpg"}
	sut := newFixture(t, 30*time.Millisecond, files...)
	sut.open("")

	a.Equal(0, sut.service.CurrentImageIndex())

	for i := 0; i < 5; i++ {
		sut.service.NextImage()
		sut.service.Tick()
	}
	a.Equal(5, sut.service.CurrentImageIndex())

	// Window f,g,h,d,e stays resident.
	for _, name := range []string{"f.jpg", "g.jpg", "h.jpg", "d.jpg", "e.jpg"} {
		a.False(sut.evictor.IsScheduled(sut.keyOf(name)), name)
	}

	// Everything that left the window unloads after the grace delay.
	for _, name := range []string{"a.jpg", "b.jpg", "c.jpg"} {
		name := name
		a.Eventually(func() bool {
			img := sut.imageOf(name)
			return img != nil && img.State() == image.Unloaded
		}, time.Second, 10*time.Millisecond, name)
	}
}

func TestViewer_BackAndForthWithinGracePeriod(t *testing.T) {
	a := assert.New(t)

	files := []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg", "e.jpg", "f.jpg", "g.jpg", "h.jpg", "i.jpg", "j.jpg"}
	sut := newFixture(t, 500*time.Millisecond, files...)
	sut.open("")

	sut.service.JumpToIndex(&api.ImageQuery{Index: 5})
	sut.service.Tick()
	a.Equal(5, sut.service.CurrentImageIndex())
	imageAtFive := sut.service.CurrentImage()

	sut.service.NextImage()
	sut.service.Tick()
	sut.service.PreviousImage()
	sut.service.Tick()

	a.Equal(5, sut.service.CurrentImageIndex())
	a.Equal(imageAtFive, sut.service.CurrentImage())
	a.NotEqual(image.Unloaded, sut.imageOf("f.jpg").State())
	a.False(sut.evictor.IsScheduled(sut.keyOf("f.jpg")))
}

func TestViewer_LiveAdd(t *testing.T) {
	a := assert.New(t)

	sut := newFixture(t, time.Hour, "a.jpg", "c.jpg", "d.jpg")
	sut.open("c.jpg")
	a.Equal(1, sut.service.CurrentImageIndex())

	imageChangedBefore := sut.sender.Count(api.ImageChanged)
	sut.watcher.Emit(apitype.FileEvent{Type: apitype.FileAdded, Name: "b.jpg"})
	sut.service.Tick()

	a.Equal(4, sut.service.NumImages())
	a.Equal(2, sut.service.CurrentImageIndex())
	a.Equal("c.jpg", sut.service.CurrentFilepath(false))

	// The list signal fired with the new size; the image signal did
	// not, the selection never moved.
	last := sut.sender.Last(api.ImageListUpdated).(*api.SetFileListCommand)
	a.Equal(4, last.Total)
	a.Equal(imageChangedBefore, sut.sender.Count(api.ImageChanged))
}

func TestViewer_LiveRemoveOfCurrent(t *testing.T) {
	a := assert.New(t)

	sut := newFixture(t, time.Hour, "a.jpg", "b.jpg", "c.jpg")
	sut.open("b.jpg")
	a.Equal(1, sut.service.CurrentImageIndex())
	removedImage := sut.imageOf("b.jpg")
	a.NotNil(removedImage)

	imageChangedBefore := sut.sender.Count(api.ImageChanged)
	sut.watcher.Emit(apitype.FileEvent{Type: apitype.FileRemoved, Name: "b.jpg"})
	sut.service.Tick()

	a.Equal(2, sut.service.NumImages())
	a.Equal(1, sut.service.CurrentImageIndex())
	a.Equal("c.jpg", sut.service.CurrentFilepath(false))

	last := sut.sender.Last(api.ImageListUpdated).(*api.SetFileListCommand)
	a.Equal(2, last.Total)
	a.Greater(sut.sender.Count(api.ImageChanged), imageChangedBefore)
	a.Equal(image.Unloaded, removedImage.State())
	a.Nil(sut.imageOf("b.jpg"))
}

func TestViewer_LiveRemoveOfLastEntry(t *testing.T) {
	a := assert.New(t)

	sut := newFixture(t, time.Hour, "a.jpg")
	sut.open("a.jpg")

	sut.watcher.Emit(apitype.FileEvent{Type: apitype.FileRemoved, Name: "a.jpg"})
	sut.service.Tick()

	a.Equal(0, sut.service.NumImages())
	a.Nil(sut.service.CurrentImage())
	a.Equal("", sut.service.CurrentFilepath(false))
}

func TestViewer_LiveRename(t *testing.T) {
	a := assert.New(t)

	sut := newFixture(t, time.Hour, "a.jpg", "b.jpg", "c.jpg")
	sut.open("a.jpg")

	sut.watcher.Emit(apitype.FileEvent{
		Type:         apitype.FileRenamed,
		Name:         "z.jpg",
		PreviousName: "a.jpg",
	})
	sut.service.Tick()

	// The selection follows the file to its new sort position.
	a.Equal(3, sut.service.NumImages())
	a.Equal(2, sut.service.CurrentImageIndex())
	a.Equal("z.jpg", sut.service.CurrentFilepath(false))
}

func TestViewer_DecoderFailure(t *testing.T) {
	a := assert.New(t)

	sut := newFixture(t, time.Hour, "a.jpg", "b.jpg", "c.jpg")
	sut.factory.failFor["b.jpg"] = true
	sut.open("b.jpg")

	current := sut.service.CurrentImage()
	if a.NotNil(current) {
		a.True(current.IsError())
		a.Equal("stub decode failure", current.ErrorText())
	}

	// Navigation still works; coming back without an eviction keeps
	// the sticky error on the same image.
	sut.service.NextImage()
	sut.service.Tick()
	a.Equal(2, sut.service.CurrentImageIndex())

	sut.service.PreviousImage()
	sut.service.Tick()
	comeback := sut.service.CurrentImage()
	a.Equal(current, comeback)
	a.True(comeback.IsError())

	// Reload clears the sticky error once the file decodes again.
	sut.factory.failFor["b.jpg"] = false
	sut.service.ReloadCurrentImage()
	a.False(sut.service.CurrentImage().IsError())
}

func TestViewer_EmptyDirectory(t *testing.T) {
	a := assert.New(t)

	sut := newFixture(t, time.Hour)
	sut.open("")

	a.Equal(0, sut.service.NumImages())
	a.Nil(sut.service.CurrentImage())

	// Navigation on an empty list is a no-op.
	sut.service.NextImage()
	sut.service.Tick()
	sut.service.PreviousImage()
	sut.service.Tick()
	a.Equal(0, sut.service.CurrentImageIndex())
	a.Nil(sut.service.CurrentImage())
}

func TestViewer_SingleEntryWrap(t *testing.T) {
	a := assert.New(t)

	sut := newFixture(t, time.Hour, "a.jpg")
	sut.open("")

	sut.service.NextImage()
	sut.service.Tick()
	a.Equal(0, sut.service.CurrentImageIndex())

	sut.service.PreviousImage()
	sut.service.Tick()
	a.Equal(0, sut.service.CurrentImageIndex())
}

func TestViewer_ChangeImageWraps(t *testing.T) {
	a := assert.New(t)

	sut := newFixture(t, time.Hour, "a.jpg", "b.jpg", "c.jpg", "d.jpg", "e.jpg")
	sut.open("")

	sut.service.ChangeImage(&api.ChangeImageCommand{Delta: -2})
	sut.service.Tick()
	a.Equal(3, sut.service.CurrentImageIndex())

	sut.service.ChangeImage(&api.ChangeImageCommand{Delta: 4})
	sut.service.Tick()
	a.Equal(2, sut.service.CurrentImageIndex())

	t.Run("there and back again", func(t *testing.T) {
		start := sut.service.CurrentImageIndex()
		sut.service.ChangeImage(&api.ChangeImageCommand{Delta: 7})
		sut.service.Tick()
		sut.service.ChangeImage(&api.ChangeImageCommand{Delta: -7})
		sut.service.Tick()
		a.Equal(start, sut.service.CurrentImageIndex())
	})
}

func TestViewer_JumpToFilenameRoundTrip(t *testing.T) {
	a := assert.New(t)

	sut := newFixture(t, time.Hour, "a.jpg", "b.jpg", "c.jpg")
	sut.open("")

	sut.service.JumpToFilename(&api.ImageByNameQuery{Path: "b.jpg"})
	sut.service.Tick()
	a.Equal("b.jpg", sut.service.CurrentFilepath(false))

	// Unknown names leave the selection alone.
	sut.service.JumpToFilename(&api.ImageByNameQuery{Path: "missing.jpg"})
	sut.service.Tick()
	a.Equal("b.jpg", sut.service.CurrentFilepath(false))
}

func TestViewer_JumpToDirectory(t *testing.T) {
	a := assert.New(t)

	sut := newFixture(t, time.Hour, "a.jpg", "album/b.jpg", "album/c.jpg")
	// Subdirectory entries are only listed by a recursive scan.
	sut.service.service.recursive = true
	sut.open("")

	sut.service.JumpToDirectory(&api.ImageByNameQuery{Path: "album"})
	sut.service.Tick()
	a.Equal("album/b.jpg", sut.service.CurrentFilepath(false))
}

func TestViewer_DeleteCurrentImage(t *testing.T) {
	a := assert.New(t)

	sut := newFixture(t, time.Hour, "a.jpg", "b.jpg")
	sut.open("b.jpg")

	sut.service.DeleteCurrentImage()
	_, err := os.Stat(filepath.Join(sut.root, "b.jpg"))
	a.True(os.IsNotExist(err))

	// The watcher notices the deletion and the list follows.
	sut.watcher.Emit(apitype.FileEvent{Type: apitype.FileRemoved, Name: "b.jpg"})
	sut.service.Tick()
	a.Equal(1, sut.service.NumImages())
	a.Equal("a.jpg", sut.service.CurrentFilepath(false))
}

func TestViewer_SetSorting(t *testing.T) {
	a := assert.New(t)

	sut := newFixture(t, time.Hour, "a.jpg", "b.jpg", "c.jpg")
	sut.open("a.jpg")

	sut.service.SetSorting(&api.SortCommand{Key: apitype.SortByName, Reverse: true})
	sut.service.Tick()

	// The selection follows the file through the re-sort.
	a.Equal("a.jpg", sut.service.CurrentFilepath(false))
	a.Equal(2, sut.service.CurrentImageIndex())
}

func TestViewer_OpenSamePathTwice(t *testing.T) {
	a := assert.New(t)

	sut := newFixture(t, time.Hour, "a.jpg", "b.jpg", "c.jpg")
	sut.open("b.jpg")
	listUpdates := sut.sender.Count(api.ImageListUpdated)

	// Same root again: plain navigation, no rescan, no list signal.
	sut.open("c.jpg")

	a.Equal(listUpdates, sut.sender.Count(api.ImageListUpdated))
	a.Equal("c.jpg", sut.service.CurrentFilepath(false))
	a.Equal(3, sut.service.NumImages())
}

func TestViewer_WindowAndEvictionQueueStayDisjoint(t *testing.T) {
	a := assert.New(t)

	files := []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg", "e.jpg", "f.jpg", "g.jpg"}
	sut := newFixture(t, time.Hour, files...)
	sut.open("")

	for i := 0; i < len(files)*2; i++ {
		sut.service.NextImage()
		sut.service.Tick()

		current := sut.service.CurrentImageIndex()
		window := PrefetchWindow(current, len(files), 2, 2)
		for _, slot := range window {
			key := sut.keyOf(files[slot.Index])
			a.False(sut.evictor.IsScheduled(key), files[slot.Index])
		}
	}
}

func TestViewer_GetStats(t *testing.T) {
	a := assert.New(t)

	sut := newFixture(t, time.Hour, "a.jpg", "b.jpg")
	sut.open("a.jpg")

	stats := sut.service.GetStats()
	a.Contains(stats, "index 1/2")
}
