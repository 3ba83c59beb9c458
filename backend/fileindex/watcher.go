package fileindex

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"vincit.fi/image-viewer/api"
	"vincit.fi/image-viewer/api/apitype"
	"vincit.fi/image-viewer/common/logger"
)

// renamePairWindow is how long a rename waits for its create
// counterpart before it degrades to a plain remove.
const renamePairWindow = 100 * time.Millisecond

// Watcher adapts fsnotify to the viewer's file events. fsnotify
// reports a rename as Rename on the old name followed by Create on
// the new name, so the two are paired inside a short window.
type Watcher struct {
	mux         sync.Mutex
	fsWatcher   *fsnotify.Watcher
	root        string
	recursive   bool
	subscribers map[string]func(events []apitype.FileEvent)
	pendingOld  string
	pendingAt   time.Time
	closed      bool
	exited      chan struct{}

	api.FileWatcher
}

func NewWatcher() (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	s := &Watcher{
		fsWatcher:   fsWatcher,
		subscribers: map[string]func(events []apitype.FileEvent){},
		exited:      make(chan struct{}),
	}
	go s.run()
	return s, nil
}

// Watch points the watcher at a new root. The previous root is
// dropped.
func (s *Watcher) Watch(root string, recursive bool) error {
	s.mux.Lock()
	previous := s.root
	s.root = root
	s.recursive = recursive
	s.mux.Unlock()

	if previous != "" {
		// Recursive watches also cover subdirectories of the old root.
		for _, watched := range s.fsWatcher.WatchList() {
			_ = s.fsWatcher.Remove(watched)
		}
	}
	if err := s.fsWatcher.Add(root); err != nil {
		return err
	}
	if recursive {
		s.addSubdirectories(root, "")
	}
	logger.Debug.Printf("Watching '%s' (recursive: %v)", root, recursive)
	return nil
}

func (s *Watcher) addSubdirectories(root string, relative string) {
	entries, err := os.ReadDir(filepath.Join(root, relative))
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		relativePath := entry.Name()
		if relative != "" {
			relativePath = relative + "/" + entry.Name()
		}
		if err := s.fsWatcher.Add(filepath.Join(root, relativePath)); err != nil {
			logger.Warn.Printf("Cannot watch '%s': %s", relativePath, err)
			continue
		}
		s.addSubdirectories(root, relativePath)
	}
}

func (s *Watcher) Subscribe(fn func(events []apitype.FileEvent)) string {
	handle := uuid.New().String()
	s.mux.Lock()
	s.subscribers[handle] = fn
	s.mux.Unlock()
	return handle
}

func (s *Watcher) Unsubscribe(handle string) {
	s.mux.Lock()
	delete(s.subscribers, handle)
	s.mux.Unlock()
}

func (s *Watcher) Close() {
	s.mux.Lock()
	if s.closed {
		s.mux.Unlock()
		return
	}
	s.closed = true
	s.mux.Unlock()
	_ = s.fsWatcher.Close()
	<-s.exited
}

func (s *Watcher) relative(name string) (string, bool) {
	s.mux.Lock()
	root := s.root
	s.mux.Unlock()
	if root == "" {
		return "", false
	}
	relative, err := filepath.Rel(root, name)
	if err != nil {
		return "", false
	}
	return filepath.ToSlash(relative), true
}

func (s *Watcher) publish(events []apitype.FileEvent) {
	if len(events) == 0 {
		return
	}
	s.mux.Lock()
	subscribers := make([]func(events []apitype.FileEvent), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subscribers = append(subscribers, fn)
	}
	s.mux.Unlock()

	for _, fn := range subscribers {
		fn(events)
	}
}

// flushPendingRename turns an unpaired rename into a remove.
func (s *Watcher) flushPendingRename() []apitype.FileEvent {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.pendingOld == "" || time.Since(s.pendingAt) < renamePairWindow {
		return nil
	}
	removed := s.pendingOld
	s.pendingOld = ""
	return []apitype.FileEvent{{Type: apitype.FileRemoved, Name: removed}}
}

func (s *Watcher) run() {
	defer close(s.exited)

	for {
		select {
		case event, ok := <-s.fsWatcher.Events:
			if !ok {
				return
			}
			s.publish(s.translate(event))
		case err, ok := <-s.fsWatcher.Errors:
			if !ok {
				return
			}
			logger.Warn.Printf("Watcher error: %s", err)
		case <-time.After(renamePairWindow):
			s.publish(s.flushPendingRename())
		}
	}
}

func (s *Watcher) translate(event fsnotify.Event) []apitype.FileEvent {
	name, ok := s.relative(event.Name)
	if !ok {
		return nil
	}

	var events []apitype.FileEvent

	switch {
	case event.Op.Has(fsnotify.Create):
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			s.mux.Lock()
			recursive := s.recursive
			root := s.root
			s.mux.Unlock()
			if recursive {
				_ = s.fsWatcher.Add(event.Name)
				s.addSubdirectories(root, name)
			}
			return nil
		}

		s.mux.Lock()
		previous := s.pendingOld
		s.pendingOld = ""
		s.mux.Unlock()
		if previous != "" {
			events = append(events, apitype.FileEvent{
				Type:         apitype.FileRenamed,
				Name:         name,
				PreviousName: previous,
			})
		} else {
			events = append(events, apitype.FileEvent{Type: apitype.FileAdded, Name: name})
		}

	case event.Op.Has(fsnotify.Rename):
		// Hold the old name: the paired create may follow.
		flushed := s.flushPendingRename()
		s.mux.Lock()
		s.pendingOld = name
		s.pendingAt = time.Now()
		s.mux.Unlock()
		return flushed

	case event.Op.Has(fsnotify.Remove):
		events = append(events, apitype.FileEvent{Type: apitype.FileRemoved, Name: name})
	}

	return events
}
