package viewer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"vincit.fi/image-viewer/api"
	"vincit.fi/image-viewer/api/apitype"
	"vincit.fi/image-viewer/backend/evictor"
	"vincit.fi/image-viewer/backend/fileindex"
	"vincit.fi/image-viewer/backend/image"
	"vincit.fi/image-viewer/common/app"
	"vincit.fi/image-viewer/common/logger"
	"vincit.fi/image-viewer/common/util"
)

const invalidIndex = -1

// reindexAction picks how the current selection survives a full list
// replace.
type reindexAction int

const (
	reindexDoNothing reindexAction = iota
	reindexKeepCurrentFile
	reindexReset
)

// viewerState is one displayed (or pending) selection: an index into
// the file index, the hash of the root it refers to, and a snapshot
// of the entry at that index.
type viewerState struct {
	imageIndex    int
	directoryHash apitype.DirHash
	entry         *apitype.ImageFile
}

var emptyViewerState = viewerState{imageIndex: invalidIndex}

// internalManager holds the viewer core state. Every public method
// takes the manager mutex. The window reconciliation starts, resumes
// and reclassifies images while holding it, and watch handling cancels
// evictions under it, always in the order manager, evictor, image.
// Unloads done for delete, reload and watch events run outside it.
type internalManager struct {
	context   *app.Context
	sender    api.Sender
	scheduler api.Scheduler
	watcher   api.FileWatcher
	scanner   *fileindex.Scanner
	store     *image.Store
	evictor   *evictor.Evictor

	prefetchForward  int
	prefetchBackward int

	mux            sync.Mutex
	index          *fileindex.Index
	current        viewerState
	pending        viewerState
	pendingDirty   bool
	currentImage   *image.Image
	lastWindowKeys []apitype.ImageKey
	recursive      bool

	scanningFiles     int32
	firstScanComplete int32
	scannerTaskId     api.TaskId
	watchHandle       string
}

func newManager(context *app.Context, sender api.Sender, scheduler api.Scheduler,
	watcher api.FileWatcher, scanner *fileindex.Scanner, store *image.Store,
	imageEvictor *evictor.Evictor, sortKey apitype.SortKey, order apitype.SortOrder,
	recursive bool, prefetchForward int, prefetchBackward int) *internalManager {
	s := &internalManager{
		context:          context,
		sender:           sender,
		scheduler:        scheduler,
		watcher:          watcher,
		scanner:          scanner,
		store:            store,
		evictor:          imageEvictor,
		prefetchForward:  prefetchForward,
		prefetchBackward: prefetchBackward,
		index:            fileindex.NewIndex(sortKey, order),
		current:          emptyViewerState,
		pending:          emptyViewerState,
		recursive:        recursive,
		scannerTaskId:    api.InvalidTaskId,
	}
	s.watchHandle = watcher.Subscribe(s.watchNotify)
	return s
}

func (s *internalManager) close() {
	s.mux.Lock()
	taskId := s.scannerTaskId
	s.scannerTaskId = api.InvalidTaskId
	handle := s.watchHandle
	s.mux.Unlock()

	s.scheduler.Cancel(taskId, true)
	s.watcher.Unsubscribe(handle)
	logger.Info.Print("Shutting down viewer")
}

// SetViewerPath points the viewer at a new file or directory. A path
// in the current root directory, or an indexed path below it under a
// recursive scan, is plain navigation; anything else resets the index
// and schedules a fresh scan.
func (s *internalManager) SetViewerPath(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("path not found: %s", path)
	}

	targetFile := ""
	rootPath := path
	if !info.IsDir() {
		targetFile = filepath.Base(path)
		rootPath = filepath.Dir(path)
	}
	rootPath = filepath.Clean(rootPath)

	s.mux.Lock()
	currentRoot := s.index.RootPath()
	if currentRoot != "" && currentRoot == rootPath {
		// Same root: only navigate.
		if targetFile != "" {
			if index := s.index.IndexOfPath(targetFile); index >= 0 {
				s.setPendingImageLocked(index)
			}
		}
		s.mux.Unlock()
		return nil
	}
	if currentRoot != "" && s.recursive {
		if relative, err := filepath.Rel(currentRoot, path); err == nil && !strings.HasPrefix(relative, "..") {
			// Inside the current recursive root: navigate within the
			// existing index.
			if index := s.index.IndexOfPath(filepath.ToSlash(relative)); index >= 0 {
				s.setPendingImageLocked(index)
				s.mux.Unlock()
				return nil
			}
		}
	}

	taskId := s.scannerTaskId
	s.scannerTaskId = api.InvalidTaskId
	s.mux.Unlock()

	// A superseded scan must not publish into the new index.
	s.scheduler.Cancel(taskId, true)

	if err := s.watcher.Watch(rootPath, s.recursive); err != nil {
		logger.Warn.Printf("Cannot watch '%s': %s", rootPath, err)
	}

	s.mux.Lock()
	s.index.SetRoot(rootPath)
	s.current = emptyViewerState
	s.pending = emptyViewerState
	s.pendingDirty = true
	s.currentImage = nil

	// Synthesize a one entry preview so the user sees the file
	// immediately while the scan runs.
	if targetFile != "" && s.scanner.IsExtensionAllowed(targetFile) {
		entry := apitype.NewImageFile(s.index.RootHash(), targetFile, info.ModTime())
		s.index.Replace([]*apitype.ImageFile{entry})
		s.setPendingImageLocked(0)
	}
	listLen := s.index.Len()
	s.mux.Unlock()

	s.sendFileListUpdated(listLen)
	s.scheduleScan(targetFile)
	return nil
}

// scheduleScan starts the two phase first scan: publish the flat
// directory right away, then replace it with the recursive result.
func (s *internalManager) scheduleScan(keepFile string) {
	atomic.StoreInt32(&s.scanningFiles, 1)
	atomic.StoreInt32(&s.firstScanComplete, 0)

	taskId := s.scheduler.Schedule(api.TaskPriorityCritical, func(id api.TaskId) {
		s.runScan(id, false, keepFile)
	})
	s.mux.Lock()
	s.scannerTaskId = taskId
	s.mux.Unlock()
}

func (s *internalManager) runScan(id api.TaskId, recursive bool, keepFile string) {
	s.runScanWithAction(id, recursive, keepFile, reindexKeepCurrentFile)
}

func (s *internalManager) runScanWithAction(id api.TaskId, recursive bool, keepFile string, action reindexAction) {
	s.mux.Lock()
	root := s.index.RootPath()
	s.mux.Unlock()

	entries, ok := s.scanner.Scan(root, recursive, func() bool {
		return s.scheduler.IsTaskCancelled(id) || s.context.IsQuitting()
	}, func(count int) {
		if count%512 == 0 {
			s.sender.SendCommandToTopic(api.ProcessStatusUpdated, &api.UpdateProgressCommand{
				Name:    "scan",
				Current: count,
				Total:   0,
			})
		}
	})
	if !ok {
		// Cancelled or failed: the published list stays as it was.
		return
	}

	s.applyScanResult(entries, keepFile, action)
	atomic.StoreInt32(&s.firstScanComplete, 1)

	if !recursive && s.recursive {
		nextId := s.scheduler.Schedule(api.TaskPriorityNormal, func(id api.TaskId) {
			s.runScan(id, true, keepFile)
		})
		s.mux.Lock()
		s.scannerTaskId = nextId
		s.mux.Unlock()
		return
	}

	atomic.StoreInt32(&s.scanningFiles, 0)
	s.sender.SendCommandToTopic(api.ProcessStatusUpdated, &api.UpdateProgressCommand{
		Name:    "scan",
		Current: 0,
		Total:   0,
	})
}

// applyScanResult replaces the list and re-points the selection per
// the reindex action.
func (s *internalManager) applyScanResult(entries []*apitype.ImageFile, keepFile string, action reindexAction) {
	s.mux.Lock()
	priorPath := ""
	if s.pending.entry.IsValid() {
		priorPath = s.pending.entry.Path()
	} else if keepFile != "" {
		priorPath = keepFile
	}
	priorIndex := s.pending.imageIndex

	s.index.Replace(entries)

	newIndex := invalidIndex
	if s.index.Len() > 0 {
		switch action {
		case reindexReset:
			newIndex = 0
		case reindexKeepCurrentFile:
			if priorPath != "" {
				newIndex = s.index.IndexOfPath(priorPath)
			}
			if newIndex < 0 {
				newIndex = clampIndex(priorIndex, s.index.Len())
			}
		case reindexDoNothing:
			newIndex = clampIndex(priorIndex, s.index.Len())
		}
	}
	s.setPendingImageLocked(newIndex)
	listLen := s.index.Len()
	s.mux.Unlock()

	s.sendFileListUpdated(listLen)
}

func clampIndex(index int, count int) int {
	if index >= count {
		index = count - 1
	}
	if index < 0 {
		index = 0
	}
	return index
}

// setPendingImageLocked requires the manager mutex.
func (s *internalManager) setPendingImageLocked(index int) {
	if index < 0 || index >= s.index.Len() {
		s.pending = emptyViewerState
		s.pending.directoryHash = s.index.RootHash()
	} else {
		s.pending = viewerState{
			imageIndex:    index,
			directoryHash: s.index.RootHash(),
			entry:         s.index.EntryAt(index),
		}
	}
	s.pendingDirty = true
}

func (s *internalManager) JumpToIndex(index int) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.index.Len() == 0 {
		return
	}
	if index < 0 {
		index = 0
	}
	if index >= s.index.Len() {
		index = s.index.Len() - 1
	}
	s.setPendingImageLocked(index)
}

func (s *internalManager) JumpToFilename(relativePath string) bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	index := s.index.IndexOfPath(relativePath)
	if index < 0 {
		return false
	}
	s.setPendingImageLocked(index)
	return true
}

func (s *internalManager) JumpToDirectory(prefix string) bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	index := s.index.IndexOfDirectoryPrefix(prefix)
	if index < 0 {
		return false
	}
	s.setPendingImageLocked(index)
	return true
}

// ChangeImage moves the selection by delta, wrapping at both ends.
func (s *internalManager) ChangeImage(delta int) {
	s.mux.Lock()
	defer s.mux.Unlock()
	count := s.index.Len()
	if count == 0 {
		return
	}
	base := s.pending.imageIndex
	if base == invalidIndex {
		base = 0
	}
	newIndex := ((base+delta)%count + count) % count
	s.setPendingImageLocked(newIndex)
}

func (s *internalManager) DeleteCurrentImage() error {
	s.mux.Lock()
	entry := s.current.entry
	currentImage := s.currentImage
	root := s.index.RootPath()
	s.mux.Unlock()

	if !entry.IsValid() {
		return nil
	}
	if currentImage != nil {
		currentImage.Unload()
	}
	// The watcher removes the entry from the list.
	return os.Remove(filepath.Join(root, filepath.FromSlash(entry.Path())))
}

// ReloadCurrentImage drops everything for the image on screen,
// including a sticky decode error, and loads it again.
func (s *internalManager) ReloadCurrentImage() {
	s.mux.Lock()
	currentImage := s.currentImage
	s.mux.Unlock()
	if currentImage != nil {
		currentImage.Reload()
	}
}

func (s *internalManager) RotateCurrentImage(clockwise bool) {
	s.mux.Lock()
	currentImage := s.currentImage
	s.mux.Unlock()
	if currentImage != nil {
		currentImage.Rotate(clockwise)
	}
}

func (s *internalManager) SetSorting(key apitype.SortKey, order apitype.SortOrder) {
	s.mux.Lock()
	priorPath := ""
	if s.current.entry.IsValid() {
		priorPath = s.current.entry.Path()
	}
	s.index.SetSorting(key, order)
	if priorPath != "" {
		if index := s.index.IndexOfPath(priorPath); index >= 0 {
			s.setPendingImageLocked(index)
		}
	}
	listLen := s.index.Len()
	s.mux.Unlock()
	s.sendFileListUpdated(listLen)
}

func (s *internalManager) CurrentImageIndex() int {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.current.imageIndex == invalidIndex {
		return 0
	}
	return s.current.imageIndex
}

func (s *internalManager) NumImages() int {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.index.Len()
}

func (s *internalManager) CurrentFilepath(absolute bool) string {
	s.mux.Lock()
	defer s.mux.Unlock()
	if !s.current.entry.IsValid() {
		return ""
	}
	if absolute {
		return filepath.Join(s.index.RootPath(), filepath.FromSlash(s.current.entry.Path()))
	}
	return s.current.entry.Path()
}

func (s *internalManager) CurrentImage() *image.Image {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.currentImage
}

func (s *internalManager) IsScanningFiles() bool {
	return atomic.LoadInt32(&s.scanningFiles) != 0
}

func (s *internalManager) IsFirstScanComplete() bool {
	return atomic.LoadInt32(&s.firstScanComplete) != 0
}

// Tick applies the pending selection from the UI loop: move pending
// into current, reconcile the prefetch window and publish the new
// current image.
func (s *internalManager) Tick() {
	s.mux.Lock()
	if !s.pendingDirty {
		s.mux.Unlock()
		return
	}
	previousIndex := s.current.imageIndex
	s.current = s.pending
	s.pendingDirty = false

	currentImage, total, index := s.reconcileLocked(previousIndex)
	s.mux.Unlock()

	s.sender.SendCommandToTopic(api.ImageChanged, &api.UpdateImageCommand{
		Image: currentImage,
		Index: index,
		Total: total,
	})
}

// reconcileLocked recomputes the prefetch window around the current
// index, starts the unloaded in-window images, resumes the current one
// and reclassifies the eviction queue. Requires the manager mutex; the evictor mutex nests
// inside it, image mutexes inside that.
func (s *internalManager) reconcileLocked(previousIndex int) (api.ImageHandle, int, int) {
	listLen := s.index.Len()
	currentIndex := s.current.imageIndex

	if currentIndex == invalidIndex || listLen == 0 {
		leaving := s.lastWindowKeys
		s.lastWindowKeys = nil
		s.currentImage = nil
		s.suspendLeaving(leaving)
		s.evictor.Reclassify(nil, leaving)
		return nil, listLen, 0
	}

	window := PrefetchWindow(currentIndex, listLen, s.prefetchForward, s.prefetchBackward)

	windowKeys := make([]apitype.ImageKey, 0, len(window))
	inWindow := util.NewSet[apitype.ImageKey]()
	s.currentImage = nil

	for _, slot := range window {
		entry := s.index.EntryAt(slot.Index)
		if entry == nil {
			continue
		}
		key := entry.Key()
		windowKeys = append(windowKeys, key)
		inWindow.Add(key)

		isCurrent := slot.Index == currentIndex
		absolutePath := filepath.Join(s.index.RootPath(), filepath.FromSlash(entry.Path()))
		img := s.store.GetOrCreate(entry, absolutePath)
		if isCurrent {
			s.currentImage = img
		}
		if img.IsError() {
			continue
		}

		switch img.State() {
		case image.Unloaded:
			img.StartLoading(!isCurrent)
		case image.Suspended:
			if isCurrent {
				img.Resume()
			}
		default:
			if slot.Index == previousIndex && !isCurrent {
				// Its first frames are still buffered; rewinding is
				// nearly free.
				img.Restart(true)
			}
		}
		img.SetActive(isCurrent)
	}

	wasInWindow := util.NewSet[apitype.ImageKey]()
	for _, key := range s.lastWindowKeys {
		wasInWindow.Add(key)
	}

	var entering []apitype.ImageKey
	for _, key := range windowKeys {
		if !wasInWindow.Contains(key) {
			entering = append(entering, key)
		}
	}
	var leaving []apitype.ImageKey
	for _, key := range s.lastWindowKeys {
		if !inWindow.Contains(key) {
			leaving = append(leaving, key)
		}
	}

	s.suspendLeaving(leaving)
	s.evictor.Reclassify(entering, leaving)
	s.lastWindowKeys = windowKeys

	if s.currentImage == nil {
		return nil, listLen, currentIndex
	}
	return s.currentImage, listLen, currentIndex
}

func (s *internalManager) suspendLeaving(leaving []apitype.ImageKey) {
	for _, key := range leaving {
		if img := s.store.Get(key); img != nil && img.State() != image.Unloaded {
			img.Suspend()
		}
	}
}

// watchNotify handles filesystem change events. Runs on the watcher
// goroutine, in arrival order.
func (s *internalManager) watchNotify(events []apitype.FileEvent) {
	for _, event := range events {
		switch event.Type {
		case apitype.FileAdded:
			s.handleFileAdded(event.Name)
		case apitype.FileRemoved:
			s.handleFileRemoved(event.Name)
		case apitype.FileRenamed:
			s.handleFileRenamed(event.PreviousName, event.Name)
		}
	}
}

func (s *internalManager) handleFileAdded(name string) {
	if !s.scanner.IsExtensionAllowed(name) {
		return
	}

	s.mux.Lock()
	if s.index.IndexOfPath(name) >= 0 {
		s.mux.Unlock()
		return
	}
	modified := fileModTime(filepath.Join(s.index.RootPath(), filepath.FromSlash(name)))
	entry := apitype.NewImageFile(s.index.RootHash(), name, modified)
	position := s.index.Insert(entry)

	// The selection follows the file, not the slot.
	if s.current.imageIndex != invalidIndex && position <= s.current.imageIndex {
		s.current.imageIndex++
	}
	if s.pending.imageIndex != invalidIndex && position <= s.pending.imageIndex {
		s.pending.imageIndex++
	}
	listLen := s.index.Len()
	s.mux.Unlock()

	logger.Debug.Printf("File added: '%s'", name)
	s.sendFileListUpdated(listLen)
}

func (s *internalManager) handleFileRemoved(name string) {
	s.mux.Lock()
	entry := s.index.EntryAt(s.index.IndexOfPath(name))
	position := s.index.Remove(name)
	if position < 0 {
		s.mux.Unlock()
		return
	}

	removedCurrent := position == s.current.imageIndex
	if s.current.imageIndex != invalidIndex && position < s.current.imageIndex {
		s.current.imageIndex--
	}
	if s.pending.imageIndex != invalidIndex && position < s.pending.imageIndex {
		s.pending.imageIndex--
	}

	if removedCurrent {
		// Prefer the next survivor in sort order, else the previous,
		// else an empty selection.
		newIndex := position
		if newIndex >= s.index.Len() {
			newIndex = s.index.Len() - 1
		}
		s.setPendingImageLocked(newIndex)
	} else if s.pending.imageIndex == position && s.pendingDirty {
		s.setPendingImageLocked(s.pending.imageIndex)
	}

	var removedImage *image.Image
	if entry != nil {
		removedImage = s.store.Remove(entry.Key())
		s.evictor.Cancel(entry.Key())
	}
	listLen := s.index.Len()
	s.mux.Unlock()

	if removedImage != nil {
		removedImage.Unload()
	}
	logger.Debug.Printf("File removed: '%s'", name)
	s.sendFileListUpdated(listLen)
}

func (s *internalManager) handleFileRenamed(previousName string, newName string) {
	s.mux.Lock()
	oldEntry := s.index.EntryAt(s.index.IndexOfPath(previousName))
	var oldKey apitype.ImageKey
	if oldEntry != nil {
		oldKey = oldEntry.Key()
	}

	oldIndex, newIndex := s.index.Rename(previousName, newName)
	if oldIndex < 0 {
		s.mux.Unlock()
		s.handleFileAdded(newName)
		return
	}

	// The selection follows the renamed file by identity.
	if s.current.imageIndex == oldIndex {
		s.current.imageIndex = newIndex
		s.current.entry = s.index.EntryAt(newIndex)
		s.setPendingImageLocked(newIndex)
	} else {
		s.adjustIndexAfterMove(&s.current.imageIndex, oldIndex, newIndex)
		s.adjustIndexAfterMove(&s.pending.imageIndex, oldIndex, newIndex)
	}

	// The key changed with the path: the entry under the old key is
	// dropped and unloaded, the new key loads on the next reconciliation.
	var renamedImage *image.Image
	if oldEntry != nil {
		renamedImage = s.store.Remove(oldKey)
		s.evictor.Cancel(oldKey)
	}
	listLen := s.index.Len()
	s.mux.Unlock()

	if renamedImage != nil {
		renamedImage.Unload()
	}
	logger.Debug.Printf("File renamed: '%s' -> '%s'", previousName, newName)
	s.sendFileListUpdated(listLen)
}

func (s *internalManager) adjustIndexAfterMove(index *int, oldIndex int, newIndex int) {
	if *index == invalidIndex {
		return
	}
	if oldIndex < *index {
		*index--
	}
	if newIndex <= *index {
		*index++
	}
}

// GetStats is a one line diagnostic summary.
func (s *internalManager) GetStats() string {
	s.mux.Lock()
	listLen := s.index.Len()
	currentIndex := s.current.imageIndex
	currentImage := s.currentImage
	s.mux.Unlock()

	counts := s.store.CountByState()
	ringLen := 0
	if currentImage != nil {
		ringLen = currentImage.RingLen()
	}
	return fmt.Sprintf("index %d/%d, images loading %d complete %d suspended %d error %d, ring %d, evicting %d",
		currentIndex+1, listLen,
		counts[image.Loading], counts[image.Complete], counts[image.Suspended], counts[image.LoadError],
		ringLen, s.evictor.QueueLen())
}

func (s *internalManager) sendFileListUpdated(listLen int) {
	s.sender.SendCommandToTopic(api.ImageListUpdated, &api.SetFileListCommand{Total: listLen})
}

func fileModTime(path string) time.Time {
	if info, err := os.Stat(path); err == nil {
		return info.ModTime()
	}
	return time.Time{}
}
