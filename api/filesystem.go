package api

import (
	"time"

	"vincit.fi/image-viewer/api/apitype"
)

// ListedFile is one streamed entry from a DirectoryLister.
type ListedFile struct {
	RelativePath string
	Modified     time.Time
	IsDirectory  bool
}

// DirectoryLister streams directory contents. The callback returning
// false stops the enumeration.
type DirectoryLister interface {
	List(root string, recursive bool, skipDotEntries bool, visit func(file ListedFile) bool) error
}

// FileWatcher emits change events for one root on a background
// goroutine. Unsubscribe is keyed by the handle Subscribe returned.
type FileWatcher interface {
	Watch(root string, recursive bool) error
	Subscribe(fn func(events []apitype.FileEvent)) string
	Unsubscribe(handle string)
	Close()
}
