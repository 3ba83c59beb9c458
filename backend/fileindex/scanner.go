package fileindex

import (
	"path/filepath"
	"strings"
	"time"

	"vincit.fi/image-viewer/api"
	"vincit.fi/image-viewer/api/apitype"
	"vincit.fi/image-viewer/common/logger"
)

// Scanner enumerates one root into file index entries, filtering by
// the allowed extensions. The cancel callback is polled per entry so
// navigation can supersede a running scan quickly.
type Scanner struct {
	lister     api.DirectoryLister
	extensions map[string]bool
}

func NewScanner(lister api.DirectoryLister, extensions map[string]bool) *Scanner {
	return &Scanner{
		lister:     lister,
		extensions: extensions,
	}
}

func (s *Scanner) IsExtensionAllowed(path string) bool {
	extension := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	return s.extensions[extension]
}

// Scan returns the entries under root. A cancelled scan returns
// (nil, false) without an error: cancellation is a normal outcome.
func (s *Scanner) Scan(root string, recursive bool, cancelled func() bool,
	progress func(count int)) ([]*apitype.ImageFile, bool) {
	rootHash := apitype.HashDir(root)
	var entries []*apitype.ImageFile
	wasCancelled := false

	startTime := time.Now()
	err := s.lister.List(root, recursive, true, func(file api.ListedFile) bool {
		if cancelled != nil && cancelled() {
			wasCancelled = true
			return false
		}
		if !s.IsExtensionAllowed(file.RelativePath) {
			return true
		}
		entries = append(entries, apitype.NewImageFile(rootHash, filepath.ToSlash(file.RelativePath), file.Modified))
		if progress != nil {
			progress(len(entries))
		}
		return true
	})

	if wasCancelled {
		logger.Debug.Printf("Scan of '%s' cancelled after %d entries", root, len(entries))
		return nil, false
	}
	if err != nil {
		logger.Error.Printf("Cannot scan '%s': %s", root, err)
		return nil, false
	}

	logger.Debug.Printf("Scanned %d files in '%s' in %s", len(entries), root, time.Since(startTime).String())
	return entries, true
}
