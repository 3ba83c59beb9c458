package fileindex

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"vincit.fi/image-viewer/api"
	"vincit.fi/image-viewer/common/logger"
)

// Lister streams directory contents relative to the root. Transient
// errors on single entries are logged and skipped; only a failure to
// read the root itself is returned.
type Lister struct {
	api.DirectoryLister
}

func NewLister() api.DirectoryLister {
	return &Lister{}
}

// errStopped unwinds a recursive listing once the visitor stops it.
var errStopped = errors.New("listing stopped")

func (s *Lister) List(root string, recursive bool, skipDotEntries bool, visit func(file api.ListedFile) bool) error {
	if err := s.listDir(root, "", recursive, skipDotEntries, visit); err != errStopped {
		return err
	}
	return nil
}

func (s *Lister) listDir(root string, relative string, recursive bool, skipDotEntries bool, visit func(file api.ListedFile) bool) error {
	entries, err := os.ReadDir(filepath.Join(root, relative))
	if err != nil {
		if relative == "" {
			return err
		}
		logger.Warn.Printf("Skipping unreadable directory '%s': %s", relative, err)
		return nil
	}

	for _, entry := range entries {
		name := entry.Name()
		if skipDotEntries && strings.HasPrefix(name, ".") {
			continue
		}
		relativePath := name
		if relative != "" {
			relativePath = relative + "/" + name
		}

		if entry.IsDir() {
			if recursive {
				if err := s.listDir(root, relativePath, recursive, skipDotEntries, visit); err != nil {
					return err
				}
			}
			continue
		}

		info, err := entry.Info()
		if err != nil {
			logger.Warn.Printf("Skipping unreadable entry '%s': %s", relativePath, err)
			continue
		}
		if !visit(api.ListedFile{
			RelativePath: relativePath,
			Modified:     info.ModTime(),
			IsDirectory:  false,
		}) {
			return errStopped
		}
	}
	return nil
}
