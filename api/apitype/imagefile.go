package apitype

import (
	"hash/fnv"
	"path/filepath"
	"strings"
	"time"
)

type DirHash uint32

type ImageKey uint32

const NoImage = ImageKey(0)

// HashDir identifies a directory root. Keys derived from it stay
// stable while the viewer navigates inside the same root.
func HashDir(path string) DirHash {
	h := fnv.New32a()
	_, _ = h.Write([]byte(path))
	return DirHash(h.Sum32())
}

// KeyOf combines the root hash and the relative path into the stable
// identity of an image across file list reorderings.
func KeyOf(dirHash DirHash, relativePath string) ImageKey {
	h := fnv.New32a()
	_, _ = h.Write([]byte{byte(dirHash), byte(dirHash >> 8), byte(dirHash >> 16), byte(dirHash >> 24)})
	_, _ = h.Write([]byte(relativePath))
	return ImageKey(h.Sum32())
}

type ImageFile struct {
	relativePath string
	dirHash      DirHash
	modified     time.Time
	typeTag      string
}

var EmptyImageFile = ImageFile{}

func NewImageFile(dirHash DirHash, relativePath string, modified time.Time) *ImageFile {
	return &ImageFile{
		relativePath: relativePath,
		dirHash:      dirHash,
		modified:     modified,
		typeTag:      strings.ToLower(strings.TrimPrefix(filepath.Ext(relativePath), ".")),
	}
}

func (s *ImageFile) IsValid() bool {
	return s != nil && s.relativePath != ""
}

func (s *ImageFile) String() string {
	if s != nil {
		if s.IsValid() {
			return "ImageFile{" + s.relativePath + "}"
		} else {
			return "ImageFile<invalid>"
		}
	} else {
		return "ImageFile<nil>"
	}
}

func (s *ImageFile) Path() string {
	if s != nil {
		return s.relativePath
	} else {
		return ""
	}
}

func (s *ImageFile) FileName() string {
	if s != nil {
		return filepath.Base(s.relativePath)
	} else {
		return ""
	}
}

func (s *ImageFile) DirHash() DirHash {
	if s != nil {
		return s.dirHash
	} else {
		return DirHash(0)
	}
}

func (s *ImageFile) Modified() time.Time {
	if s != nil {
		return s.modified
	} else {
		return time.Time{}
	}
}

// TypeTag is the lower-cased extension without the dot.
func (s *ImageFile) TypeTag() string {
	if s != nil {
		return s.typeTag
	} else {
		return ""
	}
}

func (s *ImageFile) Key() ImageKey {
	if s != nil {
		return KeyOf(s.dirHash, s.relativePath)
	} else {
		return NoImage
	}
}

// Rename mutates the entry's path in place. Identity follows the new
// path, so the caller must re-key any store entries.
func (s *ImageFile) Rename(relativePath string) {
	s.relativePath = relativePath
	s.typeTag = strings.ToLower(strings.TrimPrefix(filepath.Ext(relativePath), "."))
}

func (s *ImageFile) SetModified(modified time.Time) {
	s.modified = modified
}
