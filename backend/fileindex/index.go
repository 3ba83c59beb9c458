package fileindex

import (
	"strings"

	"vincit.fi/image-viewer/api/apitype"
	"vincit.fi/image-viewer/common/logger"
)

// Index is the sorted list of viewer visible files under one root.
// It is plain data: the viewer manager serializes every access under
// its own mutex, so anything observable from outside that lock is in
// strict sort order.
type Index struct {
	entries  []*apitype.ImageFile
	rootPath string
	rootHash apitype.DirHash
	sortKey  apitype.SortKey
	order    apitype.SortOrder
}

func NewIndex(sortKey apitype.SortKey, order apitype.SortOrder) *Index {
	return &Index{
		sortKey: sortKey,
		order:   order,
	}
}

func (s *Index) SetRoot(rootPath string) {
	s.rootPath = rootPath
	s.rootHash = apitype.HashDir(rootPath)
	s.entries = nil
}

func (s *Index) RootPath() string {
	return s.rootPath
}

func (s *Index) RootHash() apitype.DirHash {
	return s.rootHash
}

func (s *Index) Len() int {
	return len(s.entries)
}

func (s *Index) EntryAt(index int) *apitype.ImageFile {
	if index < 0 || index >= len(s.entries) {
		return nil
	}
	return s.entries[index]
}

func (s *Index) Entries() []*apitype.ImageFile {
	copied := make([]*apitype.ImageFile, len(s.entries))
	copy(copied, s.entries)
	return copied
}

func (s *Index) SortKey() apitype.SortKey {
	return s.sortKey
}

func (s *Index) SortOrder() apitype.SortOrder {
	return s.order
}

// SetSorting re-sorts the whole list under the new key.
func (s *Index) SetSorting(key apitype.SortKey, order apitype.SortOrder) {
	s.sortKey = key
	s.order = order
	sortEntries(s.entries, key, order)
}

// Replace swaps in a freshly scanned list.
func (s *Index) Replace(entries []*apitype.ImageFile) {
	sortEntries(entries, s.sortKey, s.order)
	s.entries = entries
	logger.Debug.Printf("File index now has %d entries", len(entries))
}

// Insert places the entry at its sort position and returns the index
// it landed on.
func (s *Index) Insert(entry *apitype.ImageFile) int {
	position := insertPosition(s.entries, entry, s.sortKey, s.order)
	s.entries = append(s.entries, nil)
	copy(s.entries[position+1:], s.entries[position:])
	s.entries[position] = entry
	return position
}

// Remove erases the entry with the given relative path. Returns the
// removed index, or -1 when not present.
func (s *Index) Remove(relativePath string) int {
	index := s.IndexOfPath(relativePath)
	if index < 0 {
		return -1
	}
	s.entries = append(s.entries[:index], s.entries[index+1:]...)
	return index
}

// Rename mutates the entry path and moves it to its new sort
// position. Returns old and new index, or (-1, -1) when not present.
func (s *Index) Rename(previousPath string, newPath string) (int, int) {
	oldIndex := s.IndexOfPath(previousPath)
	if oldIndex < 0 {
		return -1, -1
	}
	entry := s.entries[oldIndex]
	s.entries = append(s.entries[:oldIndex], s.entries[oldIndex+1:]...)
	entry.Rename(newPath)
	newIndex := s.Insert(entry)
	return oldIndex, newIndex
}

func (s *Index) IndexOfPath(relativePath string) int {
	for i, entry := range s.entries {
		if entry.Path() == relativePath {
			return i
		}
	}
	return -1
}

// IndexOfDirectoryPrefix finds the first entry whose path begins with
// the given directory prefix.
func (s *Index) IndexOfDirectoryPrefix(prefix string) int {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix = prefix + "/"
	}
	for i, entry := range s.entries {
		if strings.HasPrefix(entry.Path(), prefix) {
			return i
		}
	}
	return -1
}
