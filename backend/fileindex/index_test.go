package fileindex

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"vincit.fi/image-viewer/api/apitype"
)

func newTestIndex(paths ...string) *Index {
	sut := NewIndex(apitype.SortByName, apitype.SortAscending)
	sut.SetRoot("/photos")
	entries := make([]*apitype.ImageFile, 0, len(paths))
	for _, path := range paths {
		entries = append(entries, apitype.NewImageFile(sut.RootHash(), path, time.Time{}))
	}
	sut.Replace(entries)
	return sut
}

func paths(sut *Index) []string {
	var result []string
	for _, entry := range sut.Entries() {
		result = append(result, entry.Path())
	}
	return result
}

func TestIndex_Replace(t *testing.T) {
	a := assert.New(t)

	sut := newTestIndex("img10.jpg", "img2.jpg", "img1.jpg")

	a.Equal([]string{"img1.jpg", "img2.jpg", "img10.jpg"}, paths(sut))
	a.Equal(3, sut.Len())
}

func TestIndex_Insert(t *testing.T) {
	a := assert.New(t)

	t.Run("keeps sort position", func(t *testing.T) {
		sut := newTestIndex("a.jpg", "c.jpg", "d.jpg")
		position := sut.Insert(apitype.NewImageFile(sut.RootHash(), "b.jpg", time.Time{}))

		a.Equal(1, position)
		a.Equal([]string{"a.jpg", "b.jpg", "c.jpg", "d.jpg"}, paths(sut))
	})

	t.Run("appends last", func(t *testing.T) {
		sut := newTestIndex("a.jpg", "b.jpg")
		position := sut.Insert(apitype.NewImageFile(sut.RootHash(), "z.jpg", time.Time{}))

		a.Equal(2, position)
	})

	t.Run("into empty list", func(t *testing.T) {
		sut := newTestIndex()
		position := sut.Insert(apitype.NewImageFile(sut.RootHash(), "a.jpg", time.Time{}))

		a.Equal(0, position)
		a.Equal(1, sut.Len())
	})
}

func TestIndex_Remove(t *testing.T) {
	a := assert.New(t)

	sut := newTestIndex("a.jpg", "b.jpg", "c.jpg")

	a.Equal(1, sut.Remove("b.jpg"))
	a.Equal([]string{"a.jpg", "c.jpg"}, paths(sut))

	a.Equal(-1, sut.Remove("missing.jpg"))
	a.Equal(2, sut.Len())
}

func TestIndex_Rename(t *testing.T) {
	a := assert.New(t)

	t.Run("moves to the new sort position", func(t *testing.T) {
		sut := newTestIndex("a.jpg", "b.jpg", "c.jpg")
		oldIndex, newIndex := sut.Rename("a.jpg", "z.jpg")

		a.Equal(0, oldIndex)
		a.Equal(2, newIndex)
		a.Equal([]string{"b.jpg", "c.jpg", "z.jpg"}, paths(sut))
	})

	t.Run("unknown path", func(t *testing.T) {
		sut := newTestIndex("a.jpg")
		oldIndex, newIndex := sut.Rename("missing.jpg", "x.jpg")

		a.Equal(-1, oldIndex)
		a.Equal(-1, newIndex)
	})
}

func TestIndex_IndexOfDirectoryPrefix(t *testing.T) {
	a := assert.New(t)

	sut := newTestIndex("a.jpg", "album/b.jpg", "album/c.jpg", "trip/d.jpg")

	a.Equal(1, sut.IndexOfDirectoryPrefix("album"))
	a.Equal(3, sut.IndexOfDirectoryPrefix("trip/"))
	a.Equal(-1, sut.IndexOfDirectoryPrefix("missing"))
}

func TestIndex_SetSorting(t *testing.T) {
	a := assert.New(t)

	sut := NewIndex(apitype.SortByName, apitype.SortAscending)
	sut.SetRoot("/photos")
	now := time.Now()
	sut.Replace([]*apitype.ImageFile{
		apitype.NewImageFile(sut.RootHash(), "new.jpg", now),
		apitype.NewImageFile(sut.RootHash(), "old.jpg", now.Add(-time.Hour)),
	})

	sut.SetSorting(apitype.SortByLastModified, apitype.SortAscending)
	a.Equal([]string{"old.jpg", "new.jpg"}, paths(sut))

	sut.SetSorting(apitype.SortByLastModified, apitype.SortDescending)
	a.Equal([]string{"new.jpg", "old.jpg"}, paths(sut))
}

func TestIndex_SetRootClearsEntries(t *testing.T) {
	a := assert.New(t)

	sut := newTestIndex("a.jpg")
	previousHash := sut.RootHash()
	sut.SetRoot("/other")

	a.Equal(0, sut.Len())
	a.NotEqual(previousHash, sut.RootHash())
}
