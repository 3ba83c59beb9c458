package fileindex

import (
	"sort"

	"vincit.fi/image-viewer/api/apitype"
	"vincit.fi/image-viewer/common/util"
)

// Compare orders two entries under the given key. Ties always break
// on the natural path order so the sort stays total.
func Compare(a *apitype.ImageFile, b *apitype.ImageFile, key apitype.SortKey) int {
	switch key {
	case apitype.SortByType:
		if a.TypeTag() != b.TypeTag() {
			if a.TypeTag() < b.TypeTag() {
				return -1
			}
			return 1
		}
	case apitype.SortByLastModified:
		if !a.Modified().Equal(b.Modified()) {
			if a.Modified().Before(b.Modified()) {
				return -1
			}
			return 1
		}
	}
	return util.NaturalCompare(a.Path(), b.Path())
}

func less(a *apitype.ImageFile, b *apitype.ImageFile, key apitype.SortKey, order apitype.SortOrder) bool {
	result := Compare(a, b, key)
	if order == apitype.SortDescending {
		return result > 0
	}
	return result < 0
}

func sortEntries(entries []*apitype.ImageFile, key apitype.SortKey, order apitype.SortOrder) {
	sort.SliceStable(entries, func(i, j int) bool {
		return less(entries[i], entries[j], key, order)
	})
}

// insertPosition is the index where the entry belongs in an already
// sorted list.
func insertPosition(entries []*apitype.ImageFile, entry *apitype.ImageFile, key apitype.SortKey, order apitype.SortOrder) int {
	return sort.Search(len(entries), func(i int) bool {
		return less(entry, entries[i], key, order)
	})
}
