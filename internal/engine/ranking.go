package engine

import (
	"sort"
	"strings"

	"github.com/scrypster/memvault/pkg/types"
)

// SortKey orders search results.
type SortKey string

const (
	SortDateDesc       SortKey = "date_desc"
	SortDateAsc        SortKey = "date_asc"
	SortImportanceDesc SortKey = "importance_desc"
	SortImportanceAsc  SortKey = "importance_asc"
	SortRelevance      SortKey = "relevance"

	DefaultSort = SortDateDesc
)

// ParseSortKey maps a request value onto a SortKey. Unknown or empty values
// fall back to DefaultSort.
func ParseSortKey(s string) SortKey {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(s))); k {
	case SortDateDesc, SortDateAsc, SortImportanceDesc, SortImportanceAsc, SortRelevance:
		return k
	}
	return DefaultSort
}

// Sort orders items by key. Ties on the primary key are broken by ID
// ascending so identical queries always return identical pages.
func Sort(items []*types.Memory, key SortKey) {
	less := func(a, b *types.Memory) int {
		switch key {
		case SortDateAsc:
			return compareTime(a, b)
		case SortImportanceDesc:
			return -compareFloat(a.Importance, b.Importance)
		case SortImportanceAsc:
			return compareFloat(a.Importance, b.Importance)
		case SortRelevance:
			return -compareFloat(similarityOf(a), similarityOf(b))
		default:
			return -compareTime(a, b)
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		if c := less(items[i], items[j]); c != 0 {
			return c < 0
		}
		return items[i].ID < items[j].ID
	})
}

func compareTime(a, b *types.Memory) int {
	switch {
	case a.CreatedAt.Before(b.CreatedAt):
		return -1
	case a.CreatedAt.After(b.CreatedAt):
		return 1
	}
	return 0
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func similarityOf(m *types.Memory) float64 {
	if m.Similarity == nil {
		return 0
	}
	return *m.Similarity
}
