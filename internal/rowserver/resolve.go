package rowserver

import (
	"fmt"

	"github.com/dgallion1/treerows/internal/rowtree"
)

// ResolveChildren walks level following path and returns the rows directly
// under the addressed node, in document order. An empty path returns the
// rows of level itself. A key with no matching sibling yields ErrNotFound.
func ResolveChildren(level []*rowtree.Record, path rowtree.GroupPath) ([]rowtree.RowView, error) {
	for depth, key := range path {
		next := findChild(level, key)
		if next == nil {
			return nil, fmt.Errorf("%w: key %q at depth %d", ErrNotFound, key, depth)
		}
		level = next.Children
	}

	rows := make([]rowtree.RowView, 0, len(level))
	for _, r := range level {
		if r == nil {
			continue
		}
		rows = append(rows, r.View())
	}
	return rows, nil
}

func findChild(level []*rowtree.Record, key string) *rowtree.Record {
	for _, r := range level {
		if r != nil && string(r.ID) == key {
			return r
		}
	}
	return nil
}

// IsServerSideGroup reports whether the grid should render row as an
// expandable group.
func IsServerSideGroup(row rowtree.RowView) bool {
	return row.IsGroup
}

// ServerSideGroupKey returns the key the grid appends to the group path when
// row is expanded.
func ServerSideGroupKey(row rowtree.RowView) string {
	return row.ID
}

// OpenByDefault reports whether groups at the given zero-based level start
// expanded.
func OpenByDefault(level, openLevels int) bool {
	return level < openLevels
}
