package rowtree

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Key identifies a record among its siblings. Fixtures encode it as either a
// JSON string or a JSON number; both decode to the same textual key.
type Key string

func (k *Key) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode key: %w", err)
		}
		*k = Key(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decode key: expected string or number, got %s", data)
	}
	*k = Key(n.String())
	return nil
}

// Record is a node in the source tree.
type Record struct {
	ID             Key       `json:"employeeId" yaml:"employeeId"`
	Name           string    `json:"employeeName" yaml:"employeeName"`
	EmploymentType string    `json:"employmentType" yaml:"employmentType"`
	JobTitle       string    `json:"jobTitle" yaml:"jobTitle"`
	Children       []*Record `json:"children,omitempty" yaml:"children,omitempty"`
}

// IsGroup reports whether the record has at least one child.
func (r *Record) IsGroup() bool {
	return len(r.Children) > 0
}

// View projects the record into the row shape handed to the grid.
func (r *Record) View() RowView {
	return RowView{
		IsGroup:        r.IsGroup(),
		ID:             string(r.ID),
		Name:           r.Name,
		EmploymentType: r.EmploymentType,
		JobTitle:       r.JobTitle,
	}
}

// RowView is the flattened, grid-facing projection of one record.
type RowView struct {
	IsGroup        bool   `json:"group"`
	ID             string `json:"employeeId"`
	Name           string `json:"employeeName"`
	EmploymentType string `json:"employmentType"`
	JobTitle       string `json:"jobTitle"`
}

// GroupPath is the list of record IDs from the top level down to a node.
// An empty path addresses the top level.
type GroupPath []string

// Tree is an immutable snapshot of the loaded records.
type Tree struct {
	roots []*Record
	count int
	depth int
}

// New wraps roots in a Tree. The caller must not modify roots afterwards.
func New(roots []*Record) *Tree {
	t := &Tree{roots: roots}
	t.count, t.depth = measure(roots, 1)
	return t
}

// Roots returns the top-level records.
func (t *Tree) Roots() []*Record { return t.roots }

// Len returns the number of top-level records.
func (t *Tree) Len() int { return len(t.roots) }

// Count returns the total number of records in the tree.
func (t *Tree) Count() int { return t.count }

// Depth returns the number of levels in the tree (0 for an empty tree).
func (t *Tree) Depth() int { return t.depth }

func measure(level []*Record, d int) (count, depth int) {
	if len(level) == 0 {
		return 0, 0
	}
	depth = d
	for _, r := range level {
		if r == nil {
			continue
		}
		count++
		c, sub := measure(r.Children, d+1)
		count += c
		if sub > depth {
			depth = sub
		}
	}
	return count, depth
}

// Validate checks that the tree has no nil records, that every record has an
// ID, and that IDs are unique among siblings. IDs may repeat across different
// parents. A missing or null employeeId decodes to the empty key and is
// rejected here.
func Validate(roots []*Record) error {
	return validateLevel(roots, nil)
}

func validateLevel(level []*Record, path GroupPath) error {
	seen := make(map[Key]bool, len(level))
	for i, r := range level {
		if r == nil {
			return fmt.Errorf("nil record at %v index %d", path, i)
		}
		if r.ID == "" {
			return fmt.Errorf("missing id at %v index %d", path, i)
		}
		if seen[r.ID] {
			return fmt.Errorf("duplicate id %q under %v", r.ID, path)
		}
		seen[r.ID] = true
		if err := validateLevel(r.Children, append(path[:len(path):len(path)], string(r.ID))); err != nil {
			return err
		}
	}
	return nil
}
