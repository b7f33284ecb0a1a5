package geo

import (
	"fmt"
	"sort"
	"strings"
)

type entry struct {
	id  string
	seq uint64
}

// Index maps geohash cells to entity ids and answers proximity queries by
// prefix matching at decreasing precision. Cell keys are kept in a sorted
// slice so a prefix scan is a binary search plus a contiguous walk.
type Index struct {
	cells map[string][]entry
	keys  []string // sorted cell keys
	byID  map[string]string
	seqs  map[string]uint64
	next  uint64
}

func NewIndex() *Index {
	return &Index{
		cells: make(map[string][]entry),
		byID:  make(map[string]string),
		seqs:  make(map[string]uint64),
	}
}

// Add registers id at the given cell. Ids are unique within an index;
// re-adding an existing id is a caller bug.
func (x *Index) Add(id, cell string) error {
	if !Valid(cell) {
		return fmt.Errorf("invalid geohash cell %q", cell)
	}
	if _, ok := x.byID[id]; ok {
		return fmt.Errorf("id %q already indexed", id)
	}

	x.next++
	if _, ok := x.cells[cell]; !ok {
		i := sort.SearchStrings(x.keys, cell)
		x.keys = append(x.keys, "")
		copy(x.keys[i+1:], x.keys[i:])
		x.keys[i] = cell
	}
	x.cells[cell] = append(x.cells[cell], entry{id: id, seq: x.next})
	x.byID[id] = cell
	x.seqs[id] = x.next
	return nil
}

func (x *Index) Remove(id string) {
	cell, ok := x.byID[id]
	if !ok {
		return
	}
	delete(x.byID, id)
	delete(x.seqs, id)

	entries := x.cells[cell]
	for i, e := range entries {
		if e.id == id {
			entries = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	if len(entries) == 0 {
		delete(x.cells, cell)
		i := sort.SearchStrings(x.keys, cell)
		if i < len(x.keys) && x.keys[i] == cell {
			x.keys = append(x.keys[:i], x.keys[i+1:]...)
		}
	} else {
		x.cells[cell] = entries
	}
}

// Query returns ids within radius cells of center, nearest prefix level
// first. radius 0 means the exact cell; each additional cell of radius
// widens the search by one prefix level. Within a level, ids come back in
// insertion order (stable tie break).
func (x *Index) Query(center string, radius int) []string {
	if !Valid(center) {
		return nil
	}
	if radius < 0 {
		radius = 0
	}
	if radius > Precision-1 {
		radius = Precision - 1
	}

	var out []string
	seen := make(map[string]bool)
	for level := Precision; level >= Precision-radius; level-- {
		prefix := center[:level]
		var batch []entry
		i := sort.SearchStrings(x.keys, prefix)
		for ; i < len(x.keys) && strings.HasPrefix(x.keys[i], prefix); i++ {
			for _, e := range x.cells[x.keys[i]] {
				if !seen[e.id] {
					batch = append(batch, e)
				}
			}
		}
		sort.Slice(batch, func(a, b int) bool { return batch[a].seq < batch[b].seq })
		for _, e := range batch {
			seen[e.id] = true
			out = append(out, e.id)
		}
	}
	return out
}

// Cell returns the cell an id was registered at.
func (x *Index) Cell(id string) (string, bool) {
	cell, ok := x.byID[id]
	return cell, ok
}

func (x *Index) Len() int {
	return len(x.byID)
}
