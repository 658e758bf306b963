package blotter

import "github.com/tidwall/btree"

type indexEntry struct {
	seq uint64
	id  string
}

// idIndex is an insertion-ordered set of order ids with O(log n) removal.
type idIndex struct {
	tree *btree.BTreeG[indexEntry]
	seqs map[string]uint64
	next uint64
}

func newIDIndex() *idIndex {
	return &idIndex{
		tree: btree.NewBTreeG(func(a, b indexEntry) bool {
			return a.seq < b.seq
		}),
		seqs: make(map[string]uint64),
	}
}

// Append adds id at the end. Appending an id already present is a no-op.
func (x *idIndex) Append(id string) {
	if _, ok := x.seqs[id]; ok {
		return
	}
	x.next++
	x.seqs[id] = x.next
	x.tree.Set(indexEntry{seq: x.next, id: id})
}

// Remove deletes id and reports whether it was present.
func (x *idIndex) Remove(id string) bool {
	seq, ok := x.seqs[id]
	if !ok {
		return false
	}
	delete(x.seqs, id)
	x.tree.Delete(indexEntry{seq: seq})
	return true
}

func (x *idIndex) Len() int {
	return len(x.seqs)
}

// IDs returns the ids in insertion order.
func (x *idIndex) IDs() []string {
	ids := make([]string, 0, x.tree.Len())
	x.tree.Scan(func(e indexEntry) bool {
		ids = append(ids, e.id)
		return true
	})
	return ids
}

func (x *idIndex) Clear() {
	x.tree.Clear()
	x.seqs = make(map[string]uint64)
}
