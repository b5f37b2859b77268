// Package index implements single-field secondary indexes: an ordered map
// from encoded sort key to a posting set of document ids, backed by
// github.com/google/btree for efficient range iteration.
package index

import (
	"errors"

	"github.com/google/btree"
	"github.com/kartikbazzad/bundoc/bsonvalue"
)

// ErrCompoundIndex names an attempt to index more than one field path; only
// single-field indexes are in scope. New takes a single field path, so no
// function in this package returns it.
var ErrCompoundIndex = errors.New("index: compound (multi-key) indexes are not supported")

const btreeDegree = 32

type item struct {
	key  bsonvalue.EncKey
	docs map[string]struct{}
}

func lessItem(a, b item) bool { return a.key.Less(b.key) }

// Index is an ordered secondary index over a single document field.
type Index struct {
	Name      string
	FieldPath string
	Direction int // +1 ascending, -1 descending

	tree *btree.BTreeG[item]
}

// New creates an empty index. Direction must be +1 or -1.
func New(fieldPath string, direction int) *Index {
	return &Index{
		Name:      IndexName(fieldPath, direction),
		FieldPath: fieldPath,
		Direction: direction,
		tree:      btree.NewG(btreeDegree, lessItem),
	}
}

// IndexName renders the canonical name for a single-field index.
func IndexName(fieldPath string, direction int) string {
	if direction >= 0 {
		return fieldPath + "_1"
	}
	return fieldPath + "_-1"
}

// DocProvider yields every document currently in a collection, used for
// Build's full scan and index backfill.
type DocProvider func(yield func(doc bsonvalue.Document) bool)

// keysFor returns the set of encoded keys a document contributes to this
// index: the path value itself, plus one entry per list element when the
// resolved value is a list (spec §4.4 "build").
func (ix *Index) keysFor(doc bsonvalue.Document) []bsonvalue.EncKey {
	v, ok := bsonvalue.Get(doc, ix.FieldPath)
	if !ok {
		v = bsonvalue.Null()
	}
	keys := []bsonvalue.EncKey{bsonvalue.NewEncKey(v)}
	if v.Kind == bsonvalue.KindList {
		for _, elem := range v.List {
			keys = append(keys, bsonvalue.NewEncKey(elem))
		}
	}
	return keys
}

func (ix *Index) insertID(key bsonvalue.EncKey, id string) {
	found, ok := ix.tree.Get(item{key: key})
	if !ok {
		ix.tree.ReplaceOrInsert(item{key: key, docs: map[string]struct{}{id: {}}})
		return
	}
	found.docs[id] = struct{}{}
	ix.tree.ReplaceOrInsert(found)
}

func (ix *Index) removeID(key bsonvalue.EncKey, id string) {
	found, ok := ix.tree.Get(item{key: key})
	if !ok {
		return
	}
	delete(found.docs, id)
	if len(found.docs) == 0 {
		ix.tree.Delete(item{key: key})
	} else {
		ix.tree.ReplaceOrInsert(found)
	}
}

// Build discards any existing state and rebuilds the index from a full scan
// of docs.
func (ix *Index) Build(id func(doc bsonvalue.Document) string, docs DocProvider) {
	ix.tree = btree.NewG(btreeDegree, lessItem)
	docs(func(doc bsonvalue.Document) bool {
		docID := id(doc)
		for _, k := range ix.keysFor(doc) {
			ix.insertID(k, docID)
		}
		return true
	})
}

// ApplyInsert incrementally adds doc's contribution to the index.
func (ix *Index) ApplyInsert(docID string, doc bsonvalue.Document) {
	for _, k := range ix.keysFor(doc) {
		ix.insertID(k, docID)
	}
}

// ApplyDelete removes doc's contribution from the index.
func (ix *Index) ApplyDelete(docID string, doc bsonvalue.Document) {
	for _, k := range ix.keysFor(doc) {
		ix.removeID(k, docID)
	}
}

// ApplyUpdate removes docID from every bucket it occupied under oldDoc, then
// reinserts it under newDoc's keys.
func (ix *Index) ApplyUpdate(docID string, oldDoc, newDoc bsonvalue.Document) {
	ix.ApplyDelete(docID, oldDoc)
	ix.ApplyInsert(docID, newDoc)
}

// AllIDs returns every document id currently indexed (the full domain the
// index was built over).
func (ix *Index) AllIDs() map[string]struct{} {
	out := map[string]struct{}{}
	ix.tree.Ascend(func(it item) bool {
		for id := range it.docs {
			out[id] = struct{}{}
		}
		return true
	})
	return out
}

// Eq returns the posting set for an exact key match.
func (ix *Index) Eq(v bsonvalue.Value) map[string]struct{} {
	key := bsonvalue.NewEncKey(v)
	found, ok := ix.tree.Get(item{key: key})
	if !ok {
		return map[string]struct{}{}
	}
	return cloneSet(found.docs)
}

// In returns the union of Eq lookups for each value.
func (ix *Index) In(vs []bsonvalue.Value) map[string]struct{} {
	out := map[string]struct{}{}
	for _, v := range vs {
		for id := range ix.Eq(v) {
			out[id] = struct{}{}
		}
	}
	return out
}

// RangeOp identifies which open/closed range comparison to run.
type RangeOp int

const (
	RangeLt RangeOp = iota
	RangeLte
	RangeGt
	RangeGte
)

// Range returns the posting set of every id whose key satisfies op against
// v, restricted to the same type tag as v (no cross-type matches for
// ranges).
func (ix *Index) Range(op RangeOp, v bsonvalue.Value) map[string]struct{} {
	boundary := bsonvalue.NewEncKey(v)
	out := map[string]struct{}{}
	add := func(it item) {
		for id := range it.docs {
			out[id] = struct{}{}
		}
	}

	switch op {
	case RangeLt:
		ix.tree.AscendLessThan(item{key: boundary}, func(it item) bool {
			if it.key.Tag != boundary.Tag {
				return it.key.Tag < boundary.Tag
			}
			add(it)
			return true
		})
	case RangeLte:
		ix.tree.AscendLessThan(item{key: boundary}, func(it item) bool {
			if it.key.Tag != boundary.Tag {
				return it.key.Tag < boundary.Tag
			}
			add(it)
			return true
		})
		if found, ok := ix.tree.Get(item{key: boundary}); ok {
			add(found)
		}
	case RangeGt:
		ix.tree.AscendGreaterOrEqual(item{key: boundary}, func(it item) bool {
			if it.key.Tag != boundary.Tag {
				return it.key.Tag == boundary.Tag
			}
			if !it.key.EqualKey(boundary) {
				add(it)
			}
			return true
		})
	case RangeGte:
		ix.tree.AscendGreaterOrEqual(item{key: boundary}, func(it item) bool {
			if it.key.Tag != boundary.Tag {
				return it.key.Tag == boundary.Tag
			}
			add(it)
			return true
		})
	}
	return out
}

func cloneSet(s map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

// ToMeta serializes the index into the on-disk metadata shape
// `{name, key_str, direction, idx: [[enc_key,[doc_id,...]],...]}`.
func (ix *Index) ToMeta() bsonvalue.Document {
	var entries []bsonvalue.Value
	ix.tree.Ascend(func(it item) bool {
		ids := make([]bsonvalue.Value, 0, len(it.docs))
		for id := range it.docs {
			ids = append(ids, bsonvalue.String(id))
		}
		entries = append(entries, bsonvalue.List([]bsonvalue.Value{it.key.ToValue(), bsonvalue.List(ids)}))
		return true
	})
	return bsonvalue.Document{
		{Name: "_id", Value: bsonvalue.String(ix.Name)},
		{Name: "key_str", Value: bsonvalue.String(ix.FieldPath)},
		{Name: "direction", Value: bsonvalue.Int64(int64(ix.Direction))},
		{Name: "idx", Value: bsonvalue.List(entries)},
	}
}

// FromMeta reconstructs an index from its persisted metadata document.
func FromMeta(meta bsonvalue.Document) (*Index, bool) {
	nameV, ok := meta.Get("_id")
	if !ok {
		return nil, false
	}
	fieldV, ok := meta.Get("key_str")
	if !ok {
		return nil, false
	}
	dirV, ok := meta.Get("direction")
	if !ok {
		return nil, false
	}
	ix := New(fieldV.Str, int(dirV.I64))
	ix.Name = nameV.Str

	idxV, ok := meta.Get("idx")
	if !ok {
		return ix, true
	}
	for _, entry := range idxV.List {
		if entry.Kind != bsonvalue.KindList || len(entry.List) != 2 {
			continue
		}
		key, ok := bsonvalue.EncKeyFromValue(entry.List[0])
		if !ok {
			continue
		}
		idsV := entry.List[1]
		ids := make(map[string]struct{}, len(idsV.List))
		for _, idv := range idsV.List {
			ids[idv.Str] = struct{}{}
		}
		ix.tree.ReplaceOrInsert(item{key: key, docs: ids})
	}
	return ix, true
}
