package query

import (
	"sort"

	"github.com/kartikbazzad/bundoc/bsonvalue"
)

// SortKey is one field of a multi-key sort spec.
type SortKey struct {
	Path      string
	Direction int // +1 ascending, -1 descending
}

// SortSpec is an ordered list of sort keys, most significant first.
type SortSpec []SortKey

// CompareDocs orders two documents by spec: the first key that
// differentiates them decides, each compared by (type_tag, value) to mirror
// index ordering, with direction -1 reversing that key.
func CompareDocs(a, b bsonvalue.Document, spec SortSpec) int {
	for _, k := range spec {
		av, aok := bsonvalue.Get(a, k.Path)
		if !aok {
			av = bsonvalue.Null()
		}
		bv, bok := bsonvalue.Get(b, k.Path)
		if !bok {
			bv = bsonvalue.Null()
		}
		if c := bsonvalue.Compare(av, bv); c != 0 {
			if k.Direction < 0 {
				return -c
			}
			return c
		}
	}
	return 0
}

// SortDocuments performs a stable, materialising multi-key sort.
func SortDocuments(docs []bsonvalue.Document, spec SortSpec) {
	sort.SliceStable(docs, func(i, j int) bool {
		return CompareDocs(docs[i], docs[j], spec) < 0
	})
}
