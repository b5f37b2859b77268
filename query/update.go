package query

import (
	"strings"

	"github.com/kartikbazzad/bundoc/bsonvalue"
)

// UpdateOp is a top-level update operator.
type UpdateOp string

const (
	USet  UpdateOp = "$set"
	UInc  UpdateOp = "$inc"
	UPush UpdateOp = "$push"
)

// UpdateEntry is one `path -> value` mapping under an update operator.
type UpdateEntry struct {
	Path  string
	Value bsonvalue.Value
}

// Update is a parsed update document grouped by operator.
type Update struct {
	Set  []UpdateEntry
	Inc  []UpdateEntry
	Push []UpdateEntry
}

// ParseUpdate validates and groups an update document's operators.
func ParseUpdate(doc bsonvalue.Document) (*Update, error) {
	u := &Update{}
	for _, field := range doc {
		if !strings.HasPrefix(field.Name, "$") {
			return nil, ErrBadArgument
		}
		if field.Value.Kind != bsonvalue.KindObject {
			return nil, ErrBadArgument
		}
		entries := make([]UpdateEntry, 0, len(field.Value.Obj))
		for _, e := range field.Value.Obj {
			entries = append(entries, UpdateEntry{Path: e.Name, Value: e.Value})
		}
		switch UpdateOp(field.Name) {
		case USet:
			u.Set = append(u.Set, entries...)
		case UInc:
			u.Inc = append(u.Inc, entries...)
		case UPush:
			u.Push = append(u.Push, entries...)
		default:
			return nil, ErrNotImplemented
		}
	}
	return u, nil
}

// Apply mutates doc in place by applying u's operators in $set, $inc, $push
// order.
func Apply(doc *bsonvalue.Document, u *Update) error {
	for _, e := range u.Set {
		if err := bsonvalue.Set(doc, e.Path, bsonvalue.DeepCopy(e.Value)); err != nil {
			return err
		}
	}
	for _, e := range u.Inc {
		if !isNumeric(e.Value) {
			return ErrBadArgument
		}
		cur, ok := bsonvalue.Get(*doc, e.Path)
		var next bsonvalue.Value
		if !ok {
			next = e.Value
		} else if !isNumeric(cur) {
			return ErrBadArgument
		} else {
			next = addNumeric(cur, e.Value)
		}
		if err := bsonvalue.Set(doc, e.Path, next); err != nil {
			return err
		}
	}
	for _, e := range u.Push {
		cur, ok := bsonvalue.Get(*doc, e.Path)
		var next bsonvalue.Value
		switch {
		case !ok:
			next = bsonvalue.List([]bsonvalue.Value{bsonvalue.DeepCopy(e.Value)})
		case cur.Kind == bsonvalue.KindList:
			next = bsonvalue.List(append(append([]bsonvalue.Value{}, cur.List...), bsonvalue.DeepCopy(e.Value)))
		default:
			return ErrBadArgument
		}
		if err := bsonvalue.Set(doc, e.Path, next); err != nil {
			return err
		}
	}
	return nil
}

func isNumeric(v bsonvalue.Value) bool {
	return v.Kind == bsonvalue.KindInt64 || v.Kind == bsonvalue.KindDouble
}

func addNumeric(a, b bsonvalue.Value) bsonvalue.Value {
	if a.Kind == bsonvalue.KindInt64 && b.Kind == bsonvalue.KindInt64 {
		return bsonvalue.Int64(a.I64 + b.I64)
	}
	af := a.F64
	if a.Kind == bsonvalue.KindInt64 {
		af = float64(a.I64)
	}
	bf := b.F64
	if b.Kind == bsonvalue.KindInt64 {
		bf = float64(b.I64)
	}
	return bsonvalue.Double(af + bf)
}
