package bsonvalue

import (
	"strconv"
	"strings"
)

// Get walks a dotted path (`a.b.3.c`) through doc, returning the addressed
// value or (zero, false) if the path is absent: a missing field, an
// out-of-range or non-numeric list index, or a traversal through a
// non-container.
func Get(doc Document, path string) (Value, bool) {
	cur := Value{Kind: KindObject, Obj: doc}
	for _, seg := range strings.Split(path, ".") {
		switch cur.Kind {
		case KindObject:
			v, ok := cur.Obj.Get(seg)
			if !ok {
				return Value{}, false
			}
			cur = v
		case KindList:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(cur.List) {
				return Value{}, false
			}
			cur = cur.List[idx]
		default:
			return Value{}, false
		}
	}
	return cur, true
}

// Set walks path through doc, creating missing intermediate containers as
// needed (a list when the next segment is numeric, an object otherwise) and
// right-padding lists with nulls when a numeric segment addresses beyond
// the list's current length, then assigns v at the final segment. It
// returns ErrPathInvalid when a segment's host cannot take it: a numeric
// segment needs a list, any other segment needs an object (an absent or
// null host is turned into the needed container).
func Set(doc *Document, path string, v Value) error {
	segs := strings.Split(path, ".")
	root := Value{Kind: KindObject, Obj: *doc}
	newRoot, err := setRec(root, segs, v)
	if err != nil {
		return err
	}
	*doc = newRoot.Obj
	return nil
}

func setRec(cur Value, segs []string, v Value) (Value, error) {
	seg := segs[0]
	last := len(segs) == 1

	if idx, isIdx := asIndex(seg); isIdx {
		list := cur.List
		if cur.Kind == KindNull && list == nil {
			list = nil
		} else if cur.Kind != KindList {
			return Value{}, ErrPathInvalid
		}
		for len(list) <= idx {
			list = append(list, Null())
		}
		if last {
			list[idx] = v
		} else {
			child, err := setRec(list[idx], segs[1:], v)
			if err != nil {
				return Value{}, err
			}
			list[idx] = child
		}
		return List(list), nil
	}

	var obj Document
	switch cur.Kind {
	case KindObject:
		obj = cur.Obj
	case KindNull:
		obj = nil
	default:
		return Value{}, ErrPathInvalid
	}

	if last {
		obj = obj.WithField(seg, v)
		return Object(obj), nil
	}

	child, ok := obj.Get(seg)
	if !ok {
		child = Null()
	}
	newChild, err := setRec(child, segs[1:], v)
	if err != nil {
		return Value{}, err
	}
	obj = obj.WithField(seg, newChild)
	return Object(obj), nil
}

func asIndex(seg string) (int, bool) {
	if seg == "" {
		return 0, false
	}
	n, err := strconv.Atoi(seg)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
