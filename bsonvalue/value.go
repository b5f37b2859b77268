// Package bsonvalue implements the document value model shared by the
// storage, index, and query layers: a tagged union of BSON-representable
// kinds, dotted-path access, deep copies, and the MongoDB-style sort-order
// comparison used by indexes and sorts alike.
package bsonvalue

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrPathInvalid is returned by Set when a path traverses into a value that
// is neither a container nor extendable into one.
var ErrPathInvalid = errors.New("bsonvalue: path traverses a non-container")

// Kind identifies the concrete shape carried by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindInt64
	KindDouble
	KindString
	KindObject
	KindList
	KindBinary
	KindObjectID
	KindBool
	KindDateTime
	KindRegex
)

// Type tags fix the cross-kind sort order (see spec §4.4).
const (
	TagNull     byte = 0x01
	TagNumeric  byte = 0x02
	TagString   byte = 0x03
	TagObject   byte = 0x04
	TagList     byte = 0x05
	TagBinary   byte = 0x06
	TagObjectID byte = 0x07
	TagBool     byte = 0x08
	TagDateTime byte = 0x09
	TagRegex    byte = 0x0A
)

// TypeTag returns the sort-order tag byte for a kind.
func TypeTag(k Kind) byte {
	switch k {
	case KindNull:
		return TagNull
	case KindInt64, KindDouble:
		return TagNumeric
	case KindString:
		return TagString
	case KindObject:
		return TagObject
	case KindList:
		return TagList
	case KindBinary:
		return TagBinary
	case KindObjectID:
		return TagObjectID
	case KindBool:
		return TagBool
	case KindDateTime:
		return TagDateTime
	case KindRegex:
		return TagRegex
	default:
		return TagNull
	}
}

// Value is a recursively-typed document value: one of null, bool, int64,
// double, string, binary, datetime, object-id, regex, object, or list.
type Value struct {
	Kind Kind

	I64   int64
	F64   float64
	Str   string
	Bin   []byte
	OID   primitive.ObjectID
	B     bool
	Time  time.Time
	Obj   Document
	List  []Value
	Regex string
	Flags string
}

// Field is one named entry of an ordered Document.
type Field struct {
	Name  string
	Value Value
}

// Document is an ordered mapping from field name to Value. Field order is
// preserved through decode/encode round trips and through metadata
// serialization.
type Document []Field

// Null returns the null value.
func Null() Value { return Value{Kind: KindNull} }

// Int64 wraps an integer value.
func Int64(v int64) Value { return Value{Kind: KindInt64, I64: v} }

// Double wraps a floating point value.
func Double(v float64) Value { return Value{Kind: KindDouble, F64: v} }

// String wraps a string value.
func String(v string) Value { return Value{Kind: KindString, Str: v} }

// Bool wraps a boolean value.
func Bool(v bool) Value { return Value{Kind: KindBool, B: v} }

// Binary wraps an opaque byte slice.
func Binary(v []byte) Value { return Value{Kind: KindBinary, Bin: v} }

// DateTime wraps a timestamp, truncated to millisecond precision like BSON's
// UTC datetime type.
func DateTime(t time.Time) Value { return Value{Kind: KindDateTime, Time: t.UTC().Truncate(time.Millisecond)} }

// ObjectID wraps a 12-byte object identifier.
func ObjectID(id primitive.ObjectID) Value { return Value{Kind: KindObjectID, OID: id} }

// NewObjectID generates a fresh object identifier value, used for
// `_id` assignment on insert.
func NewObjectID() Value { return ObjectID(primitive.NewObjectID()) }

// Object wraps a nested document.
func Object(d Document) Value { return Value{Kind: KindObject, Obj: d} }

// List wraps an ordered list of values.
func List(vs []Value) Value { return Value{Kind: KindList, List: vs} }

// RegexValue wraps a regular expression pattern and its flags.
func RegexValue(pattern, flags string) Value {
	return Value{Kind: KindRegex, Regex: pattern, Flags: flags}
}

// IsAbsent reports whether a (Value, bool) pair returned by Get represents a
// missing path rather than an explicit null.
func IsAbsent(ok bool) bool { return !ok }

// Get looks up field by name, returning its Value and true, or the zero
// Value and false when the field is absent.
func (d Document) Get(name string) (Value, bool) {
	for _, f := range d {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// WithField returns a copy of the document with name set to v, replacing
// any existing field of that name in place or appending it otherwise.
func (d Document) WithField(name string, v Value) Document {
	out := make(Document, len(d))
	copy(out, d)
	for i, f := range out {
		if f.Name == name {
			out[i].Value = v
			return out
		}
	}
	return append(out, Field{Name: name, Value: v})
}

// ID returns the document's `_id` field as a Value, or false if absent.
func (d Document) ID() (Value, bool) { return d.Get("_id") }

// IDString renders a document's `_id` as the string form used for storage
// keys and posting-set membership (object-ids render as their hex string,
// strings render verbatim).
func IDString(v Value) string {
	switch v.Kind {
	case KindObjectID:
		return v.OID.Hex()
	case KindString:
		return v.Str
	default:
		return v.Str
	}
}
