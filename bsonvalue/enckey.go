package bsonvalue

// EncKey is the encoded sort-ordering key used by the index subsystem: a
// pair of a type tag and the raw value, compared first by tag then by the
// tag's natural ordering. Non-hashable values (objects, lists) are
// normalised through Compare's canonical field-order/element-order walk
// rather than through a literal byte encoding.
type EncKey struct {
	Tag byte
	V   Value
}

// NewEncKey builds the encoded key for a value.
func NewEncKey(v Value) EncKey { return EncKey{Tag: TypeTag(v.Kind), V: v} }

// Less reports whether k sorts before other under the type-tag ordering
// table, independent of any index direction (direction is applied by the
// caller when walking the ordered map).
func (k EncKey) Less(other EncKey) bool {
	if k.Tag != other.Tag {
		return k.Tag < other.Tag
	}
	return Compare(k.V, other.V) < 0
}

// EqualKey reports whether two keys denote the same bucket.
func (k EncKey) EqualKey(other EncKey) bool {
	return k.Tag == other.Tag && Compare(k.V, other.V) == 0
}

// ToValue renders the key as a 2-element list [tag, raw_value] for
// persistence inside a collection's `$.metadata` document.
func (k EncKey) ToValue() Value {
	return List([]Value{Int64(int64(k.Tag)), k.V})
}

// EncKeyFromValue parses a key back from its persisted [tag, raw_value]
// form.
func EncKeyFromValue(v Value) (EncKey, bool) {
	if v.Kind != KindList || len(v.List) != 2 {
		return EncKey{}, false
	}
	tagV := v.List[0]
	if tagV.Kind != KindInt64 {
		return EncKey{}, false
	}
	return EncKey{Tag: byte(tagV.I64), V: v.List[1]}, true
}
