package bsonvalue

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Encode renders a document as BSON bytes via go.mongodb.org/mongo-driver's
// codec, preserving field order through an explicit bson.D conversion.
func Encode(doc Document) ([]byte, error) {
	return bson.Marshal(toD(doc))
}

// Decode parses BSON bytes back into a Document.
func Decode(data []byte) (Document, error) {
	var raw bson.D
	if err := bson.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("bsonvalue: decode: %w", err)
	}
	return fromD(raw)
}

func toD(doc Document) bson.D {
	if doc == nil {
		return bson.D{}
	}
	out := make(bson.D, 0, len(doc))
	for _, f := range doc {
		out = append(out, bson.E{Key: f.Name, Value: toRaw(f.Value)})
	}
	return out
}

func toRaw(v Value) interface{} {
	switch v.Kind {
	case KindNull:
		return nil
	case KindInt64:
		return v.I64
	case KindDouble:
		return v.F64
	case KindString:
		return v.Str
	case KindBool:
		return v.B
	case KindBinary:
		return primitive.Binary{Subtype: 0x00, Data: v.Bin}
	case KindObjectID:
		return v.OID
	case KindDateTime:
		return primitive.NewDateTimeFromTime(v.Time)
	case KindRegex:
		return primitive.Regex{Pattern: v.Regex, Options: v.Flags}
	case KindObject:
		return toD(v.Obj)
	case KindList:
		arr := make(bson.A, 0, len(v.List))
		for _, e := range v.List {
			arr = append(arr, toRaw(e))
		}
		return arr
	default:
		return nil
	}
}

func fromD(d bson.D) (Document, error) {
	out := make(Document, 0, len(d))
	for _, e := range d {
		v, err := fromRaw(e.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, Field{Name: e.Key, Value: v})
	}
	return out, nil
}

func fromRaw(raw interface{}) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return Null(), nil
	case int32:
		return Int64(int64(t)), nil
	case int64:
		return Int64(t), nil
	case float64:
		return Double(t), nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case primitive.Binary:
		return Binary(t.Data), nil
	case primitive.ObjectID:
		return ObjectID(t), nil
	case primitive.DateTime:
		return DateTime(t.Time()), nil
	case primitive.Regex:
		return RegexValue(t.Pattern, t.Options), nil
	case bson.D:
		sub, err := fromD(t)
		if err != nil {
			return Value{}, err
		}
		return Object(sub), nil
	case bson.A:
		vals := make([]Value, 0, len(t))
		for _, e := range t {
			v, err := fromRaw(e)
			if err != nil {
				return Value{}, err
			}
			vals = append(vals, v)
		}
		return List(vals), nil
	case bson.M:
		sub := make(Document, 0, len(t))
		for k, raw := range t {
			v, err := fromRaw(raw)
			if err != nil {
				return Value{}, err
			}
			sub = append(sub, Field{Name: k, Value: v})
		}
		return Object(sub), nil
	case primitive.Undefined:
		return Null(), nil
	default:
		return Value{}, fmt.Errorf("bsonvalue: unsupported bson type %T", raw)
	}
}
