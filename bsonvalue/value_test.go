package bsonvalue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSetDottedPath(t *testing.T) {
	doc := Document{
		{Name: "_id", Value: String("a")},
		{Name: "nested", Value: Object(Document{
			{Name: "k", Value: String("ma")},
		})},
	}

	v, ok := Get(doc, "nested.k")
	require.True(t, ok)
	assert.Equal(t, "ma", v.Str)

	_, ok = Get(doc, "nested.missing")
	assert.False(t, ok)

	_, ok = Get(doc, "_id.nope")
	assert.False(t, ok, "traversal through a non-container is absent")

	require.NoError(t, Set(&doc, "nested.k", String("pa")))
	v, _ = Get(doc, "nested.k")
	assert.Equal(t, "pa", v.Str)
}

func TestSetListIndexRightPads(t *testing.T) {
	doc := Document{{Name: "_id", Value: String("a")}}
	require.NoError(t, Set(&doc, "v.0", Int64(1)))
	require.NoError(t, Set(&doc, "v.3", Int64(4)))

	v, ok := Get(doc, "v")
	require.True(t, ok)
	require.Equal(t, KindList, v.Kind)
	require.Len(t, v.List, 4)
	assert.Equal(t, KindNull, v.List[1].Kind)
	assert.Equal(t, KindNull, v.List[2].Kind)
	assert.Equal(t, int64(4), v.List[3].I64)
}

func TestSetThroughScalarFails(t *testing.T) {
	doc := Document{{Name: "x", Value: Int64(1)}}
	err := Set(&doc, "x.y", String("z"))
	assert.ErrorIs(t, err, ErrPathInvalid)
}

func TestCompareTypeTagOrdering(t *testing.T) {
	assert.True(t, Compare(Null(), Int64(0)) < 0)
	assert.True(t, Compare(Int64(5), String("a")) < 0)
	assert.True(t, Compare(Bool(false), Bool(true)) < 0)
	assert.Equal(t, 0, Compare(Int64(3), Double(3.0)))
	assert.True(t, Compare(Int64(2), Int64(3)) < 0)
}

func TestCompareDateTimeAndObjectID(t *testing.T) {
	t1 := DateTime(time.Unix(100, 0))
	t2 := DateTime(time.Unix(200, 0))
	assert.True(t, Compare(t1, t2) < 0)

	id1 := NewObjectID()
	id2 := NewObjectID()
	assert.NotEqual(t, id1.OID, id2.OID)
	assert.NotEqual(t, 0, Compare(id1, id2))
}

func TestDeepCopyIsIndependent(t *testing.T) {
	doc := Document{{Name: "v", Value: List([]Value{Int64(1), Int64(2)})}}
	cp := DeepCopyDocument(doc)
	cp[0].Value.List[0] = Int64(99)

	orig, _ := Get(doc, "v.0")
	assert.Equal(t, int64(1), orig.I64)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	doc := Document{
		{Name: "_id", Value: NewObjectID()},
		{Name: "name", Value: String("ada")},
		{Name: "age", Value: Int64(36)},
		{Name: "score", Value: Double(2.5)},
		{Name: "tags", Value: List([]Value{String("a"), String("b")})},
		{Name: "nested", Value: Object(Document{{Name: "k", Value: Bool(true)}})},
		{Name: "bin", Value: Binary([]byte{1, 2, 3})},
	}

	data, err := Encode(doc)
	require.NoError(t, err)

	back, err := Decode(data)
	require.NoError(t, err)

	for _, f := range doc {
		v, ok := back.Get(f.Name)
		require.True(t, ok, f.Name)
		assert.True(t, Equal(v, f.Value), f.Name)
	}
}

func TestEncKeyOrdering(t *testing.T) {
	k1 := NewEncKey(Int64(1))
	k2 := NewEncKey(Int64(2))
	k3 := NewEncKey(String("a"))

	assert.True(t, k1.Less(k2))
	assert.True(t, k2.Less(k3))
	assert.False(t, k3.Less(k1))
}
