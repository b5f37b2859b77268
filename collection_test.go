package bundoc

import (
	"testing"

	"github.com/kartikbazzad/bundoc/bsonvalue"
	"github.com/kartikbazzad/bundoc/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sortAsc(path string) query.SortSpec {
	return query.SortSpec{{Path: path, Direction: 1}}
}

func testCollection(t *testing.T) *Collection {
	t.Helper()
	c := OpenMemory(nil)
	t.Cleanup(func() { _ = c.Close() })
	db, err := c.Database("shop")
	require.NoError(t, err)
	coll, err := db.Collection("orders")
	require.NoError(t, err)
	return coll
}

func doc(fields ...bsonvalue.Field) bsonvalue.Document { return bsonvalue.Document(fields) }

func f(name string, v bsonvalue.Value) bsonvalue.Field { return bsonvalue.Field{Name: name, Value: v} }

func TestInsertOneAssignsID(t *testing.T) {
	coll := testCollection(t)
	id, err := coll.InsertOne(doc(f("item", bsonvalue.String("widget"))))
	require.NoError(t, err)
	assert.Equal(t, bsonvalue.KindObjectID, id.Kind)

	got, found, err := coll.FindOne(doc(f("item", bsonvalue.String("widget"))))
	require.NoError(t, err)
	require.True(t, found)
	idv, _ := got.ID()
	assert.True(t, bsonvalue.Equal(idv, id))
}

func TestInsertOneDuplicateIDFails(t *testing.T) {
	coll := testCollection(t)
	_, err := coll.InsertOne(doc(f("_id", bsonvalue.String("a")), f("n", bsonvalue.Int64(1))))
	require.NoError(t, err)
	_, err = coll.InsertOne(doc(f("_id", bsonvalue.String("a")), f("n", bsonvalue.Int64(2))))
	assert.ErrorIs(t, err, ErrDuplicateKey)
}

func TestInsertManyOrderedStopsAtFirstError(t *testing.T) {
	coll := testCollection(t)
	docs := []bsonvalue.Document{
		doc(f("_id", bsonvalue.String("a"))),
		doc(f("_id", bsonvalue.String("a"))),
		doc(f("_id", bsonvalue.String("b"))),
	}
	ids, err := coll.InsertMany(docs, true)
	assert.Error(t, err)
	assert.Len(t, ids, 1)

	count, err := coll.CountDocuments(doc())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestInsertManyUnorderedInsertsRemaining(t *testing.T) {
	coll := testCollection(t)
	docs := []bsonvalue.Document{
		doc(f("_id", bsonvalue.String("a"))),
		doc(f("_id", bsonvalue.String("a"))),
		doc(f("_id", bsonvalue.String("b"))),
	}
	ids, err := coll.InsertMany(docs, false)
	assert.Error(t, err)
	assert.Len(t, ids, 2)

	count, err := coll.CountDocuments(doc())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestFindWithFilterAndSort(t *testing.T) {
	coll := testCollection(t)
	for _, n := range []int64{3, 1, 2} {
		_, err := coll.InsertOne(doc(f("n", bsonvalue.Int64(n))))
		require.NoError(t, err)
	}
	cur, err := coll.Find(doc(f("n", doc2operand(">", 1))))
	require.NoError(t, err)
	_, err = cur.Sort(sortAsc("n"))
	require.NoError(t, err)

	docs, err := cur.All()
	require.NoError(t, err)
	require.Len(t, docs, 2)
	v0, _ := docs[0].Get("n")
	v1, _ := docs[1].Get("n")
	assert.Equal(t, int64(2), v0.I64)
	assert.Equal(t, int64(3), v1.I64)
}

func TestCursorChainAfterIterateFails(t *testing.T) {
	coll := testCollection(t)
	_, err := coll.InsertOne(doc(f("n", bsonvalue.Int64(1))))
	require.NoError(t, err)
	cur, err := coll.Find(doc())
	require.NoError(t, err)
	_, err = cur.Next()
	require.NoError(t, err)
	_, err = cur.Limit(1)
	assert.ErrorIs(t, err, ErrInvalidOperation)
}

func TestUpdateOneSetIncPush(t *testing.T) {
	coll := testCollection(t)
	_, err := coll.InsertOne(doc(f("_id", bsonvalue.String("a")), f("count", bsonvalue.Int64(1))))
	require.NoError(t, err)

	matched, modified, err := coll.UpdateOne(
		doc(f("_id", bsonvalue.String("a"))),
		doc(f("$inc", bsonvalue.Object(doc(f("count", bsonvalue.Int64(4)))))),
	)
	require.NoError(t, err)
	assert.Equal(t, 1, matched)
	assert.Equal(t, 1, modified)

	got, _, err := coll.FindOne(doc(f("_id", bsonvalue.String("a"))))
	require.NoError(t, err)
	v, _ := got.Get("count")
	assert.Equal(t, int64(5), v.I64)
}

func TestReplaceOneUpsertInserts(t *testing.T) {
	coll := testCollection(t)
	matched, modified, upserted, err := coll.ReplaceOne(
		doc(f("_id", bsonvalue.String("a"))),
		doc(f("item", bsonvalue.String("gadget"))),
		true,
	)
	require.NoError(t, err)
	assert.Equal(t, 0, matched)
	assert.Equal(t, 0, modified)
	assert.Equal(t, 1, upserted)

	count, err := coll.CountDocuments(doc())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDeleteOneAndDeleteMany(t *testing.T) {
	coll := testCollection(t)
	for _, id := range []string{"a", "b", "c"} {
		_, err := coll.InsertOne(doc(f("_id", bsonvalue.String(id))))
		require.NoError(t, err)
	}
	n, err := coll.DeleteOne(doc())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = coll.DeleteMany(doc())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	count, err := coll.CountDocuments(doc())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestCreateIndexAndDropIndex(t *testing.T) {
	coll := testCollection(t)
	for _, n := range []int64{1, 2, 3} {
		_, err := coll.InsertOne(doc(f("n", bsonvalue.Int64(n))))
		require.NoError(t, err)
	}
	name, err := coll.CreateIndex("n", 1)
	require.NoError(t, err)
	assert.Equal(t, "n_1", name)

	info, err := coll.IndexInformation()
	require.NoError(t, err)
	require.Len(t, info, 2)

	count, err := coll.CountDocuments(doc(f("n", doc2operand(">=", 2))))
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, coll.DropIndex(name))
	info, err = coll.IndexInformation()
	require.NoError(t, err)
	require.Len(t, info, 1)
	assert.Equal(t, "_id_", info[0].Name)
}

func TestDistinctReturnsUniqueValues(t *testing.T) {
	coll := testCollection(t)
	for _, item := range []string{"a", "b", "a"} {
		_, err := coll.InsertOne(doc(f("item", bsonvalue.String(item))))
		require.NoError(t, err)
	}
	vals, err := coll.Distinct("item", doc())
	require.NoError(t, err)
	assert.Len(t, vals, 2)
}

func doc2operand(op string, n int64) bsonvalue.Value {
	switch op {
	case ">":
		return bsonvalue.Object(doc(f("$gt", bsonvalue.Int64(n))))
	case ">=":
		return bsonvalue.Object(doc(f("$gte", bsonvalue.Int64(n))))
	}
	panic("unsupported operand in test helper: " + op)
}
