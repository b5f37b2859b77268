package bundoc

import (
	"path/filepath"
	"testing"

	"github.com/kartikbazzad/bundoc/bsonvalue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLazyCreationLeavesNoTraceBeforeFirstWrite(t *testing.T) {
	c := OpenMemory(nil)
	defer c.Close()

	db, err := c.Database("shop")
	require.NoError(t, err)
	_, err = db.Collection("orders")
	require.NoError(t, err)

	names, err := c.ListDatabaseNames()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestFirstWriteRegistersDatabaseAndCollection(t *testing.T) {
	c := OpenMemory(nil)
	defer c.Close()

	db, err := c.Database("shop")
	require.NoError(t, err)
	coll, err := db.Collection("orders")
	require.NoError(t, err)
	_, err = coll.InsertOne(bsonvalue.Document{{Name: "item", Value: bsonvalue.String("widget")}})
	require.NoError(t, err)

	names, err := c.ListDatabaseNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"shop"}, names)

	collNames, err := db.ListCollectionNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"orders"}, collNames)
}

func TestDropDatabaseCascadesCollections(t *testing.T) {
	c := OpenMemory(nil)
	defer c.Close()

	db, _ := c.Database("shop")
	coll, _ := db.Collection("orders")
	_, err := coll.InsertOne(bsonvalue.Document{{Name: "n", Value: bsonvalue.Int64(1)}})
	require.NoError(t, err)

	require.NoError(t, c.DropDatabase("shop"))

	names, err := c.ListDatabaseNames()
	require.NoError(t, err)
	assert.Empty(t, names)

	count, err := coll.CountDocuments(bsonvalue.Document{})
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestInvalidNameRejected(t *testing.T) {
	c := OpenMemory(nil)
	defer c.Close()
	_, err := c.Database("bad/name")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestDiskClientPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	opts := DefaultOptions(filepath.Join(dir, "store"))
	c1, err := Open(opts)
	require.NoError(t, err)
	db, _ := c1.Database("shop")
	coll, _ := db.Collection("orders")
	_, err = coll.InsertOne(bsonvalue.Document{{Name: "_id", Value: bsonvalue.String("a")}, {Name: "item", Value: bsonvalue.String("widget")}})
	require.NoError(t, err)
	require.NoError(t, c1.Close())

	c2, err := Open(opts)
	require.NoError(t, err)
	defer c2.Close()
	db2, _ := c2.Database("shop")
	coll2, _ := db2.Collection("orders")
	got, found, err := coll2.FindOne(bsonvalue.Document{{Name: "_id", Value: bsonvalue.String("a")}})
	require.NoError(t, err)
	require.True(t, found)
	v, _ := got.Get("item")
	assert.Equal(t, "widget", v.Str)
}
