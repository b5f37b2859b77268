package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kartikbazzad/bundoc/bsonvalue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doc(id string, n int64) bsonvalue.Document {
	return bsonvalue.Document{
		{Name: "_id", Value: bsonvalue.String(id)},
		{Name: "n", Value: bsonvalue.Int64(n)},
	}
}

func testEngines(t *testing.T) map[string]Engine {
	t.Helper()
	disk, err := NewDiskEngine(t.TempDir())
	require.NoError(t, err)
	return map[string]Engine{
		"memory": NewMemoryEngine(false),
		"disk":   disk,
	}
}

func TestEnginePutGetDoc(t *testing.T) {
	for name, e := range testEngines(t) {
		t.Run(name, func(t *testing.T) {
			ok, err := e.PutDoc("db.coll", doc("a", 1), false)
			require.NoError(t, err)
			assert.True(t, ok)

			got, found, err := e.GetDoc("db.coll", "a")
			require.NoError(t, err)
			require.True(t, found)
			v, _ := got.Get("n")
			assert.Equal(t, int64(1), v.I64)
		})
	}
}

func TestEngineNoOverwrite(t *testing.T) {
	for name, e := range testEngines(t) {
		t.Run(name, func(t *testing.T) {
			_, err := e.PutDoc("db.coll", doc("a", 1), false)
			require.NoError(t, err)
			ok, err := e.PutDoc("db.coll", doc("a", 2), true)
			require.NoError(t, err)
			assert.False(t, ok)

			got, _, _ := e.GetDoc("db.coll", "a")
			v, _ := got.Get("n")
			assert.Equal(t, int64(1), v.I64)
		})
	}
}

func TestEngineDeleteDoc(t *testing.T) {
	for name, e := range testEngines(t) {
		t.Run(name, func(t *testing.T) {
			_, err := e.PutDoc("db.coll", doc("a", 1), false)
			require.NoError(t, err)
			ok, err := e.DeleteDoc("db.coll", "a")
			require.NoError(t, err)
			assert.True(t, ok)

			_, found, err := e.GetDoc("db.coll", "a")
			require.NoError(t, err)
			assert.False(t, found)

			ok, err = e.DeleteDoc("db.coll", "a")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestEngineListIDsPreservesInsertionOrder(t *testing.T) {
	for name, e := range testEngines(t) {
		t.Run(name, func(t *testing.T) {
			for _, id := range []string{"c", "a", "b"} {
				_, err := e.PutDoc("db.coll", doc(id, 1), false)
				require.NoError(t, err)
			}
			ids, err := e.ListIDs("db.coll", 0)
			require.NoError(t, err)
			assert.Equal(t, []string{"c", "a", "b"}, ids)

			limited, err := e.ListIDs("db.coll", 2)
			require.NoError(t, err)
			assert.Equal(t, []string{"c", "a"}, limited)
		})
	}
}

func TestEngineMetadataRoundTrip(t *testing.T) {
	for name, e := range testEngines(t) {
		t.Run(name, func(t *testing.T) {
			meta := bsonvalue.Document{{Name: "indexes", Value: bsonvalue.Object(nil)}}
			ok, err := e.PutMetadata("db.coll", meta)
			require.NoError(t, err)
			assert.True(t, ok)

			got, found, err := e.GetMetadata("db.coll")
			require.NoError(t, err)
			require.True(t, found)
			assert.Len(t, got, 1)
		})
	}
}

func TestEngineDeleteDir(t *testing.T) {
	for name, e := range testEngines(t) {
		t.Run(name, func(t *testing.T) {
			_, err := e.PutDoc("db.coll", doc("a", 1), false)
			require.NoError(t, err)
			ok, err := e.DeleteDir("db.coll")
			require.NoError(t, err)
			assert.True(t, ok)

			_, found, err := e.GetDoc("db.coll", "a")
			require.NoError(t, err)
			assert.False(t, found)
		})
	}
}

func TestDiskEngineOverwriteShrinkReusesSlot(t *testing.T) {
	dir := t.TempDir()
	e, err := NewDiskEngine(dir)
	require.NoError(t, err)

	big := bsonvalue.Document{
		{Name: "_id", Value: bsonvalue.String("a")},
		{Name: "s", Value: bsonvalue.String("this is a fairly long string value")},
	}
	_, err = e.PutDoc("db.coll", big, false)
	require.NoError(t, err)

	small := bsonvalue.Document{
		{Name: "_id", Value: bsonvalue.String("a")},
		{Name: "s", Value: bsonvalue.String("short")},
	}
	_, err = e.PutDoc("db.coll", small, false)
	require.NoError(t, err)

	_, err = e.PutMetadata("db.coll", bsonvalue.Document{{Name: "ok", Value: bsonvalue.Bool(true)}})
	require.NoError(t, err)

	ns := e.ns["db.coll"]
	require.NotNil(t, ns)
	assert.Greater(t, ns.spareBytes, int64(0))

	got, found, err := e.GetDoc("db.coll", "a")
	require.NoError(t, err)
	require.True(t, found)
	v, _ := got.Get("s")
	assert.Equal(t, "short", v.Str)
}

func TestDiskEngineCompactsWhenSpareExceedsHalf(t *testing.T) {
	dir := t.TempDir()
	e, err := NewDiskEngine(dir)
	require.NoError(t, err)

	ids := []string{"a", "b", "c", "d", "e", "f"}
	for _, id := range ids {
		_, err := e.PutDoc("db.coll", doc(id, 1), false)
		require.NoError(t, err)
	}
	for _, id := range ids[:5] {
		_, err := e.DeleteDoc("db.coll", id)
		require.NoError(t, err)
	}

	_, err = e.PutMetadata("db.coll", bsonvalue.Document{{Name: "ok", Value: bsonvalue.Bool(true)}})
	require.NoError(t, err)

	ns := e.ns["db.coll"]
	require.NotNil(t, ns)
	assert.Equal(t, int64(0), ns.spareBytes)

	got, found, err := e.GetDoc("db.coll", "f")
	require.NoError(t, err)
	require.True(t, found)
	v, _ := got.Get("n")
	assert.Equal(t, int64(1), v.I64)
}

func TestDiskEngineOverwriteAfterCompactionKeepsCapacityAndLiveLenIndependent(t *testing.T) {
	dir := t.TempDir()
	e, err := NewDiskEngine(dir)
	require.NoError(t, err)

	ids := []string{"a", "b", "c", "d", "e", "f"}
	for _, id := range ids {
		_, err := e.PutDoc("db.coll", doc(id, 1), false)
		require.NoError(t, err)
	}
	for _, id := range ids[:5] {
		_, err := e.DeleteDoc("db.coll", id)
		require.NoError(t, err)
	}
	_, err = e.PutMetadata("db.coll", bsonvalue.Document{{Name: "ok", Value: bsonvalue.Bool(true)}})
	require.NoError(t, err)

	ns := e.ns["db.coll"]
	require.NotNil(t, ns)
	capacityBefore := ns.capacity["f"]

	// Overwrite "f" with a larger document so it is relocated to a fresh,
	// larger slot, then overwrite again with a smaller one that fits in
	// that slot. If capacity and liveLen ever shared a map, this second
	// write would have corrupted capacity["f"] down to the new liveLen,
	// making the reserved-slot size indistinguishable from the live size.
	bigger := bsonvalue.Document{
		{Name: "_id", Value: bsonvalue.String("f")},
		{Name: "s", Value: bsonvalue.String("a very long string to force relocation")},
	}
	_, err = e.PutDoc("db.coll", bigger, false)
	require.NoError(t, err)
	capacityAfterGrow := ns.capacity["f"]
	assert.Greater(t, capacityAfterGrow, capacityBefore)

	smaller := bsonvalue.Document{
		{Name: "_id", Value: bsonvalue.String("f")},
		{Name: "s", Value: bsonvalue.String("x")},
	}
	_, err = e.PutDoc("db.coll", smaller, false)
	require.NoError(t, err)

	assert.Equal(t, capacityAfterGrow, ns.capacity["f"], "capacity must not be mutated by a shrink overwrite")
	assert.Less(t, ns.liveLen["f"], ns.capacity["f"])
	assert.Greater(t, ns.spareBytes, int64(0))

	got, found, err := e.GetDoc("db.coll", "f")
	require.NoError(t, err)
	require.True(t, found)
	v, _ := got.Get("s")
	assert.Equal(t, "x", v.Str)
}

func TestDiskEngineRecoversPositionIndexByRescan(t *testing.T) {
	dir := t.TempDir()
	e, err := NewDiskEngine(dir)
	require.NoError(t, err)

	for _, id := range []string{"a", "b", "c"} {
		_, err := e.PutDoc("db.coll", doc(id, 1), false)
		require.NoError(t, err)
	}
	_, err = e.PutMetadata("db.coll", bsonvalue.Document{{Name: "ok", Value: bsonvalue.Bool(true)}})
	require.NoError(t, err)
	require.NoError(t, e.Close())

	// Simulate a crash that lost the flushed position index.
	require.NoError(t, os.Remove(filepath.Join(dir, sanitizeName("db.coll"), fileAttrsName)))

	e2, err := NewDiskEngine(dir)
	require.NoError(t, err)
	ids, err := e2.ListIDs("db.coll", 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, ids)

	got, found, err := e2.GetDoc("db.coll", "b")
	require.NoError(t, err)
	require.True(t, found)
	v, _ := got.Get("n")
	assert.Equal(t, int64(1), v.I64)
}

func TestSanitizeNameStripsInvalidCharsAndDeviceNames(t *testing.T) {
	assert.Equal(t, "db_coll", sanitizeName("db/coll"))
	assert.Equal(t, "_CON", sanitizeName("CON"))
	assert.NotEmpty(t, sanitizeName("..."))
}
