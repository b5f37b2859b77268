// Package storage implements the two storage engines (disk, memory) that
// back a collection: an append-into-slot file layout with a position index
// and compaction for disk, and an equivalent in-process map for memory.
package storage

import (
	"errors"

	"github.com/kartikbazzad/bundoc/bsonvalue"
)

// ErrStorageFailure wraps underlying I/O errors raised by the disk engine.
var ErrStorageFailure = errors.New("storage: I/O failure")

// Engine is the contract shared by the disk and memory storage engines.
// `name` identifies a namespace: "" for the client's own metadata, a bare
// database name for a database's metadata, or "db.collection" for a
// collection's documents and metadata.
type Engine interface {
	// PutDoc writes doc (which must carry an `_id` field) into name's data
	// store. If noOverwrite is true and a document with the same id already
	// exists, it returns (false, nil) without writing.
	PutDoc(name string, doc bsonvalue.Document, noOverwrite bool) (bool, error)
	// GetDoc fetches a document by id, returning ok=false if absent.
	GetDoc(name string, id string) (bsonvalue.Document, bool, error)
	// DocExists reports whether id is present without decoding the document.
	DocExists(name string, id string) (bool, error)
	// DeleteDoc removes a document by id, returning whether it existed.
	DeleteDoc(name string, id string) (bool, error)
	// ListIDs returns up to limit document ids (0 = unlimited) in the
	// engine's natural enumeration order (insertion order).
	ListIDs(name string, limit int) ([]string, error)
	// PutMetadata persists name's metadata document, potentially compacting
	// the collection's data file as a side effect.
	PutMetadata(name string, meta bsonvalue.Document) (bool, error)
	// GetMetadata fetches name's metadata document, returning ok=false if it
	// has never been written.
	GetMetadata(name string) (bsonvalue.Document, bool, error)
	// DeleteDir removes every file belonging to name and evicts its caches.
	DeleteDir(name string) (bool, error)
	// Close flushes caches and file handles and marks the engine unusable.
	Close() error
}

func docID(doc bsonvalue.Document) (string, error) {
	v, ok := doc.ID()
	if !ok {
		return "", errors.New("storage: document has no _id field")
	}
	return bsonvalue.IDString(v), nil
}
