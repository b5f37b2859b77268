package storage

import (
	"fmt"
	"sync"

	"github.com/kartikbazzad/bundoc/bsonvalue"
)

// MemoryEngine is the in-process storage engine (C3): same contract as the
// disk engine, backed by plain maps. In strict mode every write is
// BSON-encoded and every read BSON-decoded, so that only BSON-representable
// values are ever accepted — used by tests to catch invalid field types
// early, mirroring mongita's memory_engine `strict` flag.
type MemoryEngine struct {
	mu     sync.Mutex
	strict bool
	closed bool

	docs  map[string]map[string]bsonvalue.Document
	order map[string][]string
	meta  map[string]bsonvalue.Document
}

// NewMemoryEngine constructs an empty in-memory engine.
func NewMemoryEngine(strict bool) *MemoryEngine {
	return &MemoryEngine{
		strict: strict,
		docs:   map[string]map[string]bsonvalue.Document{},
		order:  map[string][]string{},
		meta:   map[string]bsonvalue.Document{},
	}
}

func (e *MemoryEngine) roundTrip(doc bsonvalue.Document) (bsonvalue.Document, error) {
	if !e.strict {
		return bsonvalue.DeepCopyDocument(doc), nil
	}
	data, err := bsonvalue.Encode(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	return bsonvalue.Decode(data)
}

func (e *MemoryEngine) PutDoc(name string, doc bsonvalue.Document, noOverwrite bool) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false, ErrStorageFailure
	}
	id, err := docID(doc)
	if err != nil {
		return false, err
	}
	stored, err := e.roundTrip(doc)
	if err != nil {
		return false, err
	}
	coll, ok := e.docs[name]
	if !ok {
		coll = map[string]bsonvalue.Document{}
		e.docs[name] = coll
	}
	if _, exists := coll[id]; exists {
		if noOverwrite {
			return false, nil
		}
	} else {
		e.order[name] = append(e.order[name], id)
	}
	coll[id] = stored
	return true, nil
}

func (e *MemoryEngine) GetDoc(name string, id string) (bsonvalue.Document, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	coll, ok := e.docs[name]
	if !ok {
		return nil, false, nil
	}
	doc, ok := coll[id]
	if !ok {
		return nil, false, nil
	}
	out, err := e.roundTrip(doc)
	return out, true, err
}

func (e *MemoryEngine) DocExists(name string, id string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	coll, ok := e.docs[name]
	if !ok {
		return false, nil
	}
	_, ok = coll[id]
	return ok, nil
}

func (e *MemoryEngine) DeleteDoc(name string, id string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	coll, ok := e.docs[name]
	if !ok {
		return false, nil
	}
	if _, ok := coll[id]; !ok {
		return false, nil
	}
	delete(coll, id)
	ids := e.order[name]
	for i, x := range ids {
		if x == id {
			e.order[name] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return true, nil
}

func (e *MemoryEngine) ListIDs(name string, limit int) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := e.order[name]
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}
	out := make([]string, len(ids))
	copy(out, ids)
	return out, nil
}

func (e *MemoryEngine) PutMetadata(name string, meta bsonvalue.Document) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false, ErrStorageFailure
	}
	e.meta[name] = bsonvalue.DeepCopyDocument(meta)
	return true, nil
}

func (e *MemoryEngine) GetMetadata(name string) (bsonvalue.Document, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	meta, ok := e.meta[name]
	if !ok {
		return nil, false, nil
	}
	return bsonvalue.DeepCopyDocument(meta), true, nil
}

func (e *MemoryEngine) DeleteDir(name string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, hadDocs := e.docs[name]
	_, hadMeta := e.meta[name]
	delete(e.docs, name)
	delete(e.order, name)
	delete(e.meta, name)
	return hadDocs || hadMeta, nil
}

func (e *MemoryEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.docs = nil
	e.order = nil
	e.meta = nil
	e.closed = true
	return nil
}
