package bundoc

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/kartikbazzad/bundoc/bsonvalue"
	"github.com/kartikbazzad/bundoc/index"
	"github.com/kartikbazzad/bundoc/query"
	"github.com/kartikbazzad/bundoc/storage"
)

// Collection coordinates queries, mutations, and index maintenance for one
// named collection (C6). It owns no storage itself: every document and the
// collection's own metadata live in the owning Client's storage.Engine,
// keyed by "db.collection".
type Collection struct {
	name     string
	fullName string
	db       *Database

	mu      sync.Mutex
	loaded  bool
	exists  bool
	indexes map[string]*index.Index
}

// Name returns the collection's bare name (without its database prefix).
func (c *Collection) Name() string { return c.name }

// FullName returns "database.collection".
func (c *Collection) FullName() string { return c.fullName }

func (c *Collection) engine() storage.Engine {
	return c.db.client.engine
}

// ensureLoaded reads the collection's metadata exactly once, reconstructing
// its indexes. It never creates anything.
func (c *Collection) ensureLoaded() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensureLoadedLocked()
}

func (c *Collection) ensureLoadedLocked() error {
	if c.loaded {
		return nil
	}
	meta, ok, err := c.engine().GetMetadata(c.fullName)
	if err != nil {
		return err
	}
	c.indexes = map[string]*index.Index{}
	if ok {
		c.exists = true
		if idxV, has := meta.Get("indexes"); has && idxV.Kind == bsonvalue.KindObject {
			for _, f := range idxV.Obj {
				if ix, ok := index.FromMeta(f.Value.Obj); ok {
					c.indexes[f.Name] = ix
				}
			}
		}
	}
	c.loaded = true
	return nil
}

// ensureCreated writes an initial metadata document the first time a
// collection is written to, and registers the collection name with its
// database (spec §4.7).
func (c *Collection) ensureCreated() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureLoadedLocked(); err != nil {
		return err
	}
	if c.exists {
		return nil
	}
	meta := bsonvalue.Document{
		{Name: "_id", Value: bsonvalue.NewObjectID()},
		{Name: "options", Value: bsonvalue.Object(nil)},
		{Name: "indexes", Value: bsonvalue.Object(nil)},
	}
	if _, err := c.engine().PutMetadata(c.fullName, meta); err != nil {
		return err
	}
	c.exists = true
	return c.db.ensureRegistered(c.name)
}

func (c *Collection) persistMetadataLocked() error {
	idxFields := make(bsonvalue.Document, 0, len(c.indexes))
	for name, ix := range c.indexes {
		idxFields = append(idxFields, bsonvalue.Field{Name: name, Value: bsonvalue.Object(ix.ToMeta())})
	}
	meta := bsonvalue.Document{
		{Name: "options", Value: bsonvalue.Object(nil)},
		{Name: "indexes", Value: bsonvalue.Object(idxFields)},
	}
	_, err := c.engine().PutMetadata(c.fullName, meta)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOperationFailure, err)
	}
	return nil
}

func (c *Collection) indexLookup(field string) (*index.Index, bool) {
	for _, ix := range c.indexes {
		if ix.FieldPath == field {
			return ix, true
		}
	}
	return nil, false
}

func (c *Collection) applyInsertToIndexes(id string, doc bsonvalue.Document) {
	for _, ix := range c.indexes {
		ix.ApplyInsert(id, doc)
	}
}

func (c *Collection) applyUpdateToIndexes(id string, old, updated bsonvalue.Document) {
	for _, ix := range c.indexes {
		ix.ApplyUpdate(id, old, updated)
	}
}

func (c *Collection) applyDeleteToIndexes(id string, doc bsonvalue.Document) {
	for _, ix := range c.indexes {
		ix.ApplyDelete(id, doc)
	}
}

func validateDocumentFields(doc bsonvalue.Document) error {
	for _, f := range doc {
		if !validFieldName(f.Name) {
			return ErrBadArgument
		}
		if f.Value.Kind == bsonvalue.KindObject {
			if err := validateDocumentFields(f.Value.Obj); err != nil {
				return err
			}
		}
	}
	return nil
}

// InsertOne inserts doc, assigning a fresh ObjectID to `_id` if absent, and
// returns the inserted id.
func (c *Collection) InsertOne(doc bsonvalue.Document) (bsonvalue.Value, error) {
	if err := validateDocumentFields(doc); err != nil {
		return bsonvalue.Value{}, err
	}
	if err := c.ensureCreated(); err != nil {
		return bsonvalue.Value{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.insertOneLocked(doc)
}

func (c *Collection) insertOneLocked(doc bsonvalue.Document) (bsonvalue.Value, error) {
	if _, has := doc.ID(); !has {
		doc = doc.WithField("_id", bsonvalue.NewObjectID())
	}
	idV, _ := doc.ID()
	put, err := c.engine().PutDoc(c.fullName, doc, true)
	if err != nil {
		return bsonvalue.Value{}, err
	}
	if !put {
		return bsonvalue.Value{}, ErrDuplicateKey
	}
	c.applyInsertToIndexes(bsonvalue.IDString(idV), doc)
	if err := c.persistMetadataLocked(); err != nil {
		return idV, err
	}
	return idV, nil
}

// InsertMany inserts every document in docs. With ordered=true, insertion
// stops at the first failure and returns the ids inserted so far alongside
// the error. With ordered=false, every document is attempted and index
// maintenance runs only for the ones that succeeded (spec §7).
func (c *Collection) InsertMany(docs []bsonvalue.Document, ordered bool) ([]bsonvalue.Value, error) {
	if err := c.ensureCreated(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]bsonvalue.Value, 0, len(docs))
	var firstErr error
	for _, doc := range docs {
		if err := validateDocumentFields(doc); err != nil {
			if ordered {
				return ids, err
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		id, err := c.insertOneLocked(doc)
		if err != nil {
			if ordered {
				return ids, err
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		ids = append(ids, id)
	}
	return ids, firstErr
}

// matchingIDs returns the ids of every stored document matching filter, in
// the collection's natural enumeration order.
func (c *Collection) matchingIDs(f *query.Filter) ([]string, error) {
	candidateIDs, residual, used := query.Plan(f, c.indexLookup)
	all, err := c.engine().ListIDs(c.fullName, 0)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(all))
	for _, id := range all {
		if used {
			if _, ok := candidateIDs[id]; !ok {
				continue
			}
		}
		doc, found, err := c.engine().GetDoc(c.fullName, id)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		if used {
			if !query.MatchesResidual(doc, residual) {
				continue
			}
		} else if !f.Matches(doc) {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

// execFind runs filter, sort, skip and limit and returns the resulting
// documents (spec §4.5 planning algorithm).
func (c *Collection) execFind(f *query.Filter, sort query.SortSpec, skip, limit int) ([]bsonvalue.Document, error) {
	if err := c.ensureLoaded(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.exists {
		return nil, nil
	}
	ids, err := c.matchingIDs(f)
	if err != nil {
		return nil, err
	}
	docs := make([]bsonvalue.Document, 0, len(ids))
	for _, id := range ids {
		doc, found, err := c.engine().GetDoc(c.fullName, id)
		if err != nil {
			return nil, err
		}
		if found {
			docs = append(docs, doc)
		}
	}
	if len(sort) > 0 {
		query.SortDocuments(docs, sort)
	}
	if skip > 0 {
		if skip >= len(docs) {
			return nil, nil
		}
		docs = docs[skip:]
	}
	if limit > 0 && limit < len(docs) {
		docs = docs[:limit]
	}
	return docs, nil
}

// FindOne returns the first document matching filter.
func (c *Collection) FindOne(filter bsonvalue.Document) (bsonvalue.Document, bool, error) {
	f, err := query.ParseFilter(filter)
	if err != nil {
		return nil, false, err
	}
	docs, err := c.execFind(f, nil, 0, 1)
	if err != nil {
		return nil, false, err
	}
	if len(docs) == 0 {
		return nil, false, nil
	}
	return docs[0], true, nil
}

// Find returns a lazily-iterated Cursor over documents matching filter.
func (c *Collection) Find(filter bsonvalue.Document) (*Cursor, error) {
	f, err := query.ParseFilter(filter)
	if err != nil {
		return nil, err
	}
	return newCursor(func(sort query.SortSpec, skip, limit int) ([]bsonvalue.Document, error) {
		return c.execFind(f, sort, skip, limit)
	}), nil
}

// CountDocuments returns the number of documents matching filter.
func (c *Collection) CountDocuments(filter bsonvalue.Document) (int, error) {
	f, err := query.ParseFilter(filter)
	if err != nil {
		return 0, err
	}
	docs, err := c.execFind(f, nil, 0, 0)
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

// Distinct returns the set of distinct non-null values found at path across
// every document matching filter.
func (c *Collection) Distinct(path string, filter bsonvalue.Document) ([]bsonvalue.Value, error) {
	f, err := query.ParseFilter(filter)
	if err != nil {
		return nil, err
	}
	docs, err := c.execFind(f, nil, 0, 0)
	if err != nil {
		return nil, err
	}
	var out []bsonvalue.Value
	for _, doc := range docs {
		v, ok := bsonvalue.Get(doc, path)
		if !ok || v.Kind == bsonvalue.KindNull {
			continue
		}
		dup := false
		for _, seen := range out {
			if bsonvalue.Equal(seen, v) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, v)
		}
	}
	return out, nil
}

func applyUpdateAt(c *Collection, id string, u *query.Update) (matched bool, modified bool, err error) {
	old, found, err := c.engine().GetDoc(c.fullName, id)
	if err != nil || !found {
		return false, false, err
	}
	updated := bsonvalue.DeepCopyDocument(old)
	if err := query.Apply(&updated, u); err != nil {
		return true, false, err
	}
	if _, err := c.engine().PutDoc(c.fullName, updated, false); err != nil {
		return true, false, err
	}
	c.applyUpdateToIndexes(id, old, updated)
	return true, !reflect.DeepEqual(old, updated), nil
}

// UpdateOne applies update to the first document matching filter. Upsert is
// not implemented here: only ReplaceOne can create a document (spec §4.6).
func (c *Collection) UpdateOne(filter, update bsonvalue.Document) (matchedCount, modifiedCount int, err error) {
	f, err := query.ParseFilter(filter)
	if err != nil {
		return 0, 0, err
	}
	u, err := query.ParseUpdate(update)
	if err != nil {
		return 0, 0, err
	}
	if err := c.ensureLoaded(); err != nil {
		return 0, 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.exists {
		return 0, 0, nil
	}
	ids, err := c.matchingIDs(f)
	if err != nil || len(ids) == 0 {
		return 0, 0, err
	}
	matched, modified, err := applyUpdateAt(c, ids[0], u)
	if err != nil {
		return 0, 0, err
	}
	if err := c.persistMetadataLocked(); err != nil {
		return 0, 0, err
	}
	mc := 0
	if matched {
		mc = 1
	}
	modc := 0
	if modified {
		modc = 1
	}
	return mc, modc, nil
}

// UpdateMany applies update to every document matching filter.
func (c *Collection) UpdateMany(filter, update bsonvalue.Document) (matchedCount, modifiedCount int, err error) {
	f, err := query.ParseFilter(filter)
	if err != nil {
		return 0, 0, err
	}
	u, err := query.ParseUpdate(update)
	if err != nil {
		return 0, 0, err
	}
	if err := c.ensureLoaded(); err != nil {
		return 0, 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.exists {
		return 0, 0, nil
	}
	ids, err := c.matchingIDs(f)
	if err != nil {
		return 0, 0, err
	}
	for _, id := range ids {
		matched, modified, err := applyUpdateAt(c, id, u)
		if err != nil {
			return matchedCount, modifiedCount, err
		}
		if matched {
			matchedCount++
		}
		if modified {
			modifiedCount++
		}
	}
	if err := c.persistMetadataLocked(); err != nil {
		return matchedCount, modifiedCount, err
	}
	return matchedCount, modifiedCount, nil
}

// ReplaceOne replaces the first document matching filter with replacement,
// inserting it when upsert is true and nothing matched (the only form of
// upsert this store implements).
func (c *Collection) ReplaceOne(filter, replacement bsonvalue.Document, upsert bool) (matchedCount, modifiedCount, upsertedCount int, err error) {
	f, err := query.ParseFilter(filter)
	if err != nil {
		return 0, 0, 0, err
	}
	if err := validateDocumentFields(replacement); err != nil {
		return 0, 0, 0, err
	}
	if upsert {
		if err := c.ensureCreated(); err != nil {
			return 0, 0, 0, err
		}
	} else if err := c.ensureLoaded(); err != nil {
		return 0, 0, 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.exists {
		ids, err := c.matchingIDs(f)
		if err != nil {
			return 0, 0, 0, err
		}
		if len(ids) > 0 {
			id := ids[0]
			old, found, err := c.engine().GetDoc(c.fullName, id)
			if err != nil || !found {
				return 0, 0, 0, err
			}
			idV, _ := old.ID()
			newDoc := replacement.WithField("_id", idV)
			if _, err := c.engine().PutDoc(c.fullName, newDoc, false); err != nil {
				return 0, 0, 0, err
			}
			c.applyDeleteToIndexes(id, old)
			c.applyInsertToIndexes(id, newDoc)
			if err := c.persistMetadataLocked(); err != nil {
				return 0, 0, 0, err
			}
			modified := 0
			if !reflect.DeepEqual(old, newDoc) {
				modified = 1
			}
			return 1, modified, 0, nil
		}
	}
	if !upsert {
		return 0, 0, 0, nil
	}
	if _, err := c.insertOneLocked(replacement); err != nil {
		return 0, 0, 0, err
	}
	return 0, 0, 1, nil
}

// DeleteOne removes the first document matching filter.
func (c *Collection) DeleteOne(filter bsonvalue.Document) (int, error) {
	return c.deleteMatching(filter, 1)
}

// DeleteMany removes every document matching filter.
func (c *Collection) DeleteMany(filter bsonvalue.Document) (int, error) {
	return c.deleteMatching(filter, 0)
}

func (c *Collection) deleteMatching(filter bsonvalue.Document, limit int) (int, error) {
	f, err := query.ParseFilter(filter)
	if err != nil {
		return 0, err
	}
	if err := c.ensureLoaded(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.exists {
		return 0, nil
	}
	ids, err := c.matchingIDs(f)
	if err != nil {
		return 0, err
	}
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}
	count := 0
	for _, id := range ids {
		doc, found, err := c.engine().GetDoc(c.fullName, id)
		if err != nil {
			return count, err
		}
		if !found {
			continue
		}
		if _, err := c.engine().DeleteDoc(c.fullName, id); err != nil {
			return count, err
		}
		c.applyDeleteToIndexes(id, doc)
		count++
	}
	if count > 0 {
		if err := c.persistMetadataLocked(); err != nil {
			return count, err
		}
	}
	return count, nil
}

// IndexDescriptor describes one secondary index (spec §4.4).
type IndexDescriptor struct {
	Name      string
	FieldPath string
	Direction int
}

// CreateIndex builds (or, if already present, returns) a single-field index
// on fieldPath. Compound indexes are not implemented (spec Non-goals).
func (c *Collection) CreateIndex(fieldPath string, direction int) (string, error) {
	if !validFieldName(fieldPath) {
		return "", ErrBadArgument
	}
	if direction != 1 && direction != -1 {
		return "", ErrBadArgument
	}
	if err := c.ensureCreated(); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	name := index.IndexName(fieldPath, direction)
	if _, ok := c.indexes[name]; ok {
		return name, nil
	}
	ix := index.New(fieldPath, direction)
	ids, err := c.engine().ListIDs(c.fullName, 0)
	if err != nil {
		return "", err
	}
	docs := make([]bsonvalue.Document, 0, len(ids))
	for _, id := range ids {
		doc, found, err := c.engine().GetDoc(c.fullName, id)
		if err != nil {
			return "", err
		}
		if found {
			docs = append(docs, doc)
		}
	}
	ix.Build(func(d bsonvalue.Document) string {
		v, _ := d.ID()
		return bsonvalue.IDString(v)
	}, func(yield func(bsonvalue.Document) bool) {
		for _, d := range docs {
			if !yield(d) {
				return
			}
		}
	})
	c.indexes[name] = ix
	if err := c.persistMetadataLocked(); err != nil {
		return "", err
	}
	return name, nil
}

// DropIndex removes a previously-created index by name.
func (c *Collection) DropIndex(name string) error {
	if err := c.ensureLoaded(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.indexes[name]; !ok {
		return ErrOperationFailure
	}
	delete(c.indexes, name)
	return c.persistMetadataLocked()
}

// IndexInformation describes every index currently defined on the
// collection.
func (c *Collection) IndexInformation() ([]IndexDescriptor, error) {
	if err := c.ensureLoaded(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]IndexDescriptor, 0, len(c.indexes)+1)
	out = append(out, IndexDescriptor{Name: "_id_", FieldPath: "_id", Direction: 1})
	for name, ix := range c.indexes {
		out = append(out, IndexDescriptor{Name: name, FieldPath: ix.FieldPath, Direction: ix.Direction})
	}
	return out, nil
}
