package bundoc

import (
	"sync"

	"github.com/kartikbazzad/bundoc/bsonvalue"
	"github.com/google/uuid"
)

// Database is a named group of collections. It is created lazily: nothing
// is written to the engine until one of its collections takes its first
// write (spec §4.7).
type Database struct {
	name   string
	client *Client

	mu    sync.Mutex
	colls map[string]*Collection
}

// Name returns the database's name.
func (d *Database) Name() string { return d.name }

// Collection returns a handle for name, validating it but not creating
// anything until the first write.
func (d *Database) Collection(name string) (*Collection, error) {
	if !validName(name) {
		return nil, ErrInvalidName
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.colls == nil {
		d.colls = map[string]*Collection{}
	}
	if coll, ok := d.colls[name]; ok {
		return coll, nil
	}
	coll := &Collection{
		name:     name,
		db:       d,
		fullName: d.name + "." + name,
	}
	d.colls[name] = coll
	return coll, nil
}

func (d *Database) metadataLocation() string { return d.name }

// ensureRegistered records name in the database's own metadata the first
// time one of its collections is written, and cascades the registration up
// to the client.
func (d *Database) ensureRegistered(collName string) error {
	eng := d.client.engine
	meta, ok, err := eng.GetMetadata(d.metadataLocation())
	if err != nil {
		return err
	}
	if ok {
		namesV, _ := meta.Get("collection_names")
		for _, v := range namesV.List {
			if v.Str == collName {
				return d.client.registerDatabase(d.name)
			}
		}
		namesV.List = append(namesV.List, bsonvalue.String(collName))
		meta = meta.WithField("collection_names", namesV)
		if _, err := eng.PutMetadata(d.metadataLocation(), meta); err != nil {
			return err
		}
		return d.client.registerDatabase(d.name)
	}
	meta = bsonvalue.Document{
		{Name: "options", Value: bsonvalue.Object(nil)},
		{Name: "collection_names", Value: bsonvalue.List([]bsonvalue.Value{bsonvalue.String(collName)})},
		{Name: "uuid", Value: bsonvalue.String(uuid.NewString())},
	}
	if _, err := eng.PutMetadata(d.metadataLocation(), meta); err != nil {
		return err
	}
	return d.client.registerDatabase(d.name)
}

// ListCollectionNames returns every collection that has had at least one
// write.
func (d *Database) ListCollectionNames() ([]string, error) {
	meta, ok, err := d.client.engine.GetMetadata(d.metadataLocation())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	namesV, ok := meta.Get("collection_names")
	if !ok {
		return nil, nil
	}
	names := make([]string, 0, len(namesV.List))
	for _, v := range namesV.List {
		names = append(names, v.Str)
	}
	return names, nil
}

// ListCollections returns a cursor over every collection recorded at the
// time of the call.
func (d *Database) ListCollections() (*CommandCursor, error) {
	names, err := d.ListCollectionNames()
	if err != nil {
		return nil, err
	}
	items := make([]any, 0, len(names))
	for _, n := range names {
		coll, err := d.Collection(n)
		if err != nil {
			return nil, err
		}
		items = append(items, coll)
	}
	return newCommandCursor(items), nil
}

// DropCollection removes a collection and all its documents.
func (d *Database) DropCollection(name string) error {
	meta, ok, err := d.client.engine.GetMetadata(d.metadataLocation())
	if err == nil && ok {
		namesV, _ := meta.Get("collection_names")
		kept := namesV.List[:0]
		for _, v := range namesV.List {
			if v.Str != name {
				kept = append(kept, v)
			}
		}
		namesV.List = kept
		meta = meta.WithField("collection_names", namesV)
		if _, err := d.client.engine.PutMetadata(d.metadataLocation(), meta); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}
	if _, err := d.client.engine.DeleteDir(d.name + "." + name); err != nil {
		return err
	}
	d.mu.Lock()
	delete(d.colls, name)
	d.mu.Unlock()
	return nil
}
