// Package bundoc is an embedded, single-process document store: databases
// contain collections, collections contain documents, and a small
// filter/update operator language drives queries and mutations. It is
// deliberately not a network server or a replicated system — see the
// package-level Non-goals recorded in DESIGN.md.
package bundoc

import (
	"sync"

	"github.com/kartikbazzad/bundoc/bsonvalue"
	"github.com/kartikbazzad/bundoc/internal/bundoclog"
	"github.com/kartikbazzad/bundoc/storage"
	"github.com/google/uuid"
)

// incumbentEngine is a process-wide, refcounted handle to a disk engine. A
// directory can only be served by one DiskEngine at a time: two Clients
// opened against the same path share the same engine and mutex instead of
// racing each other's file handles (spec §9).
type incumbentEngine struct {
	engine storage.Engine
	refs   int
}

var (
	registryMu sync.Mutex
	incumbents = map[string]*incumbentEngine{}
)

func acquireDiskEngine(path string) (storage.Engine, error) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if inc, ok := incumbents[path]; ok {
		inc.refs++
		return inc.engine, nil
	}
	eng, err := storage.NewDiskEngine(path)
	if err != nil {
		return nil, err
	}
	incumbents[path] = &incumbentEngine{engine: eng, refs: 1}
	return eng, nil
}

func releaseDiskEngine(path string) error {
	registryMu.Lock()
	defer registryMu.Unlock()
	inc, ok := incumbents[path]
	if !ok {
		return nil
	}
	inc.refs--
	if inc.refs > 0 {
		return nil
	}
	delete(incumbents, path)
	return inc.engine.Close()
}

// Client is the top-level handle on a store: a set of databases backed by
// one storage engine. Use Open or OpenMemory to construct one.
type Client struct {
	engine   storage.Engine
	diskPath string
	opts     *Options
	log      *bundoclog.Logger

	mu  sync.Mutex
	dbs map[string]*Database
}

// Open opens (creating if necessary) a disk-backed store, or an in-memory
// one when opts.InMemory is set.
func Open(opts *Options) (*Client, error) {
	if opts == nil {
		opts = DefaultOptions("")
	}
	if opts.InMemory {
		return OpenMemory(opts), nil
	}
	path, err := opts.resolvedPath()
	if err != nil {
		return nil, err
	}
	eng, err := acquireDiskEngine(path)
	if err != nil {
		return nil, err
	}
	return &Client{
		engine:   eng,
		diskPath: path,
		opts:     opts,
		log:      bundoclog.New("bundoc", opts.logWriter()),
		dbs:      map[string]*Database{},
	}, nil
}

// OpenMemory opens a store that keeps everything in process memory.
func OpenMemory(opts *Options) *Client {
	if opts == nil {
		opts = DefaultMemoryOptions()
	}
	return &Client{
		engine: storage.NewMemoryEngine(opts.Strict),
		opts:   opts,
		log:    bundoclog.New("bundoc", opts.logWriter()),
		dbs:    map[string]*Database{},
	}
}

// Close releases the client's hold on its storage engine. A disk engine
// shared by other Clients on the same path keeps running until the last
// holder closes.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dbs = nil
	if c.diskPath != "" {
		return releaseDiskEngine(c.diskPath)
	}
	return c.engine.Close()
}

// Database returns a handle for name, validating it but not creating
// anything on disk until the first write (spec §4.7 lazy creation).
func (c *Client) Database(name string) (*Database, error) {
	if !validName(name) {
		return nil, ErrInvalidName
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if db, ok := c.dbs[name]; ok {
		return db, nil
	}
	db := &Database{name: name, client: c}
	c.dbs[name] = db
	return db, nil
}

// ListDatabaseNames returns every database that has had at least one write.
func (c *Client) ListDatabaseNames() ([]string, error) {
	meta, ok, err := c.engine.GetMetadata("")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	namesV, ok := meta.Get("database_names")
	if !ok {
		return nil, nil
	}
	names := make([]string, 0, len(namesV.List))
	for _, v := range namesV.List {
		names = append(names, v.Str)
	}
	return names, nil
}

// ListDatabases returns a cursor over every database recorded at the time
// of the call.
func (c *Client) ListDatabases() (*CommandCursor, error) {
	names, err := c.ListDatabaseNames()
	if err != nil {
		return nil, err
	}
	items := make([]any, 0, len(names))
	for _, n := range names {
		db, err := c.Database(n)
		if err != nil {
			return nil, err
		}
		items = append(items, db)
	}
	return newCommandCursor(items), nil
}

// registerDatabase records name in the client's metadata the first time one
// of its collections is written to, mirroring mongita's MongitaClient.__create.
func (c *Client) registerDatabase(name string) error {
	meta, ok, err := c.engine.GetMetadata("")
	if err != nil {
		return err
	}
	if ok {
		namesV, _ := meta.Get("database_names")
		for _, v := range namesV.List {
			if v.Str == name {
				return nil
			}
		}
		namesV.List = append(namesV.List, bsonvalue.String(name))
		meta = meta.WithField("database_names", namesV)
		_, err := c.engine.PutMetadata("", meta)
		return err
	}
	meta = bsonvalue.Document{
		{Name: "options", Value: bsonvalue.Object(nil)},
		{Name: "database_names", Value: bsonvalue.List([]bsonvalue.Value{bsonvalue.String(name)})},
		{Name: "uuid", Value: bsonvalue.String(uuid.NewString())},
	}
	_, err = c.engine.PutMetadata("", meta)
	return err
}

// DropDatabase drops every collection in name, then the database itself.
func (c *Client) DropDatabase(name string) error {
	db, err := c.Database(name)
	if err != nil {
		return err
	}
	collNames, err := db.ListCollectionNames()
	if err != nil {
		return err
	}
	for _, cn := range collNames {
		if err := db.DropCollection(cn); err != nil {
			return err
		}
	}
	meta, ok, err := c.engine.GetMetadata("")
	if err != nil {
		return err
	}
	if ok {
		namesV, _ := meta.Get("database_names")
		kept := namesV.List[:0]
		for _, v := range namesV.List {
			if v.Str != name {
				kept = append(kept, v)
			}
		}
		namesV.List = kept
		meta = meta.WithField("database_names", namesV)
		if _, err := c.engine.PutMetadata("", meta); err != nil {
			return err
		}
	}
	if _, err := c.engine.DeleteDir(name); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.dbs, name)
	c.mu.Unlock()
	return nil
}
