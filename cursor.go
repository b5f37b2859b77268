package bundoc

import (
	"github.com/kartikbazzad/bundoc/bsonvalue"
	"github.com/kartikbazzad/bundoc/query"
)

// findFunc executes a fully-planned find, applying sort/skip/limit.
type findFunc func(sort query.SortSpec, skip, limit int) ([]bsonvalue.Document, error)

// Cursor is a lazily-iterated, chainable result set (C8). Sort, Skip and
// Limit may only be called before iteration starts; calling them afterward
// returns ErrInvalidOperation, mirroring mongita's cursor.Cursor.
type Cursor struct {
	find  findFunc
	sort  query.SortSpec
	skip  int
	limit int

	started bool
	docs    []bsonvalue.Document
	pos     int
}

func newCursor(find findFunc) *Cursor {
	return &Cursor{find: find}
}

// Sort applies a sort to the cursor. Only the last call takes effect.
func (cur *Cursor) Sort(spec query.SortSpec) (*Cursor, error) {
	if cur.started {
		return nil, ErrInvalidOperation
	}
	cur.sort = spec
	return cur, nil
}

// Skip sets how many leading matches to drop before the first result.
func (cur *Cursor) Skip(n int) (*Cursor, error) {
	if cur.started {
		return nil, ErrInvalidOperation
	}
	cur.skip = n
	return cur, nil
}

// Limit caps the number of documents the cursor will yield.
func (cur *Cursor) Limit(n int) (*Cursor, error) {
	if cur.started {
		return nil, ErrInvalidOperation
	}
	cur.limit = n
	return cur, nil
}

func (cur *Cursor) ensureStarted() error {
	if cur.started {
		return nil
	}
	docs, err := cur.find(cur.sort, cur.skip, cur.limit)
	if err != nil {
		return err
	}
	cur.docs = docs
	cur.started = true
	return nil
}

// Next advances the cursor and reports whether a document is available.
func (cur *Cursor) Next() (bool, error) {
	if err := cur.ensureStarted(); err != nil {
		return false, err
	}
	if cur.pos >= len(cur.docs) {
		return false, nil
	}
	cur.pos++
	return true, nil
}

// Current returns the document the most recent successful Next positioned
// on.
func (cur *Cursor) Current() bsonvalue.Document {
	if cur.pos == 0 || cur.pos > len(cur.docs) {
		return nil
	}
	return cur.docs[cur.pos-1]
}

// All drains the cursor into a slice.
func (cur *Cursor) All() ([]bsonvalue.Document, error) {
	if err := cur.ensureStarted(); err != nil {
		return nil, err
	}
	rest := cur.docs[cur.pos:]
	cur.pos = len(cur.docs)
	return rest, nil
}

// Clone returns a fresh, unstarted cursor with the same find function and
// chained options.
func (cur *Cursor) Clone() *Cursor {
	return &Cursor{find: cur.find, sort: cur.sort, skip: cur.skip, limit: cur.limit}
}

// Close discards any buffered documents; further Next calls report done.
func (cur *Cursor) Close() error {
	cur.docs = nil
	cur.pos = 0
	cur.started = true
	return nil
}

// CommandCursor iterates a precomputed, in-memory item list (databases or
// collections), matching mongita's CommandCursor.
type CommandCursor struct {
	items []any
	pos   int
}

func newCommandCursor(items []any) *CommandCursor {
	return &CommandCursor{items: items}
}

// Next advances the command cursor.
func (cc *CommandCursor) Next() bool {
	if cc.pos >= len(cc.items) {
		return false
	}
	cc.pos++
	return true
}

// Current returns the item the most recent successful Next positioned on.
func (cc *CommandCursor) Current() any {
	if cc.pos == 0 || cc.pos > len(cc.items) {
		return nil
	}
	return cc.items[cc.pos-1]
}
