package storage

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kartikbazzad/bundoc/bsonvalue"
)

const (
	dataFileName     = "$.data"
	fileAttrsName    = "$.file_attrs"
	metadataFileName = "$.metadata"
)

// namespace holds the live state for one directory under the engine root:
// a bare collection namespace ("db.coll") has a data file and position
// index; a database or client namespace ("db" or "") has only metadata.
type namespace struct {
	dir     string
	hasData bool

	dataFile *os.File
	endOff   int64

	locIdx   map[string]int64 // id -> offset
	capacity map[string]int64 // id -> current slot capacity
	liveLen  map[string]int64 // id -> current live body length
	order    []string         // insertion-order id enumeration

	totalBytes int64
	spareBytes int64
	attrsOpen  bool

	docCache  map[string]bsonvalue.Document
	metaCache bsonvalue.Document
	metaKnown bool
}

// DiskEngine is the per-collection slotted-file storage engine (C2): a
// single mutex serialises every operation, matching the concurrency
// contract in spec §5. The mutex is not reentrant; no method calls another
// locking method while holding it.
type DiskEngine struct {
	mu     sync.Mutex
	root   string
	closed bool
	ns     map[string]*namespace
}

// NewDiskEngine opens (creating if necessary) a disk engine rooted at dir.
func NewDiskEngine(dir string) (*DiskEngine, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	return &DiskEngine{root: dir, ns: map[string]*namespace{}}, nil
}

func hasDataFile(name string) bool { return strings.Contains(name, ".") }

func (e *DiskEngine) dirFor(name string) string {
	if name == "" {
		return e.root
	}
	return filepath.Join(e.root, sanitizeName(name))
}

func (e *DiskEngine) namespaceFor(name string) (*namespace, error) {
	if ns, ok := e.ns[name]; ok {
		return ns, nil
	}
	dir := e.dirFor(name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	ns := &namespace{
		dir:      dir,
		hasData:  hasDataFile(name),
		locIdx:   map[string]int64{},
		capacity: map[string]int64{},
		liveLen:  map[string]int64{},
		docCache: map[string]bsonvalue.Document{},
	}
	e.ns[name] = ns
	if ns.hasData {
		if err := e.openData(ns); err != nil {
			return nil, err
		}
	}
	return ns, nil
}

func (e *DiskEngine) openData(ns *namespace) error {
	if ns.dataFile != nil {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(ns.dir, dataFileName), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	ns.dataFile = f
	if err := e.loadPositionIndex(ns); err != nil {
		return err
	}
	return nil
}

// loadPositionIndex reads $.file_attrs, or if absent/corrupt, rebuilds it by
// rescanning $.data sequentially (spec §4.2 recovery).
func (e *DiskEngine) loadPositionIndex(ns *namespace) error {
	attrsPath := filepath.Join(ns.dir, fileAttrsName)
	data, err := os.ReadFile(attrsPath)
	if err == nil {
		attrs, decErr := bsonvalue.Decode(data)
		if decErr == nil {
			if e.applyAttrs(ns, attrs) {
				ns.attrsOpen = true
				return nil
			}
		}
	}
	return e.rescanData(ns)
}

func (e *DiskEngine) applyAttrs(ns *namespace, attrs bsonvalue.Document) bool {
	locV, ok := attrs.Get("loc_idx")
	if !ok || locV.Kind != bsonvalue.KindObject {
		return false
	}
	orderV, hasOrder := attrs.Get("order")
	totalV, _ := attrs.Get("total_bytes")
	spareV, _ := attrs.Get("spare_bytes")

	info, err := ns.dataFile.Stat()
	if err != nil {
		return false
	}
	size := info.Size()

	for _, f := range locV.Obj {
		if f.Value.Kind != bsonvalue.KindInt64 {
			return false
		}
		offset := f.Value.I64
		if offset < 0 || offset+4 > size {
			return false
		}
		length, err := readFrameLength(ns.dataFile, offset)
		if err != nil || length <= 0 || offset+int64(length) > size {
			return false
		}
		ns.locIdx[f.Name] = offset
		ns.capacity[f.Name] = int64(length)
		ns.liveLen[f.Name] = int64(length)
	}
	if hasOrder && orderV.Kind == bsonvalue.KindList {
		for _, idv := range orderV.List {
			if idv.Kind == bsonvalue.KindString {
				if _, ok := ns.locIdx[idv.Str]; ok {
					ns.order = append(ns.order, idv.Str)
				}
			}
		}
	}
	if len(ns.order) != len(ns.locIdx) {
		return false
	}
	ns.endOff = size
	ns.totalBytes = totalV.I64
	ns.spareBytes = spareV.I64
	return true
}

func readFrameLength(f *os.File, offset int64) (int32, error) {
	var buf [4]byte
	if _, err := f.ReadAt(buf[:], offset); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(buf[:])), nil
}

func (e *DiskEngine) rescanData(ns *namespace) error {
	ns.locIdx = map[string]int64{}
	ns.capacity = map[string]int64{}
	ns.liveLen = map[string]int64{}
	ns.order = nil
	ns.totalBytes = 0
	ns.spareBytes = 0

	info, err := ns.dataFile.Stat()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	size := info.Size()
	var cursor int64
	for cursor+4 <= size {
		length, err := readFrameLength(ns.dataFile, cursor)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStorageFailure, err)
		}
		if length <= 0 {
			ns.spareBytes += 4
			cursor += 4
			continue
		}
		if cursor+int64(length) > size {
			break
		}
		body := make([]byte, length)
		if _, err := ns.dataFile.ReadAt(body, cursor); err != nil {
			return fmt.Errorf("%w: %v", ErrStorageFailure, err)
		}
		doc, err := bsonvalue.Decode(body)
		if err == nil {
			if idV, ok := doc.ID(); ok {
				id := bsonvalue.IDString(idV)
				ns.locIdx[id] = cursor
				ns.capacity[id] = int64(length)
				ns.liveLen[id] = int64(length)
				ns.order = append(ns.order, id)
				ns.totalBytes += int64(length)
			}
		}
		cursor += int64(length)
	}
	ns.endOff = size
	ns.attrsOpen = true
	return nil
}

func (e *DiskEngine) PutDoc(name string, doc bsonvalue.Document, noOverwrite bool) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false, ErrStorageFailure
	}
	id, err := docID(doc)
	if err != nil {
		return false, err
	}
	ns, err := e.namespaceFor(name)
	if err != nil {
		return false, err
	}
	body, err := bsonvalue.Encode(doc)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	newLen := int64(len(body))

	offset, existed := ns.locIdx[id]
	if existed {
		if noOverwrite {
			return false, nil
		}
		cap := ns.capacity[id]
		if newLen <= cap {
			if _, err := ns.dataFile.WriteAt(body, offset); err != nil {
				return false, fmt.Errorf("%w: %v", ErrStorageFailure, err)
			}
			if pad := cap - newLen; pad > 0 {
				if err := writeZeros(ns.dataFile, offset+newLen, pad); err != nil {
					return false, fmt.Errorf("%w: %v", ErrStorageFailure, err)
				}
			}
			ns.spareBytes += ns.liveLen[id] - newLen
			ns.liveLen[id] = newLen
		} else {
			ns.spareBytes += ns.liveLen[id]
			ns.totalBytes -= cap
			delete(ns.capacity, id)
			delete(ns.liveLen, id)
			if err := e.appendSlot(ns, id, body); err != nil {
				return false, err
			}
		}
	} else {
		if err := e.appendSlot(ns, id, body); err != nil {
			return false, err
		}
		ns.order = append(ns.order, id)
	}
	delete(ns.docCache, id)
	ns.docCache[id] = bsonvalue.DeepCopyDocument(doc)
	return true, nil
}

func (e *DiskEngine) appendSlot(ns *namespace, id string, body []byte) error {
	offset := ns.endOff
	if _, err := ns.dataFile.WriteAt(body, offset); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	ns.locIdx[id] = offset
	ns.capacity[id] = int64(len(body))
	ns.liveLen[id] = int64(len(body))
	ns.totalBytes += int64(len(body))
	ns.endOff += int64(len(body))
	return nil
}

func writeZeros(f *os.File, offset, n int64) error {
	const chunk = 4096
	buf := make([]byte, chunk)
	for n > 0 {
		m := n
		if m > chunk {
			m = chunk
		}
		if _, err := f.WriteAt(buf[:m], offset); err != nil {
			return err
		}
		offset += m
		n -= m
	}
	return nil
}

func (e *DiskEngine) GetDoc(name string, id string) (bsonvalue.Document, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ns, err := e.namespaceFor(name)
	if err != nil {
		return nil, false, err
	}
	if doc, ok := ns.docCache[id]; ok {
		return bsonvalue.DeepCopyDocument(doc), true, nil
	}
	offset, ok := ns.locIdx[id]
	if !ok {
		return nil, false, nil
	}
	length := ns.liveLen[id]
	body := make([]byte, length)
	if _, err := ns.dataFile.ReadAt(body, offset); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	doc, err := bsonvalue.Decode(body)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	ns.docCache[id] = doc
	return bsonvalue.DeepCopyDocument(doc), true, nil
}

func (e *DiskEngine) DocExists(name string, id string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ns, err := e.namespaceFor(name)
	if err != nil {
		return false, err
	}
	_, ok := ns.locIdx[id]
	return ok, nil
}

func (e *DiskEngine) DeleteDoc(name string, id string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ns, err := e.namespaceFor(name)
	if err != nil {
		return false, err
	}
	offset, ok := ns.locIdx[id]
	if !ok {
		return false, nil
	}
	cap := ns.capacity[id]
	if err := writeZeros(ns.dataFile, offset, cap); err != nil {
		return false, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	ns.spareBytes += ns.liveLen[id]
	ns.totalBytes -= cap
	delete(ns.locIdx, id)
	delete(ns.capacity, id)
	delete(ns.liveLen, id)
	delete(ns.docCache, id)
	for i, x := range ns.order {
		if x == id {
			ns.order = append(ns.order[:i], ns.order[i+1:]...)
			break
		}
	}
	return true, nil
}

func (e *DiskEngine) ListIDs(name string, limit int) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ns, err := e.namespaceFor(name)
	if err != nil {
		return nil, err
	}
	ids := ns.order
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}
	out := make([]string, len(ids))
	copy(out, ids)
	return out, nil
}

// PutMetadata persists name's metadata, compacting the collection's data
// file first when spare_bytes/(total_bytes+1) exceeds one half (spec §4.2).
func (e *DiskEngine) PutMetadata(name string, meta bsonvalue.Document) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false, ErrStorageFailure
	}
	ns, err := e.namespaceFor(name)
	if err != nil {
		return false, err
	}
	if ns.hasData {
		ratio := float64(ns.spareBytes) / float64(ns.totalBytes+1)
		if ratio > 0.5 {
			if err := e.compact(ns); err != nil {
				return false, err
			}
		}
		if err := e.flushAttrs(ns); err != nil {
			return false, err
		}
	}
	data, err := bsonvalue.Encode(meta)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	if err := os.WriteFile(filepath.Join(ns.dir, metadataFileName), data, 0o644); err != nil {
		return false, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	ns.metaCache = bsonvalue.DeepCopyDocument(meta)
	ns.metaKnown = true
	return true, nil
}

func (e *DiskEngine) flushAttrs(ns *namespace) error {
	locFields := make(bsonvalue.Document, 0, len(ns.locIdx))
	for id, off := range ns.locIdx {
		locFields = append(locFields, bsonvalue.Field{Name: id, Value: bsonvalue.Int64(off)})
	}
	orderVals := make([]bsonvalue.Value, 0, len(ns.order))
	for _, id := range ns.order {
		orderVals = append(orderVals, bsonvalue.String(id))
	}
	attrs := bsonvalue.Document{
		{Name: "loc_idx", Value: bsonvalue.Object(locFields)},
		{Name: "order", Value: bsonvalue.List(orderVals)},
		{Name: "total_bytes", Value: bsonvalue.Int64(ns.totalBytes)},
		{Name: "spare_bytes", Value: bsonvalue.Int64(ns.spareBytes)},
	}
	data, err := bsonvalue.Encode(attrs)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	if err := os.WriteFile(filepath.Join(ns.dir, fileAttrsName), data, 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	return nil
}

// compact rewrites the data file contiguously, walking the position index
// in offset order, dropping all slack and dead bytes.
func (e *DiskEngine) compact(ns *namespace) error {
	type entry struct {
		id     string
		offset int64
	}
	entries := make([]entry, 0, len(ns.locIdx))
	for id, off := range ns.locIdx {
		entries = append(entries, entry{id, off})
	}
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j-1].offset > entries[j].offset; j-- {
			entries[j-1], entries[j] = entries[j], entries[j-1]
		}
	}

	tmpPath := filepath.Join(ns.dir, dataFileName+".compact")
	tmp, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	var cursor int64
	newLocIdx := map[string]int64{}
	newCapacity := map[string]int64{}
	for _, en := range entries {
		length := ns.liveLen[en.id]
		body := make([]byte, length)
		if _, err := ns.dataFile.ReadAt(body, en.offset); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("%w: %v", ErrStorageFailure, err)
		}
		if _, err := tmp.WriteAt(body, cursor); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("%w: %v", ErrStorageFailure, err)
		}
		newLocIdx[en.id] = cursor
		newCapacity[en.id] = length
		cursor += length
	}
	if err := tmp.Truncate(cursor); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	tmp.Close()
	ns.dataFile.Close()

	finalPath := filepath.Join(ns.dir, dataFileName)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	f, err := os.OpenFile(finalPath, os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	ns.dataFile = f
	newLiveLen := make(map[string]int64, len(newCapacity))
	for k, v := range newCapacity {
		newLiveLen[k] = v
	}
	ns.locIdx = newLocIdx
	ns.capacity = newCapacity
	ns.liveLen = newLiveLen
	ns.endOff = cursor
	ns.totalBytes = cursor
	ns.spareBytes = 0
	ns.docCache = map[string]bsonvalue.Document{}
	return nil
}

func (e *DiskEngine) GetMetadata(name string) (bsonvalue.Document, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ns, err := e.namespaceFor(name)
	if err != nil {
		return nil, false, err
	}
	if ns.metaKnown {
		return bsonvalue.DeepCopyDocument(ns.metaCache), true, nil
	}
	data, err := os.ReadFile(filepath.Join(ns.dir, metadataFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	meta, err := bsonvalue.Decode(data)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	ns.metaCache = meta
	ns.metaKnown = true
	return bsonvalue.DeepCopyDocument(meta), true, nil
}

func (e *DiskEngine) DeleteDir(name string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ns, existed := e.ns[name]
	if existed && ns.dataFile != nil {
		ns.dataFile.Close()
	}
	delete(e.ns, name)
	dir := e.dirFor(name)
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return existed, nil
		}
		return false, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return false, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	return true, nil
}

func (e *DiskEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	var firstErr error
	for _, ns := range e.ns {
		if ns.dataFile != nil {
			if err := ns.dataFile.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	e.ns = nil
	e.closed = true
	if firstErr != nil {
		return fmt.Errorf("%w: %v", ErrStorageFailure, firstErr)
	}
	return nil
}

var _ io.Closer = (*DiskEngine)(nil)
