package bundoc

import (
	"errors"

	"github.com/kartikbazzad/bundoc/bsonvalue"
	"github.com/kartikbazzad/bundoc/query"
	"github.com/kartikbazzad/bundoc/storage"
)

// The error kinds a caller can distinguish with errors.Is. They mirror the
// taxonomy mongita raises from collection.py and mongita_client.py, adapted
// to Go sentinel errors instead of a class hierarchy.
var (
	ErrBadArgument      = query.ErrBadArgument
	ErrInvalidName      = errors.New("bundoc: invalid name")
	ErrNotImplemented   = query.ErrNotImplemented
	ErrDuplicateKey     = errors.New("bundoc: duplicate key")
	ErrOperationFailure = errors.New("bundoc: operation failure")
	ErrInvalidOperation = errors.New("bundoc: invalid operation")
	ErrStorageFailure   = storage.ErrStorageFailure
	ErrPathInvalid      = bsonvalue.ErrPathInvalid
)
