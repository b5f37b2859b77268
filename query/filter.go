// Package query implements filter matching, update application, sort
// ordering, and index-aware query planning over bsonvalue documents.
package query

import (
	"errors"
	"strings"

	"github.com/kartikbazzad/bundoc/bsonvalue"
)

// ErrBadArgument is returned for malformed filter/update/sort shapes.
var ErrBadArgument = errors.New("query: bad argument")

// ErrNotImplemented is returned for a `$` operator outside the supported
// filter or update vocabulary.
var ErrNotImplemented = errors.New("query: operator not implemented")

// Op is a filter comparison operator.
type Op string

const (
	OpEq  Op = "$eq"
	OpNe  Op = "$ne"
	OpLt  Op = "$lt"
	OpLte Op = "$lte"
	OpGt  Op = "$gt"
	OpGte Op = "$gte"
	OpIn  Op = "$in"
	OpNin Op = "$nin"
)

// Cond is one field predicate within a Filter.
type Cond struct {
	Field string
	Op    Op
	Value bsonvalue.Value // for $in/$nin, a KindList value
}

// Filter is an implicit conjunction of field predicates; the grammar has no
// boolean combinators.
type Filter struct {
	Conds []Cond
}

// ParseFilter converts a filter document into a Filter, validating operator
// names and shapes.
func ParseFilter(doc bsonvalue.Document) (*Filter, error) {
	f := &Filter{}
	for _, field := range doc {
		if strings.HasPrefix(field.Name, "$") {
			return nil, ErrBadArgument
		}
		if field.Value.Kind == bsonvalue.KindObject && isOperatorDoc(field.Value.Obj) {
			for _, opField := range field.Value.Obj {
				op := Op(opField.Name)
				switch op {
				case OpEq, OpNe, OpLt, OpLte, OpGt, OpGte:
					f.Conds = append(f.Conds, Cond{Field: field.Name, Op: op, Value: opField.Value})
				case OpIn, OpNin:
					if opField.Value.Kind != bsonvalue.KindList {
						return nil, ErrBadArgument
					}
					f.Conds = append(f.Conds, Cond{Field: field.Name, Op: op, Value: opField.Value})
				default:
					return nil, ErrNotImplemented
				}
			}
		} else {
			f.Conds = append(f.Conds, Cond{Field: field.Name, Op: OpEq, Value: field.Value})
		}
	}
	return f, nil
}

// isOperatorDoc reports whether every field name in d begins with `$`,
// distinguishing an operator map like {"$gt": 1} from a literal nested
// document used for whole-value equality.
func isOperatorDoc(d bsonvalue.Document) bool {
	if len(d) == 0 {
		return false
	}
	for _, f := range d {
		if !strings.HasPrefix(f.Name, "$") {
			return false
		}
	}
	return true
}

// Matches reports whether doc satisfies every condition in f.
func (f *Filter) Matches(doc bsonvalue.Document) bool {
	for _, c := range f.Conds {
		if !matchCond(doc, c) {
			return false
		}
	}
	return true
}

func matchCond(doc bsonvalue.Document, c Cond) bool {
	actual, ok := bsonvalue.Get(doc, c.Field)
	if !ok {
		// absent: callers treat absent as "does not match" for every
		// operator, including negations (spec §4.1).
		return false
	}

	switch c.Op {
	case OpEq:
		return valueMatches(actual, c.Value)
	case OpNe:
		return !valueMatches(actual, c.Value)
	case OpIn:
		for _, v := range c.Value.List {
			if valueMatches(actual, v) {
				return true
			}
		}
		return false
	case OpNin:
		for _, v := range c.Value.List {
			if valueMatches(actual, v) {
				return false
			}
		}
		return true
	case OpLt:
		return rangeMatches(actual, c.Value, func(cmp int) bool { return cmp < 0 })
	case OpLte:
		return rangeMatches(actual, c.Value, func(cmp int) bool { return cmp <= 0 })
	case OpGt:
		return rangeMatches(actual, c.Value, func(cmp int) bool { return cmp > 0 })
	case OpGte:
		return rangeMatches(actual, c.Value, func(cmp int) bool { return cmp >= 0 })
	default:
		return false
	}
}

// valueMatches implements equality with MongoDB's list-element semantics:
// a query value matches a list-valued field when it equals the whole list
// or any element of it.
func valueMatches(actual, query bsonvalue.Value) bool {
	if bsonvalue.Equal(actual, query) {
		return true
	}
	if actual.Kind == bsonvalue.KindList {
		for _, elem := range actual.List {
			if bsonvalue.Equal(elem, query) {
				return true
			}
		}
	}
	return false
}

// rangeMatches applies a range comparison, restricted to matching type
// tags: cross-type range comparisons never match, mirroring the index's
// range-scan restriction so indexed and residual evaluation agree.
func rangeMatches(actual, query bsonvalue.Value, ok func(cmp int) bool) bool {
	if bsonvalue.TypeTag(actual.Kind) != bsonvalue.TypeTag(query.Kind) {
		return false
	}
	return ok(bsonvalue.Compare(actual, query))
}
