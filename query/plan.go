package query

import (
	"github.com/kartikbazzad/bundoc/bsonvalue"
	"github.com/kartikbazzad/bundoc/index"
)

// IndexLookup resolves a field path to its ascending or descending index,
// if either exists, as the planner needs only to know an index covers a
// path, not which direction it was declared in (spec §4.5: "paths with an
// index under path_+1 or path_-1").
type IndexLookup func(field string) (*index.Index, bool)

// Plan splits a filter into the id set produced by indexed fields and the
// residual conditions that must be evaluated per fetched document. When no
// field in the filter has an index, Plan reports usedIndex=false and the
// caller should fall back to a full collection scan.
func Plan(f *Filter, lookup IndexLookup) (candidateIDs map[string]struct{}, residual []Cond, usedIndex bool) {
	byField := map[string][]Cond{}
	var order []string
	for _, c := range f.Conds {
		if _, seen := byField[c.Field]; !seen {
			order = append(order, c.Field)
		}
		byField[c.Field] = append(byField[c.Field], c)
	}

	for _, field := range order {
		idx, ok := lookup(field)
		if !ok {
			residual = append(residual, byField[field]...)
			continue
		}
		fieldSet := evalFieldConds(idx, byField[field])
		if !usedIndex {
			candidateIDs = fieldSet
		} else {
			candidateIDs = intersect(candidateIDs, fieldSet)
		}
		usedIndex = true
	}
	return candidateIDs, residual, usedIndex
}

func evalFieldConds(idx *index.Index, conds []Cond) map[string]struct{} {
	var result map[string]struct{}
	haveBase := false

	intersectInto := func(set map[string]struct{}) {
		if !haveBase {
			result = set
			haveBase = true
			return
		}
		result = intersect(result, set)
	}

	for _, c := range conds {
		if c.Op == OpEq {
			intersectInto(idx.Eq(c.Value))
		}
	}
	for _, c := range conds {
		if c.Op == OpIn {
			intersectInto(idx.In(c.Value.List))
		}
	}
	for _, c := range conds {
		switch c.Op {
		case OpLt:
			intersectInto(idx.Range(index.RangeLt, c.Value))
		case OpLte:
			intersectInto(idx.Range(index.RangeLte, c.Value))
		case OpGt:
			intersectInto(idx.Range(index.RangeGt, c.Value))
		case OpGte:
			intersectInto(idx.Range(index.RangeGte, c.Value))
		}
	}
	if !haveBase {
		result = idx.AllIDs()
	}

	for _, c := range conds {
		if c.Op == OpNe {
			result = subtract(result, idx.Eq(c.Value))
		}
	}
	for _, c := range conds {
		if c.Op == OpNin {
			result = subtract(result, idx.In(c.Value.List))
		}
	}
	return result
}

func intersect(a, b map[string]struct{}) map[string]struct{} {
	if len(b) < len(a) {
		a, b = b, a
	}
	out := make(map[string]struct{}, len(a))
	for id := range a {
		if _, ok := b[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out
}

func subtract(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(a))
	for id := range a {
		if _, ok := b[id]; !ok {
			out[id] = struct{}{}
		}
	}
	return out
}

// MatchesResidual evaluates only the residual conditions against a fetched
// document, short-circuiting on the first mismatch.
func MatchesResidual(doc bsonvalue.Document, residual []Cond) bool {
	for _, c := range residual {
		if !matchCond(doc, c) {
			return false
		}
	}
	return true
}
