package yquery

import "github.com/bensku/y-query/ydoc"

// Filter is a pure predicate over a row's shallow container. Filters are
// evaluated on every index event, so they deliberately avoid full row
// decoding: only fields stored inline are observable. Referencing a
// sub-container field yields implementation-defined results.
type Filter func(row *ydoc.Map) bool

// Any matches every row.
func Any() Filter {
	return func(*ydoc.Map) bool { return true }
}

// Eq matches rows whose inline field equals want, with int64 and float64
// comparing loosely the way scalars round-trip through replication.
func Eq(field string, want any) Filter {
	w := ydoc.Normalize(want)
	return func(row *ydoc.Map) bool {
		v, ok := row.GetOK(field)
		return ok && ydoc.ValueEqual(v, w)
	}
}

func Not(f Filter) Filter {
	return func(row *ydoc.Map) bool { return !f(row) }
}

func And(fs ...Filter) Filter {
	return func(row *ydoc.Map) bool {
		for _, f := range fs {
			if !f(row) {
				return false
			}
		}
		return true
	}
}

func Or(fs ...Filter) Filter {
	return func(row *ydoc.Map) bool {
		for _, f := range fs {
			if f(row) {
				return true
			}
		}
		return false
	}
}
