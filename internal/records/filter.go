package records

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

// Operator compares a field against filter values.
type Operator string

const (
	// OpIs matches a single value.
	OpIs Operator = "is"
	// OpAnyOf matches any of the listed values.
	OpAnyOf Operator = "anyof"
	// OpOn matches a calendar day.
	OpOn Operator = "on"
	// OpWithin matches an inclusive day range given as two values.
	OpWithin Operator = "within"
)

type conjunction string

const (
	conjAnd conjunction = "AND"
	conjOr  conjunction = "OR"
)

// ErrInvalidFilter is returned for malformed filter expressions.
var ErrInvalidFilter = errors.New("invalid filter")

// Filter is a boolean tree of field conditions. The zero Filter matches everything.
type Filter struct {
	Field    Field
	Op       Operator
	Values   []any
	conj     conjunction
	children []Filter
}

// Where builds a leaf condition.
func Where(field Field, op Operator, values ...any) Filter {
	return Filter{Field: field, Op: op, Values: values}
}

// And combines filters that must all match. Zero filters are skipped.
func And(filters ...Filter) Filter {
	return combine(conjAnd, filters)
}

// Or combines filters where at least one must match.
func Or(filters ...Filter) Filter {
	return combine(conjOr, filters)
}

func combine(c conjunction, filters []Filter) Filter {
	kept := make([]Filter, 0, len(filters))
	for _, f := range filters {
		if !f.IsZero() {
			kept = append(kept, f)
		}
	}
	if len(kept) == 1 {
		return kept[0]
	}
	return Filter{conj: c, children: kept}
}

// IsZero reports whether the filter has no condition.
func (f Filter) IsZero() bool {
	return f.Field == "" && len(f.children) == 0
}

// IsLeaf reports whether the filter is a single condition.
func (f Filter) IsLeaf() bool {
	return f.Field != ""
}

// IsOr reports whether a composite filter is a disjunction.
func (f Filter) IsOr() bool {
	return f.conj == conjOr
}

// Children returns the operands of a composite filter.
func (f Filter) Children() []Filter {
	return f.children
}

// Validate checks operator arity.
func (f Filter) Validate() error {
	if !f.IsLeaf() {
		for _, c := range f.children {
			if err := c.Validate(); err != nil {
				return err
			}
		}
		return nil
	}
	switch f.Op {
	case OpIs, OpOn:
		if len(f.Values) != 1 {
			return errors.Wrapf(ErrInvalidFilter, "%s %s expects one value", f.Field, f.Op)
		}
	case OpAnyOf:
		if len(f.Values) == 0 {
			return errors.Wrapf(ErrInvalidFilter, "%s anyof expects values", f.Field)
		}
	case OpWithin:
		if len(f.Values) != 2 {
			return errors.Wrapf(ErrInvalidFilter, "%s within expects two values", f.Field)
		}
	default:
		return errors.Wrapf(ErrInvalidFilter, "unknown operator %q", f.Op)
	}
	return nil
}

// Getter resolves a field of the record under test.
type Getter func(Field) (any, error)

// Match evaluates the filter against one record.
func (f Filter) Match(get Getter) (bool, error) {
	if f.IsZero() {
		return true, nil
	}
	if !f.IsLeaf() {
		for _, c := range f.children {
			ok, err := c.Match(get)
			if err != nil {
				return false, err
			}
			if f.conj == conjOr && ok {
				return true, nil
			}
			if f.conj == conjAnd && !ok {
				return false, nil
			}
		}
		return f.conj == conjAnd, nil
	}
	if err := f.Validate(); err != nil {
		return false, err
	}
	raw, err := get(f.Field)
	if err != nil {
		return false, err
	}
	v := normalize(raw)
	switch f.Op {
	case OpIs, OpAnyOf:
		for _, want := range f.Values {
			if equal(v, normalize(want)) {
				return true, nil
			}
		}
		return false, nil
	case OpOn:
		got, ok := v.(time.Time)
		want, wok := normalize(f.Values[0]).(time.Time)
		return ok && wok && got.Equal(want), nil
	case OpWithin:
		got, ok := v.(time.Time)
		from, fok := normalize(f.Values[0]).(time.Time)
		to, tok := normalize(f.Values[1]).(time.Time)
		if !ok || !fok || !tok {
			return false, nil
		}
		return !got.Before(from) && !got.After(to), nil
	}
	return false, nil
}

type coded interface {
	Code() int64
}

func normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case coded:
		return x.Code()
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case time.Time:
		if x.IsZero() {
			return nil
		}
		return Date(x)
	case *time.Time:
		if x == nil {
			return nil
		}
		return Date(*x)
	case decimal.NullDecimal:
		if !x.Valid {
			return nil
		}
		return x.Decimal
	case Frequency:
		return int64(x)
	}
	return v
}

func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if da, ok := a.(decimal.Decimal); ok {
		db, ok := b.(decimal.Decimal)
		return ok && da.Equal(db)
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return a == b
}
