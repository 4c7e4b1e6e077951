package postgres

import (
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/servicechange/internal/records"
)

const customerStatusExpr = "(SELECT c.status FROM customers c WHERE c.id = t.customer_id)"

// whereClause builds a SQL predicate over the table aliased t. Placeholders start at
// $start.
type whereClause struct {
	rt   records.RecordType
	args []any
	base int
}

func compileFilter(rt records.RecordType, filter records.Filter, start int) (string, []any, error) {
	if err := filter.Validate(); err != nil {
		return "", nil, err
	}
	w := &whereClause{rt: rt, base: start}
	sql, err := w.build(filter)
	if err != nil {
		return "", nil, err
	}
	return sql, w.args, nil
}

func (w *whereClause) bind(v any) string {
	w.args = append(w.args, v)
	return fmt.Sprintf("$%d", w.base+len(w.args)-1)
}

func (w *whereClause) build(f records.Filter) (string, error) {
	if f.IsZero() {
		return "TRUE", nil
	}
	if !f.IsLeaf() {
		parts := make([]string, 0, len(f.Children()))
		for _, child := range f.Children() {
			part, err := w.build(child)
			if err != nil {
				return "", err
			}
			parts = append(parts, part)
		}
		sep := " AND "
		if f.IsOr() {
			sep = " OR "
		}
		return "(" + strings.Join(parts, sep) + ")", nil
	}

	col, err := w.column(f.Field)
	if err != nil {
		return "", err
	}
	switch f.Op {
	case records.OpIs:
		v := sqlValue(f.Values[0])
		if v == nil {
			return col + " IS NULL", nil
		}
		return col + " = " + w.bind(v), nil
	case records.OpAnyOf:
		holders := make([]string, 0, len(f.Values))
		for _, v := range f.Values {
			holders = append(holders, w.bind(sqlValue(v)))
		}
		return col + " IN (" + strings.Join(holders, ", ") + ")", nil
	case records.OpOn:
		return col + " = " + w.bind(sqlValue(f.Values[0])) + "::date", nil
	case records.OpWithin:
		from := w.bind(sqlValue(f.Values[0]))
		to := w.bind(sqlValue(f.Values[1]))
		return col + " BETWEEN " + from + "::date AND " + to + "::date", nil
	}
	return "", errors.Wrapf(records.ErrInvalidFilter, "unknown operator %q", f.Op)
}

func (w *whereClause) column(f records.Field) (string, error) {
	if f == records.FieldCustomerStatus {
		if w.rt != records.TypeCommReg {
			return "", errors.Wrapf(records.ErrUnknownField, "%s.%s", w.rt, f)
		}
		return customerStatusExpr, nil
	}
	if !hasField(w.rt, f) {
		return "", errors.Wrapf(records.ErrUnknownField, "%s.%s", w.rt, f)
	}
	return "t." + string(f), nil
}

func hasField(rt records.RecordType, f records.Field) bool {
	for _, known := range records.FieldsOf(rt) {
		if known == f {
			return true
		}
	}
	return false
}

type coded interface {
	Code() int64
}

// sqlValue converts record values into types pgx encodes natively.
func sqlValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case coded:
		return x.Code()
	case records.Frequency:
		return x.String()
	case time.Time:
		if x.IsZero() {
			return nil
		}
		return records.Date(x)
	case *time.Time:
		if x == nil {
			return nil
		}
		return records.Date(*x)
	case decimal.Decimal:
		return x.String()
	case decimal.NullDecimal:
		if !x.Valid {
			return nil
		}
		return x.Decimal.String()
	case int:
		return int64(x)
	}
	return v
}
