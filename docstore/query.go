package docstore

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Op is a filter comparison operator.
type Op string

const (
	OpEqual          Op = "=="
	OpNotEqual       Op = "!="
	OpLess           Op = "<"
	OpLessOrEqual    Op = "<="
	OpGreater        Op = ">"
	OpGreaterOrEqual Op = ">="
	OpIn             Op = "in"
	OpArrayContains  Op = "array-contains"
)

var validOps = []any{
	OpEqual, OpNotEqual, OpLess, OpLessOrEqual,
	OpGreater, OpGreaterOrEqual, OpIn, OpArrayContains,
}

// Filter constrains a single document field.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Order sorts results by a single field.
type Order struct {
	Field      string
	Descending bool
}

// Query describes a collection query: filters, ordering and an optional
// limit. It is a comparable descriptor, not a handle into any backend:
// two Query values describing the same query are interchangeable, which
// makes re-subscription triggers unambiguous (Equal/Fingerprint) without
// relying on pointer identity.
type Query struct {
	Collection string
	Filters    []Filter
	Orders     []Order
	Limit      int
}

// NewQuery starts a query over the named collection.
func NewQuery(collection string) Query {
	return Query{Collection: collection}
}

// Where appends a filter. The receiver is copied; builders can be shared.
func (q Query) Where(field string, op Op, value any) Query {
	filters := make([]Filter, len(q.Filters), len(q.Filters)+1)
	copy(filters, q.Filters)
	q.Filters = append(filters, Filter{Field: field, Op: op, Value: value})
	return q
}

// OrderBy appends an ascending ordering on field.
func (q Query) OrderBy(field string) Query {
	return q.orderBy(field, false)
}

// OrderByDesc appends a descending ordering on field.
func (q Query) OrderByDesc(field string) Query {
	return q.orderBy(field, true)
}

func (q Query) orderBy(field string, desc bool) Query {
	orders := make([]Order, len(q.Orders), len(q.Orders)+1)
	copy(orders, q.Orders)
	q.Orders = append(orders, Order{Field: field, Descending: desc})
	return q
}

// WithLimit caps the number of returned documents. Zero means no limit.
func (q Query) WithLimit(n int) Query {
	q.Limit = n
	return q
}

// Key returns a deterministic serialization of the descriptor, stable
// across processes for JSON-representable filter values. It doubles as a
// cache key and as the equality basis for re-subscription decisions.
func (q Query) Key() string {
	s := newQuerySerializer()
	args := make([]any, 0, 2+len(q.Filters)+len(q.Orders))
	for _, f := range q.Filters {
		args = append(args, fmt.Sprintf("w(%s %s %s)", f.Field, f.Op, s.serializeValue(f.Value)))
	}
	for _, o := range q.Orders {
		dir := "asc"
		if o.Descending {
			dir = "desc"
		}
		args = append(args, fmt.Sprintf("o(%s %s)", o.Field, dir))
	}
	if q.Limit > 0 {
		args = append(args, fmt.Sprintf("l(%d)", q.Limit))
	}
	return s.serializeKey(q.Collection, args...)
}

// Fingerprint returns a 64-bit hash of Key, cheap to store and compare.
func (q Query) Fingerprint() uint64 {
	return xxhash.Sum64String(q.Key())
}

// Equal reports whether both descriptors describe the same query.
func (q Query) Equal(other Query) bool {
	return q.Key() == other.Key()
}

// Validate checks the descriptor for structural problems before it is
// handed to a Store.
func (q Query) Validate() error {
	if err := validation.ValidateStruct(&q,
		validation.Field(&q.Collection, validation.Required),
		validation.Field(&q.Limit, validation.Min(0)),
	); err != nil {
		return err
	}
	for i, f := range q.Filters {
		if err := validation.ValidateStruct(&f,
			validation.Field(&f.Field, validation.Required),
			validation.Field(&f.Op, validation.Required, validation.In(validOps...)),
		); err != nil {
			return fmt.Errorf("filter %d: %w", i, err)
		}
	}
	for i, o := range q.Orders {
		if err := validation.ValidateStruct(&o,
			validation.Field(&o.Field, validation.Required),
		); err != nil {
			return fmt.Errorf("order %d: %w", i, err)
		}
	}
	return nil
}
