package query

import (
	"math"
	"reflect"

	"graph-persistence/internal/metadata"
)

type OrderSpec struct {
	Path *metadata.Path
	Desc bool
}

// PageRequest is a zero-based page number and a page size.
type PageRequest struct {
	Page int
	Size int
}

func (p PageRequest) Offset() int { return p.Page * p.Size }

// Validate rejects negative pages, empty pages and pages whose offset does
// not fit in an int.
func (p PageRequest) Validate() error {
	if p.Page < 0 || p.Size <= 0 || p.Page > math.MaxInt/p.Size {
		return &InvalidPageError{Page: p.Page, Size: p.Size}
	}
	return nil
}

// Compiled is the backend-neutral form of a ListLoadConfig.
type Compiled struct {
	Predicate Expr
	Orders    []OrderSpec
	Page      *PageRequest
}

// Compile translates cfg into a predicate, ordering and page request against
// the fields of desc. Dynamic filters are skipped. Compile is pure and may be
// called concurrently.
func Compile(desc *metadata.Descriptor, cfg ListLoadConfig) (*Compiled, error) {
	pred, err := CompilePredicate(desc, cfg.Filters)
	if err != nil {
		return nil, err
	}
	orders, err := CompileOrders(desc, cfg.OrderBy)
	if err != nil {
		return nil, err
	}
	out := &Compiled{Predicate: pred, Orders: orders}
	if cfg.Offset < 0 {
		return nil, &InvalidPageError{Page: cfg.Offset, Size: cfg.Limit}
	}
	if cfg.Paged() {
		page := PageFor(cfg.Offset, cfg.Limit)
		if err := page.Validate(); err != nil {
			return nil, err
		}
		out.Page = &page
	}
	return out, nil
}

// PageFor derives the page request for an offset/limit pair. The page number
// is offset modulo limit, not offset divided by limit: offset 25 with limit 10
// yields page 5. Existing callers depend on this arithmetic.
func PageFor(offset, limit int) PageRequest {
	return PageRequest{Page: offset % limit, Size: limit}
}

// CompilePredicate AND-combines the non-dynamic filters in input order.
func CompilePredicate(desc *metadata.Descriptor, filters []FilterEntry) (Expr, error) {
	var terms []Expr
	for _, f := range filters {
		if f.IsDynamic {
			continue
		}
		e, err := CompileFilter(desc, f)
		if err != nil {
			return nil, err
		}
		terms = append(terms, e)
	}
	switch len(terms) {
	case 0:
		return nil, nil
	case 1:
		return terms[0], nil
	}
	return And{Terms: terms}, nil
}

func CompileOrders(desc *metadata.Descriptor, entries []OrderByEntry) ([]OrderSpec, error) {
	orders := make([]OrderSpec, 0, len(entries))
	for _, o := range entries {
		p, ok := desc.Resolve(o.Field)
		if !ok {
			return nil, &UnknownFieldError{EntityType: desc.EntityType, Field: o.Field}
		}
		switch p.Kind {
		case metadata.KindArray, metadata.KindCollection, metadata.KindMap:
			return nil, &UnsupportedOperatorError{Field: p.Name, Kind: p.Kind, Operator: "ORDER_BY"}
		}
		orders = append(orders, OrderSpec{Path: p, Desc: o.Direction == Desc})
	}
	return orders, nil
}

// CompileFilter translates one filter entry into a predicate.
func CompileFilter(desc *metadata.Descriptor, f FilterEntry) (Expr, error) {
	p, ok := desc.Resolve(f.FieldName)
	if !ok {
		return nil, &UnknownFieldError{EntityType: desc.EntityType, Field: f.FieldName}
	}

	// Every FieldKind must appear in exactly one case.
	switch p.Kind {
	case metadata.KindNumber, metadata.KindDate, metadata.KindDateTime, metadata.KindTime:
		return orderedFilter(p, f.Operator, f.Value)
	case metadata.KindString:
		return stringFilter(p, f.Operator, f.Value)
	case metadata.KindBoolean, metadata.KindEnum, metadata.KindOther:
		return scalarFilter(p, f.Operator, f.Value)
	case metadata.KindEntityRef, metadata.KindArray, metadata.KindCollection, metadata.KindMap:
		return scalarFilter(p, f.Operator, f.Value)
	}
	return nil, unsupported(p, f.Operator)
}

func scalarFilter(p *metadata.Path, op Operator, v any) (Expr, error) {
	switch op {
	case OpNull:
		return Compare{Path: p, Cmp: CmpIsNull}, nil
	case OpNotNull:
		return Compare{Path: p, Cmp: CmpIsNotNull}, nil
	case OpEqual:
		return Compare{Path: p, Cmp: CmpEq, Value: v}, nil
	case OpNotEqual:
		return Compare{Path: p, Cmp: CmpNe, Value: v}, nil
	case OpIn, OpNotIn:
		list, ok := toList(v)
		if !ok {
			return nil, &InvalidValueError{Field: p.Name, Operator: op, Value: v}
		}
		cmp := CmpIn
		if op == OpNotIn {
			cmp = CmpNotIn
		}
		return Compare{Path: p, Cmp: cmp, Value: list}, nil
	}
	return nil, unsupported(p, op)
}

func orderedFilter(p *metadata.Path, op Operator, v any) (Expr, error) {
	switch op {
	case OpGreaterThan:
		return Compare{Path: p, Cmp: CmpGt, Value: v}, nil
	case OpLowerThan:
		return Compare{Path: p, Cmp: CmpLt, Value: v}, nil
	case OpGreaterEqual:
		return Or{Terms: []Expr{
			Compare{Path: p, Cmp: CmpGt, Value: v},
			Compare{Path: p, Cmp: CmpEq, Value: v},
		}}, nil
	case OpLowerEqual:
		return Or{Terms: []Expr{
			Compare{Path: p, Cmp: CmpLt, Value: v},
			Compare{Path: p, Cmp: CmpEq, Value: v},
		}}, nil
	}
	return scalarFilter(p, op, v)
}

func stringFilter(p *metadata.Path, op Operator, v any) (Expr, error) {
	switch op {
	case OpEmpty:
		return Compare{Path: p, Cmp: CmpIsEmpty}, nil
	case OpNotEmpty:
		return Compare{Path: p, Cmp: CmpIsNotEmpty}, nil
	case OpStartsWith, OpEndsWith, OpContains, OpLike:
		s, ok := v.(string)
		if !ok {
			return nil, &InvalidValueError{Field: p.Name, Operator: op, Value: v}
		}
		cmp := map[Operator]Cmp{
			OpStartsWith: CmpStartsWith,
			OpEndsWith:   CmpEndsWith,
			OpContains:   CmpContains,
			OpLike:       CmpLike,
		}[op]
		return Compare{Path: p, Cmp: cmp, Value: s}, nil
	}
	return scalarFilter(p, op, v)
}

func unsupported(p *metadata.Path, op Operator) error {
	return &UnsupportedOperatorError{Field: p.Name, Kind: p.Kind, Operator: op.String()}
}

func toList(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	if l, ok := v.([]any); ok {
		return l, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
