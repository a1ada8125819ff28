package query

import (
	"sort"
)

// Match filters, sorts and pages a slice of in-memory entities the way the
// SQL handle does in the database. It returns the page content and the total
// number of matches. Nulls sort last in ascending order.
func Match(items []any, pred Expr, orders []OrderSpec, page *PageRequest) ([]any, int64, error) {
	matched := make([]any, 0, len(items))
	for _, it := range items {
		ok, err := Evaluate(pred, it)
		if err != nil {
			return nil, 0, err
		}
		if ok {
			matched = append(matched, it)
		}
	}
	if err := Sort(matched, orders); err != nil {
		return nil, 0, err
	}
	total := int64(len(matched))
	if page == nil {
		return matched, total, nil
	}
	if err := page.Validate(); err != nil {
		return nil, 0, err
	}
	start := page.Offset()
	if start >= len(matched) {
		return []any{}, total, nil
	}
	end := start + page.Size
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

// Sort orders items in place by orders, stable for equal keys.
func Sort(items []any, orders []OrderSpec) error {
	if len(orders) == 0 {
		return nil
	}
	var sortErr error
	sort.SliceStable(items, func(i, j int) bool {
		for _, o := range orders {
			a, b := FieldValue(o.Path, items[i]), FieldValue(o.Path, items[j])
			n, err := compareNullable(a, b)
			if err != nil {
				if sortErr == nil {
					sortErr = err
				}
				return false
			}
			if n == 0 {
				continue
			}
			if o.Desc {
				return n > 0
			}
			return n < 0
		}
		return false
	})
	return sortErr
}

func compareNullable(a, b any) (int, error) {
	switch an, bn := isNull(a), isNull(b); {
	case an && bn:
		return 0, nil
	case an:
		return 1, nil
	case bn:
		return -1, nil
	}
	return CompareValues(a, b)
}
