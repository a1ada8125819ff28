package query

import (
	"fmt"
	"strings"
)

// Operator is a filter operator as requested by a caller.
type Operator int

const (
	OpNull Operator = iota
	OpNotNull
	OpEqual
	OpNotEqual
	OpIn
	OpNotIn
	OpGreaterThan
	OpGreaterEqual
	OpLowerThan
	OpLowerEqual
	OpEmpty
	OpNotEmpty
	OpStartsWith
	OpEndsWith
	OpContains
	OpLike
)

var operatorNames = [...]string{
	OpNull:         "NULL",
	OpNotNull:      "NOT_NULL",
	OpEqual:        "EQUAL",
	OpNotEqual:     "NOT_EQUAL",
	OpIn:           "IN",
	OpNotIn:        "NOT_IN",
	OpGreaterThan:  "GREATER_THAN",
	OpGreaterEqual: "GREATER_EQUAL",
	OpLowerThan:    "LOWER_THAN",
	OpLowerEqual:   "LOWER_EQUAL",
	OpEmpty:        "EMPTY",
	OpNotEmpty:     "NOT_EMPTY",
	OpStartsWith:   "STARTS_WITH",
	OpEndsWith:     "ENDS_WITH",
	OpContains:     "CONTAINS",
	OpLike:         "LIKE",
}

func (o Operator) String() string {
	if o < 0 || int(o) >= len(operatorNames) {
		return fmt.Sprintf("Operator(%d)", int(o))
	}
	return operatorNames[o]
}

func ParseOperator(s string) (Operator, error) {
	for i, name := range operatorNames {
		if strings.EqualFold(name, s) {
			return Operator(i), nil
		}
	}
	return 0, fmt.Errorf("unknown operator %q", s)
}

type Direction int

const (
	Asc Direction = iota
	Desc
)

func (d Direction) String() string {
	if d == Desc {
		return "DESC"
	}
	return "ASC"
}

func ParseDirection(s string) (Direction, error) {
	switch strings.ToUpper(s) {
	case "", "ASC":
		return Asc, nil
	case "DESC":
		return Desc, nil
	}
	return Asc, fmt.Errorf("unknown sort direction %q", s)
}

func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type FilterEntry struct {
	FieldName string
	Operator  Operator
	Value     any
	IsDynamic bool
}

type OrderByEntry struct {
	Field     string    `json:"field"`
	Direction Direction `json:"direction"`
}

// ListLoadConfig is the caller's filter/order/paging request. A Limit of
// zero or less means unpaged.
type ListLoadConfig struct {
	Filters []FilterEntry
	OrderBy []OrderByEntry
	Limit   int
	Offset  int
}

func (c ListLoadConfig) Filtered() bool { return len(c.Filters) > 0 }
func (c ListLoadConfig) Ordered() bool  { return len(c.OrderBy) > 0 }
func (c ListLoadConfig) Paged() bool    { return c.Limit > 0 }
