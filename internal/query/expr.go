package query

import (
	"fmt"
	"strings"

	"graph-persistence/internal/metadata"
)

// Cmp is a primitive comparison on a single path. Only strict ordering and
// equality exist here; inclusive bounds are composed by the compiler.
type Cmp int

const (
	CmpIsNull Cmp = iota
	CmpIsNotNull
	CmpEq
	CmpNe
	CmpIn
	CmpNotIn
	CmpGt
	CmpLt
	CmpIsEmpty
	CmpIsNotEmpty
	CmpStartsWith
	CmpEndsWith
	CmpContains
	CmpLike
)

var cmpSymbols = [...]string{
	CmpIsNull:     "IS NULL",
	CmpIsNotNull:  "IS NOT NULL",
	CmpEq:         "=",
	CmpNe:         "<>",
	CmpIn:         "IN",
	CmpNotIn:      "NOT IN",
	CmpGt:         ">",
	CmpLt:         "<",
	CmpIsEmpty:    "IS EMPTY",
	CmpIsNotEmpty: "IS NOT EMPTY",
	CmpStartsWith: "STARTS WITH",
	CmpEndsWith:   "ENDS WITH",
	CmpContains:   "CONTAINS",
	CmpLike:       "LIKE",
}

func (c Cmp) String() string {
	if c < 0 || int(c) >= len(cmpSymbols) {
		return fmt.Sprintf("Cmp(%d)", int(c))
	}
	return cmpSymbols[c]
}

// Unary reports whether the comparison takes no literal.
func (c Cmp) Unary() bool {
	switch c {
	case CmpIsNull, CmpIsNotNull, CmpIsEmpty, CmpIsNotEmpty:
		return true
	}
	return false
}

// Expr is an immutable predicate tree node. A nil Expr matches everything.
type Expr interface {
	fmt.Stringer
	expr()
}

type Compare struct {
	Path  *metadata.Path
	Cmp   Cmp
	Value any
}

type And struct {
	Terms []Expr
}

type Or struct {
	Terms []Expr
}

func (Compare) expr() {}
func (And) expr()     {}
func (Or) expr()      {}

func (c Compare) String() string {
	if c.Cmp.Unary() {
		return fmt.Sprintf("%s %s", c.Path.Name, c.Cmp)
	}
	return fmt.Sprintf("%s %s %v", c.Path.Name, c.Cmp, c.Value)
}

func (a And) String() string { return joinTerms(a.Terms, " AND ") }
func (o Or) String() string  { return joinTerms(o.Terms, " OR ") }

func joinTerms(terms []Expr, sep string) string {
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = t.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}
