package repository

import (
	"context"
	"fmt"
	"strings"

	"graph-persistence/internal/metadata"
	"graph-persistence/internal/query"
	"graph-persistence/internal/store"
)

// SQLHandle persists one entity type in a relational table.
type SQLHandle struct {
	store *store.Store
	desc  *metadata.Descriptor
}

func NewSQLHandle(s *store.Store, desc *metadata.Descriptor) *SQLHandle {
	return &SQLHandle{store: s, desc: desc}
}

func (h *SQLHandle) EntityType() string { return h.desc.EntityType }

func (h *SQLHandle) columns() string {
	paths := h.desc.Paths()
	cols := make([]string, len(paths))
	for i, p := range paths {
		cols[i] = p.Column
	}
	return strings.Join(cols, ", ")
}

func (h *SQLHandle) FindByID(ctx context.Context, id any) (any, bool, error) {
	pb := h.store.Dialect.NewParamBuilder()
	idParam, err := encodeColumn(h.desc.IDPath().Kind, id)
	if err != nil {
		return nil, false, err
	}
	sqlStr := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		h.columns(), h.desc.Table, h.desc.IDPath().Column, pb.Add(idParam))
	row, err := store.QueryRow(ctx, h.store.DB, sqlStr, pb.Params()...)
	if err == store.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, store.MapError(h.store.Dialect, err)
	}
	entity, err := rowToEntity(h.desc, row)
	if err != nil {
		return nil, false, err
	}
	return entity, true, nil
}

// Save upserts the row with the entity's id in a single statement. Entities
// without an id get one from their id strategy.
func (h *SQLHandle) Save(ctx context.Context, entity any) (any, error) {
	id := h.desc.ID(entity)
	if emptyID(id) {
		if generated, ok := newID(h.desc.IDStrategy); ok {
			if err := h.desc.SetID(entity, generated); err != nil {
				return nil, err
			}
			return entity, h.insert(ctx, entity, true)
		}
		return entity, h.insertReturning(ctx, entity)
	}

	if err := h.upsert(ctx, entity); err != nil {
		return nil, err
	}
	return entity, nil
}

func (h *SQLHandle) values(entity any, withID bool) ([]string, []any, error) {
	var cols []string
	var vals []any
	for _, p := range h.desc.Paths() {
		if p.Name == h.desc.IDField && !withID {
			continue
		}
		v, err := encodeColumn(p.Kind, p.Get(entity))
		if err != nil {
			return nil, nil, err
		}
		cols = append(cols, p.Column)
		vals = append(vals, v)
	}
	return cols, vals, nil
}

func (h *SQLHandle) insert(ctx context.Context, entity any, withID bool) error {
	cols, vals, err := h.values(entity, withID)
	if err != nil {
		return err
	}
	pb := h.store.Dialect.NewParamBuilder()
	phs := make([]string, len(vals))
	for i, v := range vals {
		phs[i] = pb.Add(v)
	}
	sqlStr := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", h.desc.Table, strings.Join(cols, ", "), strings.Join(phs, ", "))
	if _, err := store.Exec(ctx, h.store.DB, sqlStr, pb.Params()...); err != nil {
		return store.MapError(h.store.Dialect, err)
	}
	return nil
}

func (h *SQLHandle) insertReturning(ctx context.Context, entity any) error {
	cols, vals, err := h.values(entity, false)
	if err != nil {
		return err
	}
	pb := h.store.Dialect.NewParamBuilder()
	phs := make([]string, len(vals))
	for i, v := range vals {
		phs[i] = pb.Add(v)
	}
	idCol := h.desc.IDPath().Column
	var sqlStr string
	if len(cols) == 0 {
		sqlStr = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING %s", h.desc.Table, idCol)
	} else {
		sqlStr = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
			h.desc.Table, strings.Join(cols, ", "), strings.Join(phs, ", "), idCol)
	}
	row, err := store.QueryRow(ctx, h.store.DB, sqlStr, pb.Params()...)
	if err != nil {
		return store.MapError(h.store.Dialect, err)
	}
	return h.desc.SetID(entity, row[idCol])
}

// upsert inserts entity or, when its id already exists, overwrites every
// other column in the same statement.
func (h *SQLHandle) upsert(ctx context.Context, entity any) error {
	cols, vals, err := h.values(entity, true)
	if err != nil {
		return err
	}
	pb := h.store.Dialect.NewParamBuilder()
	phs := make([]string, len(vals))
	for i, v := range vals {
		phs[i] = pb.Add(v)
	}
	idCol := h.desc.IDPath().Column
	var sets []string
	for _, c := range cols {
		if c != idCol {
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
		}
	}
	action := "DO NOTHING"
	if len(sets) > 0 {
		action = "DO UPDATE SET " + strings.Join(sets, ", ")
	}
	sqlStr := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) %s",
		h.desc.Table, strings.Join(cols, ", "), strings.Join(phs, ", "), idCol, action)
	if _, err := store.Exec(ctx, h.store.DB, sqlStr, pb.Params()...); err != nil {
		return store.MapError(h.store.Dialect, err)
	}
	return nil
}

func (h *SQLHandle) DeleteByID(ctx context.Context, id any) error {
	pb := h.store.Dialect.NewParamBuilder()
	idParam, err := encodeColumn(h.desc.IDPath().Kind, id)
	if err != nil {
		return err
	}
	sqlStr := fmt.Sprintf("DELETE FROM %s WHERE %s = %s", h.desc.Table, h.desc.IDPath().Column, pb.Add(idParam))
	if _, err := store.Exec(ctx, h.store.DB, sqlStr, pb.Params()...); err != nil {
		return store.MapError(h.store.Dialect, err)
	}
	return nil
}

func (h *SQLHandle) FindMatching(ctx context.Context, pred query.Expr, orders []query.OrderSpec, page *query.PageRequest) (*Page, error) {
	pb := h.store.Dialect.NewParamBuilder()
	where := ""
	if pred != nil {
		clause, err := renderPredicate(h.store.Dialect, pb, pred)
		if err != nil {
			return nil, err
		}
		where = " WHERE " + clause
	}
	filterParams := append([]any(nil), pb.Params()...)

	sqlStr := fmt.Sprintf("SELECT %s FROM %s%s", h.columns(), h.desc.Table, where)
	if len(orders) > 0 {
		parts := make([]string, len(orders))
		for i, o := range orders {
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			parts[i] = o.Path.Column + " " + dir
		}
		sqlStr += " ORDER BY " + strings.Join(parts, ", ")
	}
	if page != nil {
		if err := page.Validate(); err != nil {
			return nil, err
		}
		limit := pb.Add(page.Size)
		offset := pb.Add(page.Offset())
		sqlStr += fmt.Sprintf(" LIMIT %s OFFSET %s", limit, offset)
	}

	rows, err := store.QueryRows(ctx, h.store.DB, sqlStr, pb.Params()...)
	if err != nil {
		return nil, store.MapError(h.store.Dialect, err)
	}
	content := make([]any, 0, len(rows))
	for _, row := range rows {
		e, err := rowToEntity(h.desc, row)
		if err != nil {
			return nil, err
		}
		content = append(content, e)
	}

	total := int64(len(content))
	if page != nil {
		countSQL := fmt.Sprintf("SELECT COUNT(*) AS total FROM %s%s", h.desc.Table, where)
		row, err := store.QueryRow(ctx, h.store.DB, countSQL, filterParams...)
		if err != nil {
			return nil, store.MapError(h.store.Dialect, err)
		}
		total = toInt64(row["total"])
	}
	return &Page{Content: content, TotalElements: total}, nil
}

// renderPredicate renders a predicate tree as a parameterised SQL boolean
// expression.
func renderPredicate(d store.Dialect, pb store.ParamBuilder, e query.Expr) (string, error) {
	switch n := e.(type) {
	case query.And:
		return renderTerms(d, pb, n.Terms, " AND ")
	case query.Or:
		return renderTerms(d, pb, n.Terms, " OR ")
	case query.Compare:
		return renderCompare(d, pb, n)
	}
	return "", fmt.Errorf("unsupported predicate node %T", e)
}

func renderTerms(d store.Dialect, pb store.ParamBuilder, terms []query.Expr, sep string) (string, error) {
	parts := make([]string, len(terms))
	for i, t := range terms {
		s, err := renderPredicate(d, pb, t)
		if err != nil {
			return "", err
		}
		parts[i] = s
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}

func renderCompare(d store.Dialect, pb store.ParamBuilder, c query.Compare) (string, error) {
	col := c.Path.Column
	switch c.Cmp {
	case query.CmpIsNull:
		return col + " IS NULL", nil
	case query.CmpIsNotNull:
		return col + " IS NOT NULL", nil
	case query.CmpIsEmpty:
		return "LENGTH(" + col + ") = 0", nil
	case query.CmpIsNotEmpty:
		return "LENGTH(" + col + ") > 0", nil
	case query.CmpIn, query.CmpNotIn:
		list, _ := c.Value.([]any)
		encoded := make([]any, len(list))
		for i, v := range list {
			ev, err := encodeColumn(c.Path.Kind, v)
			if err != nil {
				return "", err
			}
			encoded[i] = ev
		}
		if c.Cmp == query.CmpIn {
			return d.InExpr(col, pb, encoded), nil
		}
		return d.NotInExpr(col, pb, encoded), nil
	}

	if c.Cmp == query.CmpStartsWith || c.Cmp == query.CmpEndsWith || c.Cmp == query.CmpContains || c.Cmp == query.CmpLike {
		s, _ := c.Value.(string)
		switch c.Cmp {
		case query.CmpStartsWith:
			s = query.EscapeLike(s) + "%"
		case query.CmpEndsWith:
			s = "%" + query.EscapeLike(s)
		case query.CmpContains:
			s = "%" + query.EscapeLike(s) + "%"
		}
		return fmt.Sprintf(`%s LIKE %s ESCAPE '\'`, col, pb.Add(s)), nil
	}

	v, err := encodeColumn(c.Path.Kind, c.Value)
	if err != nil {
		return "", err
	}
	switch c.Cmp {
	case query.CmpEq:
		return fmt.Sprintf("%s = %s", col, pb.Add(v)), nil
	case query.CmpNe:
		return fmt.Sprintf("%s <> %s", col, pb.Add(v)), nil
	case query.CmpGt:
		return fmt.Sprintf("%s > %s", col, pb.Add(v)), nil
	case query.CmpLt:
		return fmt.Sprintf("%s < %s", col, pb.Add(v)), nil
	}
	return "", fmt.Errorf("unsupported comparison %s", c.Cmp)
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}
