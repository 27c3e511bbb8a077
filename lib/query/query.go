// Package query turns list query-string parameters into parameterised SQL
// fragments. Every list endpoint (users, requests, service requests,
// appointments, chats, subscriptions) declares a Spec describing which keys it
// filters on, which columns it searches and which columns it may sort by.
//
// Parsing is lenient: a key the Spec does not know, or a value the filter does
// not accept, is dropped and behaves exactly like "all". Building is strict:
// column names only ever come from the Spec, user input only ever travels as a
// positional argument.
package query

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

const (
	DefaultPerPage = 15
	MaxPerPage     = 100

	// MaxPage keeps (page-1)*per_page inside a Postgres int4 OFFSET.
	MaxPage = math.MaxInt32 / MaxPerPage
)

// AcceptFunc maps a raw query-string value to the SQL argument used for the
// equality condition. ok=false means the value is not recognised.
type AcceptFunc func(raw string) (arg any, ok bool)

// Filter is an equality filter on one column.
type Filter struct {
	Key     string
	Aliases []string
	Column  string
	Accept  AcceptFunc
}

// Spec describes the list surface of one entity.
type Spec struct {
	Filters          []Filter
	SearchColumns    []string
	SortColumns      map[string]string
	DefaultSort      string
	DefaultDirection Direction
	IDColumn         string

	// StatusExpr is grouped on for the stats panel; StatusKeys are the
	// values that always appear in the stats map.
	StatusExpr string
	StatusKeys []string
}

// Params is the validated, canonical filter state of one list request.
type Params struct {
	Filters   map[string]string
	Search    string
	Sort      string
	Direction Direction
	Page      int
	PerPage   int
}

// Ranked returns a sort expression ordering column by the position of its
// value in values, lowest first. Unknown values sort after all known ones.
func Ranked(column string, values ...string) string {
	var b strings.Builder
	b.WriteString("CASE " + column)
	for n, v := range values {
		fmt.Fprintf(&b, " WHEN '%s' THEN %d", strings.ReplaceAll(v, "'", "''"), n+1)
	}
	fmt.Fprintf(&b, " ELSE %d END", len(values)+1)
	return b.String()
}

// Condition is a fixed equality applied before any user filter, used to scope
// a client's lists to their own rows.
type Condition struct {
	Column string
	Value  any
}

func Eq(column string, value any) Condition {
	return Condition{Column: column, Value: value}
}

// OneOf accepts exactly the given values and passes them through unchanged.
func OneOf(values ...string) AcceptFunc {
	allowed := make(map[string]struct{}, len(values))
	for _, v := range values {
		allowed[v] = struct{}{}
	}
	return func(raw string) (any, bool) {
		if _, ok := allowed[raw]; !ok {
			return nil, false
		}
		return raw, true
	}
}

// Mapped accepts the keys of m and binds the mapped value.
func Mapped(m map[string]any) AcceptFunc {
	return func(raw string) (any, bool) {
		v, ok := m[raw]
		return v, ok
	}
}

// PositiveID accepts base-10 integers greater than zero.
func PositiveID() AcceptFunc {
	return func(raw string) (any, bool) {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return nil, false
		}
		return id, true
	}
}

// NonEmpty accepts any trimmed, non-empty value up to max runes.
func NonEmpty(max int) AcceptFunc {
	return func(raw string) (any, bool) {
		if raw == "" || len([]rune(raw)) > max {
			return nil, false
		}
		return raw, true
	}
}

// Parse reads raw query-string parameters against spec. It never fails.
func Parse(spec Spec, raw map[string]string) Params {
	p := Params{
		Filters: map[string]string{},
		Page:    1,
		PerPage: DefaultPerPage,
	}

	for _, f := range spec.Filters {
		value, ok := lookup(raw, f.Key, f.Aliases)
		if !ok || value == "" || value == "all" {
			continue
		}
		if _, ok := f.Accept(value); !ok {
			continue
		}
		p.Filters[f.Key] = value
	}

	p.Search = strings.TrimSpace(raw["search"])
	if len([]rune(p.Search)) > 255 {
		p.Search = string([]rune(p.Search)[:255])
	}

	if sort := strings.TrimSpace(raw["sort"]); sort != "" {
		if _, ok := spec.SortColumns[sort]; ok {
			p.Sort = sort
		}
	}

	switch Direction(strings.ToLower(strings.TrimSpace(raw["direction"]))) {
	case Asc:
		p.Direction = Asc
	case Desc:
		p.Direction = Desc
	}

	if page, err := strconv.Atoi(strings.TrimSpace(raw["page"])); err == nil && page > 0 {
		p.Page = min(page, MaxPage)
	}

	perPage, ok := lookup(raw, "per_page", []string{"page_size"})
	if ok {
		if n, err := strconv.Atoi(perPage); err == nil && n > 0 {
			if n > MaxPerPage {
				n = MaxPerPage
			}
			p.PerPage = n
		}
	}

	return p
}

func lookup(raw map[string]string, key string, aliases []string) (string, bool) {
	if v, ok := raw[key]; ok {
		return strings.TrimSpace(v), true
	}
	for _, alias := range aliases {
		if v, ok := raw[alias]; ok {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

// Statement holds the SQL fragments for one list query. Where and OrderBy
// start with a space so they can be appended to a base SELECT.
type Statement struct {
	Where   string
	OrderBy string
	Args    []any
	Limit   int
	Offset  int
}

// PageClause returns the LIMIT/OFFSET clause numbered after Args.
func (s Statement) PageClause() string {
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(s.Args)+1, len(s.Args)+2)
}

// PageArgs returns Args followed by the limit and offset.
func (s Statement) PageArgs() []any {
	args := make([]any, 0, len(s.Args)+2)
	args = append(args, s.Args...)
	return append(args, s.Limit, s.Offset)
}

type builder struct {
	parts []string
	args  []any
}

func (b *builder) eq(column string, value any) {
	b.args = append(b.args, value)
	b.parts = append(b.parts, fmt.Sprintf("%s = $%d", column, len(b.args)))
}

func (b *builder) search(columns []string, term string) {
	b.args = append(b.args, "%"+escapeLike(term)+"%")
	argIndex := len(b.args)
	ors := make([]string, 0, len(columns))
	for _, column := range columns {
		ors = append(ors, fmt.Sprintf("%s ILIKE $%d", column, argIndex))
	}
	b.parts = append(b.parts, "("+strings.Join(ors, " OR ")+")")
}

func (b *builder) where() string {
	if len(b.parts) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.parts, " AND ")
}

// Build renders scope, filters, search and ordering for p.
func Build(spec Spec, scope []Condition, p Params) Statement {
	b := &builder{}
	for _, c := range scope {
		b.eq(c.Column, c.Value)
	}

	for _, f := range spec.Filters {
		raw, ok := p.Filters[f.Key]
		if !ok {
			continue
		}
		arg, ok := f.Accept(raw)
		if !ok {
			continue
		}
		b.eq(f.Column, arg)
	}

	if p.Search != "" && len(spec.SearchColumns) > 0 {
		b.search(spec.SearchColumns, p.Search)
	}

	page, perPage := clampPage(p.Page, p.PerPage)

	return Statement{
		Where:   b.where(),
		OrderBy: orderBy(spec, p),
		Args:    b.args,
		Limit:   perPage,
		Offset:  (page - 1) * perPage,
	}
}

// orderBy always ends with the id column so that equal sort keys keep a
// total order and pages never overlap.
func orderBy(spec Spec, p Params) string {
	column, ok := spec.SortColumns[p.Sort]
	if !ok {
		column = spec.SortColumns[spec.DefaultSort]
	}
	if column == "" {
		column = spec.IDColumn
	}

	dir := p.Direction
	if dir == "" {
		dir = spec.DefaultDirection
	}
	if dir == "" {
		dir = Desc
	}

	if column == spec.IDColumn {
		return fmt.Sprintf(" ORDER BY %s %s", column, strings.ToUpper(string(dir)))
	}
	return fmt.Sprintf(" ORDER BY %s %s, %s ASC", column, strings.ToUpper(string(dir)), spec.IDColumn)
}

// CountsStatement renders the WHERE clause for the stats panel. Only the scope
// applies; user filters do not change the panel.
func CountsStatement(scope []Condition) Statement {
	b := &builder{}
	for _, c := range scope {
		b.eq(c.Column, c.Value)
	}
	return Statement{Where: b.where(), Args: b.args}
}

// Stats zero-fills counts for every status key and adds "total".
func Stats(keys []string, counts map[string]int) map[string]int {
	stats := make(map[string]int, len(keys)+1)
	for _, k := range keys {
		stats[k] = 0
	}
	total := 0
	for k, n := range counts {
		stats[k] = n
		total += n
	}
	stats["total"] = total
	return stats
}

func escapeLike(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(term)
}

func clampPage(page, perPage int) (int, int) {
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	perPage = min(perPage, MaxPerPage)
	if page < 1 {
		page = 1
	}
	return min(page, MaxPage), perPage
}
