package data

import (
	"context"
	"database/sql"
	"fmt"

	"homecare/lib/query"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// listing describes the SELECT behind one list endpoint.
type listing struct {
	columns string
	from    string
	spec    query.Spec
}

// Page is one page of a list plus the numbers the UI shows around it.
type Page[T any] struct {
	Items []T
	Total int
	Stats map[string]int
}

// list runs the page, total and stats queries for one list request. The
// stats panel only honours scope, the other two honour scope and filters.
func list[T any](ctx context.Context, db *sql.DB, l listing, scope []query.Condition, p query.Params, scan func(rowScanner) (T, error)) (*Page[T], error) {
	st := query.Build(l.spec, scope, p)

	var total int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+l.from+st.Where, st.Args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count rows: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT "+l.columns+" FROM "+l.from+st.Where+st.OrderBy+st.PageClause(), st.PageArgs()...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rows: %w", err)
	}
	defer rows.Close()

	items := []T{}
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	stats, err := statusCounts(ctx, db, l, scope)
	if err != nil {
		return nil, err
	}

	return &Page[T]{Items: items, Total: total, Stats: stats}, nil
}

func statusCounts(ctx context.Context, db *sql.DB, l listing, scope []query.Condition) (map[string]int, error) {
	if l.spec.StatusExpr == "" {
		return map[string]int{}, nil
	}

	cs := query.CountsStatement(scope)
	rows, err := db.QueryContext(ctx, "SELECT "+l.spec.StatusExpr+", COUNT(*) FROM "+l.from+cs.Where+" GROUP BY 1", cs.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count statuses: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return query.Stats(l.spec.StatusKeys, counts), nil
}
