// Package service holds the portal's use cases. Each operation takes the
// authenticated Actor, enforces ownership (someone else's row is reported as
// not found) and admin-only actions, validates input into field errors, and
// runs state changes through the lifecycle tables inside one locked
// repository mutation.
package service

import (
	"fmt"
	"strings"
	"time"

	"homecare/lib/models"
	"homecare/lib/query"
)

func requireAdmin(actor models.Actor) error {
	if !actor.IsAdmin() {
		return fmt.Errorf("%w: admin only", models.ErrForbidden)
	}
	return nil
}

// ownerScope restricts lists to the caller's rows unless they are an admin.
func ownerScope(actor models.Actor, column string) []query.Condition {
	if actor.IsAdmin() {
		return nil
	}
	return []query.Condition{query.Eq(column, actor.UserID)}
}

func nowFunc(now func() time.Time) time.Time {
	if now != nil {
		return now()
	}
	return time.Now().UTC()
}

// text trims s and records a field error when it is required and empty or
// longer than max.
func text(verr *models.ValidationError, field, s string, required bool, max int) string {
	s = strings.TrimSpace(s)
	switch {
	case s == "" && required:
		verr.Add(field, "is required")
	case len(s) > max:
		verr.Add(field, fmt.Sprintf("must be at most %d characters", max))
	}
	return s
}

func optionalMoney(verr *models.ValidationError, field string, raw *string) *models.Money {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil
	}
	m, err := models.ParseMoney(strings.TrimSpace(*raw))
	if err != nil {
		verr.Add(field, "must be an amount with at most two decimals")
		return nil
	}
	if m < 0 {
		verr.Add(field, "must not be negative")
		return nil
	}
	return &m
}

func optionalDate(verr *models.ValidationError, field string, raw *string) (models.Date, bool) {
	if raw == nil {
		return models.Date{}, false
	}
	if strings.TrimSpace(*raw) == "" {
		return models.Date{}, true
	}
	d, err := models.ParseDate(strings.TrimSpace(*raw))
	if err != nil {
		verr.Add(field, "must be a date in YYYY-MM-DD format")
		return models.Date{}, false
	}
	return d, true
}

// listMeta is the pagination block, echoed filter state and page links every
// list response carries.
func listMeta(p query.Params, total int) (query.Pagination, map[string]string, query.Links) {
	pg := query.Paginate(total, p.Page, p.PerPage)
	filters := map[string]string{}
	for k, v := range p.Filters {
		filters[k] = v
	}
	if p.Search != "" {
		filters["search"] = p.Search
	}
	return pg, filters, query.BuildLinks(p, pg)
}
