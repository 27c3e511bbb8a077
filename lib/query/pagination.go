package query

import (
	"net/url"
	"strconv"
)

// Pagination is the page metadata returned with every list.
type Pagination struct {
	Page     int  `json:"page"`
	PerPage  int  `json:"per_page"`
	Total    int  `json:"total"`
	LastPage int  `json:"last_page"`
	From     int  `json:"from"`
	To       int  `json:"to"`
	HasNext  bool `json:"has_next"`
	HasPrev  bool `json:"has_prev"`
}

// Links are query strings for neighbouring pages of the same filter state.
type Links struct {
	First string `json:"first"`
	Prev  string `json:"prev,omitempty"`
	Next  string `json:"next,omitempty"`
	Last  string `json:"last"`
}

func Paginate(total, page, perPage int) Pagination {
	page, perPage = clampPage(page, perPage)

	lastPage := (total + perPage - 1) / perPage
	if lastPage < 1 {
		lastPage = 1
	}

	p := Pagination{
		Page:     page,
		PerPage:  perPage,
		Total:    total,
		LastPage: lastPage,
		HasNext:  page < lastPage,
		HasPrev:  page > 1,
	}

	from := (page-1)*perPage + 1
	if total > 0 && from <= total {
		p.From = from
		p.To = min(page*perPage, total)
	}
	return p
}

// Values renders p as its canonical query string. Defaults are omitted so two
// equivalent states encode identically.
func (p Params) Values() url.Values {
	v := url.Values{}
	for key, value := range p.Filters {
		v.Set(key, value)
	}
	if p.Search != "" {
		v.Set("search", p.Search)
	}
	if p.Sort != "" {
		v.Set("sort", p.Sort)
	}
	if p.Direction != "" {
		v.Set("direction", string(p.Direction))
	}
	if p.Page > 1 {
		v.Set("page", strconv.Itoa(p.Page))
	}
	if p.PerPage != 0 && p.PerPage != DefaultPerPage {
		v.Set("per_page", strconv.Itoa(p.PerPage))
	}
	return v
}

// Next returns the filter state that results from setting key to value on
// current. An empty value or "all" clears the key. Changing anything other
// than the page sends the user back to the first page. current is not
// modified.
func Next(current url.Values, key, value string) url.Values {
	next := url.Values{}
	for k, vs := range current {
		next[k] = append([]string(nil), vs...)
	}

	if value == "" || value == "all" {
		next.Del(key)
	} else {
		next.Set(key, value)
	}

	if key != "page" {
		next.Del("page")
	} else if value == "1" {
		next.Del("page")
	}
	return next
}

// BuildLinks renders first/prev/next/last links for p.
func BuildLinks(p Params, pg Pagination) Links {
	current := p.Values()
	links := Links{
		First: encode(Next(current, "page", "1")),
		Last:  encode(Next(current, "page", strconv.Itoa(pg.LastPage))),
	}
	if pg.HasPrev {
		links.Prev = encode(Next(current, "page", strconv.Itoa(pg.Page-1)))
	}
	if pg.HasNext {
		links.Next = encode(Next(current, "page", strconv.Itoa(pg.Page+1)))
	}
	return links
}

func encode(v url.Values) string {
	if len(v) == 0 {
		return "?"
	}
	return "?" + v.Encode()
}
