package shared

import (
	"net/http"
	"strconv"
)

type Pagination struct {
	Limit  int
	Offset int
}

// ParsePagination reads limit and offset from the query string. Invalid
// values fall back to the defaults and limit is capped at maxLimit.
func ParsePagination(r *http.Request, defaultLimit, maxLimit int) Pagination {
	q := r.URL.Query()
	p := Pagination{Limit: defaultLimit}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		p.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v >= 0 {
		p.Offset = v
	}
	if maxLimit > 0 {
		p.Limit = min(p.Limit, maxLimit)
	}
	return p
}

// Bounds clamps the page to a collection of total items and returns the
// slice indexes to serve.
func (p Pagination) Bounds(total int) (start, end int) {
	start = min(max(p.Offset, 0), total)
	end = min(start+max(p.Limit, 0), total)
	return start, end
}
