package shared

import (
	"net/http/httptest"
	"testing"
)

func TestParsePagination(t *testing.T) {
	cases := []struct {
		query       string
		limit, offs int
	}{
		{"", 50, 0},
		{"?limit=10&offset=20", 10, 20},
		{"?limit=1000", 200, 0},
		{"?limit=-1&offset=-5", 50, 0},
		{"?limit=abc&offset=3", 50, 3},
	}
	for _, tc := range cases {
		p := ParsePagination(httptest.NewRequest("GET", "/employees"+tc.query, nil), 50, 200)
		if p.Limit != tc.limit || p.Offset != tc.offs {
			t.Fatalf("%q: expected limit=%d offset=%d, got %+v", tc.query, tc.limit, tc.offs, p)
		}
	}
}

func TestPaginationBounds(t *testing.T) {
	cases := []struct {
		page       Pagination
		total      int
		start, end int
	}{
		{Pagination{Limit: 2, Offset: 0}, 5, 0, 2},
		{Pagination{Limit: 2, Offset: 4}, 5, 4, 5},
		{Pagination{Limit: 2, Offset: 9}, 5, 5, 5},
		{Pagination{Limit: 10, Offset: 0}, 0, 0, 0},
	}
	for _, tc := range cases {
		start, end := tc.page.Bounds(tc.total)
		if start != tc.start || end != tc.end {
			t.Fatalf("%+v of %d: expected [%d:%d], got [%d:%d]", tc.page, tc.total, tc.start, tc.end, start, end)
		}
	}
}
