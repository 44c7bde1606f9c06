// Package utils holds small helpers shared by the HTTP layer for paging
// through owner-scoped lists (clinics, staff).
package utils

import "strconv"

const (
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// AtoiDefault parses s as a base-10 int, returning def when s is empty or
// not a valid int. Surrounding spaces are not trimmed.
func AtoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if s == "" || err != nil {
		return def
	}
	return n
}

// ParsePage reads raw page and page_size query values. Missing or invalid
// values take the defaults; page is at least 1 and size is clamped to
// [1, MaxPageSize].
func ParsePage(pageRaw, sizeRaw string) (page, size int) {
	page = max(AtoiDefault(pageRaw, DefaultPage), 1)
	size = min(max(AtoiDefault(sizeRaw, DefaultPageSize), 1), MaxPageSize)
	return page, size
}

// Window returns the slice bounds [lo, hi) of page among total items and
// the number of pages. A page past the end yields an empty window.
func Window(total, page, size int) (lo, hi, pages int) {
	pages = (total + size - 1) / size
	lo = min((page-1)*size, total)
	hi = min(lo+size, total)
	return lo, hi, pages
}
