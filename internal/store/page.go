package store

// Paging bounds applied when callers pass zero or out-of-range values.
const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// pageWindow is a normalized pagination window over a known total.
type pageWindow struct {
	page       int
	limit      int
	offset     int
	totalPages int
}

// clampPage normalizes page and limit against the total row count: the
// limit is defaulted and capped, the page defaults to 1 and is clamped to
// the last page so out-of-range requests return the final page instead of
// an empty one.
func clampPage(page, limit int, total int64) pageWindow {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if page < 1 {
		page = 1
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))
	if totalPages < 1 {
		totalPages = 1
	}
	if page > totalPages {
		page = totalPages
	}

	return pageWindow{
		page:       page,
		limit:      limit,
		offset:     (page - 1) * limit,
		totalPages: totalPages,
	}
}
