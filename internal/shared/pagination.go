package shared

// Pagination describes the page window of an offset based listing.
type Pagination struct {
	Offset     int
	Limit      int
	Total      int
	Page       int
	TotalPages int
}

// NewPagination derives page numbers from an offset window. A limit of zero
// or less falls back to 20 rows.
func NewPagination(offset, limit, total int) Pagination {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	if total < 0 {
		total = 0
	}
	return Pagination{
		Offset:     offset,
		Limit:      limit,
		Total:      total,
		Page:       offset/limit + 1,
		TotalPages: (total + limit - 1) / limit,
	}
}

// HasPrev reports whether a page precedes the current one.
func (p Pagination) HasPrev() bool { return p.Page > 1 }

// HasNext reports whether a page follows the current one.
func (p Pagination) HasNext() bool { return p.Page < p.TotalPages }

// Rows reports the row range shown, one based; both are zero when the window
// is empty.
func (p Pagination) Rows() (first, last int) {
	if p.Offset >= p.Total {
		return 0, 0
	}
	last = p.Offset + p.Limit
	if last > p.Total {
		last = p.Total
	}
	return p.Offset + 1, last
}
