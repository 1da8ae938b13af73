package db

// ===== Listing helpers =====

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

type Page struct {
	Limit  int
	Offset int
	Order  string // "asc" or "desc"
}

// Normalize clamps limit/offset and defaults the order to newest-first.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Order != "asc" {
		p.Order = "desc"
	}
	return p
}

// Direction is the SQL keyword for p.Order. Only ever "ASC" or "DESC", so it
// is safe to splice into a query.
func (p Page) Direction() string {
	if p.Order == "asc" {
		return "ASC"
	}
	return "DESC"
}

// NextOffset is 0 once the page reaches the end of the result set.
func NextOffset(total int64, p Page) int {
	n := p.Offset + p.Limit
	if n >= int(total) {
		return 0
	}
	return n
}
