package pagination

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Page is a 1-based offset window over a listing.
type Page struct {
	Page  int
	Limit int
}

// Normalize moves Page to at least 1 and Limit into [1, MaxLimit], with
// DefaultLimit for unset limits.
func (p Page) Normalize() Page {
	p.Page = max(p.Page, 1)
	p.Limit = clampLimit(p.Limit)
	return p
}

func (p Page) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.Limit
}

// Meta describes the page a listing response carries.
type Meta struct {
	Page         int   `json:"page"`
	Limit        int   `json:"limit"`
	TotalRecords int64 `json:"totalRecords"`
	TotalPages   int   `json:"totalPages"`
}

// Meta reports p against total matching rows.
func (p Page) Meta(total int64) Meta {
	n := p.Normalize()
	return Meta{Page: n.Page, Limit: n.Limit, TotalRecords: total, TotalPages: TotalPages(total, n.Limit)}
}

// TotalPages is ceil(total/limit); no rows means zero pages.
func TotalPages(total int64, limit int) int {
	if total <= 0 {
		return 0
	}
	l := int64(clampLimit(limit))
	return int((total + l - 1) / l)
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}
