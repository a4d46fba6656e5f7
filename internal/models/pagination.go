package models

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100

	SortAsc  = "asc"
	SortDesc = "desc"
)

// ListOptions is offset pagination shared by every list operation.
type ListOptions struct {
	Limit     int    `form:"limit" json:"limit"`
	Offset    int    `form:"offset" json:"offset"`
	SortBy    string `form:"sortBy" json:"sortBy"`
	SortOrder string `form:"sortOrder" json:"sortOrder"`
}

// Normalize clamps the page size, drops negative offsets and fills in the
// sort field. allowed lists the sortable fields; the first entry is the
// default.
func (o ListOptions) Normalize(allowed ...string) ListOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultPageLimit
	}
	if o.Limit > MaxPageLimit {
		o.Limit = MaxPageLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	if o.SortOrder != SortAsc {
		o.SortOrder = SortDesc
	}

	valid := false
	for _, field := range allowed {
		if o.SortBy == field {
			valid = true
			break
		}
	}
	if !valid && len(allowed) > 0 {
		o.SortBy = allowed[0]
	}
	return o
}

type Page[T any] struct {
	Items  []T   `json:"items"`
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

func NewPage[T any](items []T, total int64, opts ListOptions) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{Items: items, Total: total, Limit: opts.Limit, Offset: opts.Offset}
}
