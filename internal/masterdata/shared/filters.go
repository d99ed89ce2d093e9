// Package shared holds list filters common to the masterdata packages.
package shared

// ListFilters carries the common listing parameters.
type ListFilters struct {
	CompanyID *int64
	Search    string
	Status    string
	SortBy    string
	SortDir   string
	Page      int
	Limit     int
}

// Normalize applies listing defaults.
func (f *ListFilters) Normalize() {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
}

// Offset returns the row offset for the current page.
func (f *ListFilters) Offset() int {
	return (f.Page - 1) * f.Limit
}
