package types

// PaginationMetadata describes where a page sits within a filtered result set.
// It is computed per query and never persisted.
type PaginationMetadata struct {
	TotalItemCount int `json:"totalItemCount"`
	TotalPages     int `json:"totalPages"`
	PageSize       int `json:"pageSize"`
	CurrentPage    int `json:"currentPage"`
}

// NewPaginationMetadata computes the page counters for a result set.
// pageSize must be greater than zero; callers clamp it before calling and a
// zero value panics with an integer division by zero.
func NewPaginationMetadata(totalItemCount, pageSize, currentPage int) PaginationMetadata {
	totalPages := totalItemCount / pageSize
	if totalItemCount%pageSize != 0 {
		totalPages++
	}
	return PaginationMetadata{
		TotalItemCount: totalItemCount,
		TotalPages:     totalPages,
		PageSize:       pageSize,
		CurrentPage:    currentPage,
	}
}
