package dto

import "github.com/flexprice/billing/internal/types"

// SuccessResponse represents a generic success response
type SuccessResponse struct {
	Message string `json:"message"`
}

// PaginationResponse describes the page returned by a list endpoint
type PaginationResponse struct {
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func NewPaginationResponse(total int, filter types.BaseFilter) *PaginationResponse {
	if filter == nil {
		return &PaginationResponse{Total: total}
	}
	return &PaginationResponse{
		Total:  total,
		Limit:  filter.GetLimit(),
		Offset: filter.GetOffset(),
	}
}
