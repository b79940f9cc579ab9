// Package dto provides Data Transfer Objects for API requests/responses.
package dto

// IDResponse contains the ID of a created resource.
type IDResponse struct {
	ID string `json:"id"`
}

// SuccessResponse is a simple success acknowledgement.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ListResponse wraps list results with pagination.
type ListResponse struct {
	Items      any `json:"items"`
	TotalCount int `json:"totalCount"`
	Limit      int `json:"limit"`
	Offset     int `json:"offset"`
}
