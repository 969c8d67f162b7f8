// Package utils provides pagination helpers for list endpoints.
// Page parameters come from the reserved "page" and "limit" query keys and
// are coerced to positive integers before any database query is built.
package utils

import (
	"math"
	"net/url"
	"strconv"
)

// Pagination constants define default and limit values for page sizes.
const (
	// DefaultPage is used when the page parameter is absent or invalid
	DefaultPage = 1

	// DefaultPageSize is the default number of items per page when not specified
	DefaultPageSize = 100

	// MaxPageSize is the hard ceiling applied when no other ceiling is configured
	MaxPageSize = 500
)

// PageParams holds pagination parameters parsed from request query parameters.
// All values are validated and normalized to safe ranges.
type PageParams struct {
	Page     int // 1-based page number
	PageSize int // Number of items per page
	Offset   int // Calculated offset for database query (0-based)
}

// PageMeta contains pagination metadata returned in API responses.
type PageMeta struct {
	Page         int   `json:"page"`
	PageSize     int   `json:"pageSize"`
	TotalPages   int   `json:"totalPages"`
	TotalItems   int64 `json:"totalItems"`
	HasPrevious  bool  `json:"hasPrevious"`
	HasNext      bool  `json:"hasNext"`
	PreviousPage *int  `json:"previousPage,omitempty"`
	NextPage     *int  `json:"nextPage,omitempty"`
}

// PaginatedResponse wraps list results with pagination metadata.
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Pagination PageMeta    `json:"pagination"`
}

// ParsePageParams extracts and validates pagination parameters from query values.
//
// Query parameters:
//   - page: Page number (1-based, default: 1)
//   - limit: Items per page (default: defaultSize, capped at maxSize)
//
// Missing, non-numeric, zero or negative values fall back to their defaults
// rather than being clamped, so "limit=-5" yields the default page size.
// Values above maxSize are clamped to maxSize, and page is clamped so the
// offset always fits in an int. Non-positive defaultSize or
// maxSize arguments fall back to DefaultPageSize and MaxPageSize.
//
// Example:
//
//	// GET /tweets?page=2&limit=10
//	params := utils.ParsePageParams(r.URL.Query(), 100, 500)
//	// params.Page = 2, params.PageSize = 10, params.Offset = 10
func ParsePageParams(values url.Values, defaultSize, maxSize int) PageParams {
	if defaultSize < 1 {
		defaultSize = DefaultPageSize
	}
	if maxSize < 1 {
		maxSize = MaxPageSize
	}
	if defaultSize > maxSize {
		defaultSize = maxSize
	}

	page := parsePositiveInt(values, "page", DefaultPage)
	pageSize := parsePositiveInt(values, "limit", defaultSize)
	if pageSize > maxSize {
		pageSize = maxSize
	}
	// (page-1)*pageSize must not overflow into a negative offset.
	if maxPage := math.MaxInt / pageSize; page > maxPage {
		page = maxPage
	}

	return PageParams{
		Page:     page,
		PageSize: pageSize,
		Offset:   (page - 1) * pageSize,
	}
}

// CalculateMeta computes pagination metadata from page parameters and total count.
//
// Example:
//
//	params := PageParams{Page: 2, PageSize: 10}
//	meta := params.CalculateMeta(45)
//	// meta.TotalPages = 5, meta.HasPrevious = true, meta.HasNext = true
func (p PageParams) CalculateMeta(totalItems int64) PageMeta {
	pageSize := p.PageSize
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}

	totalPages := int((totalItems + int64(pageSize) - 1) / int64(pageSize))
	if totalPages < 1 {
		totalPages = 1
	}

	hasPrevious := p.Page > 1
	hasNext := p.Page < totalPages

	var previousPage *int
	var nextPage *int

	if hasPrevious {
		prev := p.Page - 1
		previousPage = &prev
	}

	if hasNext {
		next := p.Page + 1
		nextPage = &next
	}

	return PageMeta{
		Page:         p.Page,
		PageSize:     pageSize,
		TotalPages:   totalPages,
		TotalItems:   totalItems,
		HasPrevious:  hasPrevious,
		HasNext:      hasNext,
		PreviousPage: previousPage,
		NextPage:     nextPage,
	}
}

// NewPaginatedResponse creates a paginated response with data and metadata.
func NewPaginatedResponse(data interface{}, params PageParams, totalItems int64) PaginatedResponse {
	return PaginatedResponse{
		Data:       data,
		Pagination: params.CalculateMeta(totalItems),
	}
}

// parsePositiveInt returns the integer under key, or defaultValue when the
// key is missing, malformed or not strictly positive.
func parsePositiveInt(values url.Values, key string, defaultValue int) int {
	valueStr := values.Get(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil || value < 1 {
		return defaultValue
	}

	return value
}
