package meter

import (
	"fmt"
	"math"
	"strings"
)

// SortField enumerates the sortable columns
type SortField int

const (
	SortCreatedAt SortField = iota
	SortMeterID
	SortConsumerID
	SortValue
)

// Column returns the stored column backing the sort field.
func (f SortField) Column() string {
	switch f {
	case SortMeterID:
		return "meter_id"
	case SortConsumerID:
		return "consumer_id"
	case SortValue:
		return "value"
	default:
		return "created_at"
	}
}

// ParseSortField accepts the API names created, meter_id, consumer_id and value.
func ParseSortField(s string) (SortField, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "created", "created_at":
		return SortCreatedAt, nil
	case "meter_id", "meter":
		return SortMeterID, nil
	case "consumer_id", "consumer":
		return SortConsumerID, nil
	case "value":
		return SortValue, nil
	}
	return SortCreatedAt, &ValidationError{Fields: []string{"sort"}, Reason: fmt.Sprintf("unknown sort field %q", s)}
}

// SortDirection is ascending or descending
type SortDirection int

const (
	Descending SortDirection = iota
	Ascending
)

// SQL returns ASC or DESC.
func (d SortDirection) SQL() string {
	if d == Ascending {
		return "ASC"
	}
	return "DESC"
}

// ParseSortDirection accepts asc/desc; empty means descending.
func ParseSortDirection(s string) (SortDirection, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "desc", "descending":
		return Descending, nil
	case "asc", "ascending":
		return Ascending, nil
	}
	return Descending, &ValidationError{Fields: []string{"dir"}, Reason: fmt.Sprintf("unknown sort direction %q", s)}
}

// Query describes a filtered, sorted page request
type Query struct {
	Search        string
	ConsumerExact string
	Sort          SortField
	Direction     SortDirection
	Page          int
	PageSize      int
}

// Validate checks the pagination bounds.
func (q Query) Validate() error {
	if q.Page < 0 {
		return &ValidationError{Fields: []string{"page"}, Reason: "must not be negative"}
	}
	if q.PageSize <= 0 {
		return &ValidationError{Fields: []string{"page_size"}, Reason: "must be positive"}
	}
	// Page*PageSize must stay representable as an OFFSET
	if q.Page > math.MaxInt/q.PageSize {
		return &ValidationError{Fields: []string{"page"}, Reason: "too large for page size"}
	}
	return nil
}

// Offset is the number of matching rows skipped before the page.
func (q Query) Offset() int {
	return q.Page * q.PageSize
}

// Page is one slice of a filtered, sorted result set
type Page struct {
	Items    []Meter `json:"items"`
	Total    int     `json:"total"`
	Page     int     `json:"page"`
	PageSize int     `json:"page_size"`
	Pages    int     `json:"pages"`
}

// PageCount returns ceil(total / pageSize).
func PageCount(total, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}
