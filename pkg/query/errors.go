package query

import (
	"errors"
	"fmt"
)

// Code tags a rejected list query.
type Code string

const (
	CodeBadFilter     Code = "BAD_FILTER"
	CodeBadSort       Code = "BAD_SORT"
	CodeBadProjection Code = "BAD_PROJECTION"
)

// Error is returned by Build when the raw query cannot be turned into a Spec.
// It is always a client error.
type Error struct {
	Code    Code
	Field   string
	Message string
}

func (e *Error) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Field)
}

// IsError reports whether err is a query Error and returns it.
func IsError(err error) (*Error, bool) {
	var qe *Error
	if errors.As(err, &qe) {
		return qe, true
	}
	return nil, false
}

func badFilter(field, format string, args ...interface{}) *Error {
	return &Error{Code: CodeBadFilter, Field: field, Message: fmt.Sprintf(format, args...)}
}

func badSort(field, format string, args ...interface{}) *Error {
	return &Error{Code: CodeBadSort, Field: field, Message: fmt.Sprintf(format, args...)}
}

func badProjection(field, format string, args ...interface{}) *Error {
	return &Error{Code: CodeBadProjection, Field: field, Message: fmt.Sprintf(format, args...)}
}
