package fecapi

import (
	"errors"
	"fmt"
)

// ErrServerError marks 5xx responses, which are retried
var ErrServerError = errors.New("fecapi: server error")

// Response is the envelope returned by every table endpoint
type Response struct {
	Results    []map[string]any `json:"results"`
	Pagination Pagination       `json:"pagination"`
}

// Pagination describes the result window. LastIndexes is only present on
// seek-paginated endpoints and holds the cursor for the next page.
type Pagination struct {
	Count       int64          `json:"count"`
	Page        int            `json:"page,omitempty"`
	Pages       int            `json:"pages,omitempty"`
	PerPage     int            `json:"per_page,omitempty"`
	LastIndexes map[string]any `json:"last_indexes,omitempty"`
}

// statusReply is the body of the download status endpoint
type statusReply struct {
	Status string `json:"status"`
	URL    string `json:"url"`
}

// APIError represents a non-success response from the API
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("FEC API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// Unwrap lets errors.Is match ErrServerError for 5xx responses
func (e *APIError) Unwrap() error {
	if e.StatusCode >= 500 {
		return ErrServerError
	}
	return nil
}
