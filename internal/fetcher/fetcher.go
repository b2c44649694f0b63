// Package fetcher retrieves raw post content from the social media source.
package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"regexp"

	"github.com/cuongbtq/recipe-import/internal/recipe"
)

// Code classifies a fetch failure
type Code string

// Fetch error codes
const (
	CodeNotFound        Code = "NOT_FOUND"
	CodeForbidden       Code = "FORBIDDEN"
	CodeRateLimited     Code = "RATE_LIMITED"
	CodeUpstream        Code = "UPSTREAM"
	CodeTimeout         Code = "TIMEOUT"
	CodeInvalidResponse Code = "INVALID_RESPONSE"
	CodeInvalidID       Code = "INVALID_ID"
)

// FetchError is returned for every failed fetch
type FetchError struct {
	Code    Code
	Message string
	Err     error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch failed (%s): %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("fetch failed (%s): %s", e.Code, e.Message)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// PostFetcher returns the raw content of one post. Implementations make a
// single attempt per call.
type PostFetcher interface {
	Fetch(ctx context.Context, postID string) (*recipe.RawContent, error)
}

var postIDRe = regexp.MustCompile(`^[A-Za-z0-9_.:\-]{1,128}$`)

// ValidatePostID rejects ids that cannot name a post
func ValidatePostID(postID string) error {
	if !postIDRe.MatchString(postID) {
		return &FetchError{Code: CodeInvalidID, Message: fmt.Sprintf("invalid post id %q", postID)}
	}
	return nil
}

// ClassifyHTTPStatus maps a non-2xx status to a fetch error code.
// It returns "" for success statuses.
func ClassifyHTTPStatus(statusCode int) Code {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return ""
	case statusCode == http.StatusNotFound || statusCode == http.StatusGone:
		return CodeNotFound
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return CodeForbidden
	case statusCode == http.StatusTooManyRequests:
		return CodeRateLimited
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusGatewayTimeout:
		return CodeTimeout
	case statusCode == http.StatusBadRequest:
		return CodeInvalidID
	case statusCode >= 500:
		return CodeUpstream
	default:
		return CodeInvalidResponse
	}
}
