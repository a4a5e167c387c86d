package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind buckets request failures for logs and metric labels.
type Kind string

const (
	KindTimeout     Kind = "timeout"
	KindConnection  Kind = "connection"
	KindForbidden   Kind = "forbidden"
	KindNotFound    Kind = "not_found"
	KindRateLimited Kind = "rate_limited"
	KindDecode      Kind = "decode"
	KindOther       Kind = "other"
)

// RequestError wraps a failed fetch with its classification and target URL.
type RequestError struct {
	Kind Kind
	URL  string
	Err  error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.URL, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Classify wraps err in a RequestError with the matching kind. A non-nil
// err wins over the status code; a bad status with a nil err is still an
// error.
func Classify(err error, statusCode int, url string) error {
	if err == nil && (statusCode == 0 || statusCode < http.StatusBadRequest) {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &RequestError{Kind: KindTimeout, URL: url, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &RequestError{Kind: KindTimeout, URL: url, Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &RequestError{Kind: KindConnection, URL: url, Err: err}
	}

	if statusCode >= http.StatusBadRequest {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch statusCode {
		case http.StatusForbidden:
			return &RequestError{Kind: KindForbidden, URL: url, Err: wrapped}
		case http.StatusNotFound:
			return &RequestError{Kind: KindNotFound, URL: url, Err: wrapped}
		case http.StatusTooManyRequests:
			return &RequestError{Kind: KindRateLimited, URL: url, Err: wrapped}
		default:
			return &RequestError{Kind: KindOther, URL: url, Err: wrapped}
		}
	}

	return &RequestError{Kind: KindOther, URL: url, Err: err}
}

// KindOf extracts the classification, KindOther for foreign errors.
func KindOf(err error) Kind {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Kind
	}
	return KindOther
}

// IsNotFound reports whether err is a classified 404. Delisted items are
// skipped, not treated as source failures.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}
