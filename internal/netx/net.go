// Package netx holds the HTTP plumbing shared by the HTTP based adapters:
// request execution and mapping of response status codes onto the common
// error taxonomy.
package netx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dmitrijs2005/discshelf/internal/common"
)

// maxErrorBody bounds how much of an error response is kept for diagnostics.
const maxErrorBody = 4 << 10

// StatusError is a non-2xx response. It unwraps to the sentinel chosen by
// MapStatus so callers can use errors.Is.
type StatusError struct {
	Code int
	Body string
	err  error
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http %d: %v", e.Code, e.err)
	}
	return fmt.Sprintf("http %d: %v; body: %s", e.Code, e.err, e.Body)
}

func (e *StatusError) Unwrap() error { return e.err }

// MapStatus maps an HTTP status code onto a sentinel error.
func MapStatus(code int) error {
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return common.ErrUnauthorized
	case code == http.StatusNotFound:
		return common.ErrNotFound
	case code == http.StatusConflict, code == http.StatusPreconditionFailed:
		return common.ErrConflict
	case code == http.StatusTooManyRequests:
		return common.ErrQuotaExceeded
	case code == http.StatusRequestTimeout, code >= 500:
		return common.ErrTransient
	default:
		return fmt.Errorf("unexpected status %d", code)
	}
}

// NewStatusError builds a StatusError from code and a response body excerpt.
func NewStatusError(code int, body []byte) *StatusError {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &StatusError{Code: code, Body: string(body), err: MapStatus(code)}
}

// Do executes req and returns the body and headers of a 2xx response. Other
// statuses become *StatusError; transport failures wrap ErrTransient unless
// the context was cancelled.
func Do(client *http.Client, req *http.Request) ([]byte, http.Header, error) {
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("%w: %s %s: %w", common.ErrTransient, req.Method, req.URL.Redacted(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: read body: %w", common.ErrTransient, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.Header, NewStatusError(resp.StatusCode, body)
	}
	return body, resp.Header, nil
}

// NewRequest builds a request carrying header values.
func NewRequest(ctx context.Context, method, url string, body io.Reader, header http.Header) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return req, nil
}
