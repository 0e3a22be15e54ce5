// codemate/utils/http/httputils.go
package httputils

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrTransport marks failures to reach the remote side at all, as opposed to
// the remote side answering with an error.
var ErrTransport = errors.New("transport failure")

type Response struct {
	Status int
	Body   []byte
}

func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

func newJSONRequest(ctx context.Context, url, token string, body interface{}) (*http.Request, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// PostJSON posts body and returns the full response whatever its status.
// Only encoding and transport failures are errors; transport failures wrap
// ErrTransport.
func PostJSON(ctx context.Context, client *http.Client, url, token string, body interface{}) (*Response, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := newJSONRequest(ctx, url, token, body)
	if err != nil {
		return nil, err
	}
	r, err := client.Do(req)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	defer r.Body.Close()
	b, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	return &Response{Status: r.StatusCode, Body: b}, nil
}

// PostStream posts body and hands back the open response body on 2xx. On any
// other status the body is read, closed and returned as a Response.
func PostStream(ctx context.Context, client *http.Client, url, token string, body interface{}) (io.ReadCloser, *Response, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := newJSONRequest(ctx, url, token, body)
	if err != nil {
		return nil, nil, err
	}
	r, err := client.Do(req)
	if err != nil {
		return nil, nil, transportError(ctx, err)
	}
	if r.StatusCode < 200 || r.StatusCode >= 300 {
		defer r.Body.Close()
		b, _ := io.ReadAll(r.Body)
		return nil, &Response{Status: r.StatusCode, Body: b}, nil
	}
	return r.Body, &Response{Status: r.StatusCode}, nil
}

// Context cancellation is reported as is, not as a transport failure.
func transportError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %w", ErrTransport, err)
}

// Truncate cuts s to at most n runes for logs and error details.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
