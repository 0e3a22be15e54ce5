// codemate/services/llm/llm.go
package llm

import (
	"codemate/codemate/utils/apperr"
	httputils "codemate/codemate/utils/http"
	"context"
	"fmt"
	"net/http"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Model            string    `json:"model"`
	Messages         []Message `json:"messages"`
	Temperature      float64   `json:"temperature"`
	TopP             float64   `json:"top_p"`
	FrequencyPenalty float64   `json:"frequency_penalty"`
	PresencePenalty  float64   `json:"presence_penalty"`
	MaxTokens        int       `json:"max_tokens"`
	Stream           bool      `json:"stream"`
}

// Completer is an upstream chat-completions backend.
//
// RunStream delivers deltas on the first channel. Once it is closed the error
// channel yields nil if the answer finished, or why it did not.
type Completer interface {
	Run(ctx context.Context, req ChatRequest) (string, error)
	RunStream(ctx context.Context, req ChatRequest) (<-chan string, <-chan error, error)
}

const maxDetailLen = 400

// ClassifyStatus turns a non-2xx upstream answer into an UpstreamError whose
// message depends on the status code.
func ClassifyStatus(status int, body []byte) *apperr.Error {
	var msg string
	switch status {
	case http.StatusTooManyRequests:
		msg = "The AI service is receiving too many requests (rate limit reached)."
	case http.StatusUnauthorized:
		msg = "The AI service rejected the API key: the credential is invalid or missing."
	case http.StatusForbidden:
		msg = "Access to the AI service was denied for this account."
	default:
		msg = fmt.Sprintf("The AI service answered with status %d.", status)
	}
	e := apperr.New(apperr.UpstreamError, msg)
	e.Status = status
	e.Detail = fmt.Sprintf("upstream status %d: %s", status, httputils.Truncate(string(body), maxDetailLen))
	return e
}
