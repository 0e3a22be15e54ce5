// Package apperr holds the tagged error variants shared by the relay and the
// chat client. Classification happens on Kind, never on message text.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	Unhandled Kind = iota
	EmptyInput
	NetworkError
	UpstreamError
	EmptyResponse
	InvalidRequest
	Busy
)

var kindNames = map[Kind]string{
	Unhandled:      "unhandled",
	EmptyInput:     "empty_input",
	NetworkError:   "network_error",
	UpstreamError:  "upstream_error",
	EmptyResponse:  "empty_response",
	InvalidRequest: "invalid_request",
	Busy:           "busy",
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return Unhandled, false
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a classified failure. Message is display-ready; Detail is the raw
// cause text and is never shown as the primary message.
type Error struct {
	Kind    Kind
	Message string
	Detail  string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies err. The cause's text becomes Detail.
func Wrap(kind Kind, message string, err error) *Error {
	e := &Error{Kind: kind, Message: message, Err: err}
	if err != nil {
		e.Detail = err.Error()
	}
	return e
}

// KindOf returns Unhandled for errors that were never classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unhandled
}

// Display returns the text to show an end user for err.
func Display(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return DefaultMessage(Unhandled)
}

// Detail returns the raw failure detail, falling back to err's own text.
func Detail(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Detail != "" {
			return e.Detail
		}
		return e.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

func DefaultMessage(kind Kind) string {
	switch kind {
	case EmptyInput:
		return "Write a message or attach a file before sending."
	case NetworkError:
		return "Unable to reach the assistant. Check your internet connection and try again."
	case UpstreamError:
		return "The AI service returned an error."
	case EmptyResponse:
		return "The AI service returned an empty response."
	case InvalidRequest:
		return "The request is missing the conversation messages."
	case Busy:
		return "A reply is still being generated, wait for it before sending again."
	default:
		return "An error occurred while talking to the AI. Please try again."
	}
}

// Suggestion is an actionable hint paired with a failure kind.
func Suggestion(kind Kind) string {
	switch kind {
	case EmptyInput:
		return "Type a question or attach a file."
	case NetworkError:
		return "Check your connection and resend the message."
	case UpstreamError:
		return "Wait a moment and resend the message. If it keeps failing, contact the administrator."
	case EmptyResponse:
		return "Rephrase the question and send it again."
	case InvalidRequest:
		return "Send at least one message in the conversation."
	case Busy:
		return "Wait for the current reply to finish."
	default:
		return "Resend the message. If it keeps failing, reload the chat."
	}
}
