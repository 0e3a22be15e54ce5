// Package completion is the chat-side client of the relay. It checks the
// outgoing turn, posts the history and turns every outcome into either text
// or a classified *apperr.Error.
package completion

import (
	"codemate/codemate/utils/apperr"
	httputils "codemate/codemate/utils/http"
	"codemate/codemate/utils/logging"
	"codemate/codemate/utils/types"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

type Client struct {
	relayURL   string
	token      string
	httpClient *http.Client
}

// NewClient targets the relay at relayURL. token is sent as a bearer
// credential when non-empty.
func NewClient(relayURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		relayURL:   strings.TrimRight(relayURL, "/"),
		token:      token,
		httpClient: httpClient,
	}
}

type relayEnvelope struct {
	Response string `json:"response"`
	Error    string `json:"error"`
	Details  string `json:"details"`
	Kind     string `json:"kind"`
}

// Send relays history plus attachment metadata and returns the reply text.
func (c *Client) Send(ctx context.Context, history []types.Message, attachments []types.FileDescriptor) (string, error) {
	defer logging.LogDuration(ctx, "completion_send")()
	if err := CheckInput(history, attachments); err != nil {
		return "", err
	}

	resp, err := httputils.PostJSON(ctx, c.httpClient, c.relayURL, c.token, Payload(history, attachments))
	if err != nil {
		return "", c.fail(requestError(err))
	}

	var env relayEnvelope
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return "", c.fail(apperr.Wrap(apperr.Unhandled, apperr.DefaultMessage(apperr.Unhandled),
			fmt.Errorf("relay status %d: unreadable body: %w", resp.Status, err)))
	}
	if env.Error != "" {
		e := relayError(env.Error, env.Details, env.Kind)
		e.Status = resp.Status
		return "", c.fail(e)
	}
	if !resp.OK() {
		return "", c.fail(apperr.Wrap(apperr.Unhandled, apperr.DefaultMessage(apperr.Unhandled),
			fmt.Errorf("relay status %d without error body", resp.Status)))
	}
	if strings.TrimSpace(env.Response) == "" {
		return "", c.fail(apperr.New(apperr.EmptyResponse, apperr.DefaultMessage(apperr.EmptyResponse)))
	}
	return env.Response, nil
}

// streamInput and streamFrame mirror the relay socket protocol.
type streamInput struct {
	Token   string             `json:"token,omitempty"`
	Request types.RelayRequest `json:"request"`
}

type streamFrame struct {
	Type     string `json:"type"`
	Content  string `json:"content"`
	Response string `json:"response"`
	Error    string `json:"error"`
	Details  string `json:"details"`
	Kind     string `json:"kind"`
}

// Stream is Send over the relay websocket. onChunk sees every delta in order;
// the full reply is returned at the end.
func (c *Client) Stream(ctx context.Context, history []types.Message, attachments []types.FileDescriptor, onChunk func(string)) (string, error) {
	defer logging.LogDuration(ctx, "completion_stream")()
	if err := CheckInput(history, attachments); err != nil {
		return "", err
	}

	conn, _, err := websocket.Dial(ctx, c.relayURL+"/ws", &websocket.DialOptions{HTTPClient: c.httpClient})
	if err != nil {
		return "", c.fail(requestError(fmt.Errorf("%w: %w", httputils.ErrTransport, err)))
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	conn.SetReadLimit(1 << 20)

	input, err := json.Marshal(streamInput{Token: c.token, Request: Payload(history, attachments)})
	if err != nil {
		return "", c.fail(apperr.Wrap(apperr.Unhandled, apperr.DefaultMessage(apperr.Unhandled), err))
	}
	if err := conn.Write(ctx, websocket.MessageText, input); err != nil {
		return "", c.fail(requestError(fmt.Errorf("%w: %w", httputils.ErrTransport, err)))
	}

	var sb strings.Builder
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return "", c.fail(requestError(fmt.Errorf("%w: stream ended early: %w", httputils.ErrTransport, err)))
		}
		var frame streamFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			return "", c.fail(apperr.Wrap(apperr.Unhandled, apperr.DefaultMessage(apperr.Unhandled), err))
		}
		switch frame.Type {
		case "chunk":
			sb.WriteString(frame.Content)
			if onChunk != nil {
				onChunk(frame.Content)
			}
		case "done":
			out := frame.Response
			if out == "" {
				out = sb.String()
			}
			if strings.TrimSpace(out) == "" {
				return "", c.fail(apperr.New(apperr.EmptyResponse, apperr.DefaultMessage(apperr.EmptyResponse)))
			}
			return out, nil
		case "error":
			return "", c.fail(relayError(frame.Error, frame.Details, frame.Kind))
		}
	}
}

// CheckInput enforces the send preconditions before any network work.
func CheckInput(history []types.Message, attachments []types.FileDescriptor) error {
	if len(history) == 0 {
		return apperr.New(apperr.EmptyInput, apperr.DefaultMessage(apperr.EmptyInput))
	}
	last := history[len(history)-1]
	if strings.TrimSpace(last.Content) == "" && len(attachments) == 0 {
		return apperr.New(apperr.EmptyInput, apperr.DefaultMessage(apperr.EmptyInput))
	}
	return nil
}

// Payload builds the relay body. Only file metadata is included.
func Payload(history []types.Message, attachments []types.FileDescriptor) types.RelayRequest {
	files := make([]types.FileDescriptor, 0, len(attachments))
	for _, f := range attachments {
		files = append(files, types.FileDescriptor{Name: f.Name, Size: f.Size, Type: f.Type})
	}
	return types.RelayRequest{Messages: types.ToWire(history), Files: files}
}

// relayError re-surfaces a relay error body. The text is kept verbatim; only
// a blank upstream answer keeps its own kind.
func relayError(message, details, kind string) *apperr.Error {
	k := apperr.UpstreamError
	if parsed, ok := apperr.ParseKind(kind); ok && parsed == apperr.EmptyResponse {
		k = apperr.EmptyResponse
	}
	e := apperr.New(k, message)
	e.Detail = details
	return e
}

func requestError(err error) *apperr.Error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(apperr.Unhandled, "The request was cancelled before the assistant answered.", err)
	}
	if errors.Is(err, httputils.ErrTransport) {
		return apperr.Wrap(apperr.NetworkError, apperr.DefaultMessage(apperr.NetworkError), err)
	}
	return apperr.Wrap(apperr.Unhandled, apperr.DefaultMessage(apperr.Unhandled), err)
}

func (c *Client) fail(e *apperr.Error) error {
	logging.ErrorLogger.Error("completion failed",
		zap.String("kind", e.Kind.String()),
		zap.Int("status", e.Status),
		zap.String("detail", e.Detail),
	)
	return e
}
