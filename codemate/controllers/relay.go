// codemate/controllers/relay.go
package controllers

import (
	"codemate/codemate/prompts"
	"codemate/codemate/services/llm"
	"codemate/codemate/sources/psql/models"
	"codemate/codemate/utils/apperr"
	"codemate/codemate/utils/logging"
	"codemate/codemate/utils/types"
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Journal stores relay outcomes. Implementations must not keep message text.
type Journal interface {
	Record(ctx context.Context, ex *models.Exchange) error
}

// RelayController reshapes chat histories and forwards them upstream. It holds
// no per-conversation state.
type RelayController struct {
	llm     llm.Completer
	profile *prompts.Profile
	journal Journal
	now     func() time.Time
}

// NewRelayController wires a completer and a profile. journal may be nil.
func NewRelayController(completer llm.Completer, profile *prompts.Profile, journal Journal) *RelayController {
	return &RelayController{
		llm:     completer,
		profile: profile,
		journal: journal,
		now:     time.Now,
	}
}

// BuildMessages maps the wire history to upstream messages behind the system
// instruction. The result always has len(req.Messages)+1 entries, and the file
// summary only ever lands on the last one.
func (c *RelayController) BuildMessages(req types.RelayRequest) []llm.Message {
	msgs := make([]llm.Message, 0, len(req.Messages)+1)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: c.profile.System})

	for _, m := range req.Messages {
		role := llm.RoleAssistant
		if m.Type == types.WireUser {
			role = llm.RoleUser
		}
		content := m.Content
		if strings.TrimSpace(content) == "" {
			content = c.profile.Placeholder
		}
		msgs = append(msgs, llm.Message{Role: role, Content: content})
	}

	if summary := types.FileSummary(req.Files); summary != "" && len(msgs) > 1 {
		last := &msgs[len(msgs)-1]
		last.Content += "\n\n" + summary
	}
	return msgs
}

func (c *RelayController) chatRequest(req types.RelayRequest) llm.ChatRequest {
	s := c.profile.Sampling
	return llm.ChatRequest{
		Model:            c.profile.Model,
		Messages:         c.BuildMessages(req),
		Temperature:      s.Temperature,
		TopP:             s.TopP,
		FrequencyPenalty: s.FrequencyPenalty,
		PresencePenalty:  s.PresencePenalty,
		MaxTokens:        s.MaxTokens,
	}
}

// Relay validates req, calls upstream once and returns non-blank text or a
// classified error.
func (c *RelayController) Relay(ctx context.Context, req types.RelayRequest) (text string, err error) {
	defer logging.LogDuration(ctx, "relay")()
	start := c.now()
	defer func() { c.record(ctx, req, false, start, err) }()

	if err := types.ValidateRelayRequest(req); err != nil {
		return "", err
	}
	logging.AppLogger.Info("relaying chat request",
		zap.String("request_id", middleware.GetReqID(ctx)),
		zap.Int("messages", len(req.Messages)),
		zap.Int("files", len(req.Files)),
	)

	out, err := c.llm.Run(ctx, c.chatRequest(req))
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out) == "" {
		return "", apperr.New(apperr.EmptyResponse, apperr.DefaultMessage(apperr.EmptyResponse))
	}
	return out, nil
}

// RelayStream is Relay over a streaming upstream call. onChunk receives every
// delta in order; returning an error from it aborts the stream.
func (c *RelayController) RelayStream(ctx context.Context, req types.RelayRequest, onChunk func(string) error) (text string, err error) {
	defer logging.LogDuration(ctx, "relay_stream")()
	start := c.now()
	defer func() { c.record(ctx, req, true, start, err) }()

	if err := types.ValidateRelayRequest(req); err != nil {
		return "", err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch, errCh, err := c.llm.RunStream(ctx, c.chatRequest(req))
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for chunk := range ch {
		sb.WriteString(chunk)
		if err := onChunk(chunk); err != nil {
			cancel()
			for range ch {
			}
			return "", apperr.Wrap(apperr.Unhandled, apperr.DefaultMessage(apperr.Unhandled), err)
		}
	}
	if streamErr := <-errCh; streamErr != nil {
		return "", streamErr
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", apperr.Wrap(apperr.Unhandled, apperr.DefaultMessage(apperr.Unhandled), ctxErr)
	}
	out := sb.String()
	if strings.TrimSpace(out) == "" {
		return "", apperr.New(apperr.EmptyResponse, apperr.DefaultMessage(apperr.EmptyResponse))
	}
	return out, nil
}

func (c *RelayController) record(ctx context.Context, req types.RelayRequest, streamed bool, start time.Time, err error) {
	outcome := "ok"
	status := 200
	if err != nil {
		outcome = apperr.KindOf(err).String()
		status = 0
		var ae *apperr.Error
		if errors.As(err, &ae) {
			status = ae.Status
		}
		logging.ErrorLogger.Error("relay failed",
			zap.String("request_id", middleware.GetReqID(ctx)),
			zap.String("kind", outcome),
			zap.String("detail", apperr.Detail(err)),
		)
	}
	if c.journal == nil {
		return
	}
	ex := &models.Exchange{
		RequestID:    middleware.GetReqID(ctx),
		Streamed:     streamed,
		MessageCount: len(req.Messages),
		FileCount:    len(req.Files),
		Outcome:      outcome,
		Status:       status,
		LatencyMS:    c.now().Sub(start).Milliseconds(),
	}
	// The caller's context may already be done; the journal write must not
	// depend on it.
	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := c.journal.Record(jctx, ex); err != nil {
		logging.ErrorLogger.Error("journal write failed", zap.Error(err))
	}
}

// ErrorBody composes the client-facing body for a failed relay call.
func ErrorBody(err error, now time.Time) types.ErrorResponse {
	kind := apperr.KindOf(err)
	fragments := []string{"Could not generate a response.", apperr.Display(err)}
	switch kind {
	case apperr.InvalidRequest, apperr.EmptyInput:
	case apperr.UpstreamError:
		fragments = append(fragments, "Please try again in a few moments.")
	default:
		fragments = append(fragments, "Please try again later.")
	}
	return types.ErrorResponse{
		Error:      strings.Join(fragments, " "),
		Details:    apperr.Detail(err),
		Timestamp:  now.UTC().Format(time.RFC3339),
		Suggestion: apperr.Suggestion(kind),
		Kind:       kind.String(),
	}
}
