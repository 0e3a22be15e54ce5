package controllers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"codemate/codemate/prompts"
	"codemate/codemate/services/llm"
	"codemate/codemate/sources/psql/models"
	"codemate/codemate/utils/apperr"
	"codemate/codemate/utils/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	mu        sync.Mutex
	calls     []llm.ChatRequest
	out       string
	chunks    []string
	err       error
	streamErr error
}

func (f *fakeCompleter) Run(ctx context.Context, req llm.ChatRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	return f.out, f.err
}

func (f *fakeCompleter) RunStream(ctx context.Context, req llm.ChatRequest) (<-chan string, <-chan error, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.err != nil {
		return nil, nil, f.err
	}
	ch := make(chan string)
	errCh := make(chan error, 1)
	go func() {
		defer func() {
			if f.streamErr != nil {
				errCh <- f.streamErr
			}
			close(errCh)
			close(ch)
		}()
		for _, c := range f.chunks {
			select {
			case ch <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, errCh, nil
}

type fakeJournal struct {
	mu      sync.Mutex
	entries []*models.Exchange
}

func (j *fakeJournal) Record(ctx context.Context, ex *models.Exchange) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, ex)
	return nil
}

func testProfile() *prompts.Profile {
	return &prompts.Profile{
		Model: "gpt-4o-mini",
		Sampling: prompts.Sampling{
			Temperature: 0.7, TopP: 0.9, FrequencyPenalty: 0.1, PresencePenalty: 0.1, MaxTokens: 2000,
		},
		Placeholder: "(empty)",
		System:      "You are a coding assistant.",
	}
}

func TestBuildMessagesPreservesOrder(t *testing.T) {
	ctrl := NewRelayController(&fakeCompleter{}, testProfile(), nil)
	req := types.RelayRequest{Messages: []types.WireMessage{
		{Type: "ai", Content: "Ciao!"},
		{Type: "user", Content: "first"},
		{Type: "bot", Content: "reply"},
		{Type: "user", Content: "second"},
	}}

	msgs := ctrl.BuildMessages(req)
	require.Len(t, msgs, len(req.Messages)+1)
	assert.Equal(t, llm.Message{Role: llm.RoleSystem, Content: "You are a coding assistant."}, msgs[0])
	assert.Equal(t, llm.Message{Role: llm.RoleAssistant, Content: "Ciao!"}, msgs[1])
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "first"}, msgs[2])
	assert.Equal(t, llm.Message{Role: llm.RoleAssistant, Content: "reply"}, msgs[3])
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "second"}, msgs[4])
}

func TestBuildMessagesPlaceholder(t *testing.T) {
	ctrl := NewRelayController(&fakeCompleter{}, testProfile(), nil)
	msgs := ctrl.BuildMessages(types.RelayRequest{Messages: []types.WireMessage{
		{Type: "user", Content: "  "},
		{Type: "ai"},
	}})
	require.Len(t, msgs, 3)
	assert.Equal(t, "(empty)", msgs[1].Content)
	assert.Equal(t, "(empty)", msgs[2].Content)
}

func TestBuildMessagesFilesOnLastEntry(t *testing.T) {
	ctrl := NewRelayController(&fakeCompleter{}, testProfile(), nil)
	msgs := ctrl.BuildMessages(types.RelayRequest{
		Messages: []types.WireMessage{
			{Type: "user", Content: "earlier"},
			{Type: "ai", Content: "ok"},
			{Type: "user", Content: "look at this"},
		},
		Files: []types.FileDescriptor{{Name: "a.py", Size: 120, Type: "text/x-python"}},
	})

	last := msgs[len(msgs)-1].Content
	assert.True(t, strings.HasPrefix(last, "look at this\n\n"))
	assert.Contains(t, last, "a.py")
	assert.Contains(t, last, "120")
	for _, m := range msgs[:len(msgs)-1] {
		assert.NotContains(t, m.Content, "a.py")
	}
}

func TestRelaySuccess(t *testing.T) {
	fc := &fakeCompleter{out: "Salve!"}
	journal := &fakeJournal{}
	ctrl := NewRelayController(fc, testProfile(), journal)

	out, err := ctrl.Relay(context.Background(), types.RelayRequest{
		Messages: []types.WireMessage{{Type: "user", Content: "Ciao"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Salve!", out)

	require.Len(t, fc.calls, 1)
	call := fc.calls[0]
	assert.Equal(t, "gpt-4o-mini", call.Model)
	assert.Equal(t, 0.7, call.Temperature)
	assert.Equal(t, 0.9, call.TopP)
	assert.Equal(t, 0.1, call.FrequencyPenalty)
	assert.Equal(t, 0.1, call.PresencePenalty)
	assert.Equal(t, 2000, call.MaxTokens)
	assert.Len(t, call.Messages, 2)

	require.Len(t, journal.entries, 1)
	assert.Equal(t, "ok", journal.entries[0].Outcome)
	assert.Equal(t, 1, journal.entries[0].MessageCount)
}

func TestRelayEmptyMessagesSkipsUpstream(t *testing.T) {
	fc := &fakeCompleter{out: "never"}
	journal := &fakeJournal{}
	ctrl := NewRelayController(fc, testProfile(), journal)

	_, err := ctrl.Relay(context.Background(), types.RelayRequest{})
	require.Error(t, err)
	assert.Equal(t, apperr.InvalidRequest, apperr.KindOf(err))
	assert.Empty(t, fc.calls)
	require.Len(t, journal.entries, 1)
	assert.Equal(t, "invalid_request", journal.entries[0].Outcome)
}

func TestRelayBlankOutput(t *testing.T) {
	ctrl := NewRelayController(&fakeCompleter{out: " \n\t"}, testProfile(), nil)
	_, err := ctrl.Relay(context.Background(), types.RelayRequest{
		Messages: []types.WireMessage{{Type: "user", Content: "hi"}},
	})
	assert.Equal(t, apperr.EmptyResponse, apperr.KindOf(err))
}

func TestRelayUpstreamError(t *testing.T) {
	journal := &fakeJournal{}
	ctrl := NewRelayController(&fakeCompleter{err: llm.ClassifyStatus(http.StatusTooManyRequests, nil)}, testProfile(), journal)
	_, err := ctrl.Relay(context.Background(), types.RelayRequest{
		Messages: []types.WireMessage{{Type: "user", Content: "hi"}},
	})
	assert.Equal(t, apperr.UpstreamError, apperr.KindOf(err))
	require.Len(t, journal.entries, 1)
	assert.Equal(t, http.StatusTooManyRequests, journal.entries[0].Status)
}

func TestRelayStream(t *testing.T) {
	ctrl := NewRelayController(&fakeCompleter{chunks: []string{"Sal", "ve", "!"}}, testProfile(), nil)

	var got []string
	out, err := ctrl.RelayStream(context.Background(), types.RelayRequest{
		Messages: []types.WireMessage{{Type: "user", Content: "Ciao"}},
	}, func(s string) error {
		got = append(got, s)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Salve!", out)
	assert.Equal(t, []string{"Sal", "ve", "!"}, got)
}

func TestRelayStreamBlank(t *testing.T) {
	ctrl := NewRelayController(&fakeCompleter{chunks: []string{" ", "\n"}}, testProfile(), nil)
	_, err := ctrl.RelayStream(context.Background(), types.RelayRequest{
		Messages: []types.WireMessage{{Type: "user", Content: "Ciao"}},
	}, func(string) error { return nil })
	assert.Equal(t, apperr.EmptyResponse, apperr.KindOf(err))
}

func TestRelayStreamTruncated(t *testing.T) {
	journal := &fakeJournal{}
	ctrl := NewRelayController(&fakeCompleter{
		chunks:    []string{"Partial ", "ans"},
		streamErr: apperr.New(apperr.UpstreamError, "stopped early"),
	}, testProfile(), journal)

	var got []string
	out, err := ctrl.RelayStream(context.Background(), types.RelayRequest{
		Messages: []types.WireMessage{{Type: "user", Content: "Ciao"}},
	}, func(s string) error {
		got = append(got, s)
		return nil
	})
	assert.Empty(t, out)
	assert.Equal(t, apperr.UpstreamError, apperr.KindOf(err))
	assert.Equal(t, []string{"Partial ", "ans"}, got)
	require.Len(t, journal.entries, 1)
	assert.Equal(t, "upstream_error", journal.entries[0].Outcome)
}

func TestRelayStreamAbort(t *testing.T) {
	ctrl := NewRelayController(&fakeCompleter{chunks: []string{"a", "b", "c"}}, testProfile(), nil)
	calls := 0
	_, err := ctrl.RelayStream(context.Background(), types.RelayRequest{
		Messages: []types.WireMessage{{Type: "user", Content: "Ciao"}},
	}, func(string) error {
		calls++
		return errors.New("client went away")
	})
	assert.Equal(t, apperr.Unhandled, apperr.KindOf(err))
	assert.Equal(t, 1, calls)
}

func TestErrorBody(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	body := ErrorBody(llm.ClassifyStatus(http.StatusUnauthorized, []byte("bad key")), now)
	assert.Contains(t, body.Error, "Could not generate a response.")
	assert.Contains(t, body.Error, "API key")
	assert.Contains(t, body.Details, "bad key")
	assert.Equal(t, "2026-10-18T12:00:00Z", body.Timestamp)
	assert.NotEmpty(t, body.Suggestion)
	assert.Equal(t, "upstream_error", body.Kind)

	body = ErrorBody(errors.New("kaboom"), now)
	assert.Contains(t, body.Error, apperr.DefaultMessage(apperr.Unhandled))
	assert.Equal(t, "kaboom", body.Details)
}
