package llm

import (
	"bufio"
	"codemate/codemate/utils/apperr"
	httputils "codemate/codemate/utils/http"
	"codemate/codemate/utils/logging"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const DefaultBaseURL = "https://api.openai.com/v1/chat/completions"

// GPTClient talks to an OpenAI-compatible chat-completions endpoint.
type GPTClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewGPTClient(apiKey, baseURL string, httpClient *http.Client) *GPTClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &GPTClient{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

type gptResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type gptStreamResponse struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Run executes a single completion request (non-streaming).
func (c *GPTClient) Run(ctx context.Context, req ChatRequest) (string, error) {
	defer logging.LogDuration(ctx, "gpt_service_run")()
	req.Stream = false

	resp, err := httputils.PostJSON(ctx, c.httpClient, c.baseURL, c.apiKey, req)
	if err != nil {
		return "", c.requestError(err)
	}
	if !resp.OK() {
		logging.ErrorLogger.Error("GPT request failed", zap.Int("status", resp.Status))
		return "", ClassifyStatus(resp.Status, resp.Body)
	}

	var parsed gptResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return "", apperr.Wrap(apperr.Unhandled, "The AI service sent an unreadable response.",
			fmt.Errorf("failed to decode GPT response: %w", err))
	}
	if len(parsed.Choices) == 0 {
		return "", apperr.New(apperr.EmptyResponse, apperr.DefaultMessage(apperr.EmptyResponse))
	}
	return parsed.Choices[0].Message.Content, nil
}

// RunStream posts a streaming request and emits content deltas as they arrive.
// A body that ends before [DONE] or a finish_reason is reported as an
// UpstreamError on the error channel.
func (c *GPTClient) RunStream(ctx context.Context, req ChatRequest) (<-chan string, <-chan error, error) {
	defer logging.LogDuration(ctx, "gpt_service_run_stream")()
	req.Stream = true

	body, resp, err := httputils.PostStream(ctx, c.httpClient, c.baseURL, c.apiKey, req)
	if err != nil {
		return nil, nil, c.requestError(err)
	}
	if !resp.OK() {
		logging.ErrorLogger.Error("GPT stream request failed", zap.Int("status", resp.Status))
		return nil, nil, ClassifyStatus(resp.Status, resp.Body)
	}

	ch := make(chan string)
	errCh := make(chan error, 1)

	go func() {
		var streamErr error
		defer func() {
			body.Close()
			if streamErr != nil {
				errCh <- streamErr
			}
			close(errCh)
			close(ch)
		}()

		reader := bufio.NewReader(body)
		finished := false

		for {
			if ctx.Err() != nil {
				logging.AppLogger.Info("GPT stream context cancelled")
				streamErr = cancelled(ctx)
				return
			}

			line, err := reader.ReadString('\n')
			if err != nil && !(err == io.EOF && line != "") {
				switch {
				case ctx.Err() != nil:
					streamErr = cancelled(ctx)
				case err != io.EOF:
					logging.ErrorLogger.Error("GPT stream read error", zap.Error(err))
					streamErr = truncated(fmt.Errorf("read stream: %w", err))
				case !finished:
					logging.ErrorLogger.Error("GPT stream ended without [DONE]")
					streamErr = truncated(errors.New("stream ended without [DONE]"))
				}
				return
			}

			line = strings.TrimSpace(line)
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}

			var chunk gptStreamResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				logging.ErrorLogger.Error("GPT stream JSON parse error",
					zap.Error(err), zap.String("raw_line", httputils.Truncate(data, maxDetailLen)))
				continue
			}

			for _, choice := range chunk.Choices {
				if choice.FinishReason != "" {
					finished = true
				}
				if choice.Delta.Content == "" {
					continue
				}
				select {
				case ch <- choice.Delta.Content:
				case <-ctx.Done():
					streamErr = cancelled(ctx)
					return
				}
			}
		}
	}()

	return ch, errCh, nil
}

func truncated(err error) error {
	return apperr.Wrap(apperr.UpstreamError, "The AI service stopped before the answer was complete.", err)
}

func cancelled(ctx context.Context) error {
	return apperr.Wrap(apperr.Unhandled, apperr.DefaultMessage(apperr.Unhandled), ctx.Err())
}

func (c *GPTClient) requestError(err error) error {
	logging.ErrorLogger.Error("GPT request error", zap.Error(err))
	if errors.Is(err, httputils.ErrTransport) {
		return apperr.Wrap(apperr.UpstreamError, "The AI service could not be reached.", err)
	}
	return apperr.Wrap(apperr.Unhandled, apperr.DefaultMessage(apperr.Unhandled), err)
}
