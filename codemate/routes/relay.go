package routes

import (
	"codemate/codemate/config"
	"codemate/codemate/controllers"
	"codemate/codemate/middlewares"
	"codemate/codemate/utils/apperr"
	"codemate/codemate/utils/logging"
	"codemate/codemate/utils/types"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Frame types sent over the streaming socket.
const (
	FrameChunk = "chunk"
	FrameDone  = "done"
	FrameError = "error"
)

// MaxRequestBytes bounds a relay request body and the first socket frame.
const MaxRequestBytes = 1 << 20

// StreamInput is the first frame a streaming client sends.
type StreamInput struct {
	Token   string             `json:"token,omitempty"`
	Request types.RelayRequest `json:"request"`
}

// StreamFrame is every frame the server sends back. Error fields are set only
// on error frames.
type StreamFrame struct {
	Type     string `json:"type"`
	Content  string `json:"content,omitempty"`
	Response string `json:"response,omitempty"`
	*types.ErrorResponse
}

// RelayRoutes serves the relay. limiter may be nil.
func RelayRoutes(ctrl *controllers.RelayController, cfg config.Config, limiter func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	if limiter != nil {
		r.Use(limiter)
	}

	r.Group(func(gr chi.Router) {
		gr.Use(middlewares.AuthMiddleware(cfg))
		gr.Use(middleware.Timeout(60 * time.Second))

		// POST /ai-chat : one completion
		gr.Post("/", func(w http.ResponseWriter, r *http.Request) {
			var req types.RelayRequest
			r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBytes)
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				var tooBig *http.MaxBytesError
				if errors.As(err, &tooBig) {
					writeError(w, apperr.Wrap(apperr.InvalidRequest, tooLongMessage, err))
					return
				}
				writeError(w, apperr.Wrap(apperr.InvalidRequest, "The request body is not valid JSON.", err))
				return
			}
			text, err := ctrl.Relay(r.Context(), req)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, types.RelayResponse{Response: text})
		})
	})

	// GET /ai-chat/ws : streamed completion. The token travels in the first
	// frame since browsers cannot set headers on a websocket handshake.
	r.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusInternalError, "internal error")

		// readInput enforces the size, so an oversized history still gets an
		// error frame.
		conn.SetReadLimit(-1)

		ctx := r.Context()
		typ, data, err := readInput(ctx, conn)
		if err != nil {
			if errors.Is(err, errInputTooLarge) {
				writeFrameError(ctx, conn, apperr.Wrap(apperr.InvalidRequest, tooLongMessage, err))
				conn.Close(websocket.StatusMessageTooBig, "request too large")
			}
			return
		}
		if typ != websocket.MessageText {
			conn.Close(websocket.StatusUnsupportedData, "unsupported data")
			return
		}
		var input StreamInput
		if err := json.Unmarshal(data, &input); err != nil {
			writeFrameError(ctx, conn, apperr.Wrap(apperr.InvalidRequest, "The request body is not valid JSON.", err))
			conn.Close(websocket.StatusUnsupportedData, "invalid json")
			return
		}
		if cfg.JWTSecret != "" {
			if _, err := middlewares.VerifyToken(cfg.JWTSecret, input.Token); err != nil {
				writeFrame(ctx, conn, StreamFrame{Type: FrameError, ErrorResponse: &types.ErrorResponse{
					Error:   "unauthorized",
					Details: err.Error(),
				}})
				conn.Close(websocket.StatusPolicyViolation, "invalid token")
				return
			}
		}

		text, err := ctrl.RelayStream(ctx, input.Request, func(chunk string) error {
			return writeFrame(ctx, conn, StreamFrame{Type: FrameChunk, Content: chunk})
		})
		if err != nil {
			writeFrameError(ctx, conn, err)
			conn.Close(websocket.StatusNormalClosure, "")
			return
		}
		writeFrame(ctx, conn, StreamFrame{Type: FrameDone, Response: text})
		conn.Close(websocket.StatusNormalClosure, "")
	})
	return r
}

const tooLongMessage = "The conversation is too long to send. Start a new chat or remove older messages."

var errInputTooLarge = fmt.Errorf("request exceeds %d bytes", MaxRequestBytes)

// readInput reads the first frame, at most MaxRequestBytes of it.
func readInput(ctx context.Context, conn *websocket.Conn) (websocket.MessageType, []byte, error) {
	typ, rd, err := conn.Reader(ctx)
	if err != nil {
		return 0, nil, err
	}
	data, err := io.ReadAll(io.LimitReader(rd, MaxRequestBytes+1))
	if err != nil {
		return 0, nil, err
	}
	if len(data) > MaxRequestBytes {
		return 0, nil, errInputTooLarge
	}
	return typ, data, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.ErrorLogger.Error("response encode failed", zap.Error(err))
	}
}

// Every relay failure is a 500 with a composed ErrorResponse body.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusInternalServerError, controllers.ErrorBody(err, time.Now()))
}

func writeFrame(ctx context.Context, conn *websocket.Conn, frame StreamFrame) error {
	b, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

func writeFrameError(ctx context.Context, conn *websocket.Conn, err error) {
	body := controllers.ErrorBody(err, time.Now())
	frame := StreamFrame{Type: FrameError, ErrorResponse: &body}
	if werr := writeFrame(ctx, conn, frame); werr != nil {
		logging.ErrorLogger.Error("stream error frame not delivered", zap.Error(werr))
	}
}
