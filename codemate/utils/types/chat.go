// codemate/utils/types/chat.go
package types

import (
	"codemate/codemate/utils/apperr"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Wire values for WireMessage.Type.
const (
	WireUser = "user"
	WireAI   = "ai"
)

type FileDescriptor struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Type string `json:"type"`
}

// MIME returns the descriptor type, or "unknown" when the picker gave none.
func (f FileDescriptor) MIME() string {
	if strings.TrimSpace(f.Type) == "" {
		return "unknown"
	}
	return f.Type
}

// Message is one turn of a session. It is never mutated after creation.
type Message struct {
	ID          string           `json:"id"`
	Role        Role             `json:"role"`
	Content     string           `json:"content"`
	Attachments []FileDescriptor `json:"attachments,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

type WireMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type RelayRequest struct {
	Messages []WireMessage   `json:"messages"`
	Files    []FileDescriptor `json:"files"`
}

type RelayResponse struct {
	Response string `json:"response"`
}

// ErrorResponse is the body of every failed relay call.
type ErrorResponse struct {
	Error      string `json:"error"`
	Details    string `json:"details"`
	Timestamp  string `json:"timestamp,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
	Kind       string `json:"kind,omitempty"`
}

// ToWire converts session turns to the relay's role/content pairs.
func ToWire(history []Message) []WireMessage {
	out := make([]WireMessage, 0, len(history))
	for _, m := range history {
		typ := WireAI
		if m.Role == RoleUser {
			typ = WireUser
		}
		out = append(out, WireMessage{Type: typ, Content: m.Content})
	}
	return out
}

func ValidateRelayRequest(req RelayRequest) error {
	if len(req.Messages) == 0 {
		return apperr.New(apperr.InvalidRequest, apperr.DefaultMessage(apperr.InvalidRequest))
	}
	for _, f := range req.Files {
		if f.Size < 0 {
			e := apperr.New(apperr.InvalidRequest, "Attached file metadata is invalid.")
			e.Detail = fmt.Sprintf("file %q has negative size %d", f.Name, f.Size)
			return e
		}
	}
	return nil
}

// FileSummary renders attachment metadata as text for the model. Empty input
// yields an empty string.
func FileSummary(files []FileDescriptor) string {
	if len(files) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Attached files:")
	for _, f := range files {
		fmt.Fprintf(&b, "\n- File: %s (%d bytes, type: %s)", f.Name, f.Size, f.MIME())
	}
	return b.String()
}

var sizeUnits = []string{"Bytes", "KB", "MB", "GB"}

// FormatSize renders a byte count for display, e.g. 1536 -> "1.5 KB".
func FormatSize(bytes int64) string {
	if bytes <= 0 {
		return "0 Bytes"
	}
	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if i >= len(sizeUnits) {
		i = len(sizeUnits) - 1
	}
	v := float64(bytes) / math.Pow(1024, float64(i))
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64) + " " + sizeUnits[i]
}

// DocumentExtensions are the source and text files the client lets users attach.
var DocumentExtensions = []string{
	".js", ".ts", ".tsx", ".jsx", ".py", ".java", ".cpp", ".c",
	".html", ".css", ".json", ".xml", ".md", ".txt",
}

// IsAcceptedAttachment reports whether the client should allow a file to be
// attached. The relay never enforces this.
func IsAcceptedAttachment(name, mimeType string) bool {
	if strings.HasPrefix(mimeType, "image/") {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range DocumentExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
