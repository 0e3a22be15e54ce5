// Package session holds the client side of one chat: the ordered turns, the
// input draft, pending attachments and the in-flight flag. Nothing here is
// persisted.
package session

import (
	"codemate/codemate/utils/apperr"
	"codemate/codemate/utils/types"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sender delivers a history to the assistant. completion.Client implements it.
type Sender interface {
	Send(ctx context.Context, history []types.Message, attachments []types.FileDescriptor) (string, error)
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, history []types.Message, attachments []types.FileDescriptor) (string, error)

func (f SenderFunc) Send(ctx context.Context, history []types.Message, attachments []types.FileDescriptor) (string, error) {
	return f(ctx, history, attachments)
}

type Session struct {
	mu          sync.Mutex
	sender      Sender
	messages    []types.Message
	draft       string
	attachments []types.FileDescriptor
	busy        bool
	now         func() time.Time
}

// New starts a session. A non-blank greeting becomes the first assistant turn.
func New(sender Sender, greeting string) *Session {
	s := &Session{sender: sender, now: time.Now}
	if strings.TrimSpace(greeting) != "" {
		s.messages = append(s.messages, s.newMessage(types.RoleAssistant, greeting, nil))
	}
	return s
}

func (s *Session) newMessage(role types.Role, content string, attachments []types.FileDescriptor) types.Message {
	return types.Message{
		ID:          uuid.NewString(),
		Role:        role,
		Content:     content,
		Attachments: attachments,
		CreatedAt:   s.now(),
	}
}

func (s *Session) SetDraft(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = text
}

func (s *Session) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

func (s *Session) Attach(files ...types.FileDescriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attachments = append(s.attachments, files...)
}

// Detach removes the pending attachment at index.
func (s *Session) Detach(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.attachments) {
		return fmt.Errorf("no attachment at position %d", index+1)
	}
	s.attachments = append(s.attachments[:index:index], s.attachments[index+1:]...)
	return nil
}

func (s *Session) Attachments() []types.FileDescriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.FileDescriptor(nil), s.attachments...)
}

// Messages returns a copy of the turns in order.
func (s *Session) Messages() []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Message(nil), s.messages...)
}

func (s *Session) IsBusy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// TrySend turns the draft and attachments into a user turn, sends the whole
// history and appends the reply. While a send is outstanding further calls
// fail with Busy. On failure the user turn stays in the history and the
// classified error is returned.
func (s *Session) TrySend(ctx context.Context) (types.Message, error) {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return types.Message{}, apperr.New(apperr.Busy, apperr.DefaultMessage(apperr.Busy))
	}
	if strings.TrimSpace(s.draft) == "" && len(s.attachments) == 0 {
		s.mu.Unlock()
		return types.Message{}, apperr.New(apperr.EmptyInput, apperr.DefaultMessage(apperr.EmptyInput))
	}

	files := s.attachments
	s.messages = append(s.messages, s.newMessage(types.RoleUser, s.draft, files))
	s.draft = ""
	s.attachments = nil
	s.busy = true
	history := append([]types.Message(nil), s.messages...)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	text, err := s.sender.Send(ctx, history, files)
	if err != nil {
		return types.Message{}, err
	}
	if strings.TrimSpace(text) == "" {
		return types.Message{}, apperr.New(apperr.EmptyResponse, apperr.DefaultMessage(apperr.EmptyResponse))
	}

	reply := s.newMessage(types.RoleAssistant, text, nil)
	s.mu.Lock()
	s.messages = append(s.messages, reply)
	s.mu.Unlock()
	return reply, nil
}
