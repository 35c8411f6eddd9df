package models

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

type TurnRole string

const (
	RoleContext   TurnRole = "context"
	RoleUser      TurnRole = "user"
	RoleAssistant TurnRole = "assistant"
)

var (
	ErrEmptyQuestion = errors.New("question must not be empty")
	ErrNotSeeded     = errors.New("session has no analysis context yet")
	ErrSessionBusy   = errors.New("another operation is in flight for this session")
)

// ConversationTurn is one entry in a session transcript. Incomplete
// marks a partial answer kept after a stream interruption.
type ConversationTurn struct {
	Role       TurnRole  `json:"role"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
	Incomplete bool      `json:"incomplete,omitempty"`
}

// PromptMessage is one role-tagged message of the context sent to the
// chat model
type PromptMessage struct {
	Role TurnRole
	Text string
}

// PromptContext is the full ordered context for one question: the
// analysis seed, every prior turn verbatim, and the new question. No
// summarization or truncation happens here; a context-window overflow
// surfaces from the remote call.
type PromptContext struct {
	System   string
	Analysis string
	History  []PromptMessage
	Question string
}

// Session owns exactly one active document and its transcript. Its
// lifetime is one user interaction session; a new upload constructs a
// fresh Session rather than mutating this one.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu         sync.Mutex
	document   *Document
	turns      []ConversationTurn
	lastActive time.Time
	inFlight   bool
}

// NewSession creates a session owning the given document
func NewSession(doc *Document) *Session {
	now := time.Now()
	return &Session{
		ID:         uuid.NewString(),
		CreatedAt:  now,
		document:   doc,
		lastActive: now,
	}
}

// Document returns the session's active document
func (s *Session) Document() *Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.document
}

// Seed initializes the transcript with the analysis result as its
// first entry. Seeding again discards the previous transcript
// entirely; the new analysis supersedes the old one.
func (s *Session) Seed(analysis string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = []ConversationTurn{
		{
			Role:      RoleContext,
			Text:      analysis,
			Timestamp: time.Now(),
		},
	}
	s.lastActive = time.Now()
}

// Seeded reports whether an analysis context has been set
func (s *Session) Seeded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns) > 0
}

// Analysis returns the seed analysis text
func (s *Session) Analysis() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.turns) == 0 {
		return ""
	}
	return s.turns[0].Text
}

// Ask appends a user turn and returns the full ordered context to send
// to the chat model: the seed analysis, all prior turns verbatim, and
// the new question.
func (s *Session) Ask(question string) (PromptContext, error) {
	if question == "" {
		return PromptContext{}, ErrEmptyQuestion
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.turns) == 0 {
		return PromptContext{}, ErrNotSeeded
	}

	history := make([]PromptMessage, 0, len(s.turns)-1)
	for _, turn := range s.turns[1:] {
		history = append(history, PromptMessage{Role: turn.Role, Text: turn.Text})
	}

	s.turns = append(s.turns, ConversationTurn{
		Role:      RoleUser,
		Text:      question,
		Timestamp: time.Now(),
	})
	s.lastActive = time.Now()

	return PromptContext{
		Analysis: s.turns[0].Text,
		History:  history,
		Question: question,
	}, nil
}

// RecordAnswer appends a complete assistant turn
func (s *Session) RecordAnswer(text string) {
	s.appendAssistant(text, false)
}

// RecordPartialAnswer appends an assistant turn marked incomplete.
// Partial answers from interrupted streams are kept, not discarded.
func (s *Session) RecordPartialAnswer(text string) {
	s.appendAssistant(text, true)
}

func (s *Session) appendAssistant(text string, incomplete bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, ConversationTurn{
		Role:       RoleAssistant,
		Text:       text,
		Timestamp:  time.Now(),
		Incomplete: incomplete,
	})
	s.lastActive = time.Now()
}

// Transcript returns a copy of the ordered transcript
func (s *Session) Transcript() []ConversationTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ConversationTurn, len(s.turns))
	copy(out, s.turns)
	return out
}

// LastActive returns the time of the most recent session activity
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// BeginOperation marks the session busy. One analysis or Q&A exchange
// is in flight at a time per session; a second trigger fails with
// ErrSessionBusy instead of queueing.
func (s *Session) BeginOperation() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return ErrSessionBusy
	}
	s.inFlight = true
	s.lastActive = time.Now()
	return nil
}

// EndOperation clears the busy marker
func (s *Session) EndOperation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	s.lastActive = time.Now()
}
