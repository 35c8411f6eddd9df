package ai

import (
	"io"

	genai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
)

// AnswerStream is a finite, non-restartable sequence of text chunks
// produced by the chat model. Next returns io.EOF after the final
// chunk; a mid-stream failure surfaces as RemoteError with kind
// RemoteStreamInterrupted. Chunks already returned remain valid.
// Consumers cancel by abandoning the stream (and cancelling the
// request context).
type AnswerStream interface {
	Next() (string, error)
}

type geminiStream struct {
	iter       *genai.GenerateContentResponseIterator
	pending    string
	hasPending bool
	done       bool
}

func (s *geminiStream) Next() (string, error) {
	if s.hasPending {
		s.hasPending = false
		return s.pending, nil
	}
	if s.done {
		return "", io.EOF
	}

	// The SDK can emit responses whose candidates carry no text parts;
	// skip those rather than yielding empty chunks.
	for {
		resp, err := s.iter.Next()
		if err == iterator.Done {
			s.done = true
			return "", io.EOF
		}
		if err != nil {
			s.done = true
			return "", &RemoteError{Kind: RemoteStreamInterrupted, Err: err}
		}

		if text := extractTextFromResponse(resp); text != "" {
			return text, nil
		}
	}
}
