package services

import (
	"context"
	"fmt"
	"io"
	"strings"

	"document-chat-platform/internal/ai"
	"document-chat-platform/models"
)

// AnswerStreamer is the capability the chat pipeline needs from the
// remote chat model
type AnswerStreamer interface {
	AskStream(ctx context.Context, pc models.PromptContext) (ai.AnswerStream, error)
}

// ChunkSink receives answer chunks in order as they arrive. Returning
// an error stops consumption; the stream is not restartable.
type ChunkSink func(chunk string) error

// ChatService assembles prompt context from a session transcript and
// consumes the streamed answer
type ChatService struct {
	streamer AnswerStreamer
}

// NewChatService creates a new chat service
func NewChatService(streamer AnswerStreamer) *ChatService {
	return &ChatService{streamer: streamer}
}

// StreamAnswer appends the question to the transcript, streams the
// answer chunk by chunk into sink, and records the assistant turn.
// On interruption or consumer cancellation the partial answer is kept
// and marked incomplete.
func (s *ChatService) StreamAnswer(ctx context.Context, sess *models.Session, question string, sink ChunkSink) (string, bool, error) {
	pc, err := sess.Ask(question)
	if err != nil {
		return "", false, err
	}
	pc.System = fmt.Sprintf(answerSystemPrompt, pc.Analysis)

	stream, err := s.streamer.AskStream(ctx, pc)
	if err != nil {
		// The question turn stays in the transcript; a failed exchange
		// does not invalidate the session.
		return "", false, err
	}

	return s.consume(sess, stream, sink)
}

// StreamSummary generates the initial document summary from the seeded
// analysis and records it as the first assistant turn
func (s *ChatService) StreamSummary(ctx context.Context, sess *models.Session, sink ChunkSink) (string, bool, error) {
	analysis := sess.Analysis()
	if analysis == "" {
		return "", false, models.ErrNotSeeded
	}

	pc := models.PromptContext{
		System:   SummarySystemPrompt,
		Question: analysis,
	}

	stream, err := s.streamer.AskStream(ctx, pc)
	if err != nil {
		return "", false, err
	}

	return s.consume(sess, stream, sink)
}

// consume drains the stream in order, forwarding each chunk to sink.
// Returns the concatenated text, whether it is incomplete, and the
// error that ended consumption early.
func (s *ChatService) consume(sess *models.Session, stream ai.AnswerStream, sink ChunkSink) (string, bool, error) {
	var answer strings.Builder

	for {
		chunk, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Chunks already yielded are valid; keep the partial
			// answer and mark it incomplete.
			if answer.Len() > 0 {
				sess.RecordPartialAnswer(answer.String())
			}
			return answer.String(), true, err
		}

		answer.WriteString(chunk)

		if sink != nil {
			if sinkErr := sink(chunk); sinkErr != nil {
				sess.RecordPartialAnswer(answer.String())
				return answer.String(), true, sinkErr
			}
		}
	}

	sess.RecordAnswer(answer.String())
	return answer.String(), false, nil
}
