package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"document-chat-platform/internal/ai"
	"document-chat-platform/models"
)

// fakeStream replays canned chunks, optionally failing partway
type fakeStream struct {
	chunks    []string
	pos       int
	failAfter int // fail once this many chunks were yielded; 0 = never
}

func (f *fakeStream) Next() (string, error) {
	if f.failAfter > 0 && f.pos == f.failAfter {
		return "", &ai.RemoteError{Kind: ai.RemoteStreamInterrupted, Err: errors.New("connection reset")}
	}
	if f.pos >= len(f.chunks) {
		return "", io.EOF
	}
	chunk := f.chunks[f.pos]
	f.pos++
	return chunk, nil
}

// fakeStreamer hands out fakeStreams and records prompt contexts
type fakeStreamer struct {
	chunks    []string
	failAfter int
	openErr   error
	contexts  []models.PromptContext
}

func (f *fakeStreamer) AskStream(ctx context.Context, pc models.PromptContext) (ai.AnswerStream, error) {
	f.contexts = append(f.contexts, pc)
	if f.openErr != nil {
		return nil, f.openErr
	}
	return &fakeStream{chunks: f.chunks, failAfter: f.failAfter}, nil
}

func seededSession(t *testing.T, analysis string) *models.Session {
	t.Helper()
	sess := models.NewSession(&models.Document{
		Filename: "doc.pdf",
		Format:   models.FormatPDF,
		Pages:    []models.PageImage{{Number: 1, Data: []byte{1}, MIMEType: "image/png"}},
	})
	sess.Seed(analysis)
	return sess
}

func TestStreamAnswerReconstruction(t *testing.T) {
	chunks := []string{"The total ", "is ", "$42.00."}
	streamer := &fakeStreamer{chunks: chunks}
	svc := NewChatService(streamer)
	sess := seededSession(t, "invoice analysis")

	var received []string
	reply, incomplete, err := svc.StreamAnswer(context.Background(), sess, "What is the total?", func(chunk string) error {
		received = append(received, chunk)
		return nil
	})
	if err != nil {
		t.Fatalf("stream answer failed: %v", err)
	}
	if incomplete {
		t.Fatal("complete answer reported as incomplete")
	}

	// Concatenating the yielded chunks must reconstruct the answer
	want := strings.Join(chunks, "")
	if got := strings.Join(received, ""); got != want {
		t.Fatalf("sink chunks reconstruct %q, want %q", got, want)
	}
	if reply != want {
		t.Fatalf("reply %q, want %q", reply, want)
	}

	turns := sess.Transcript()
	last := turns[len(turns)-1]
	if last.Role != models.RoleAssistant || last.Text != want || last.Incomplete {
		t.Fatalf("unexpected recorded answer: %+v", last)
	}
}

func TestStreamAnswerSystemPromptCarriesAnalysis(t *testing.T) {
	streamer := &fakeStreamer{chunks: []string{"ok"}}
	svc := NewChatService(streamer)
	sess := seededSession(t, "the document lists three line items")

	if _, _, err := svc.StreamAnswer(context.Background(), sess, "summarize", nil); err != nil {
		t.Fatalf("stream answer failed: %v", err)
	}

	if len(streamer.contexts) != 1 {
		t.Fatalf("expected one prompt context, got %d", len(streamer.contexts))
	}
	pc := streamer.contexts[0]
	if !strings.Contains(pc.System, "the document lists three line items") {
		t.Fatalf("system prompt missing analysis: %q", pc.System)
	}
	if pc.Question != "summarize" {
		t.Fatalf("question %q", pc.Question)
	}
}

func TestStreamAnswerInterruptionKeepsPartial(t *testing.T) {
	streamer := &fakeStreamer{chunks: []string{"partial ", "answer ", "never finished"}, failAfter: 2}
	svc := NewChatService(streamer)
	sess := seededSession(t, "analysis")

	reply, incomplete, err := svc.StreamAnswer(context.Background(), sess, "question?", nil)
	if !ai.IsRemoteKind(err, ai.RemoteStreamInterrupted) {
		t.Fatalf("expected stream interrupted error, got %v", err)
	}
	if !incomplete {
		t.Fatal("interrupted answer not reported incomplete")
	}
	if reply != "partial answer " {
		t.Fatalf("partial reply %q", reply)
	}

	turns := sess.Transcript()
	last := turns[len(turns)-1]
	if last.Role != models.RoleAssistant || !last.Incomplete {
		t.Fatalf("partial answer not kept as incomplete turn: %+v", last)
	}
	if last.Text != "partial answer " {
		t.Fatalf("kept partial %q", last.Text)
	}
}

func TestStreamAnswerConsumerCancellation(t *testing.T) {
	streamer := &fakeStreamer{chunks: []string{"one ", "two ", "three"}}
	svc := NewChatService(streamer)
	sess := seededSession(t, "analysis")

	cancelErr := errors.New("client went away")
	seen := 0
	reply, incomplete, err := svc.StreamAnswer(context.Background(), sess, "question?", func(chunk string) error {
		seen++
		if seen == 2 {
			return cancelErr
		}
		return nil
	})
	if !errors.Is(err, cancelErr) {
		t.Fatalf("expected cancellation error, got %v", err)
	}
	if !incomplete {
		t.Fatal("cancelled answer not reported incomplete")
	}
	if reply != "one two " {
		t.Fatalf("partial reply %q", reply)
	}
}

func TestStreamAnswerOpenFailureLeavesSessionUsable(t *testing.T) {
	streamer := &fakeStreamer{openErr: &ai.RemoteError{Kind: ai.RemoteRejected, Code: 429, Err: errors.New("rate limited")}}
	svc := NewChatService(streamer)
	sess := seededSession(t, "analysis")

	_, _, err := svc.StreamAnswer(context.Background(), sess, "question?", nil)
	if !ai.IsRemoteKind(err, ai.RemoteRejected) {
		t.Fatalf("expected rejected error, got %v", err)
	}

	// Session must stay usable: a second exchange succeeds
	streamer.openErr = nil
	streamer.chunks = []string{"recovered"}
	reply, incomplete, err := svc.StreamAnswer(context.Background(), sess, "retry question", nil)
	if err != nil || incomplete {
		t.Fatalf("follow-up exchange failed: %v (incomplete=%v)", err, incomplete)
	}
	if reply != "recovered" {
		t.Fatalf("reply %q", reply)
	}
}

func TestStreamSummaryRecordsFirstAssistantTurn(t *testing.T) {
	streamer := &fakeStreamer{chunks: []string{"## Summary\n", "Key points here."}}
	svc := NewChatService(streamer)
	sess := seededSession(t, "full analysis text")

	reply, incomplete, err := svc.StreamSummary(context.Background(), sess, nil)
	if err != nil || incomplete {
		t.Fatalf("summary failed: %v (incomplete=%v)", err, incomplete)
	}
	if reply != "## Summary\nKey points here." {
		t.Fatalf("summary %q", reply)
	}

	pc := streamer.contexts[0]
	if pc.System != SummarySystemPrompt {
		t.Fatal("summary did not use the summarizer system prompt")
	}
	if pc.Question != "full analysis text" {
		t.Fatalf("summary input %q", pc.Question)
	}

	turns := sess.Transcript()
	if len(turns) != 2 || turns[1].Role != models.RoleAssistant {
		t.Fatalf("summary not recorded as first assistant turn: %+v", turns)
	}
}

func TestStreamSummaryRequiresSeed(t *testing.T) {
	svc := NewChatService(&fakeStreamer{chunks: []string{"x"}})
	sess := models.NewSession(&models.Document{Filename: "a.png", Format: models.FormatPNG,
		Pages: []models.PageImage{{Number: 1, Data: []byte{1}, MIMEType: "image/png"}}})

	if _, _, err := svc.StreamSummary(context.Background(), sess, nil); !errors.Is(err, models.ErrNotSeeded) {
		t.Fatalf("expected ErrNotSeeded, got %v", err)
	}
}

// Covers the full flow: load a 2-page PDF, analyze it, ask a question,
// and check the resulting transcript shape.
func TestInvoiceScenario(t *testing.T) {
	loader := NewDocumentLoader(testLoaderConfig())
	doc, err := loader.Load(makePDF(t, 2), "invoice.pdf")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if doc.PageCount() != 2 {
		t.Fatalf("expected 2 pages, got %d", doc.PageCount())
	}

	analyzer := &fakeAnalyzer{}
	analysisSvc := NewAnalysisService(analyzer)
	analysisText, err := analysisSvc.AnalyzeDocument(context.Background(), doc)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if analysisText == "" {
		t.Fatal("analysis text empty")
	}
	if !strings.Contains(analysisText, "Page 1:") || !strings.Contains(analysisText, "Page 2:") {
		t.Fatalf("analysis missing page markers:\n%s", analysisText)
	}

	sess := models.NewSession(doc)
	sess.Seed(analysisText)

	chatSvc := NewChatService(&fakeStreamer{chunks: []string{"The total is ", "$1,234.56."}})
	var streamed strings.Builder
	reply, incomplete, err := chatSvc.StreamAnswer(context.Background(), sess, "What is the total?", func(chunk string) error {
		streamed.WriteString(chunk)
		return nil
	})
	if err != nil || incomplete {
		t.Fatalf("chat failed: %v (incomplete=%v)", err, incomplete)
	}
	if reply == "" || streamed.String() != reply {
		t.Fatalf("streamed %q, reply %q", streamed.String(), reply)
	}

	turns := sess.Transcript()
	if len(turns) != 3 {
		t.Fatalf("expected 3 transcript entries (seed, question, answer), got %d", len(turns))
	}
	if turns[0].Role != models.RoleContext || turns[1].Role != models.RoleUser || turns[2].Role != models.RoleAssistant {
		t.Fatalf("unexpected transcript roles: %s %s %s", turns[0].Role, turns[1].Role, turns[2].Role)
	}
}
