package ai

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"

	"document-chat-platform/internal/logger"
	"document-chat-platform/models"
)

type GeminiClient struct {
	client      *genai.Client
	visionModel string
	chatModel   string
	breaker     *gobreaker.CircuitBreaker
	rateLimiter *rate.Limiter
}

type RateLimits struct {
	RPM int // Requests per minute
	TPM int // Tokens per minute
	RPD int // Requests per day
}

func NewGeminiClient(ctx context.Context, apiKey, visionModel, chatModel, tier string) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	// Configure rate limits based on tier
	limits := getRateLimits(tier)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GeminiAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
	})

	// RPM limit with some buffer
	rateLimiter := rate.NewLimiter(rate.Limit(float64(limits.RPM)*0.9/60.0), limits.RPM/10)

	return &GeminiClient{
		client:      client,
		visionModel: visionModel,
		chatModel:   chatModel,
		breaker:     breaker,
		rateLimiter: rateLimiter,
	}, nil
}

func getRateLimits(tier string) RateLimits {
	switch tier {
	case "free":
		return RateLimits{RPM: 10, TPM: 250000, RPD: 250}
	case "tier1":
		return RateLimits{RPM: 1000, TPM: 1000000, RPD: 10000}
	case "tier2":
		return RateLimits{RPM: 2000, TPM: 4000000, RPD: 50000}
	default:
		return RateLimits{RPM: 10, TPM: 250000, RPD: 250}
	}
}

// AnalyzeImage sends a single page image with the analysis instruction
// to the vision model and returns the extracted text. Non-streamed.
func (gc *GeminiClient) AnalyzeImage(ctx context.Context, data []byte, format, instruction string) (string, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.analyze_image")
	defer span.End()

	span.SetAttributes(
		attribute.String("gemini.model", gc.visionModel),
		attribute.String("gemini.image_format", format),
		attribute.Int("gemini.image_bytes", len(data)),
	)

	if err := gc.rateLimiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return "", &RemoteError{Kind: RemoteTransport, Err: err}
	}

	result, err := gc.breaker.Execute(func() (interface{}, error) {
		model := gc.client.GenerativeModel(gc.visionModel)
		model.SetTemperature(0)
		model.SetMaxOutputTokens(4096)

		resp, err := model.GenerateContent(ctx,
			genai.Text(instruction),
			genai.ImageData(format, data),
		)
		if err != nil {
			return nil, err
		}
		return resp, nil
	})

	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			span.SetAttributes(attribute.Bool("gemini.circuit_breaker_open", true))
			return "", &RemoteError{Kind: RemoteTransport, Err: err}
		}
		span.SetAttributes(attribute.Bool("gemini.error", true))
		return "", classifyRemoteError(err)
	}

	text := extractTextFromResponse(result.(*genai.GenerateContentResponse))
	if text == "" {
		span.SetAttributes(attribute.Bool("gemini.empty_response", true))
		return "", &RemoteError{Kind: RemoteRejected, Err: errors.New("model returned no text")}
	}

	span.SetAttributes(attribute.Int("gemini.response_chars", len(text)))
	return text, nil
}

// AskStream sends the assembled prompt context to the chat model and
// returns the response as a pull-based chunk stream. The first chunk is
// fetched eagerly so that request rejection surfaces here, under the
// circuit breaker, rather than on the first Next call.
func (gc *GeminiClient) AskStream(ctx context.Context, pc models.PromptContext) (AnswerStream, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.ask_stream")
	defer span.End()

	span.SetAttributes(
		attribute.String("gemini.model", gc.chatModel),
		attribute.Int("gemini.history_turns", len(pc.History)),
	)

	if err := gc.rateLimiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return nil, &RemoteError{Kind: RemoteTransport, Err: err}
	}

	model := gc.client.GenerativeModel(gc.chatModel)
	model.SetTemperature(0.7)
	model.SetMaxOutputTokens(2048)
	if pc.System != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(pc.System)},
		}
	}

	cs := model.StartChat()
	cs.History = buildChatHistory(pc.History)

	iter := cs.SendMessageStream(ctx, genai.Text(pc.Question))
	stream := &geminiStream{iter: iter}

	// Eagerly pull the first chunk so auth/quota/context errors count
	// against the breaker and are reported before streaming begins.
	first, err := gc.breaker.Execute(func() (interface{}, error) {
		chunk, err := stream.Next()
		if err == io.EOF {
			return "", nil
		}
		if err != nil {
			return nil, err
		}
		return chunk, nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			span.SetAttributes(attribute.Bool("gemini.circuit_breaker_open", true))
			return nil, &RemoteError{Kind: RemoteTransport, Err: err}
		}
		span.SetAttributes(attribute.Bool("gemini.error", true))
		return nil, normalizeStreamOpenError(err)
	}

	if chunk := first.(string); chunk != "" {
		stream.pending = chunk
		stream.hasPending = true
	}
	return stream, nil
}

// normalizeStreamOpenError reclassifies a failure on the first chunk as
// a request rejection rather than a mid-stream interruption.
func normalizeStreamOpenError(err error) error {
	var re *RemoteError
	if errors.As(err, &re) && re.Kind == RemoteStreamInterrupted {
		return classifyRemoteError(re.Err)
	}
	return classifyRemoteError(err)
}

// buildChatHistory converts transcript turns into SDK chat content
func buildChatHistory(history []models.PromptMessage) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, msg := range history {
		role := "user"
		if msg.Role == models.RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(msg.Text)},
		})
	}
	return contents
}

// extractTextFromResponse extracts text from a Gemini response
func extractTextFromResponse(resp *genai.GenerateContentResponse) string {
	var result string
	for _, candidate := range resp.Candidates {
		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				if text, ok := part.(genai.Text); ok {
					result += string(text)
				}
			}
		}
	}
	return result
}

// Close the client
func (gc *GeminiClient) Close() error {
	if gc.client != nil {
		return gc.client.Close()
	}
	return nil
}
