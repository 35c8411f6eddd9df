package routes

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"document-chat-platform/internal/ai"
	"document-chat-platform/internal/config"
	"document-chat-platform/internal/logger"
	"document-chat-platform/middleware"
	"document-chat-platform/models"
	"document-chat-platform/services"
	"document-chat-platform/utils"
)

// SetupSessionRoutes wires the document-analysis chat endpoints
func SetupSessionRoutes(router *gin.Engine, cfg *config.Config,
	sessions *services.SessionManager,
	loader *services.DocumentLoader,
	analysis *services.AnalysisService,
	chat *services.ChatService) {

	api := router.Group("/api")
	api.Use(middleware.RequestIDMiddleware())

	// Upload a document and start a fresh session. Uploading again
	// always creates a new session; the old one simply expires.
	api.POST("/sessions", middleware.RequestSizeLimit(cfg.MaxFileSize+1024*1024), func(c *gin.Context) {
		fileHeader, err := c.FormFile("document")
		if err != nil {
			utils.RespondWithBadRequest(c, "No document file provided", gin.H{"field": "document"})
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			utils.RespondWithBadRequest(c, "Cannot open uploaded file", nil)
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			utils.RespondWithBadRequest(c, "Cannot read uploaded file", nil)
			return
		}

		doc, err := loader.Load(data, fileHeader.Filename)
		if err != nil {
			respondLoaderError(c, err)
			return
		}

		sess := sessions.Create(doc)

		c.JSON(http.StatusCreated, models.UploadResponse{
			SessionID: sess.ID,
			Filename:  doc.Filename,
			Format:    doc.Format,
			Pages:     doc.PageCount(),
		})
	})

	// Run vision analysis over the session's document and seed the
	// transcript with the result
	api.POST("/sessions/:id/analyze", func(c *gin.Context) {
		sess, ok := sessions.Get(c.Param("id"))
		if !ok {
			utils.RespondWithNotFound(c, "Session not found")
			return
		}

		if err := sess.BeginOperation(); err != nil {
			utils.RespondWithConflict(c, "Another operation is in flight for this session")
			return
		}
		defer sess.EndOperation()

		result, err := analysis.AnalyzeDocument(c.Request.Context(), sess.Document())
		if err != nil {
			logger.Error("Document analysis failed",
				"session_id", sess.ID,
				"request_id", middleware.GetRequestID(c),
				"error", err)
			respondRemoteError(c, err)
			return
		}

		sess.Seed(result)

		c.JSON(http.StatusOK, models.AnalyzeResponse{
			SessionID: sess.ID,
			Analysis:  result,
			Pages:     sess.Document().PageCount(),
		})
	})

	// Stream the initial markdown summary of the analysis
	api.GET("/sessions/:id/summary", func(c *gin.Context) {
		sess, ok := sessions.Get(c.Param("id"))
		if !ok {
			utils.RespondWithNotFound(c, "Session not found")
			return
		}

		if !sess.Seeded() {
			utils.RespondWithConflict(c, "Document has not been analyzed yet")
			return
		}

		if err := sess.BeginOperation(); err != nil {
			utils.RespondWithConflict(c, "Another operation is in flight for this session")
			return
		}
		defer sess.EndOperation()

		streamToClient(c, sess, func(sink services.ChunkSink) (string, bool, error) {
			return chat.StreamSummary(c.Request.Context(), sess, sink)
		})
	})

	// Ask a follow-up question; chunks stream back as SSE
	api.POST("/sessions/:id/chat", func(c *gin.Context) {
		var req models.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		sess, ok := sessions.Get(c.Param("id"))
		if !ok {
			utils.RespondWithNotFound(c, "Session not found")
			return
		}

		if !sess.Seeded() {
			utils.RespondWithConflict(c, "Document has not been analyzed yet")
			return
		}

		if err := sess.BeginOperation(); err != nil {
			utils.RespondWithConflict(c, "Another operation is in flight for this session")
			return
		}
		defer sess.EndOperation()

		streamToClient(c, sess, func(sink services.ChunkSink) (string, bool, error) {
			return chat.StreamAnswer(c.Request.Context(), sess, req.Message, sink)
		})
	})

	// Full ordered transcript for the session
	api.GET("/sessions/:id/transcript", func(c *gin.Context) {
		sess, ok := sessions.Get(c.Param("id"))
		if !ok {
			utils.RespondWithNotFound(c, "Session not found")
			return
		}

		c.JSON(http.StatusOK, models.TranscriptResponse{
			SessionID: sess.ID,
			Turns:     sess.Transcript(),
			CreatedAt: sess.CreatedAt,
		})
	})

	// Discard the session and everything it owns
	api.DELETE("/sessions/:id", func(c *gin.Context) {
		sessions.Delete(c.Param("id"))
		c.JSON(http.StatusOK, gin.H{"message": "Session discarded"})
	})
}

// streamToClient runs a streaming exchange and writes chunks as SSE.
// Errors before the first chunk produce a normal JSON error response;
// once streaming has begun they are reported as SSE error events.
func streamToClient(c *gin.Context, sess *models.Session, run func(services.ChunkSink) (string, bool, error)) {
	wroteAny := false

	sink := func(chunk string) error {
		if ctxErr := c.Request.Context().Err(); ctxErr != nil {
			return ctxErr
		}
		if !wroteAny {
			c.Header("Content-Type", "text/event-stream")
			c.Header("Cache-Control", "no-cache")
			c.Header("Connection", "keep-alive")
			wroteAny = true
		}
		c.SSEvent("chunk", chunk)
		c.Writer.Flush()
		return nil
	}

	reply, incomplete, err := run(sink)

	if err != nil && !wroteAny {
		if errors.Is(err, models.ErrEmptyQuestion) {
			utils.RespondWithBadRequest(c, "Question must not be empty", nil)
			return
		}
		respondRemoteError(c, err)
		return
	}

	if err != nil {
		logger.Warn("Answer stream ended early",
			"session_id", sess.ID,
			"request_id", middleware.GetRequestID(c),
			"error", err)
		c.SSEvent("error", gin.H{"error_code": "stream_interrupted", "message": "Answer stream was interrupted"})
	}

	c.SSEvent("done", models.ChatResponse{
		Reply:      reply,
		Incomplete: incomplete,
		SessionID:  sess.ID,
		Timestamp:  time.Now(),
	})
	c.Writer.Flush()
}

// respondLoaderError maps loader failures to HTTP responses
func respondLoaderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrTooLarge):
		utils.RespondWithTooLarge(c, "Document exceeds the maximum upload size", gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrUnsupportedFormat):
		utils.RespondWithError(c, http.StatusBadRequest, "unsupported_format",
			"Only PDF, PNG, JPG and JPEG documents are supported", gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrEmptyDocument):
		utils.RespondWithError(c, http.StatusBadRequest, "empty_document",
			"Document contains no pages", nil)
	case errors.Is(err, services.ErrUnreadable):
		utils.RespondWithError(c, http.StatusBadRequest, "unreadable_document",
			"Document is unreadable or corrupt", gin.H{"error": err.Error()})
	default:
		utils.RespondWithInternalError(c, "Failed to load document", err.Error())
	}
}

// respondRemoteError maps remote API failures to HTTP responses
func respondRemoteError(c *gin.Context, err error) {
	var re *ai.RemoteError
	if errors.As(err, &re) {
		switch re.Kind {
		case ai.RemoteContextTooLarge:
			utils.RespondWithTooLarge(c, "Conversation context exceeds the model's window", gin.H{"code": re.Code})
		case ai.RemoteRejected:
			utils.RespondWithBadGateway(c, "upstream_rejected", "The model API rejected the request", gin.H{"code": re.Code})
		default:
			utils.RespondWithBadGateway(c, "upstream_unavailable", "Could not reach the model API", nil)
		}
		return
	}

	utils.RespondWithInternalError(c, "Unexpected error during remote call", err.Error())
}
