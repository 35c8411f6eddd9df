package models

import (
	"time"
)

type ChatRequest struct {
	Message string `json:"message" binding:"required,min=1,max=2000"`
}

type ChatResponse struct {
	Reply      string    `json:"reply"`
	Incomplete bool      `json:"incomplete,omitempty"`
	SessionID  string    `json:"session_id"`
	Timestamp  time.Time `json:"timestamp"`
}

type UploadResponse struct {
	SessionID string         `json:"session_id"`
	Filename  string         `json:"filename"`
	Format    DocumentFormat `json:"format"`
	Pages     int            `json:"pages"`
}

type AnalyzeResponse struct {
	SessionID string `json:"session_id"`
	Analysis  string `json:"analysis"`
	Pages     int    `json:"pages"`
}

type TranscriptResponse struct {
	SessionID string             `json:"session_id"`
	Turns     []ConversationTurn `json:"turns"`
	CreatedAt time.Time          `json:"created_at"`
}
