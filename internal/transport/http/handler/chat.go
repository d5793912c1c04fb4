package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"chatpdf/internal/ai"
	"chatpdf/internal/app"
	"chatpdf/internal/logger"
	"chatpdf/internal/transport/http/response"
)

type ChatService interface {
	GetContext(ctx context.Context, input app.ContextInput) (*app.ContextResult, error)
	StreamChat(ctx context.Context, input app.ChatInput, onChunk func(string) error) (*app.ChatResult, error)
}

type ChatHandler struct {
	chat   ChatService
	logger *slog.Logger
}

type ContextRequest struct {
	Query            string   `json:"query" binding:"required"`
	TopK             int      `json:"top_k" binding:"gte=0,lte=50"`
	ScoreThreshold   *float64 `json:"score_threshold" binding:"omitempty,gte=-1,lte=1"`
	MaxContextLength int      `json:"max_context_length" binding:"gte=0"`
}

type ChatMessageRequest struct {
	Role    string `json:"role" binding:"required,oneof=system user assistant"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Messages []ChatMessageRequest `json:"messages" binding:"required,min=1,dive"`
}

func NewChatHandler(chat ChatService, log *slog.Logger) *ChatHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &ChatHandler{chat: chat, logger: log}
}

func (h *ChatHandler) Context(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	docID, ok := documentIDParam(c)
	if !ok {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid document id")
		return
	}

	var req ContextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	res, err := h.chat.GetContext(c.Request.Context(), app.ContextInput{
		UserID:           userID,
		DocumentID:       docID,
		Query:            req.Query,
		TopK:             req.TopK,
		ScoreThreshold:   req.ScoreThreshold,
		MaxContextLength: req.MaxContextLength,
	})
	if err != nil {
		writeServiceError(c, h.logger, err, "get context failed")
		return
	}
	response.OK(c, res)
}

// Stream answers over server-sent events. Errors raised before the first token
// use the JSON envelope; after that they arrive as an error event.
func (h *ChatHandler) Stream(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	docID, ok := documentIDParam(c)
	if !ok {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid document id")
		return
	}

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "stream not supported")
		return
	}

	messages := make([]ai.ChatMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, ai.ChatMessage{Role: m.Role, Content: m.Content})
	}

	started := false
	startStream := func() {
		if started {
			return
		}
		started = true
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		c.Status(http.StatusOK)
	}

	result, err := h.chat.StreamChat(c.Request.Context(), app.ChatInput{
		UserID:     userID,
		DocumentID: docID,
		Messages:   messages,
	}, func(chunk string) error {
		startStream()
		if _, writeErr := c.Writer.Write([]byte("data: " + sanitizeSSE(chunk) + "\n\n")); writeErr != nil {
			return writeErr
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		if !started {
			writeServiceError(c, h.logger, err, "chat failed")
			return
		}
		h.logger.Warn("chat stream aborted", "document_id", docID, "error", err)
		if _, writeErr := c.Writer.Write([]byte(fmt.Sprintf("event: error\ndata: %s\n\n", sanitizeSSE(err.Error())))); writeErr == nil {
			flusher.Flush()
		}
		return
	}

	startStream()
	payload, err := json.Marshal(result)
	if err != nil {
		payload = []byte(`{}`)
	}
	if _, writeErr := c.Writer.Write([]byte("event: done\ndata: " + string(payload) + "\n\n")); writeErr == nil {
		flusher.Flush()
	}
}
