package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"chatpdf/internal/app"
	"chatpdf/internal/transport/http/middleware"
	"chatpdf/internal/transport/http/response"
)

func getUserIDFromContext(c *gin.Context) (uint, bool) {
	userIDAny, exists := c.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}
	userID, ok := userIDAny.(uint)
	return userID, ok && userID > 0
}

func documentIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// statusFor maps service errors to an HTTP status and envelope code. ok is
// false for errors that are not part of the service contract.
func statusFor(err error) (status, code int, ok bool) {
	switch {
	case errors.Is(err, app.ErrInvalidInput), errors.Is(err, app.ErrMessageEmpty):
		return http.StatusBadRequest, response.CodeBadRequest, true
	case errors.Is(err, app.ErrUnsupportedFileType):
		return http.StatusBadRequest, response.CodeUnsupportedFile, true
	case errors.Is(err, app.ErrEmptyDocument):
		return http.StatusBadRequest, response.CodeEmptyDocument, true
	case errors.Is(err, app.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, response.CodeFileTooLarge, true
	case errors.Is(err, app.ErrDocumentNotFound):
		return http.StatusNotFound, response.CodeDocumentNotFound, true
	case errors.Is(err, app.ErrDocumentExists):
		return http.StatusConflict, response.CodeDocumentExists, true
	case errors.Is(err, app.ErrDocumentNotReady):
		return http.StatusConflict, response.CodeDocumentNotReady, true
	case errors.Is(err, app.ErrDocumentBusy):
		return http.StatusConflict, response.CodeDocumentBusy, true
	case errors.Is(err, app.ErrIngestEnqueue):
		return http.StatusServiceUnavailable, response.CodeServiceUnavailable, true
	default:
		return http.StatusInternalServerError, response.CodeInternalServer, false
	}
}

func writeServiceError(c *gin.Context, log *slog.Logger, err error, fallback string) {
	status, code, known := statusFor(err)
	if !known {
		log.Error(fallback, "path", c.FullPath(), "error", err)
		response.Error(c, status, code, fallback)
		return
	}
	response.Error(c, status, code, err.Error())
}

func sanitizeSSE(input string) string {
	replaced := strings.ReplaceAll(input, "\r\n", "\\n")
	replaced = strings.ReplaceAll(replaced, "\n", "\\n")
	return replaced
}
