package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"chatpdf/internal/app"
	"chatpdf/internal/logger"
	"chatpdf/internal/model"
	"chatpdf/internal/transport/http/response"
)

type DocumentService interface {
	Register(ctx context.Context, input app.RegisterInput) (*model.Document, error)
	Upload(ctx context.Context, input app.UploadInput) (*model.Document, error)
	List(ctx context.Context, ownerID uint) ([]model.Document, error)
	Get(ctx context.Context, ownerID, documentID uint) (*model.Document, error)
	Delete(ctx context.Context, ownerID, documentID uint) error
	Reprocess(ctx context.Context, ownerID, documentID uint) (*model.Document, error)
	Messages(ctx context.Context, ownerID, documentID uint, limit int) ([]model.Message, error)
}

type DocumentHandler struct {
	documents DocumentService
	logger    *slog.Logger
}

type RegisterDocumentRequest struct {
	FileKey  string `json:"file_key" binding:"required,max=512"`
	FileName string `json:"file_name" binding:"max=256"`
}

func NewDocumentHandler(documents DocumentService, log *slog.Logger) *DocumentHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &DocumentHandler{documents: documents, logger: log}
}

func (h *DocumentHandler) Register(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req RegisterDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	doc, err := h.documents.Register(c.Request.Context(), app.RegisterInput{
		OwnerID:  userID,
		FileKey:  req.FileKey,
		FileName: req.FileName,
	})
	if err != nil {
		writeServiceError(c, h.logger, err, "register document failed")
		return
	}
	c.JSON(http.StatusAccepted, response.APIResponse{Code: response.CodeOK, Message: "ok", Data: doc})
}

func (h *DocumentHandler) Upload(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, http.StatusRequestEntityTooLarge, response.CodeFileTooLarge, app.ErrFileTooLarge.Error())
			return
		}
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file")
		return
	}

	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}
	defer f.Close()

	doc, err := h.documents.Upload(c.Request.Context(), app.UploadInput{
		OwnerID:  userID,
		FileName: file.Filename,
		Size:     file.Size,
		Body:     f,
	})
	if err != nil {
		writeServiceError(c, h.logger, err, "upload document failed")
		return
	}
	c.JSON(http.StatusAccepted, response.APIResponse{Code: response.CodeOK, Message: "ok", Data: doc})
}

func (h *DocumentHandler) List(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	docs, err := h.documents.List(c.Request.Context(), userID)
	if err != nil {
		writeServiceError(c, h.logger, err, "list documents failed")
		return
	}
	response.OK(c, docs)
}

func (h *DocumentHandler) Get(c *gin.Context) {
	userID, docID, ok := h.ids(c)
	if !ok {
		return
	}

	doc, err := h.documents.Get(c.Request.Context(), userID, docID)
	if err != nil {
		writeServiceError(c, h.logger, err, "get document failed")
		return
	}
	response.OK(c, doc)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	userID, docID, ok := h.ids(c)
	if !ok {
		return
	}

	if err := h.documents.Delete(c.Request.Context(), userID, docID); err != nil {
		writeServiceError(c, h.logger, err, "delete document failed")
		return
	}
	response.OK(c, gin.H{"deleted_document_id": docID})
}

func (h *DocumentHandler) Reprocess(c *gin.Context) {
	userID, docID, ok := h.ids(c)
	if !ok {
		return
	}

	doc, err := h.documents.Reprocess(c.Request.Context(), userID, docID)
	if err != nil {
		writeServiceError(c, h.logger, err, "reprocess document failed")
		return
	}
	c.JSON(http.StatusAccepted, response.APIResponse{Code: response.CodeOK, Message: "ok", Data: doc})
}

func (h *DocumentHandler) Messages(c *gin.Context) {
	userID, docID, ok := h.ids(c)
	if !ok {
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if parsed, parseErr := strconv.Atoi(raw); parseErr == nil {
			limit = parsed
		}
	}

	messages, err := h.documents.Messages(c.Request.Context(), userID, docID, limit)
	if err != nil {
		writeServiceError(c, h.logger, err, "list messages failed")
		return
	}
	response.OK(c, messages)
}

func (h *DocumentHandler) ids(c *gin.Context) (userID, docID uint, ok bool) {
	userID, ok = getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return 0, 0, false
	}
	docID, ok = documentIDParam(c)
	if !ok {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid document id")
		return 0, 0, false
	}
	return userID, docID, true
}
