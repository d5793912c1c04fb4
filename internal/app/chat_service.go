package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"chatpdf/internal/ai"
	"chatpdf/internal/logger"
	"chatpdf/internal/model"
	"chatpdf/internal/retrieval"
	"chatpdf/internal/vectorstore"
)

const emptyAnswerFallback = "The model returned an empty response."

type AsyncMessagePublisher interface {
	Publish(ctx context.Context, msg model.Message) error
}

type DocumentReader interface {
	GetByIDAndOwner(ctx context.Context, id, ownerID uint) (*model.Document, error)
}

type ContextRetriever interface {
	Retrieve(ctx context.Context, query, fileKey string, opts retrieval.Options) (*retrieval.Result, error)
}

type ChatStreamer interface {
	StreamComplete(ctx context.Context, messages []ai.ChatMessage, onChunk func(string) error) (string, error)
}

type ContextInput struct {
	UserID           uint
	DocumentID       uint
	Query            string
	TopK             int
	ScoreThreshold   *float64
	MaxContextLength int
}

type ChatInput struct {
	UserID     uint
	DocumentID uint
	Messages   []ai.ChatMessage
}

type Source struct {
	ID         string  `json:"id"`
	PageNumber int     `json:"page_number"`
	Score      float64 `json:"score"`
}

type ContextResult struct {
	Context string   `json:"context"`
	Sources []Source `json:"sources"`
}

type ChatResult struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

type ChatService struct {
	docs      DocumentReader
	retriever ContextRetriever
	llm       ChatStreamer
	publisher AsyncMessagePublisher
	defaults  retrieval.Options
	logger    *slog.Logger
}

func NewChatService(
	docs DocumentReader,
	retriever ContextRetriever,
	llm ChatStreamer,
	publisher AsyncMessagePublisher,
	defaults retrieval.Options,
	log *slog.Logger,
) *ChatService {
	if log == nil {
		log = logger.Nop()
	}
	return &ChatService{
		docs:      docs,
		retriever: retriever,
		llm:       llm,
		publisher: publisher,
		defaults:  defaults,
		logger:    log,
	}
}

// GetContext returns the assembled context for a query against one ready
// document. No match yields an empty context, not an error.
func (s *ChatService) GetContext(ctx context.Context, input ContextInput) (*ContextResult, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, ErrMessageEmpty
	}
	doc, err := s.readyDocument(ctx, input.UserID, input.DocumentID)
	if err != nil {
		return nil, err
	}

	opts := s.defaults
	if input.TopK > 0 {
		opts.TopK = input.TopK
	}
	if input.ScoreThreshold != nil {
		opts.ScoreThreshold = *input.ScoreThreshold
	}
	if input.MaxContextLength > 0 {
		opts.MaxContextLength = input.MaxContextLength
	}

	res, err := s.retriever.Retrieve(ctx, query, doc.FileKey, opts)
	if err != nil {
		return nil, err
	}
	return &ContextResult{Context: res.Context, Sources: sourcesOf(res.Matches)}, nil
}

// StreamChat answers the last message of the conversation from the document's
// context. Messages are published for persistence after the stream completes;
// publishing failures are logged and never fail the request.
func (s *ChatService) StreamChat(ctx context.Context, input ChatInput, onChunk func(string) error) (*ChatResult, error) {
	if len(input.Messages) == 0 {
		return nil, ErrMessageEmpty
	}
	query := strings.TrimSpace(input.Messages[len(input.Messages)-1].Content)
	if query == "" {
		return nil, ErrMessageEmpty
	}
	doc, err := s.readyDocument(ctx, input.UserID, input.DocumentID)
	if err != nil {
		return nil, err
	}

	res, err := s.retriever.Retrieve(ctx, query, doc.FileKey, s.defaults)
	if err != nil {
		return nil, err
	}

	prompt := ai.WithSystemPrompt(res.Context, input.Messages)
	full, err := s.llm.StreamComplete(ctx, prompt, onChunk)
	if err != nil {
		return nil, err
	}
	full = strings.TrimSpace(full)
	if full == "" {
		full = emptyAnswerFallback
	}

	now := time.Now()
	s.publish(ctx, model.Message{
		DocumentID: doc.ID,
		UserID:     input.UserID,
		Role:       model.MessageRoleUser,
		Content:    query,
		CreatedAt:  now,
	})
	s.publish(ctx, model.Message{
		DocumentID: doc.ID,
		UserID:     input.UserID,
		Role:       model.MessageRoleAssistant,
		Content:    full,
		CreatedAt:  now.Add(time.Millisecond),
	})

	return &ChatResult{Answer: full, Sources: sourcesOf(res.Matches)}, nil
}

func (s *ChatService) readyDocument(ctx context.Context, userID, documentID uint) (*model.Document, error) {
	if userID == 0 || documentID == 0 {
		return nil, ErrInvalidInput
	}
	doc, err := s.docs.GetByIDAndOwner(ctx, documentID, userID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	if !doc.Queryable() {
		return nil, fmt.Errorf("%w: status is %s", ErrDocumentNotReady, doc.Status)
	}
	return doc, nil
}

func (s *ChatService) publish(ctx context.Context, msg model.Message) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(context.WithoutCancel(ctx), msg); err != nil {
		s.logger.Warn("publish chat message failed",
			"document_id", msg.DocumentID,
			"role", msg.Role,
			"error", err,
		)
	}
}

func sourcesOf(matches []vectorstore.Match) []Source {
	out := make([]Source, 0, len(matches))
	for _, m := range matches {
		out = append(out, Source{ID: m.ID, PageNumber: m.Metadata.PageNumber, Score: m.Score})
	}
	return out
}
