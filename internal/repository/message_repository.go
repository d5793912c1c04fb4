package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"chatpdf/internal/model"
)

const (
	defaultMessageLimit = 100
	maxMessageLimit     = 200
)

// MessageRepository stores the chat transcript of each document.
type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(ctx context.Context, message *model.Message) error {
	if err := r.db.WithContext(ctx).Create(message).Error; err != nil {
		return fmt.Errorf("create message failed: %w", err)
	}
	return nil
}

func (r *MessageRepository) ListByDocumentID(ctx context.Context, documentID uint, limit int) ([]model.Message, error) {
	switch {
	case limit <= 0:
		limit = defaultMessageLimit
	case limit > maxMessageLimit:
		limit = maxMessageLimit
	}

	var messages []model.Message
	err := r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("list messages failed: %w", err)
	}
	return messages, nil
}

func (r *MessageRepository) DeleteByDocumentID(ctx context.Context, documentID uint) error {
	if err := r.db.WithContext(ctx).Where("document_id = ?", documentID).Delete(&model.Message{}).Error; err != nil {
		return fmt.Errorf("delete messages by document failed: %w", err)
	}
	return nil
}
