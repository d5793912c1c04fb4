package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"chatpdf/internal/model"
)

// ErrStatusConflict means the document was not in the expected status, e.g.
// another worker already moved it.
var ErrStatusConflict = errors.New("document status changed concurrently")

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *model.Document) error {
	if err := r.db.WithContext(ctx).Create(doc).Error; err != nil {
		return fmt.Errorf("create document failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id uint) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).First(&doc, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) GetByIDAndOwner(ctx context.Context, id, ownerID uint) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, ownerID).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) GetByFileKey(ctx context.Context, fileKey string) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).Where("file_key = ?", fileKey).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document by file key failed: %w", err)
	}
	return &doc, nil
}

// ListByOwner omits the extracted content column.
func (r *DocumentRepository) ListByOwner(ctx context.Context, ownerID uint) ([]model.Document, error) {
	var list []model.Document
	err := r.db.WithContext(ctx).
		Omit("content").
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("list documents failed: %w", err)
	}
	return list, nil
}

// Transition moves a document from one status to another. It only succeeds if
// the row is still in from; otherwise ErrStatusConflict is returned.
func (r *DocumentRepository) Transition(ctx context.Context, id uint, from, to model.DocumentStatus, reason string) error {
	res := r.db.WithContext(ctx).
		Model(&model.Document{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":         to,
			"failure_reason": reason,
		})
	if res.Error != nil {
		return fmt.Errorf("update document status failed: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: document %d is not %s", ErrStatusConflict, id, from)
	}
	return nil
}

func (r *DocumentRepository) SetContent(ctx context.Context, id uint, content string) error {
	if err := r.db.WithContext(ctx).Model(&model.Document{}).Where("id = ?", id).Update("content", content).Error; err != nil {
		return fmt.Errorf("save document content failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) SetChunkCount(ctx context.Context, id uint, n int) error {
	if err := r.db.WithContext(ctx).Model(&model.Document{}).Where("id = ?", id).Update("chunk_count", n).Error; err != nil {
		return fmt.Errorf("save document chunk count failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Delete(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Delete(&model.Document{}, id).Error; err != nil {
		return fmt.Errorf("delete document failed: %w", err)
	}
	return nil
}
