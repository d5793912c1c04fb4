package model

import "time"

type DocumentStatus string

const (
	DocumentStatusUploaded   DocumentStatus = "uploaded"
	DocumentStatusExtracting DocumentStatus = "extracting"
	DocumentStatusChunking   DocumentStatus = "chunking"
	DocumentStatusEmbedding  DocumentStatus = "embedding"
	DocumentStatusUpserting  DocumentStatus = "upserting"
	DocumentStatusReady      DocumentStatus = "ready"
	DocumentStatusFailed     DocumentStatus = "failed"
)

var nextStatus = map[DocumentStatus]DocumentStatus{
	DocumentStatusUploaded:   DocumentStatusExtracting,
	DocumentStatusExtracting: DocumentStatusChunking,
	DocumentStatusChunking:   DocumentStatusEmbedding,
	DocumentStatusEmbedding:  DocumentStatusUpserting,
	DocumentStatusUpserting:  DocumentStatusReady,
}

func (s DocumentStatus) Valid() bool {
	_, ok := nextStatus[s]
	return ok || s.IsTerminal()
}

func (s DocumentStatus) IsTerminal() bool {
	return s == DocumentStatusReady || s == DocumentStatusFailed
}

// CanTransition reports whether the ingestion pipeline may move a document
// from one status to another. Failed is reachable from every non-terminal
// status; terminal documents only go back to Uploaded for reprocessing.
func CanTransition(from, to DocumentStatus) bool {
	switch {
	case !from.Valid() || !to.Valid():
		return false
	case to == DocumentStatusFailed:
		return !from.IsTerminal()
	case to == DocumentStatusUploaded:
		return from.IsTerminal()
	default:
		return nextStatus[from] == to
	}
}

// Document is one uploaded PDF. FileKey is the object storage key and the
// source of the vector namespace.
type Document struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	FileKey       string         `gorm:"size:512;not null;uniqueIndex" json:"file_key"`
	Name          string         `gorm:"size:256;not null" json:"name"`
	URL           string         `gorm:"size:1024" json:"url"`
	Content       string         `gorm:"type:longtext" json:"-"`
	OwnerID       uint           `gorm:"not null;index" json:"owner_id"`
	Status        DocumentStatus `gorm:"size:16;not null;index" json:"status"`
	FailureReason string         `gorm:"size:1024" json:"failure_reason,omitempty"`
	ChunkCount    int            `gorm:"not null;default:0" json:"chunk_count"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func (d *Document) Queryable() bool {
	return d.Status == DocumentStatusReady
}
