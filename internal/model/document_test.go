package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition_HappyPath(t *testing.T) {
	path := []DocumentStatus{
		DocumentStatusUploaded,
		DocumentStatusExtracting,
		DocumentStatusChunking,
		DocumentStatusEmbedding,
		DocumentStatusUpserting,
		DocumentStatusReady,
	}
	for i := 1; i < len(path); i++ {
		assert.True(t, CanTransition(path[i-1], path[i]), "%s -> %s", path[i-1], path[i])
	}
}

func TestCanTransition_FailedFromAnyNonTerminal(t *testing.T) {
	for _, s := range []DocumentStatus{
		DocumentStatusUploaded,
		DocumentStatusExtracting,
		DocumentStatusChunking,
		DocumentStatusEmbedding,
		DocumentStatusUpserting,
	} {
		assert.True(t, CanTransition(s, DocumentStatusFailed), string(s))
	}
	assert.False(t, CanTransition(DocumentStatusReady, DocumentStatusFailed))
	assert.False(t, CanTransition(DocumentStatusFailed, DocumentStatusFailed))
}

func TestCanTransition_Rejects(t *testing.T) {
	tests := []struct {
		from, to DocumentStatus
	}{
		{DocumentStatusUploaded, DocumentStatusReady},
		{DocumentStatusExtracting, DocumentStatusEmbedding},
		{DocumentStatusUpserting, DocumentStatusEmbedding},
		{DocumentStatusChunking, DocumentStatusUploaded},
		{DocumentStatusReady, DocumentStatusExtracting},
		{DocumentStatus("bogus"), DocumentStatusFailed},
		{DocumentStatusUploaded, DocumentStatus("bogus")},
	}
	for _, tt := range tests {
		assert.False(t, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestCanTransition_Reprocess(t *testing.T) {
	assert.True(t, CanTransition(DocumentStatusFailed, DocumentStatusUploaded))
	assert.True(t, CanTransition(DocumentStatusReady, DocumentStatusUploaded))
	assert.False(t, CanTransition(DocumentStatusEmbedding, DocumentStatusUploaded))
}

func TestDocumentQueryable(t *testing.T) {
	assert.True(t, (&Document{Status: DocumentStatusReady}).Queryable())
	assert.False(t, (&Document{Status: DocumentStatusUpserting}).Queryable())
	assert.False(t, (&Document{Status: DocumentStatusFailed}).Queryable())
}
