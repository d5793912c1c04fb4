package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatpdf/internal/vectorstore"
)

type stubEmbedder struct {
	vector  []float32
	err     error
	queries []string
}

func (s *stubEmbedder) EmbedQuery(_ context.Context, query string) ([]float32, error) {
	s.queries = append(s.queries, query)
	if s.err != nil {
		return nil, s.err
	}
	return s.vector, nil
}

const fileKey = "uploads/1/report.pdf"

func seededStore(t *testing.T) *vectorstore.MemoryStore {
	t.Helper()
	s := vectorstore.NewMemoryStore(2)
	require.NoError(t, s.Upsert(context.Background(), fileKey, []vectorstore.Record{
		{ID: "best", Values: []float32{1, 0}, Metadata: vectorstore.Metadata{Text: "best chunk", PageNumber: 2}},
		{ID: "good", Values: []float32{1, 0.3}, Metadata: vectorstore.Metadata{Text: "good chunk", PageNumber: 1}},
		{ID: "weak", Values: []float32{0.2, 1}, Metadata: vectorstore.Metadata{Text: "weak chunk", PageNumber: 3}},
	}))
	return s
}

func TestGetContext_JoinsBestFirst(t *testing.T) {
	a := New(&stubEmbedder{vector: []float32{1, 0}}, seededStore(t))

	got, err := a.GetContext(context.Background(), "question", fileKey, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "best chunk\ngood chunk", got)
}

func TestGetContext_NoMatchIsEmptyNotError(t *testing.T) {
	a := New(&stubEmbedder{vector: []float32{-1, 0}}, seededStore(t))

	got, err := a.GetContext(context.Background(), "question", fileKey, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestGetContext_UnknownDocumentIsEmpty(t *testing.T) {
	a := New(&stubEmbedder{vector: []float32{1, 0}}, seededStore(t))

	got, err := a.GetContext(context.Background(), "question", "uploads/9/other.pdf", DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGetContext_TruncatesAfterJoining(t *testing.T) {
	a := New(&stubEmbedder{vector: []float32{1, 0}}, seededStore(t))

	opts := DefaultOptions()
	opts.MaxContextLength = 15
	got, err := a.GetContext(context.Background(), "question", fileKey, opts)
	require.NoError(t, err)
	assert.Equal(t, "best chunk\ngood", got)
}

func TestGetContext_LengthNeverExceedsLimit(t *testing.T) {
	s := vectorstore.NewMemoryStore(2)
	long := strings.Repeat("日本語", 500)
	require.NoError(t, s.Upsert(context.Background(), fileKey, []vectorstore.Record{
		{ID: "a", Values: []float32{1, 0}, Metadata: vectorstore.Metadata{Text: long}},
		{ID: "b", Values: []float32{1, 0.1}, Metadata: vectorstore.Metadata{Text: long}},
	}))
	a := New(&stubEmbedder{vector: []float32{1, 0}}, s)

	for _, limit := range []int{1, 7, 100, 3000, 10000} {
		opts := DefaultOptions()
		opts.MaxContextLength = limit
		got, err := a.GetContext(context.Background(), "question", fileKey, opts)
		require.NoError(t, err)
		assert.LessOrEqual(t, utf8.RuneCountInString(got), limit)
		assert.True(t, utf8.ValidString(got))
	}
}

func TestRetrieve_DefaultsAndMatches(t *testing.T) {
	a := New(&stubEmbedder{vector: []float32{1, 0}}, seededStore(t))

	res, err := a.Retrieve(context.Background(), "question", fileKey, Options{ScoreThreshold: -1})
	require.NoError(t, err)
	assert.Equal(t, fileKey, res.Namespace)
	require.Len(t, res.Matches, 3)
	assert.Equal(t, "best", res.Matches[0].ID)
	assert.Equal(t, 2, res.Matches[0].Metadata.PageNumber)

	res, err = a.Retrieve(context.Background(), "question", fileKey, Options{TopK: 1, ScoreThreshold: -1})
	require.NoError(t, err)
	assert.Len(t, res.Matches, 1)
}

func TestRetrieve_Errors(t *testing.T) {
	embedErr := errors.New("provider down")
	a := New(&stubEmbedder{err: embedErr}, seededStore(t))

	_, err := a.Retrieve(context.Background(), "question", fileKey, DefaultOptions())
	require.ErrorIs(t, err, embedErr)

	_, err = a.Retrieve(context.Background(), "question", "报告", DefaultOptions())
	require.ErrorIs(t, err, vectorstore.ErrInvalidNamespace)

	wrongDim := New(&stubEmbedder{vector: []float32{1, 0, 0}}, seededStore(t))
	_, err = wrongDim.Retrieve(context.Background(), "question", fileKey, DefaultOptions())
	require.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "abc", truncateRunes("abc", 3))
	assert.Equal(t, "ab", truncateRunes("abc", 2))
	assert.Equal(t, "日本", truncateRunes("日本語", 2))
	assert.Equal(t, "", truncateRunes("日本語", 0))
}
