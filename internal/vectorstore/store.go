package vectorstore

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrInvalidNamespace  = errors.New("invalid namespace")
	ErrInvalidTopK       = errors.New("topK must be positive")
	ErrInvalidRecord     = errors.New("invalid record")
)

// Metadata travels with every vector and comes back on search.
type Metadata struct {
	Text       string `json:"text" db:"text"`
	PageNumber int    `json:"page_number" db:"page_number"`
}

type Record struct {
	ID       string
	Values   []float32
	Metadata Metadata
}

// Match is a search hit. Score is cosine similarity in [-1, 1].
type Match struct {
	ID       string
	Score    float64
	Metadata Metadata
}

// Store is a namespaced vector index. Search never looks outside the given
// namespace and returns only matches scoring strictly above threshold, best first.
type Store interface {
	Upsert(ctx context.Context, namespace string, records []Record) error
	Search(ctx context.Context, namespace string, vector []float32, topK int, threshold float64) ([]Match, error)
	DeleteNamespace(ctx context.Context, namespace string) error
	Dimension() int
}

// OpError names the operation and namespace of a failed store call.
type OpError struct {
	Op        string
	Namespace string
	Err       error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("vectorstore: %s namespace %q: %v", e.Op, e.Namespace, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

func opErr(op, namespace string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Namespace: namespace, Err: err}
}

func validateRecords(dimension int, records []Record) error {
	for i, r := range records {
		if r.ID == "" {
			return fmt.Errorf("%w: record %d has empty id", ErrInvalidRecord, i)
		}
		if len(r.Values) != dimension {
			return fmt.Errorf("%w: record %q has %d dimensions, index has %d", ErrDimensionMismatch, r.ID, len(r.Values), dimension)
		}
	}
	return nil
}

func validateQuery(dimension int, vector []float32, topK int) error {
	if topK <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidTopK, topK)
	}
	if len(vector) != dimension {
		return fmt.Errorf("%w: query has %d dimensions, index has %d", ErrDimensionMismatch, len(vector), dimension)
	}
	return nil
}
