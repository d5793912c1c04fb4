package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"
)

// MemoryStore is a brute-force in-process Store for tests and local runs.
type MemoryStore struct {
	mu         sync.RWMutex
	dimension  int
	namespaces map[string]map[string]Record
}

func NewMemoryStore(dimension int) *MemoryStore {
	return &MemoryStore{
		dimension:  dimension,
		namespaces: make(map[string]map[string]Record),
	}
}

func (s *MemoryStore) Dimension() int { return s.dimension }

func (s *MemoryStore) Upsert(ctx context.Context, namespace string, records []Record) error {
	if namespace == "" {
		return opErr("upsert", namespace, ErrInvalidNamespace)
	}
	if err := validateRecords(s.dimension, records); err != nil {
		return opErr("upsert", namespace, err)
	}
	if err := ctx.Err(); err != nil {
		return opErr("upsert", namespace, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ns, ok := s.namespaces[namespace]
	if !ok {
		ns = make(map[string]Record, len(records))
		s.namespaces[namespace] = ns
	}
	for _, r := range records {
		r.Values = append([]float32(nil), r.Values...)
		ns[r.ID] = r
	}
	return nil
}

func (s *MemoryStore) Search(ctx context.Context, namespace string, vector []float32, topK int, threshold float64) ([]Match, error) {
	if namespace == "" {
		return nil, opErr("search", namespace, ErrInvalidNamespace)
	}
	if err := validateQuery(s.dimension, vector, topK); err != nil {
		return nil, opErr("search", namespace, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, opErr("search", namespace, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	matches := make([]Match, 0)
	for id, r := range s.namespaces[namespace] {
		score := cosine(vector, r.Values)
		if score > threshold {
			matches = append(matches, Match{ID: id, Score: score, Metadata: r.Metadata})
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (s *MemoryStore) DeleteNamespace(ctx context.Context, namespace string) error {
	if namespace == "" {
		return opErr("delete", namespace, ErrInvalidNamespace)
	}
	if err := ctx.Err(); err != nil {
		return opErr("delete", namespace, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.namespaces, namespace)
	return nil
}

// Count returns the number of records in namespace.
func (s *MemoryStore) Count(namespace string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.namespaces[namespace])
}

// cosine returns 0 when either vector has zero length.
func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
