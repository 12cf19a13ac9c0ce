package api

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/samcharles93/qtensor/pkg/quant"
)

// TensorStore keeps uploaded tensors in memory, keyed by id.
type TensorStore struct {
	mu      sync.Mutex
	tensors map[string]*tensorRecord
}

func NewTensorStore() *TensorStore {
	return &TensorStore{
		tensors: make(map[string]*tensorRecord),
	}
}

func (s *TensorStore) Create(name string, t *quant.Tensor, now time.Time) *tensorRecord {
	rec := &tensorRecord{
		ID:        newTensorID(),
		Name:      name,
		Tensor:    t,
		CreatedAt: now,
	}
	s.mu.Lock()
	s.tensors[rec.ID] = rec
	s.mu.Unlock()
	return rec
}

func (s *TensorStore) Get(id string) (*tensorRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tensors[id]
	return rec, ok
}

func (s *TensorStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tensors[id]; !ok {
		return false
	}
	delete(s.tensors, id)
	return true
}

// List returns all records, oldest first.
func (s *TensorStore) List() []*tensorRecord {
	s.mu.Lock()
	out := make([]*tensorRecord, 0, len(s.tensors))
	for _, rec := range s.tensors {
		out = append(out, rec)
	}
	s.mu.Unlock()
	slices.SortFunc(out, func(a, b *tensorRecord) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

func newTensorID() string {
	return "tensor_" + uuid.NewString()
}
