package repository

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository хранит анализы в памяти процесса
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*AnalysisRecord
	order   []string // по времени сохранения
	now     func() time.Time
}

// NewMemoryRepository создаёт пустое хранилище
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		records: make(map[string]*AnalysisRecord),
		now:     time.Now,
	}
}

func (r *MemoryRepository) Save(_ context.Context, rec *AnalysisRecord) error {
	prepare(rec, r.now)
	rec.PathCount = len(rec.Paths)

	cp := *rec
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.records[rec.ID]; !exists {
		r.order = append(r.order, rec.ID)
	}
	r.records[rec.ID] = &cp
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*AnalysisRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, ErrAnalysisNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *MemoryRepository) List(_ context.Context, f Filter) ([]*AnalysisRecord, int64, error) {
	f, err := f.Normalize()
	if err != nil {
		return nil, 0, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*AnalysisRecord
	for i := len(r.order) - 1; i >= 0; i-- {
		rec := r.records[r.order[i]]
		if matches(rec, f) {
			cp := *rec
			cp.Paths = nil
			matched = append(matched, &cp)
		}
	}

	total := int64(len(matched))
	if f.Offset >= len(matched) {
		return nil, total, nil
	}
	end := min(f.Offset+f.Limit, len(matched))
	return matched[f.Offset:end], total, nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return ErrAnalysisNotFound
	}
	delete(r.records, id)
	r.order = slices.DeleteFunc(r.order, func(v string) bool { return v == id })
	return nil
}

func (r *MemoryRepository) Close() error { return nil }

func matches(rec *AnalysisRecord, f Filter) bool {
	if f.Origin != "" && rec.Origin != f.Origin {
		return false
	}
	if f.Destination != "" && rec.Destination != f.Destination {
		return false
	}
	if f.Location != "" && !slices.Contains(rec.Locations(), f.Location) {
		return false
	}
	return true
}

func prepare(rec *AnalysisRecord, now func() time.Time) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now().UTC()
	}
	if rec.Destroyed == nil {
		rec.Destroyed = []string{}
	}
}
