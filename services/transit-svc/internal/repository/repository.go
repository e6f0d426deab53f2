// Package repository история анализов кризисных сценариев
package repository

import (
	"context"
	"sort"
	"time"

	"multimodal/pkg/apperror"
	"multimodal/pkg/domain"
	"multimodal/services/transit-svc/internal/advisor"
)

// Стандартные ошибки
var (
	ErrAnalysisNotFound = apperror.New(apperror.CodeNotFound, "analysis not found")
)

// Status итог анализа
type Status string

const (
	StatusAdvised Status = "advised"
	StatusFailed  Status = "failed"
	StatusNoPaths Status = "no_paths"
)

// AnalysisRecord сохранённый анализ: защищённая пара, журнал разрушений,
// найденные пути и ответ советника либо сообщение об ошибке
type AnalysisRecord struct {
	ID             string               `json:"id"`
	SessionID      string               `json:"sessionId,omitempty"`
	Origin         string               `json:"origin"`
	Destination    string               `json:"destination"`
	NetworkVersion uint64               `json:"networkVersion"`
	Generation     uint64               `json:"generation"`
	Destroyed      []string             `json:"destroyed"`
	Paths          []domain.PathSummary `json:"paths,omitempty"`
	PathCount      int                  `json:"pathCount"`
	Provider       string               `json:"provider,omitempty"`
	Status         Status               `json:"status"`
	Message        string               `json:"message,omitempty"`
	Advice         *advisor.Advice      `json:"advice,omitempty"`
	CreatedAt      time.Time            `json:"createdAt"`
}

// Locations все пункты, через которые проходят пути анализа
func (r *AnalysisRecord) Locations() []string {
	seen := map[string]struct{}{r.Origin: {}, r.Destination: {}}
	for _, p := range r.Paths {
		for _, loc := range p.LocationSequence {
			seen[loc] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for loc := range seen {
		if loc != "" {
			out = append(out, loc)
		}
	}
	sort.Strings(out)
	return out
}

// Filter фильтры списка
type Filter struct {
	Origin      string
	Destination string
	Location    string // путь проходит через пункт
	Limit       int
	Offset      int
}

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Normalize приводит пагинацию к допустимым значениям
func (f Filter) Normalize() (Filter, error) {
	if f.Limit < 0 || f.Offset < 0 {
		return f, apperror.New(apperror.CodeInvalidPagination, "limit and offset must be non-negative")
	}
	if f.Limit == 0 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	return f, nil
}

// Repository хранилище анализов
type Repository interface {
	// Save присваивает ID и CreatedAt, если они пусты
	Save(ctx context.Context, rec *AnalysisRecord) error
	Get(ctx context.Context, id string) (*AnalysisRecord, error)
	// List возвращает записи без путей, новые первыми, и общее количество
	List(ctx context.Context, f Filter) ([]*AnalysisRecord, int64, error)
	Delete(ctx context.Context, id string) error
	Close() error
}
