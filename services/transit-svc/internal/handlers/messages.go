package handlers

import (
	"fmt"
	"strings"

	"multimodal/pkg/apperror"
	"multimodal/pkg/domain"
	"multimodal/services/transit-svc/internal/report"
	"multimodal/services/transit-svc/internal/repository"
)

// Empty запрос без параметров
type Empty struct{}

// CommandResponse итог команды
type CommandResponse struct {
	Applied bool   `json:"applied"`
	Message string `json:"message,omitempty"`
}

func (r *CommandResponse) WasApplied() bool { return r.Applied }

// SetSpeedRequest смена скорости вида транспорта
type SetSpeedRequest struct {
	Mode  string  `json:"mode"`
	Value float64 `json:"value"`
}

func (r *SetSpeedRequest) AuditTarget() string {
	return fmt.Sprintf("%s=%g", r.Mode, r.Value)
}

// EndpointRequest выбор защищённого пункта
type EndpointRequest struct {
	Location string `json:"location"`
}

func (r *EndpointRequest) AuditTarget() string { return r.Location }

// KindRequest выбор вида цели
type KindRequest struct {
	Kind string `json:"kind"`
}

func (r *KindRequest) AuditTarget() string { return r.Kind }

// TargetRequest цель разрушения: city либо тройка origin/destination/mode
type TargetRequest struct {
	City        string `json:"city,omitempty"`
	Origin      string `json:"origin,omitempty"`
	Destination string `json:"destination,omitempty"`
	Mode        string `json:"mode,omitempty"`
}

func (r *TargetRequest) AuditTarget() string {
	if r.City != "" {
		return r.City
	}
	return fmt.Sprintf("%s -> %s (%s)", r.Origin, r.Destination, r.Mode)
}

// FindPathsRequest перебор путей на текущей сети
type FindPathsRequest struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
}

func (r *FindPathsRequest) Validate() error {
	v := apperror.NewValidationErrors()
	if strings.TrimSpace(r.Origin) == "" {
		v.AddErrorWithField(apperror.CodeInvalidArgument, "origin is required", "origin")
	}
	if strings.TrimSpace(r.Destination) == "" {
		v.AddErrorWithField(apperror.CodeInvalidArgument, "destination is required", "destination")
	}
	return v.Err()
}

func (r *FindPathsRequest) AuditTarget() string {
	return r.Origin + " -> " + r.Destination
}

// FindPathsResponse найденные пути
type FindPathsResponse struct {
	NetworkVersion uint64               `json:"networkVersion"`
	Count          int                  `json:"count"`
	Paths          []domain.PathSummary `json:"paths"`
}

// ListAnalysesRequest фильтр истории анализов
type ListAnalysesRequest struct {
	Origin      string `json:"origin,omitempty"`
	Destination string `json:"destination,omitempty"`
	Location    string `json:"location,omitempty"`
	Limit       int    `json:"limit,omitempty"`
	Offset      int    `json:"offset,omitempty"`
}

func (r *ListAnalysesRequest) Validate() error {
	_, err := r.filter().Normalize()
	return err
}

func (r *ListAnalysesRequest) filter() repository.Filter {
	return repository.Filter{
		Origin:      r.Origin,
		Destination: r.Destination,
		Location:    r.Location,
		Limit:       r.Limit,
		Offset:      r.Offset,
	}
}

// ListAnalysesResponse страница истории
type ListAnalysesResponse struct {
	Total    int64                        `json:"total"`
	Analyses []*repository.AnalysisRecord `json:"analyses"`
}

// GetAnalysisRequest один анализ
type GetAnalysisRequest struct {
	ID string `json:"id"`
}

func (r *GetAnalysisRequest) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return apperror.NewWithField(apperror.CodeInvalidArgument, "id is required", "id")
	}
	return nil
}

func (r *GetAnalysisRequest) AuditTarget() string { return r.ID }

// ExportReportRequest выгрузка анализа; пустой id - последний анализ
type ExportReportRequest struct {
	AnalysisID string `json:"analysisId,omitempty"`
	Format     string `json:"format,omitempty"`
}

func (r *ExportReportRequest) Validate() error {
	if r.Format == "" {
		return nil
	}
	_, err := report.ParseFormat(r.Format)
	return err
}

func (r *ExportReportRequest) AuditTarget() string { return r.AnalysisID }

// ExportReportResponse содержимое отчёта; content кодируется в base64
type ExportReportResponse struct {
	AnalysisID  string `json:"analysisId"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Content     []byte `json:"content"`
}
