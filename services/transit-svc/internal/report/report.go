// Package report выгружает запись анализа кризиса в CSV, XLSX или PDF.
package report

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"multimodal/pkg/apperror"
	"multimodal/pkg/domain"
	"multimodal/services/transit-svc/internal/advisor"
	"multimodal/services/transit-svc/internal/repository"
)

// Format формат отчёта
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

// ParseFormat разбирает формат; пустая строка - CSV
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return FormatCSV, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	case "pdf":
		return FormatPDF, nil
	default:
		return "", apperror.Newf(apperror.CodeInvalidArgument, "unsupported report format %q", s).WithField("format")
	}
}

// ContentType MIME-тип формата
func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	default:
		return "text/csv"
	}
}

// Extension расширение файла
func (f Format) Extension() string {
	return "." + string(f)
}

// Data данные отчёта по одному анализу
type Data struct {
	Title          string
	Author         string
	GeneratedAt    time.Time
	AnalysisID     string
	Origin         string
	Destination    string
	NetworkVersion uint64
	Status         string
	Message        string
	Destroyed      []string
	Paths          []domain.PathSummary
	Advice         *advisor.Advice
}

// FromRecord собирает данные отчёта из записи истории
func FromRecord(rec *repository.AnalysisRecord) *Data {
	if rec == nil {
		return &Data{}
	}
	return &Data{
		AnalysisID:     rec.ID,
		GeneratedAt:    rec.CreatedAt,
		Origin:         rec.Origin,
		Destination:    rec.Destination,
		NetworkVersion: rec.NetworkVersion,
		Status:         string(rec.Status),
		Message:        rec.Message,
		Destroyed:      rec.Destroyed,
		Paths:          rec.Paths,
		Advice:         rec.Advice,
	}
}

// Options оформление отчёта
type Options struct {
	CompanyName     string
	MaxPathsInTable int
	PageNumbers     bool
}

// Generator генератор отчёта одного формата
type Generator interface {
	Generate(ctx context.Context, data *Data) ([]byte, error)
	Format() Format
}

// New возвращает генератор для формата
func New(format Format, opts Options) (Generator, error) {
	base := BaseGenerator{opts: opts}
	switch format {
	case FormatCSV:
		return &CSVGenerator{BaseGenerator: base}, nil
	case FormatXLSX:
		return &ExcelGenerator{BaseGenerator: base}, nil
	case FormatPDF:
		return &PDFGenerator{BaseGenerator: base}, nil
	default:
		return nil, apperror.Newf(apperror.CodeInvalidArgument, "unsupported report format %q", format).WithField("format")
	}
}

// Render выбирает генератор и строит отчёт
func Render(ctx context.Context, format Format, opts Options, data *Data) ([]byte, error) {
	if data == nil {
		return nil, apperror.New(apperror.CodeNilInput, "report data is nil")
	}
	g, err := New(format, opts)
	if err != nil {
		return nil, err
	}
	return g.Generate(ctx, data)
}

// BaseGenerator общие утилиты генераторов
type BaseGenerator struct {
	opts Options
}

// GetTitle заголовок отчёта
func (b *BaseGenerator) GetTitle(data *Data) string {
	if data.Title != "" {
		return data.Title
	}
	if data.Origin != "" && data.Destination != "" {
		return fmt.Sprintf("Crisis Route Analysis: %s to %s", data.Origin, data.Destination)
	}
	return "Crisis Route Analysis"
}

// GetAuthor автор отчёта
func (b *BaseGenerator) GetAuthor(data *Data) string {
	if data.Author != "" {
		return data.Author
	}
	if b.opts.CompanyName != "" {
		return b.opts.CompanyName
	}
	return "Multimodal Transit"
}

// VisiblePaths пути, попадающие в таблицу
func (b *BaseGenerator) VisiblePaths(data *Data) []domain.PathSummary {
	if b.opts.MaxPathsInTable > 0 && len(data.Paths) > b.opts.MaxPathsInTable {
		return data.Paths[:b.opts.MaxPathsInTable]
	}
	return data.Paths
}

// FormatFloat число без лишних нулей
func (b *BaseGenerator) FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatTimestamp форматирует время
func (b *BaseGenerator) FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

func joinModes(modes []domain.Mode) string {
	return domain.PathSummary{ModeSequence: modes}.ModesText()
}
