// Package handlers публикует операторскую сессию как connect-сервис
// multimodal.transit.v1.TransitService (JSON поверх HTTP).
package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"connectrpc.com/connect"

	"multimodal/pkg/apperror"
	"multimodal/pkg/domain"
	"multimodal/pkg/interceptors"
	"multimodal/services/transit-svc/internal/report"
	"multimodal/services/transit-svc/internal/repository"
	"multimodal/services/transit-svc/internal/session"
)

// ServiceName полное имя сервиса
const ServiceName = "multimodal.transit.v1.TransitService"

// Процедуры сервиса
const (
	ProcedureSimulateAll             = "/" + ServiceName + "/SimulateAll"
	ProcedureStop                    = "/" + ServiceName + "/Stop"
	ProcedureRestart                 = "/" + ServiceName + "/Restart"
	ProcedureSetSpeed                = "/" + ServiceName + "/SetSpeed"
	ProcedureEnterCrisisMode         = "/" + ServiceName + "/EnterCrisisMode"
	ProcedureSelectProtectedEndpoint = "/" + ServiceName + "/SelectProtectedEndpoint"
	ProcedureChooseDestroyKind       = "/" + ServiceName + "/ChooseDestroyKind"
	ProcedureSelectDestroyTarget     = "/" + ServiceName + "/SelectDestroyTarget"
	ProcedureCancelCrisis            = "/" + ServiceName + "/CancelCrisis"
	ProcedureRestoreAll              = "/" + ServiceName + "/RestoreAll"
	ProcedureGetSnapshot             = "/" + ServiceName + "/GetSnapshot"
	ProcedureGetState                = "/" + ServiceName + "/GetState"
	ProcedureFindPaths               = "/" + ServiceName + "/FindPaths"
	ProcedureListAnalyses            = "/" + ServiceName + "/ListAnalyses"
	ProcedureGetAnalysis             = "/" + ServiceName + "/GetAnalysis"
	ProcedureExportReport            = "/" + ServiceName + "/ExportReport"
)

// TransitHandler обработчики команд и запросов сессии
type TransitHandler struct {
	session       *session.Session
	reportOpts    report.Options
	defaultFormat report.Format
	log           *slog.Logger
}

// Option настраивает обработчик
type Option func(*TransitHandler)

// WithReportOptions задаёт оформление отчётов и формат по умолчанию
func WithReportOptions(opts report.Options, format report.Format) Option {
	return func(h *TransitHandler) {
		h.reportOpts = opts
		if format != "" {
			h.defaultFormat = format
		}
	}
}

// WithLogger задаёт логгер
func WithLogger(l *slog.Logger) Option {
	return func(h *TransitHandler) { h.log = l }
}

// NewTransitHandler создаёт обработчик
func NewTransitHandler(s *session.Session, opts ...Option) *TransitHandler {
	h := &TransitHandler{
		session:       s,
		defaultFormat: report.FormatCSV,
		log:           slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register регистрирует все процедуры в mux
func (h *TransitHandler) Register(mux *http.ServeMux, opts ...connect.HandlerOption) {
	opts = append([]connect.HandlerOption{connect.WithCodec(JSONCodec{})}, opts...)

	command := func(procedure string, fn func() (session.Result, error)) {
		mux.Handle(procedure, unary(procedure, func(context.Context, *Empty) (*CommandResponse, error) {
			return toResponse(fn())
		}, opts))
	}

	command(ProcedureSimulateAll, h.session.SimulateAll)
	command(ProcedureStop, h.session.Stop)
	command(ProcedureRestart, h.session.Restart)
	command(ProcedureEnterCrisisMode, h.session.EnterCrisisMode)
	command(ProcedureCancelCrisis, h.session.CancelCrisis)
	command(ProcedureRestoreAll, h.session.RestoreAll)

	mux.Handle(ProcedureSetSpeed, unary(ProcedureSetSpeed, h.SetSpeed, opts))
	mux.Handle(ProcedureSelectProtectedEndpoint, unary(ProcedureSelectProtectedEndpoint, h.SelectProtectedEndpoint, opts))
	mux.Handle(ProcedureChooseDestroyKind, unary(ProcedureChooseDestroyKind, h.ChooseDestroyKind, opts))
	mux.Handle(ProcedureSelectDestroyTarget, unary(ProcedureSelectDestroyTarget, h.SelectDestroyTarget, opts))
	mux.Handle(ProcedureGetSnapshot, unary(ProcedureGetSnapshot, h.GetSnapshot, opts))
	mux.Handle(ProcedureGetState, unary(ProcedureGetState, h.GetState, opts))
	mux.Handle(ProcedureFindPaths, unary(ProcedureFindPaths, h.FindPaths, opts))
	mux.Handle(ProcedureListAnalyses, unary(ProcedureListAnalyses, h.ListAnalyses, opts))
	mux.Handle(ProcedureGetAnalysis, unary(ProcedureGetAnalysis, h.GetAnalysis, opts))
	mux.Handle(ProcedureExportReport, unary(ProcedureExportReport, h.ExportReport, opts))
}

func unary[Req, Res any](procedure string, fn func(context.Context, *Req) (*Res, error), opts []connect.HandlerOption) http.Handler {
	return connect.NewUnaryHandler(procedure,
		func(ctx context.Context, req *connect.Request[Req]) (*connect.Response[Res], error) {
			res, err := fn(ctx, req.Msg)
			if err != nil {
				return nil, err
			}
			return connect.NewResponse(res), nil
		},
		opts...,
	)
}

func toResponse(res session.Result, err error) (*CommandResponse, error) {
	if err != nil {
		return nil, err
	}
	return &CommandResponse{Applied: res.Applied, Message: res.Message}, nil
}

// ==================== Команды ====================

func (h *TransitHandler) SetSpeed(_ context.Context, req *SetSpeedRequest) (*CommandResponse, error) {
	return toResponse(h.session.SetSpeed(req.Mode, req.Value))
}

func (h *TransitHandler) SelectProtectedEndpoint(_ context.Context, req *EndpointRequest) (*CommandResponse, error) {
	return toResponse(h.session.SelectProtectedEndpoint(req.Location))
}

func (h *TransitHandler) ChooseDestroyKind(_ context.Context, req *KindRequest) (*CommandResponse, error) {
	return toResponse(h.session.ChooseDestroyKind(req.Kind))
}

func (h *TransitHandler) SelectDestroyTarget(_ context.Context, req *TargetRequest) (*CommandResponse, error) {
	return toResponse(h.session.SelectDestroyTarget(session.Target{
		City:        req.City,
		Origin:      req.Origin,
		Destination: req.Destination,
		Mode:        req.Mode,
	}))
}

// ==================== Запросы ====================

func (h *TransitHandler) GetSnapshot(context.Context, *Empty) (*domain.Snapshot, error) {
	return h.session.Snapshot(), nil
}

func (h *TransitHandler) GetState(context.Context, *Empty) (*session.View, error) {
	v := h.session.State()
	return &v, nil
}

func (h *TransitHandler) FindPaths(_ context.Context, req *FindPathsRequest) (*FindPathsResponse, error) {
	version := h.session.Network().Version()
	paths, err := h.session.FindPaths(req.Origin, req.Destination)
	if err != nil {
		return nil, err
	}
	return &FindPathsResponse{
		NetworkVersion: version,
		Count:          len(paths),
		Paths:          domain.SummarizePaths(paths),
	}, nil
}

func (h *TransitHandler) ListAnalyses(ctx context.Context, req *ListAnalysesRequest) (*ListAnalysesResponse, error) {
	items, total, err := h.session.Analyses(ctx, req.filter())
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*repository.AnalysisRecord{}
	}
	return &ListAnalysesResponse{Total: total, Analyses: items}, nil
}

func (h *TransitHandler) GetAnalysis(ctx context.Context, req *GetAnalysisRequest) (*repository.AnalysisRecord, error) {
	return h.session.Analysis(ctx, req.ID)
}

func (h *TransitHandler) ExportReport(ctx context.Context, req *ExportReportRequest) (*ExportReportResponse, error) {
	format := h.defaultFormat
	if req.Format != "" {
		f, err := report.ParseFormat(req.Format)
		if err != nil {
			return nil, err
		}
		format = f
	}

	id := req.AnalysisID
	if id == "" {
		latest, _, err := h.session.Analyses(ctx, repository.Filter{Limit: 1})
		if err != nil {
			return nil, err
		}
		if len(latest) == 0 {
			return nil, apperror.New(apperror.CodeNotFound, "no analysis to export")
		}
		id = latest[0].ID
	}

	rec, err := h.session.Analysis(ctx, id)
	if err != nil {
		return nil, err
	}

	content, err := report.Render(ctx, format, h.reportOpts, report.FromRecord(rec))
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInternal, "failed to render report")
	}
	h.log.Info("report exported", "analysis_id", id, "format", format, "bytes", len(content))

	return &ExportReportResponse{
		AnalysisID:  id,
		Filename:    fmt.Sprintf("crisis-analysis-%s%s", id, format.Extension()),
		ContentType: format.ContentType(),
		Content:     content,
	}, nil
}

// Call вызывает процедуру сервиса по адресу baseURL
func Call[Req, Res any](ctx context.Context, client connect.HTTPClient, baseURL, procedure string, req *Req) (*Res, error) {
	c := connect.NewClient[Req, Res](client, baseURL+procedure, connect.WithCodec(JSONCodec{}))
	resp, err := c.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// compile-time проверки интерфейсов интерсепторов
var (
	_ interceptors.Applier   = (*CommandResponse)(nil)
	_ interceptors.Targeter  = (*TargetRequest)(nil)
	_ interceptors.Validator = (*FindPathsRequest)(nil)
	_ interceptors.Validator = (*ListAnalysesRequest)(nil)
	_ interceptors.Validator = (*ExportReportRequest)(nil)
)
