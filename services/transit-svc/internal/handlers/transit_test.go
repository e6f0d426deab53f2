package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multimodal/pkg/domain"
	"multimodal/pkg/interceptors"
	"multimodal/pkg/logger"
	"multimodal/services/transit-svc/internal/report"
	"multimodal/services/transit-svc/internal/repository"
	"multimodal/services/transit-svc/internal/session"
	"multimodal/services/transit-svc/internal/simulator"
)

type fixture struct {
	session *session.Session
	srv     *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	s, err := session.New(domain.MustDefaultDataset(), session.Config{},
		session.WithLogger(logger.Discard()),
		session.WithSimulatorConfig(simulator.Config{TickInterval: 0, Quantum: domain.DefaultTickQuantum}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	h := NewTransitHandler(s,
		WithLogger(logger.Discard()),
		WithReportOptions(report.Options{CompanyName: "Ops"}, report.FormatCSV),
	)
	mux := http.NewServeMux()
	h.Register(mux, interceptors.HandlerOptions(&interceptors.ServerConfig{
		ServiceName: "transit-svc",
		Logger:      logger.Discard(),
	})...)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &fixture{session: s, srv: srv}
}

func call[Req, Res any](f *fixture, procedure string, req *Req) (*Res, error) {
	return Call[Req, Res](context.Background(), f.srv.Client(), f.srv.URL, procedure, req)
}

func command(t *testing.T, f *fixture, procedure string) *CommandResponse {
	t.Helper()
	res, err := call[Empty, CommandResponse](f, procedure, &Empty{})
	require.NoError(t, err)
	return res
}

func TestTransit_SimulationCommands(t *testing.T) {
	f := newFixture(t)

	assert.True(t, command(t, f, ProcedureSimulateAll).Applied)

	_, err := call[Empty, CommandResponse](f, ProcedureEnterCrisisMode, &Empty{})
	require.Error(t, err)
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))

	res, err := call[SetSpeedRequest, CommandResponse](f, ProcedureSetSpeed, &SetSpeedRequest{Mode: "Sea", Value: 500})
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.NotEmpty(t, res.Message)

	assert.True(t, command(t, f, ProcedureStop).Applied)
	assert.True(t, command(t, f, ProcedureRestart).Applied)

	state, err := call[Empty, session.View](f, ProcedureGetState, &Empty{})
	require.NoError(t, err)
	assert.False(t, state.Simulation.Running)
	assert.Equal(t, 30.0, state.Simulation.Speeds["Sea"])
}

func TestTransit_CrisisFlowAndReport(t *testing.T) {
	f := newFixture(t)

	assert.True(t, command(t, f, ProcedureEnterCrisisMode).Applied)

	res, err := call[EndpointRequest, CommandResponse](f, ProcedureSelectProtectedEndpoint, &EndpointRequest{Location: "Atlantis"})
	require.NoError(t, err)
	assert.False(t, res.Applied, "unknown location is a no-op")

	for _, loc := range []string{"Shanghai", "Singapore"} {
		res, err := call[EndpointRequest, CommandResponse](f, ProcedureSelectProtectedEndpoint, &EndpointRequest{Location: loc})
		require.NoError(t, err)
		require.True(t, res.Applied)
	}

	res, err = call[KindRequest, CommandResponse](f, ProcedureChooseDestroyKind, &KindRequest{Kind: "city"})
	require.NoError(t, err)
	require.True(t, res.Applied)

	_, err = call[TargetRequest, CommandResponse](f, ProcedureSelectDestroyTarget, &TargetRequest{City: "Shanghai"})
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err), "protected city")

	res, err = call[TargetRequest, CommandResponse](f, ProcedureSelectDestroyTarget, &TargetRequest{City: "Hong Kong"})
	require.NoError(t, err)
	require.True(t, res.Applied)
	assert.Contains(t, res.Message, "Hong Kong")

	f.session.Wait()

	snap, err := call[Empty, domain.Snapshot](f, ProcedureGetSnapshot, &Empty{})
	require.NoError(t, err)
	assert.Len(t, snap.Locations, 5)
	assert.Len(t, snap.Routes, 8)

	state, err := call[Empty, session.View](f, ProcedureGetState, &Empty{})
	require.NoError(t, err)
	require.NotNil(t, state.Advice)
	assert.NotEmpty(t, state.AnalysisID)

	list, err := call[ListAnalysesRequest, ListAnalysesResponse](f, ProcedureListAnalyses, &ListAnalysesRequest{Location: "Shanghai"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, list.Total)

	rec, err := call[GetAnalysisRequest, repository.AnalysisRecord](f, ProcedureGetAnalysis, &GetAnalysisRequest{ID: state.AnalysisID})
	require.NoError(t, err)
	assert.Equal(t, "Shanghai", rec.Origin)
	assert.Equal(t, []string{"Hong Kong"}, rec.Destroyed)

	csvReport, err := call[ExportReportRequest, ExportReportResponse](f, ProcedureExportReport, &ExportReportRequest{})
	require.NoError(t, err)
	assert.Equal(t, state.AnalysisID, csvReport.AnalysisID)
	assert.Equal(t, "text/csv", csvReport.ContentType)
	assert.True(t, bytes.Contains(csvReport.Content, []byte("Shanghai -> Singapore")))

	xlsx, err := call[ExportReportRequest, ExportReportResponse](f, ProcedureExportReport,
		&ExportReportRequest{AnalysisID: state.AnalysisID, Format: "xlsx"})
	require.NoError(t, err)
	assert.Equal(t, []byte("PK"), xlsx.Content[:2])

	assert.True(t, command(t, f, ProcedureRestoreAll).Applied)
	snap, err = call[Empty, domain.Snapshot](f, ProcedureGetSnapshot, &Empty{})
	require.NoError(t, err)
	assert.Len(t, snap.Routes, 15)
}

func TestTransit_FindPaths(t *testing.T) {
	f := newFixture(t)

	res, err := call[FindPathsRequest, FindPathsResponse](f, ProcedureFindPaths,
		&FindPathsRequest{Origin: "Shanghai", Destination: "Singapore"})
	require.NoError(t, err)
	assert.Equal(t, len(res.Paths), res.Count)
	assert.NotZero(t, res.Count)

	_, err = call[FindPathsRequest, FindPathsResponse](f, ProcedureFindPaths, &FindPathsRequest{Origin: "Shanghai"})
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	_, err = call[FindPathsRequest, FindPathsResponse](f, ProcedureFindPaths,
		&FindPathsRequest{Origin: "Shanghai", Destination: "Atlantis"})
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))
}

func TestTransit_QueryErrors(t *testing.T) {
	f := newFixture(t)

	_, err := call[ListAnalysesRequest, ListAnalysesResponse](f, ProcedureListAnalyses, &ListAnalysesRequest{Limit: -1})
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	_, err = call[ExportReportRequest, ExportReportResponse](f, ProcedureExportReport, &ExportReportRequest{})
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))

	_, err = call[ExportReportRequest, ExportReportResponse](f, ProcedureExportReport, &ExportReportRequest{Format: "docx"})
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	_, err = call[GetAnalysisRequest, repository.AnalysisRecord](f, ProcedureGetAnalysis, &GetAnalysisRequest{ID: "missing"})
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))

	list, err := call[ListAnalysesRequest, ListAnalysesResponse](f, ProcedureListAnalyses, &ListAnalysesRequest{})
	require.NoError(t, err)
	assert.NotNil(t, list.Analyses)
	assert.Zero(t, list.Total)
}
