package handlers

import (
	"multimodal/pkg/swagger"
)

var appliedExample = &CommandResponse{Applied: true}

// OpenAPI описание процедур сервиса для Swagger UI
func OpenAPI(title, version string) *swagger.Document {
	command := func(path, summary string, req any) swagger.Operation {
		if req == nil {
			req = &Empty{}
		}
		return swagger.Operation{Path: path, Summary: summary, Tag: "commands", Request: req, Response: appliedExample}
	}
	query := func(path, summary string, req, res any) swagger.Operation {
		return swagger.Operation{Path: path, Summary: summary, Tag: "queries", Request: req, Response: res}
	}

	return swagger.NewDocument(title, version).Add(
		command(ProcedureSimulateAll, "Start motion on every route", nil),
		command(ProcedureStop, "Cancel all running animations", nil),
		command(ProcedureRestart, "Stop and start again from zero", nil),
		command(ProcedureSetSpeed, "Change the speed of a transport mode",
			&SetSpeedRequest{Mode: "Air", Value: 1000}),
		command(ProcedureEnterCrisisMode, "Begin protected endpoint selection", nil),
		command(ProcedureSelectProtectedEndpoint, "Pick the next protected city",
			&EndpointRequest{Location: "Shanghai"}),
		command(ProcedureChooseDestroyKind, "Choose whether a city or a route is destroyed",
			&KindRequest{Kind: "city"}),
		command(ProcedureSelectDestroyTarget, "Destroy a city or a route and re-run the analysis",
			&TargetRequest{City: "Hong Kong"}),
		command(ProcedureCancelCrisis, "Leave crisis mode without destroying", nil),
		command(ProcedureRestoreAll, "Restore the original network", nil),
		query(ProcedureGetSnapshot, "Current network snapshot", &Empty{}, nil),
		query(ProcedureGetState, "Session state", &Empty{}, nil),
		query(ProcedureFindPaths, "Enumerate simple paths between two locations",
			&FindPathsRequest{Origin: "Shanghai", Destination: "Singapore"}, nil),
		query(ProcedureListAnalyses, "List finished crisis analyses",
			&ListAnalysesRequest{Limit: 20}, nil),
		query(ProcedureGetAnalysis, "Fetch one analysis record",
			&GetAnalysisRequest{ID: "7f9c2ba4-e88f-11ee-a506-0242ac120002"}, nil),
		query(ProcedureExportReport, "Render an analysis as csv, xlsx or pdf",
			&ExportReportRequest{Format: "pdf"}, nil),
	)
}
