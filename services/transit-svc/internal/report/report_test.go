package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"multimodal/pkg/apperror"
	"multimodal/pkg/domain"
	"multimodal/services/transit-svc/internal/advisor"
	"multimodal/services/transit-svc/internal/repository"
)

func sampleData() *Data {
	paths := []domain.PathSummary{
		{
			LocationSequence: []string{"Shanghai", "Singapore"},
			ModeSequence:     []domain.Mode{domain.ModeSea},
			TotalCost:        550, TotalTime: 336, TotalEnvironment: 60,
		},
		{
			LocationSequence: []string{"Shanghai", "Singapore"},
			ModeSequence:     []domain.Mode{domain.ModeAir},
			TotalCost:        990, TotalTime: 10, TotalEnvironment: 85,
		},
		{
			LocationSequence: []string{"Shanghai", "Tokyo", "Singapore"},
			ModeSequence:     []domain.Mode{domain.ModeSea, domain.ModeSea},
			TotalCost:        2800, TotalTime: 560, TotalEnvironment: 125,
		},
	}
	return FromRecord(&repository.AnalysisRecord{
		ID:             "a-1",
		Origin:         "Shanghai",
		Destination:    "Singapore",
		NetworkVersion: 2,
		Status:         repository.StatusAdvised,
		Destroyed:      []string{"Hong Kong"},
		Paths:          paths,
		CreatedAt:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Advice: &advisor.Advice{
			Provider: "heuristic",
			Solutions: []advisor.Solution{
				{
					Consideration: advisor.ConsiderationCost,
					Route:         []string{"Shanghai", "Singapore"},
					Modes:         []domain.Mode{domain.ModeSea},
					Cost:          550, Time: 336, EnvironmentalImpact: 60,
					Comment: "Cheapest option.",
				},
				{Text: "free-form reply"},
			},
		},
	})
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatCSV, false},
		{"CSV", FormatCSV, false},
		{"excel", FormatXLSX, false},
		{"pdf", FormatPDF, false},
		{"docx", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if FormatPDF.ContentType() != "application/pdf" || FormatXLSX.Extension() != ".xlsx" {
		t.Error("unexpected format metadata")
	}
}

func TestCSVGenerator(t *testing.T) {
	out, err := Render(context.Background(), FormatCSV, Options{}, sampleData())
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	r := csv.NewReader(bytes.NewReader(out))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		t.Fatalf("output is not valid csv: %v", err)
	}

	content := string(out)
	for _, want := range []string{
		"Crisis Route Analysis: Shanghai to Singapore",
		"Shanghai -> Tokyo -> Singapore",
		"Hong Kong",
		"lowest-cost",
		"2026-03-01 12:00:00",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("csv does not contain %q", want)
		}
	}

	var pathRows int
	for _, rec := range records {
		if len(rec) == 6 && rec[0] != "#" {
			pathRows++
		}
	}
	if pathRows != 3 {
		t.Errorf("path rows = %d, want 3", pathRows)
	}
}

func TestCSVGenerator_MaxPaths(t *testing.T) {
	out, err := Render(context.Background(), FormatCSV, Options{MaxPathsInTable: 1}, sampleData())
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !strings.Contains(string(out), "... and 2 more paths") {
		t.Error("truncated table must mention hidden paths")
	}
	if strings.Contains(string(out), "Shanghai -> Tokyo -> Singapore") {
		t.Error("hidden path must not be rendered")
	}
}

func TestExcelGenerator(t *testing.T) {
	out, err := Render(context.Background(), FormatXLSX, Options{CompanyName: "Ops"}, sampleData())
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if len(out) < 4 || out[0] != 'P' || out[1] != 'K' {
		t.Fatal("result doesn't look like a valid XLSX file")
	}

	f, err := excelize.OpenReader(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) != 3 || sheets[0] != sheetSummary {
		t.Fatalf("sheets = %v", sheets)
	}

	route, err := f.GetCellValue(sheetPaths, "B4")
	if err != nil || route != "Shanghai -> Tokyo -> Singapore" {
		t.Errorf("Paths!B4 = %q, %v", route, err)
	}
	author, _ := f.GetCellValue(sheetSummary, "B4")
	if author != "Ops" {
		t.Errorf("author = %q, want Ops", author)
	}
}

func TestExcelGenerator_NoAdvice(t *testing.T) {
	data := sampleData()
	data.Advice = nil

	out, err := Render(context.Background(), FormatXLSX, Options{}, data)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()
	if len(f.GetSheetList()) != 2 {
		t.Errorf("sheets = %v, want summary and paths only", f.GetSheetList())
	}
}

func TestPDFGenerator(t *testing.T) {
	out, err := Render(context.Background(), FormatPDF, Options{PageNumbers: true}, sampleData())
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if len(out) < 5 || string(out[:5]) != "%PDF-" {
		t.Error("result doesn't look like a valid PDF file")
	}
}

func TestPDFGenerator_NoPaths(t *testing.T) {
	data := sampleData()
	data.Paths = nil
	data.Advice = nil
	data.Message = advisor.MsgNoPaths

	out, err := Render(context.Background(), FormatPDF, Options{}, data)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if string(out[:5]) != "%PDF-" {
		t.Error("result doesn't look like a valid PDF file")
	}
}

func TestRender_Errors(t *testing.T) {
	if _, err := Render(context.Background(), FormatCSV, Options{}, nil); !apperror.Is(err, apperror.CodeNilInput) {
		t.Errorf("nil data: %v", err)
	}
	if _, err := New("docx", Options{}); !apperror.IsValidation(err) {
		t.Errorf("unknown format: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Render(ctx, FormatCSV, Options{}, sampleData()); err == nil {
		t.Error("cancelled context must abort generation")
	}
}

func TestColName(t *testing.T) {
	cases := map[int]string{0: "A", 25: "Z", 26: "AA", 27: "AB"}
	for in, want := range cases {
		if got := ColName(in); got != want {
			t.Errorf("ColName(%d) = %q, want %q", in, got, want)
		}
	}
}
