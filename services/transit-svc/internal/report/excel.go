package report

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	sheetSummary   = "Summary"
	sheetPaths     = "Paths"
	sheetSolutions = "Solutions"
)

// ExcelGenerator генератор XLSX отчётов
type ExcelGenerator struct {
	BaseGenerator
}

// Format возвращает формат генератора
func (g *ExcelGenerator) Format() Format {
	return FormatXLSX
}

// Generate генерирует XLSX отчёт
func (g *ExcelGenerator) Generate(ctx context.Context, data *Data) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("excel style: %w", err)
	}

	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return nil, err
	}
	g.writeSummary(f, data, headerStyle)
	g.writePaths(f, data, headerStyle)
	if data.Advice != nil && len(data.Advice.Solutions) > 0 {
		g.writeSolutions(f, data, headerStyle)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("excel write: %w", err)
	}
	return buf.Bytes(), nil
}

func (g *ExcelGenerator) writeSummary(f *excelize.File, data *Data, headerStyle int) {
	f.SetCellValue(sheetSummary, "A1", g.GetTitle(data))
	f.MergeCell(sheetSummary, "A1", "D1")

	rows := [][2]any{
		{"Author", g.GetAuthor(data)},
		{"Generated", g.FormatTimestamp(data.GeneratedAt)},
		{"Analysis", data.AnalysisID},
		{"Origin", data.Origin},
		{"Destination", data.Destination},
		{"Network Version", data.NetworkVersion},
		{"Destroyed", strings.Join(data.Destroyed, "; ")},
		{"Status", data.Status},
		{"Message", data.Message},
		{"Paths Found", len(data.Paths)},
	}

	f.SetCellValue(sheetSummary, "A3", "Field")
	f.SetCellValue(sheetSummary, "B3", "Value")
	f.SetCellStyle(sheetSummary, "A3", "B3", headerStyle)
	for i, r := range rows {
		row := i + 4
		f.SetCellValue(sheetSummary, Cell("A", row), r[0])
		f.SetCellValue(sheetSummary, Cell("B", row), r[1])
	}
	f.SetColWidth(sheetSummary, "A", "A", 18)
	f.SetColWidth(sheetSummary, "B", "B", 60)
}

func (g *ExcelGenerator) writePaths(f *excelize.File, data *Data, headerStyle int) {
	f.NewSheet(sheetPaths)

	headers := []string{"#", "Route", "Modes", "Cost", "Time", "Environment"}
	for i, h := range headers {
		f.SetCellValue(sheetPaths, CellByIndex(i, 1), h)
	}
	f.SetCellStyle(sheetPaths, "A1", CellByIndex(len(headers)-1, 1), headerStyle)

	for i, p := range g.VisiblePaths(data) {
		row := i + 2
		f.SetCellValue(sheetPaths, Cell("A", row), i+1)
		f.SetCellValue(sheetPaths, Cell("B", row), p.RouteText())
		f.SetCellValue(sheetPaths, Cell("C", row), p.ModesText())
		f.SetCellValue(sheetPaths, Cell("D", row), p.TotalCost)
		f.SetCellValue(sheetPaths, Cell("E", row), p.TotalTime)
		f.SetCellValue(sheetPaths, Cell("F", row), p.TotalEnvironment)
	}
	f.SetColWidth(sheetPaths, "B", "B", 50)
	f.SetColWidth(sheetPaths, "C", "C", 24)
}

func (g *ExcelGenerator) writeSolutions(f *excelize.File, data *Data, headerStyle int) {
	f.NewSheet(sheetSolutions)

	headers := []string{"Consideration", "Route", "Modes", "Cost", "Time", "Carbon Footprint", "Evaluation"}
	for i, h := range headers {
		f.SetCellValue(sheetSolutions, CellByIndex(i, 1), h)
	}
	f.SetCellStyle(sheetSolutions, "A1", CellByIndex(len(headers)-1, 1), headerStyle)

	for i, s := range data.Advice.Solutions {
		row := i + 2
		f.SetCellValue(sheetSolutions, Cell("A", row), string(s.Consideration))
		f.SetCellValue(sheetSolutions, Cell("B", row), strings.Join(s.Route, " -> "))
		f.SetCellValue(sheetSolutions, Cell("C", row), joinModes(s.Modes))
		f.SetCellValue(sheetSolutions, Cell("D", row), s.Cost)
		f.SetCellValue(sheetSolutions, Cell("E", row), s.Time)
		f.SetCellValue(sheetSolutions, Cell("F", row), s.EnvironmentalImpact)
		f.SetCellValue(sheetSolutions, Cell("G", row), s.Comment)
	}
	f.SetColWidth(sheetSolutions, "B", "B", 50)
	f.SetColWidth(sheetSolutions, "G", "G", 60)
}

// ColName преобразует индекс колонки в буквенное обозначение (0 -> A, 25 -> Z, 26 -> AA)
func ColName(index int) string {
	result := ""
	for {
		result = string(rune('A'+index%26)) + result
		index = index/26 - 1
		if index < 0 {
			break
		}
	}
	return result
}

// Cell возвращает адрес ячейки
func Cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}

// CellByIndex возвращает адрес ячейки по индексам
func CellByIndex(colIndex, rowIndex int) string {
	return Cell(ColName(colIndex), rowIndex)
}
