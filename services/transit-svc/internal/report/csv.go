package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
)

// CSVGenerator генератор CSV отчётов
type CSVGenerator struct {
	BaseGenerator
}

// Format возвращает формат генератора
func (g *CSVGenerator) Format() Format {
	return FormatCSV
}

// csvWriter обёртка для отслеживания ошибок
type csvWriter struct {
	w   *csv.Writer
	err error
}

func (cw *csvWriter) Write(record ...string) {
	if cw.err != nil {
		return
	}
	cw.err = cw.w.Write(record)
}

func (cw *csvWriter) Flush() {
	if cw.err != nil {
		return
	}
	cw.w.Flush()
	cw.err = cw.w.Error()
}

// Generate генерирует CSV отчёт
func (g *CSVGenerator) Generate(ctx context.Context, data *Data) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := &csvWriter{w: csv.NewWriter(&buf)}

	w.Write("# " + g.GetTitle(data))
	w.Write("Author", g.GetAuthor(data))
	w.Write("Generated", g.FormatTimestamp(data.GeneratedAt))
	if data.AnalysisID != "" {
		w.Write("Analysis", data.AnalysisID)
	}
	w.Write("Origin", data.Origin)
	w.Write("Destination", data.Destination)
	w.Write("Network Version", strconv.FormatUint(data.NetworkVersion, 10))
	w.Write("Destroyed", strings.Join(data.Destroyed, "; "))
	if data.Status != "" {
		w.Write("Status", data.Status)
	}
	if data.Message != "" {
		w.Write("Message", data.Message)
	}
	w.Write("")

	paths := g.VisiblePaths(data)
	w.Write("Paths")
	w.Write("#", "Route", "Modes", "Cost", "Time", "Environment")
	for i, p := range paths {
		w.Write(
			strconv.Itoa(i+1),
			p.RouteText(),
			p.ModesText(),
			g.FormatFloat(p.TotalCost),
			g.FormatFloat(p.TotalTime),
			g.FormatFloat(p.TotalEnvironment),
		)
	}
	if hidden := len(data.Paths) - len(paths); hidden > 0 {
		w.Write(fmt.Sprintf("... and %d more paths", hidden))
	}

	if data.Advice != nil && len(data.Advice.Solutions) > 0 {
		w.Write("")
		w.Write("Solutions", data.Advice.Provider)
		w.Write("Consideration", "Route", "Modes", "Cost", "Time", "Carbon Footprint", "Evaluation")
		for _, s := range data.Advice.Solutions {
			w.Write(
				string(s.Consideration),
				strings.Join(s.Route, " -> "),
				joinModes(s.Modes),
				g.FormatFloat(s.Cost),
				g.FormatFloat(s.Time),
				g.FormatFloat(s.EnvironmentalImpact),
				s.Comment,
			)
		}
	}

	w.Flush()
	if w.err != nil {
		return nil, fmt.Errorf("csv write error: %w", w.err)
	}
	return buf.Bytes(), nil
}
