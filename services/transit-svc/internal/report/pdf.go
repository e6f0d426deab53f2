package report

import (
	"context"
	"fmt"
	"strings"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/border"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"

	"multimodal/services/transit-svc/internal/advisor"
)

// PDFGenerator генератор PDF отчётов
type PDFGenerator struct {
	BaseGenerator
}

// Format возвращает формат генератора
func (g *PDFGenerator) Format() Format {
	return FormatPDF
}

var (
	primaryColor   = &props.Color{Red: 52, Green: 152, Blue: 219}  // #3498db
	headerBgColor  = &props.Color{Red: 44, Green: 62, Blue: 80}    // #2c3e50
	dangerColor    = &props.Color{Red: 231, Green: 76, Blue: 60}   // #e74c3c
	lightGrayColor = &props.Color{Red: 236, Green: 240, Blue: 241} // #ecf0f1
	darkGrayColor  = &props.Color{Red: 127, Green: 140, Blue: 141} // #7f8c8d

	titleStyle = props.Text{
		Size:  20,
		Style: fontstyle.Bold,
		Align: align.Center,
		Color: headerBgColor,
	}

	h2Style = props.Text{
		Size:  14,
		Style: fontstyle.Bold,
		Color: headerBgColor,
		Top:   5,
	}

	normalStyle = props.Text{Size: 10}

	boldStyle = props.Text{Size: 10, Style: fontstyle.Bold}

	smallStyle = props.Text{Size: 8, Color: darkGrayColor}

	metricValueStyle = props.Text{
		Size:  14,
		Style: fontstyle.Bold,
		Align: align.Center,
		Color: primaryColor,
	}

	metricLabelStyle = props.Text{
		Size:  9,
		Align: align.Center,
		Color: darkGrayColor,
	}

	tableHeaderStyle = &props.Cell{BackgroundColor: primaryColor}

	tableHeaderTextStyle = props.Text{
		Size:  9,
		Style: fontstyle.Bold,
		Color: &props.Color{Red: 255, Green: 255, Blue: 255},
		Align: align.Center,
	}

	tableCellStyle = &props.Cell{
		BorderType:  border.Bottom,
		BorderColor: lightGrayColor,
	}

	tableCellTextStyle = props.Text{Size: 8, Align: align.Center}
)

// Generate генерирует PDF отчёт
func (g *PDFGenerator) Generate(ctx context.Context, data *Data) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b := config.NewBuilder().
		WithLeftMargin(15).
		WithTopMargin(15).
		WithRightMargin(15)
	if g.opts.PageNumbers {
		b = b.WithPageNumber()
	}
	m := maroto.New(b.Build())

	g.addHeader(m, data)
	g.addOverview(m, data)
	g.addPaths(m, data)
	if data.Advice != nil && len(data.Advice.Solutions) > 0 {
		g.addSolutions(m, data.Advice)
	}
	g.addFooter(m, data)

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}
	return doc.GetBytes(), nil
}

func (g *PDFGenerator) addHeader(m core.Maroto, data *Data) {
	m.AddRow(15, text.NewCol(12, g.GetTitle(data), titleStyle))
	m.AddRow(5, line.NewCol(12))
	m.AddRow(6,
		text.NewCol(6, fmt.Sprintf("Author: %s", g.GetAuthor(data)), smallStyle),
		text.NewCol(6, fmt.Sprintf("Generated: %s", g.FormatTimestamp(data.GeneratedAt)),
			props.Text{Size: 8, Color: darkGrayColor, Align: align.Right}),
	)
	m.AddRow(8)
}

func (g *PDFGenerator) addOverview(m core.Maroto, data *Data) {
	g.addSection(m, "Crisis Overview")

	cards := []metricCard{
		{Label: "Origin", Value: data.Origin},
		{Label: "Destination", Value: data.Destination},
		{Label: "Paths", Value: fmt.Sprintf("%d", len(data.Paths))},
		{Label: "Targets Destroyed", Value: fmt.Sprintf("%d", len(data.Destroyed))},
	}
	g.addMetricCards(m, cards)

	if len(data.Destroyed) > 0 {
		m.AddRow(6,
			text.NewCol(3, "Destroyed", boldStyle),
			text.NewCol(9, strings.Join(data.Destroyed, "; "), props.Text{Size: 10, Color: dangerColor}),
		)
	}
	if data.Message != "" {
		m.AddRow(6,
			text.NewCol(3, "Message", boldStyle),
			text.NewCol(9, data.Message, normalStyle),
		)
	}
	m.AddRow(5)
}

func (g *PDFGenerator) addPaths(m core.Maroto, data *Data) {
	g.addSection(m, "Available Paths")

	if len(data.Paths) == 0 {
		m.AddRow(6, text.NewCol(12, advisor.MsgNoPaths, normalStyle))
		return
	}

	m.AddRow(8,
		text.NewCol(1, "#", tableHeaderTextStyle).WithStyle(tableHeaderStyle),
		text.NewCol(4, "Route", tableHeaderTextStyle).WithStyle(tableHeaderStyle),
		text.NewCol(3, "Modes", tableHeaderTextStyle).WithStyle(tableHeaderStyle),
		text.NewCol(2, "Cost", tableHeaderTextStyle).WithStyle(tableHeaderStyle),
		text.NewCol(1, "Time", tableHeaderTextStyle).WithStyle(tableHeaderStyle),
		text.NewCol(1, "Env", tableHeaderTextStyle).WithStyle(tableHeaderStyle),
	)

	paths := g.VisiblePaths(data)
	for i, p := range paths {
		m.AddRow(6,
			text.NewCol(1, fmt.Sprintf("%d", i+1), tableCellTextStyle).WithStyle(tableCellStyle),
			text.NewCol(4, p.RouteText(), tableCellTextStyle).WithStyle(tableCellStyle),
			text.NewCol(3, p.ModesText(), tableCellTextStyle).WithStyle(tableCellStyle),
			text.NewCol(2, "$"+g.FormatFloat(p.TotalCost), tableCellTextStyle).WithStyle(tableCellStyle),
			text.NewCol(1, g.FormatFloat(p.TotalTime), tableCellTextStyle).WithStyle(tableCellStyle),
			text.NewCol(1, g.FormatFloat(p.TotalEnvironment), tableCellTextStyle).WithStyle(tableCellStyle),
		)
	}
	if hidden := len(data.Paths) - len(paths); hidden > 0 {
		m.AddRow(6, text.NewCol(12, fmt.Sprintf("... and %d more paths", hidden), smallStyle))
	}
	m.AddRow(5)
}

func (g *PDFGenerator) addSolutions(m core.Maroto, advice *advisor.Advice) {
	g.addSection(m, fmt.Sprintf("Recommended Solutions (%s)", advice.Provider))

	for i, s := range advice.Solutions {
		title := string(s.Consideration)
		if title == "" {
			title = "Solution"
		}
		m.AddRow(8, text.NewCol(12, fmt.Sprintf("%d. %s", i+1, title), boldStyle))

		if len(s.Route) == 0 {
			m.AddRow(6, text.NewCol(12, s.Text, normalStyle))
			m.AddRow(3)
			continue
		}
		m.AddRow(6, text.NewCol(12,
			fmt.Sprintf("%s by %s", strings.Join(s.Route, " -> "), joinModes(s.Modes)), normalStyle))
		m.AddRow(5, text.NewCol(12,
			fmt.Sprintf("Cost: $%s | Time: %s hours | Carbon Footprint: %s kg",
				g.FormatFloat(s.Cost), g.FormatFloat(s.Time), g.FormatFloat(s.EnvironmentalImpact)),
			smallStyle))
		if s.Comment != "" {
			m.AddRow(6, text.NewCol(12, s.Comment, normalStyle))
		}
		m.AddRow(3)
	}
}

type metricCard struct {
	Label string
	Value string
}

func (g *PDFGenerator) addMetricCards(m core.Maroto, cards []metricCard) {
	if len(cards) == 0 {
		return
	}

	colSize := 12 / len(cards)
	if colSize < 2 {
		colSize = 2
	}

	var cols []core.Col
	for _, card := range cards {
		cols = append(cols,
			col.New(colSize).Add(
				text.New(card.Value, metricValueStyle),
				text.New(card.Label, metricLabelStyle),
			),
		)
	}
	m.AddRow(20, cols...)
}

func (g *PDFGenerator) addSection(m core.Maroto, title string) {
	m.AddRow(10, text.NewCol(12, title, h2Style))
	m.AddRow(2, line.NewCol(12, props.Line{Color: primaryColor}))
	m.AddRow(5)
}

func (g *PDFGenerator) addFooter(m core.Maroto, data *Data) {
	m.AddRow(10)
	m.AddRow(2, line.NewCol(12, props.Line{Color: lightGrayColor}))
	m.AddRow(6,
		text.NewCol(12,
			fmt.Sprintf("Generated by %s | network version %d", g.GetAuthor(data), data.NetworkVersion),
			props.Text{Size: 8, Color: darkGrayColor, Align: align.Center},
		),
	)
}
