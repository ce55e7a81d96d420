// Package render draws dashboard views as PNG images with go-chart.
package render

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"covidboard/internal/models"
)

// ErrNoData is returned when a view has nothing to draw.
var ErrNoData = errors.New("render: no data")

const (
	defaultWidth  = 1024
	defaultHeight = 512
	barWidth      = 40
	barSpacing    = 20
)

// palette follows the plotly qualitative defaults.
var palette = []drawing.Color{
	drawing.ColorFromHex("1f77b4"),
	drawing.ColorFromHex("ff7f0e"),
	drawing.ColorFromHex("2ca02c"),
	drawing.ColorFromHex("d62728"),
	drawing.ColorFromHex("9467bd"),
	drawing.ColorFromHex("8c564b"),
	drawing.ColorFromHex("e377c2"),
	drawing.ColorFromHex("7f7f7f"),
	drawing.ColorFromHex("bcbd22"),
	drawing.ColorFromHex("17becf"),
}

// ConfirmedLine draws cumulative confirmed cases over time, one line per country.
func ConfirmedLine(w io.Writer, series []models.Series) error {
	return lineChart(w, "Confirmed COVID-19 Cases Over Time", "Confirmed", series)
}

// DailyNewLine draws daily new cases over time, one line per country.
func DailyNewLine(w io.Writer, series []models.Series) error {
	return lineChart(w, "Daily New COVID-19 Cases", "Daily New Cases", series)
}

func lineChart(w io.Writer, title, yName string, series []models.Series) error {
	var out []chart.Series
	minY, maxY := 0.0, 0.0
	first := true

	for i, s := range series {
		if len(s.Points) == 0 {
			continue
		}
		xs := make([]time.Time, 0, len(s.Points)+1)
		ys := make([]float64, 0, len(s.Points)+1)
		for _, p := range s.Points {
			v := float64(p.Value)
			xs = append(xs, p.Date.Time())
			ys = append(ys, v)
			if first || v < minY {
				minY = v
			}
			if first || v > maxY {
				maxY = v
			}
			first = false
		}
		// A single point has no x-range; stretch it over one day.
		if len(xs) == 1 {
			xs = append(xs, xs[0].Add(24*time.Hour))
			ys = append(ys, ys[0])
		}
		out = append(out, chart.TimeSeries{
			Name:    s.Country,
			XValues: xs,
			YValues: ys,
			Style: chart.Style{
				StrokeColor: palette[i%len(palette)],
				StrokeWidth: 2,
			},
		})
	}
	if len(out) == 0 {
		return ErrNoData
	}

	yAxis := chart.YAxis{Name: yName}
	if minY == maxY {
		yAxis.Range = &chart.ContinuousRange{Min: minY - 1, Max: maxY + 1}
	}

	ch := chart.Chart{
		Title:      title,
		Width:      defaultWidth,
		Height:     defaultHeight,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 12, Bottom: 28}},
		XAxis:      chart.XAxis{Name: "Date", ValueFormatter: chart.TimeValueFormatterWithFormat("2006-01-02")},
		YAxis:      yAxis,
		Series:     out,
	}
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}

	if err := ch.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render %s: %w", title, err)
	}
	return nil
}

// TotalsBar draws the per-country maximum confirmed count.
func TotalsBar(w io.Writer, totals []models.CountryTotals) error {
	if len(totals) == 0 {
		return ErrNoData
	}
	bars := make([]chart.Value, 0, len(totals))
	minV, maxV := 0.0, 0.0
	for i, t := range totals {
		v := float64(t.Confirmed)
		minV, maxV = min(minV, v), max(maxV, v)
		bars = append(bars, chart.Value{
			Label: t.Country,
			Value: v,
			Style: chart.Style{FillColor: palette[i%len(palette)], StrokeColor: palette[i%len(palette)]},
		})
	}
	if maxV == minV {
		maxV = minV + 1
	}

	bc := chart.BarChart{
		Title:      "Total Confirmed COVID-19 Cases",
		Width:      max(defaultWidth, len(bars)*(barWidth+barSpacing)+200),
		Height:     defaultHeight,
		Background: chart.Style{Padding: chart.Box{Top: 40}},
		BarWidth:   barWidth,
		BarSpacing: barSpacing,
		YAxis:      chart.YAxis{Range: &chart.ContinuousRange{Min: minV, Max: maxV}},
		Bars:       bars,
	}
	if err := bc.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render totals: %w", err)
	}
	return nil
}

// BreakdownPie draws Active vs Recovered vs Deaths for the latest snapshot.
// Non-positive slices are left out.
func BreakdownPie(w io.Writer, b models.Breakdown) error {
	slices := []struct {
		label string
		value int64
		color drawing.Color
	}{
		{"Active", b.Active, drawing.ColorFromHex("1f77b4")},
		{"Recovered", b.Recovered, drawing.ColorFromHex("2ca02c")},
		{"Deaths", b.Deaths, drawing.ColorFromHex("d62728")},
	}
	values := make([]chart.Value, 0, len(slices))
	for _, s := range slices {
		if s.value <= 0 {
			continue
		}
		values = append(values, chart.Value{
			Label: s.label,
			Value: float64(s.value),
			Style: chart.Style{FillColor: s.color},
		})
	}
	if len(values) == 0 {
		return ErrNoData
	}

	pc := chart.PieChart{
		Title:  "Active vs Recovered vs Deaths (Latest Data)",
		Width:  defaultHeight,
		Height: defaultHeight,
		Values: values,
	}
	if err := pc.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render breakdown: %w", err)
	}
	return nil
}
