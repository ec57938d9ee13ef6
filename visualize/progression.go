// Package visualize renders training data as ECharts HTML pages.
package visualize

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/ghiac/vaultcoach/engine"
)

const (
	defaultAssetsScript = `<script src="https://go-echarts.github.io/go-echarts-assets/assets/echarts.min.js"></script>`
	cdnAssetsScript     = `<script src="https://cdn.jsdelivr.net/npm/echarts@5/dist/echarts.min.js"></script>`
)

// ProgressionChart draws attempts and success rate per day at one target height
type ProgressionChart struct {
	progression *engine.HeightProgression
}

// NewProgressionChart creates a chart for a get_height_progression result
func NewProgressionChart(p *engine.HeightProgression) *ProgressionChart {
	return &ProgressionChart{progression: p}
}

// Title returns the chart title
func (pc *ProgressionChart) Title() string {
	return fmt.Sprintf("Progression at %s", pc.progression.TargetHeight)
}

// Subtitle summarizes the overall result
func (pc *ProgressionChart) Subtitle() string {
	p := pc.progression
	if p.Attempts == 0 {
		return "No attempts recorded near this height"
	}
	return fmt.Sprintf("%d/%d makes (%d%%) | readiness: %s | trend: %s",
		p.Makes, p.Attempts, p.SuccessRate, p.Readiness, p.Trend)
}

// Generate builds the attempts bar chart with the success-rate line overlaid
func (pc *ProgressionChart) Generate() *charts.Bar {
	history := pc.progression.History

	dates := make([]string, 0, len(history))
	attempts := make([]opts.BarData, 0, len(history))
	makes := make([]opts.BarData, 0, len(history))
	rates := make([]opts.LineData, 0, len(history))
	for _, p := range history {
		dates = append(dates, p.Date)
		attempts = append(attempts, opts.BarData{Value: p.Attempts})
		makes = append(makes, opts.BarData{Value: p.Makes})
		rates = append(rates, opts.LineData{Value: p.SuccessRate, YAxisIndex: 1})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    pc.Title(),
			Subtitle: pc.Subtitle(),
		}),
		charts.WithInitializationOpts(opts.Initialization{
			Width:  "1000px",
			Height: "560px",
		}),
		charts.WithTooltipOpts(opts.Tooltip{
			Show:    opts.Bool(true),
			Trigger: "axis",
		}),
		charts.WithLegendOpts(opts.Legend{
			Show: opts.Bool(true),
			Top:  "bottom",
		}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Jumps"}),
	)
	bar.ExtendYAxis(opts.YAxis{Name: "Success %", Min: 0, Max: 100})

	bar.SetXAxis(dates).
		AddSeries("Attempts", attempts).
		AddSeries("Makes", makes)

	line := charts.NewLine()
	line.SetXAxis(dates).
		AddSeries("Success rate", rates,
			charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true), YAxisIndex: 1}),
		)
	bar.Overlap(line)

	return bar
}

// Render writes the chart as a standalone HTML page
func (pc *ProgressionChart) Render(w io.Writer) error {
	html, err := pc.HTML()
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, html)
	return err
}

// HTML renders the page, loading ECharts from jsDelivr
func (pc *ProgressionChart) HTML() (string, error) {
	page := components.NewPage()
	page.SetPageTitle(pc.Title())
	page.AddCharts(pc.Generate())

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return "", fmt.Errorf("failed to render page: %w", err)
	}
	return strings.ReplaceAll(buf.String(), defaultAssetsScript, cdnAssetsScript), nil
}
