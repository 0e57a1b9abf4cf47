package sweep

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// seriesColors cycles through chart line colours.
var seriesColors = []color.RGBA{
	{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff},
	{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff},
	{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff},
	{R: 0xd6, G: 0x27, B: 0x28, A: 0xff},
	{R: 0x94, G: 0x67, B: 0xbd, A: 0xff},
}

// WriteCSV writes one row per tolerance with the mean of each field.
// Undefined means are left empty.
func WriteCSV(w io.Writer, r *Result, fields []string) error {
	cw := csv.NewWriter(w)
	header := []string{"tolerance_frames"}
	for _, f := range fields {
		header = append(header, f+"_mean")
	}
	header = append(header, "videos_evaluated", "videos_total")
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, p := range r.Points {
		row := []string{strconv.Itoa(p.ToleranceFrames)}
		for _, f := range fields {
			row = append(row, formatValue(p.Summary.Mean(f)))
		}
		row = append(row, strconv.Itoa(p.Summary.VideosEvaluated), strconv.Itoa(p.Summary.VideosTotal))
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatValue(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 6, 64)
}

// SavePNG plots the mean of each field against tolerance and saves it as
// an image. The format follows the file extension.
func SavePNG(path string, r *Result, fields []string) error {
	p := plot.New()
	p.Title.Text = "Transition metrics vs tolerance"
	p.X.Label.Text = "Tolerance (frames)"
	p.Y.Label.Text = "Mean across videos"
	p.Y.Min = 0
	p.Y.Max = 1

	for i, field := range fields {
		pts := make(plotter.XYs, 0, len(r.Points))
		for j, v := range r.Series(field) {
			if v != nil {
				pts = append(pts, plotter.XY{X: float64(r.Points[j].ToleranceFrames), Y: *v})
			}
		}
		if len(pts) == 0 {
			continue
		}
		line, points, err := plotter.NewLinePoints(pts)
		if err != nil {
			return fmt.Errorf("failed to build %s series: %w", field, err)
		}
		c := seriesColors[i%len(seriesColors)]
		line.Color = c
		line.Width = vg.Points(1.5)
		points.Color = c
		p.Add(line, points)
		p.Legend.Add(field, line, points)
	}
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create chart directory: %w", err)
		}
	}
	if err := p.Save(10*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save chart: %w", err)
	}
	return nil
}

// RenderHTML writes an interactive line chart page of the same series.
func RenderHTML(w io.Writer, r *Result, fields []string) error {
	x := make([]string, len(r.Points))
	for i, p := range r.Points {
		x[i] = strconv.Itoa(p.ToleranceFrames)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Tolerance sweep", Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Transition metrics vs tolerance", Subtitle: fmt.Sprintf("%d tolerances", len(r.Points))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "tolerance (frames)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "mean", Min: 0, Max: 1}),
	)
	line.SetXAxis(x)
	for _, field := range fields {
		data := make([]opts.LineData, 0, len(r.Points))
		for _, v := range r.Series(field) {
			if v == nil {
				// echarts draws a gap for "-".
				data = append(data, opts.LineData{Value: "-"})
				continue
			}
			data = append(data, opts.LineData{Value: *v})
		}
		line.AddSeries(field, data, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(true)}))
	}

	page := components.NewPage()
	page.PageTitle = "Tolerance sweep"
	page.AddCharts(line)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}
