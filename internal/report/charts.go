package report

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"bandwidth-probe/internal/models"
)

// ErrNoData is returned when a chart has too few points to draw.
var ErrNoData = errors.New("not enough data for chart")

// Chart file names served by the dashboard and written by the generator.
const (
	ChartBandwidth    = "bandwidth.png"
	ChartDistribution = "distribution.png"
	ChartHourly       = "hourly.png"
)

// ChartNames lists every chart in rendering order.
var ChartNames = []string{ChartBandwidth, ChartDistribution, ChartHourly}

const histogramBuckets = 10

var (
	gridStyle = chart.Style{
		StrokeColor: drawing.Color{R: 200, G: 200, B: 200, A: 255},
		StrokeWidth: 1.0,
	}
	axisStyle = chart.Style{
		StrokeColor: drawing.ColorBlack,
		FontSize:    10,
	}
	padding = chart.Style{
		Padding: chart.Box{Top: 20, Left: 20, Right: 20, Bottom: 20},
	}
)

// RenderChart draws the named chart for rep as PNG.
func RenderChart(w io.Writer, name string, rep *models.Report) error {
	switch name {
	case ChartBandwidth:
		return RenderBandwidthChart(w, rep.PeriodDistribution)
	case ChartDistribution:
		return RenderDistributionChart(w, rep.PeriodDistribution)
	case ChartHourly:
		return RenderHourlyChart(w, rep.Hourly)
	default:
		return errors.Errorf("unknown chart %q", name)
	}
}

// RenderBandwidthChart draws download and upload over time, with a moving
// average once there are enough points.
func RenderBandwidthChart(w io.Writer, points []models.DistributionPoint) error {
	if len(points) < 2 {
		return ErrNoData
	}

	times := make([]time.Time, len(points))
	down := make([]float64, len(points))
	up := make([]float64, len(points))
	for i, p := range points {
		times[i] = p.Timestamp
		down[i] = p.Download
		up[i] = p.Upload
	}

	downloads := chart.TimeSeries{
		Name: "Download",
		Style: chart.Style{
			StrokeColor: chart.GetDefaultColor(0),
			StrokeWidth: 2,
		},
		XValues: times,
		YValues: down,
	}
	graph := chart.Chart{
		Title:      "Bandwidth",
		TitleStyle: chart.Style{FontSize: 16},
		Background: padding,
		Width:      1200,
		Height:     400,
		XAxis: chart.XAxis{
			Name:           "Time",
			Style:          axisStyle,
			ValueFormatter: chart.TimeMinuteValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Mbps",
			Style:          axisStyle,
			Range:          &chart.ContinuousRange{Min: 0, Max: upperBound(append(down, up...))},
			GridMajorStyle: gridStyle,
		},
		Series: []chart.Series{
			downloads,
			chart.TimeSeries{
				Name: "Upload",
				Style: chart.Style{
					StrokeColor: chart.GetDefaultColor(1),
					StrokeWidth: 2,
				},
				XValues: times,
				YValues: up,
			},
		},
	}

	if len(points) > 10 {
		graph.Series = append(graph.Series, chart.SMASeries{
			Name: "Download Moving Avg",
			Style: chart.Style{
				StrokeColor:     chart.GetDefaultColor(2),
				StrokeWidth:     2,
				StrokeDashArray: []float64{5, 5},
			},
			InnerSeries: downloads,
			Period:      10,
		})
	}

	graph.Elements = []chart.Renderable{chart.Legend(&graph)}
	return errors.Wrap(graph.Render(chart.PNG, w), "render bandwidth chart")
}

// Histogram counts values into n equal-width buckets over [0, max(values)].
// It returns bucket midpoints and counts.
func Histogram(values []float64, n int) ([]float64, []float64) {
	max := 0.0
	for _, v := range values {
		max = math.Max(max, v)
	}
	if max == 0 {
		max = 1
	}
	width := max / float64(n)

	mids := make([]float64, n)
	counts := make([]float64, n)
	for i := range mids {
		mids[i] = width*float64(i) + width/2
	}
	for _, v := range values {
		i := int(v / width)
		if i >= n {
			i = n - 1
		}
		if i < 0 {
			i = 0
		}
		counts[i]++
	}
	return mids, counts
}

// RenderDistributionChart draws the download and upload frequency
// distributions on a shared Mbps axis.
func RenderDistributionChart(w io.Writer, points []models.DistributionPoint) error {
	if len(points) == 0 {
		return ErrNoData
	}

	down := make([]float64, len(points))
	up := make([]float64, len(points))
	for i, p := range points {
		down[i] = p.Download
		up[i] = p.Upload
	}
	downX, downY := Histogram(down, histogramBuckets)
	upX, upY := Histogram(up, histogramBuckets)

	graph := chart.Chart{
		Title:      "Throughput Distribution",
		TitleStyle: chart.Style{FontSize: 16},
		Background: padding,
		Width:      1200,
		Height:     400,
		XAxis: chart.XAxis{
			Name:           "Mbps",
			Style:          axisStyle,
			Range:          &chart.ContinuousRange{Min: 0, Max: upperBound(append(downX, upX...))},
			ValueFormatter: chart.FloatValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Samples",
			Style:          axisStyle,
			Range:          &chart.ContinuousRange{Min: 0, Max: upperBound(append(downY, upY...))},
			GridMajorStyle: gridStyle,
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "Download",
				Style:   chart.Style{StrokeColor: chart.GetDefaultColor(0), StrokeWidth: 2},
				XValues: downX,
				YValues: downY,
			},
			chart.ContinuousSeries{
				Name:    "Upload",
				Style:   chart.Style{StrokeColor: chart.GetDefaultColor(1), StrokeWidth: 2},
				XValues: upX,
				YValues: upY,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}
	return errors.Wrap(graph.Render(chart.PNG, w), "render distribution chart")
}

// RenderHourlyChart draws average download per hour of day.
func RenderHourlyChart(w io.Writer, hourly []models.HourlyPoint) error {
	var bars []chart.Value
	var values []float64
	hasData := false
	for _, h := range hourly {
		bars = append(bars, chart.Value{
			Label: fmt.Sprintf("%02d", h.Hour),
			Value: h.AvgDownload,
		})
		values = append(values, h.AvgDownload)
		hasData = hasData || h.Samples > 0
	}
	if !hasData {
		return ErrNoData
	}

	graph := chart.BarChart{
		Title:      "Average Download by Hour",
		TitleStyle: chart.Style{FontSize: 16},
		Background: padding,
		Width:      1200,
		Height:     400,
		BarWidth:   30,
		BarSpacing: 15,
		XAxis:      axisStyle,
		YAxis: chart.YAxis{
			Name:           "Mbps",
			Style:          axisStyle,
			Range:          &chart.ContinuousRange{Min: 0, Max: upperBound(values)},
			GridMajorStyle: gridStyle,
		},
		Bars: bars,
	}
	return errors.Wrap(graph.Render(chart.PNG, w), "render hourly chart")
}
