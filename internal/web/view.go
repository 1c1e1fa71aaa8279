package web

import (
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/dustin/go-humanize"

	"bandwidth-probe/internal/models"
	"bandwidth-probe/internal/report"
)

//go:embed templates/*.html
var templateFS embed.FS

var templateFuncs = template.FuncMap{
	"mbps": func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"ms":   func(v float64) string { return fmt.Sprintf("%.1f", v) },
	"pct":  func(v float64) string { return fmt.Sprintf("%.1f%%", v) },
	"when": func(t time.Time) string { return t.Local().Format("2006-01-02 15:04") },
	"ago":  humanize.Time,
	"comma": func(n int) string {
		return humanize.Comma(int64(n))
	},
}

type chartLink struct {
	Title string
	URL   string
}

// dashboardView is what dashboard.html renders
type dashboardView struct {
	*models.Report
	Older, Newer       int
	HasOlder, HasNewer bool
	Charts             []chartLink
}

func newDashboardView(rep *models.Report) dashboardView {
	v := dashboardView{
		Report:   rep,
		Older:    rep.Offset + 1,
		Newer:    rep.Offset - 1,
		HasOlder: rep.Offset < rep.MaxOffset,
		HasNewer: rep.Offset > 0,
	}

	titles := map[string]string{
		report.ChartBandwidth:    "Bandwidth over time",
		report.ChartDistribution: "Throughput distribution",
		report.ChartHourly:       "Average download by hour",
	}
	for _, name := range report.ChartNames {
		v.Charts = append(v.Charts, chartLink{
			Title: titles[name],
			URL:   fmt.Sprintf("/charts/%s?offset=%d", name, rep.Offset),
		})
	}
	return v
}
