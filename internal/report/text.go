package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"

	"bandwidth-probe/internal/models"
)

const timeFormat = "2006-01-02 15:04:05"

// WriteSummary writes a plain-text version of rep.
func WriteSummary(w io.Writer, rep *models.Report) error {
	b := &strings.Builder{}

	fmt.Fprintf(b, "Bandwidth Report\n")
	fmt.Fprintf(b, "Generated: %s\n", rep.GeneratedAt.Format(timeFormat))
	fmt.Fprintf(b, "Period: %s to %s (offset %d of %d days)\n\n",
		rep.Period.Start.Format(timeFormat), rep.Period.End.Format(timeFormat), rep.Offset, rep.MaxOffset)
	fmt.Fprintln(b, strings.Repeat("=", 60))

	writeWindow(b, "PERIOD STATISTICS", rep.Period)
	writeWindow(b, "OVERALL STATISTICS", rep.Overall)

	fmt.Fprintln(b, strings.Repeat("=", 60))
	fmt.Fprintln(b, "\nRECENT TESTS")
	if len(rep.Recent) == 0 {
		fmt.Fprintln(b, "No tests recorded yet.")
	}
	for _, s := range rep.Recent {
		when := fmt.Sprintf("%s (%s)", s.Timestamp.Local().Format(timeFormat), humanize.RelTime(s.Timestamp, rep.GeneratedAt, "ago", "from now"))
		if s.Success() {
			fmt.Fprintf(b, "  %s  down %.2f Mbps  up %.2f Mbps  ping %.1f ms\n", when, s.Download, s.Upload, s.Ping)
		} else {
			fmt.Fprintf(b, "  %s  error: %s\n", when, s.Error)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeWindow(b *strings.Builder, title string, win models.AggregateWindow) {
	fmt.Fprintf(b, "\n%s\n", title)
	fmt.Fprintf(b, "  Total tests: %s\n", humanize.Comma(int64(win.Total)))
	fmt.Fprintf(b, "  Successful: %s\n", humanize.Comma(int64(win.Samples)))
	fmt.Fprintf(b, "  Failed: %s (%.2f%%)\n", humanize.Comma(int64(win.Failures)), win.FailureRate())
	if win.Samples > 0 {
		fmt.Fprintf(b, "  Download: avg %.2f  min %.2f  max %.2f Mbps\n", win.Download.Avg, win.Download.Min, win.Download.Max)
		fmt.Fprintf(b, "  Upload:   avg %.2f  min %.2f  max %.2f Mbps\n", win.Upload.Avg, win.Upload.Min, win.Upload.Max)
	}
}
