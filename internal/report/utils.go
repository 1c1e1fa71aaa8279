package report

import (
	"io"
	"os"

	"go.uber.org/multierr"
)

// upperBound returns an axis maximum with some headroom. Never zero, since
// go-chart rejects empty ranges.
func upperBound(values []float64) float64 {
	max := 0.0
	for _, v := range values {
		if v > max {
			max = v
		}
	}
	if max == 0 {
		return 1
	}
	return max * 1.1
}

// writeFile creates path and hands it to render, closing it either way.
func writeFile(path string, render func(io.Writer) error) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, file.Close()) }()

	return render(file)
}
