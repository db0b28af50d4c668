package benchutil

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
)

// TrimmedMean returns the mean of data after dropping trimPercent of the
// values from each end. data is sorted in place.
func TrimmedMean(data []float64, trimPercent float64) float64 {
	trimmed := trim(data, trimPercent)
	if len(trimmed) == 0 {
		return 0
	}
	var sum float64
	for _, v := range trimmed {
		sum += v
	}
	return sum / float64(len(trimmed))
}

// TrimmedPercentile returns the p-th percentile after trimming extremes.
func TrimmedPercentile(data []float64, p, trimPercent float64) float64 {
	return Percentile(trim(data, trimPercent), p)
}

// Percentile calculates the p-th percentile of sorted data using linear
// interpolation.
func Percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}
	k := (p / 100.0) * float64(len(data)-1)
	f := int(k)
	c := f + 1
	if c >= len(data) {
		return data[len(data)-1]
	}
	return data[f]*(float64(c)-k) + data[c]*(k-float64(f))
}

func trim(data []float64, trimPercent float64) []float64 {
	if len(data) == 0 {
		return data
	}
	sort.Float64s(data)
	n := int(float64(len(data)) * trimPercent / 100.0)
	if n*2 >= len(data) {
		n = (len(data) - 1) / 2
	}
	return data[n : len(data)-n]
}

// WriteCSV saves latencies (ms) with a single header column.
func WriteCSV(path string, latencies []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"latency_ms"}); err != nil {
		return err
	}
	for _, d := range latencies {
		if err := w.Write([]string{fmt.Sprintf("%.3f", d)}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
