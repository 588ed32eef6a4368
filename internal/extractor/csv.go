package extractor

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"labtree/internal/record"
)

const (
	svgWidth  = 480
	svgHeight = 320
	svgMargin = 20
)

// CSV plots the first two numeric columns of a delimited text file.
type CSV struct{}

// NewCSV creates a CSV extractor.
func NewCSV() *CSV {
	return &CSV{}
}

// Extract reads the file and renders a line plot as SVG. A single numeric
// column is plotted against the row index.
func (c *CSV) Extract(ctx context.Context, absPath string, doc *record.Record) (Result, error) {
	f, err := os.Open(absPath)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comment = '#'
	if strings.HasSuffix(strings.ToLower(absPath), ".tsv") {
		reader.Comma = '\t'
	}

	var (
		header []string
		xs, ys []float64
		rows   int
	)
	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("failed to parse csv: %w", err)
		}
		values, ok := parseRow(fields)
		if !ok {
			if rows == 0 && header == nil {
				header = fields
			}
			continue
		}
		rows++
		if len(values) == 1 {
			xs = append(xs, float64(rows-1))
			ys = append(ys, values[0])
		} else {
			xs = append(xs, values[0])
			ys = append(ys, values[1])
		}
	}
	if rows == 0 {
		return Result{Kind: KindNone, Meta: Meta{MeasurementType: []string{"csv"}}}, nil
	}

	vendor := map[string]any{"rows": rows}
	if header != nil {
		vendor["columns"] = header
	}
	return Result{
		Preview: renderLine(xs, ys),
		Kind:    KindLine,
		Meta: Meta{
			MeasurementType: []string{"csv"},
			MetaVendor:      vendor,
		},
	}, nil
}

func parseRow(fields []string) ([]float64, bool) {
	if len(fields) == 0 {
		return nil, false
	}
	values := make([]float64, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, false
		}
		values = append(values, v)
	}
	return values, len(values) > 0
}

// renderLine draws ys over xs as an SVG polyline scaled to the canvas.
func renderLine(xs, ys []float64) []byte {
	minX, maxX := bounds(xs)
	minY, maxY := bounds(ys)

	var points strings.Builder
	for i := range xs {
		x := scale(xs[i], minX, maxX, svgMargin, svgWidth-svgMargin)
		y := scale(ys[i], minY, maxY, svgHeight-svgMargin, svgMargin)
		if i > 0 {
			points.WriteByte(' ')
		}
		fmt.Fprintf(&points, "%.2f,%.2f", x, y)
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`,
		svgWidth, svgHeight, svgWidth, svgHeight)
	fmt.Fprintf(&b, `<rect x="%d" y="%d" width="%d" height="%d" fill="none" stroke="#888"/>`,
		svgMargin, svgMargin, svgWidth-2*svgMargin, svgHeight-2*svgMargin)
	fmt.Fprintf(&b, `<polyline fill="none" stroke="#1f77b4" stroke-width="1.5" points="%s"/>`, points.String())
	b.WriteString(`</svg>`)
	return []byte(b.String())
}

func bounds(v []float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, x := range v {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	return lo, hi
}

func scale(v, lo, hi, outLo, outHi float64) float64 {
	if hi == lo {
		return (outLo + outHi) / 2
	}
	return outLo + (v-lo)/(hi-lo)*(outHi-outLo)
}
