// Package render turns distribution matrices into bar-chart images, one
// chart per (horizon, price point) cell.
package render

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"stockmatrix/internal/analyze"
	"stockmatrix/internal/domain"
)

// Artifact is one rendered chart, kept in memory for notification
// attachments and optionally written to disk.
type Artifact struct {
	ID    string // e.g. "week_close"
	Label string // chart title
	Path  string // on-disk location, empty if not written
	PNG   []byte
}

// Cell fill colors follow the price point's role: high is the upside
// probe, close the realized return, low the downside probe.
var cellColor = map[analyze.PricePoint]drawing.Color{
	analyze.High:  {R: 0x28, G: 0xa7, B: 0x45, A: 255},
	analyze.Close: {R: 0x00, G: 0x7b, B: 0xff, A: 255},
	analyze.Low:   {R: 0xdc, G: 0x35, B: 0x45, A: 255},
}

// extremeColor highlights the clamped top bucket.
var extremeColor = drawing.Color{R: 0xff, G: 0x45, B: 0x00, A: 255}

// Renderer draws one bar chart per matrix cell. With a non-empty
// OutputDir the PNGs are also written under images/<market>/.
type Renderer struct {
	OutputDir string
	Width     int
	Height    int

	log *slog.Logger
}

// NewRenderer builds a Renderer writing under outputDir (may be empty for
// in-memory only).
func NewRenderer(outputDir string) *Renderer {
	return &Renderer{
		OutputDir: outputDir,
		Width:     1200,
		Height:    700,
		log:       slog.Default().With("component", "render"),
	}
}

// RenderMatrix renders the nine cell charts for one market run. Cells
// with an empty sample are skipped with a warning rather than producing a
// blank chart.
func (r *Renderer) RenderMatrix(market domain.Market, referenceDate time.Time, m *analyze.DistributionMatrix) ([]Artifact, error) {
	var artifacts []Artifact
	for _, h := range analyze.Horizons {
		for _, p := range analyze.PricePoints {
			cell := m.Cell(h, p)
			if cell.Sample == 0 {
				r.log.Warn("empty cell, skipping chart", "market", market, "horizon", h.String(), "pricePoint", p.String())
				continue
			}

			id := fmt.Sprintf("%s_%s", h, p)
			label := fmt.Sprintf("[%s] %s %s return distribution (sample: %d)", market, h, p, cell.Sample)

			png, err := r.renderCell(label, cell, p)
			if err != nil {
				return nil, fmt.Errorf("rendering %s/%s: %w", market, id, err)
			}

			a := Artifact{ID: id, Label: label, PNG: png}
			if r.OutputDir != "" {
				dir := filepath.Join(r.OutputDir, "images", string(market))
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return nil, fmt.Errorf("creating %s: %w", dir, err)
				}
				a.Path = filepath.Join(dir, id+".png")
				if err := os.WriteFile(a.Path, png, 0o644); err != nil {
					return nil, fmt.Errorf("writing %s: %w", a.Path, err)
				}
			}
			artifacts = append(artifacts, a)
		}
	}
	return artifacts, nil
}

// renderCell draws one bucket histogram with count and share annotations
// baked into the bar labels.
func (r *Renderer) renderCell(title string, cell *analyze.Cell, p analyze.PricePoint) ([]byte, error) {
	fill := cellColor[p]

	var bars []chart.Value
	maxCount := 0
	for b := analyze.MinBucket; b <= analyze.MaxBucket; b++ {
		n := cell.Count(b)
		if n > maxCount {
			maxCount = n
		}
		style := chart.Style{FillColor: fill, StrokeColor: fill.WithAlpha(0)}
		if b == analyze.MaxBucket {
			style = chart.Style{FillColor: extremeColor, StrokeColor: drawing.ColorBlack, StrokeWidth: 1}
		}
		label := analyze.BucketLabel(b)
		if n > 0 {
			share := float64(n) / float64(cell.Sample) * 100
			label = fmt.Sprintf("%s\n%d (%.1f%%)", label, n, share)
		}
		bars = append(bars, chart.Value{Value: float64(n), Label: label, Style: style})
	}

	graph := chart.BarChart{
		Title:      title,
		Width:      r.Width,
		Height:     r.Height,
		BarWidth:   40,
		BarSpacing: 8,
		Background: chart.Style{Padding: chart.Box{Top: 50, Bottom: 30}},
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: float64(maxCount) * 1.4},
		},
		Bars: bars,
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
