// Package report renders training curves and forecast error charts.
package report

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// LossCurves writes a PNG with one line per epoch-indexed series.
// Series with no points are skipped.
func LossCurves(outDir string, train, vali []float64) (string, error) {
	p := plot.New()
	p.Title.Text = "Loss per epoch"
	p.X.Label.Text = "epoch"
	p.Y.Label.Text = "loss"

	if err := addLine(p, "train", train, color.RGBA{R: 20, G: 80, B: 200, A: 255}); err != nil {
		return "", err
	}
	if err := addLine(p, "vali", vali, color.RGBA{R: 200, G: 30, B: 30, A: 255}); err != nil {
		return "", err
	}
	p.Add(plotter.NewGrid())

	return save(p, outDir, "loss_curve.png")
}

// FrameError writes a PNG of the per-frame MSE across the forecast horizon.
func FrameError(outDir string, frameMSE []float64) (string, error) {
	p := plot.New()
	p.Title.Text = "Forecast error by horizon"
	p.X.Label.Text = "frame"
	p.Y.Label.Text = "MSE"

	if err := addLine(p, "mse", frameMSE, color.RGBA{R: 40, G: 120, B: 40, A: 255}); err != nil {
		return "", err
	}
	p.Add(plotter.NewGrid())

	return save(p, outDir, "frame_mse.png")
}

func addLine(p *plot.Plot, name string, ys []float64, c color.Color) error {
	if len(ys) == 0 {
		return nil
	}
	xys := make(plotter.XYs, len(ys))
	for i, y := range ys {
		xys[i] = plotter.XY{X: float64(i + 1), Y: y}
	}
	line, points, err := plotter.NewLinePoints(xys)
	if err != nil {
		return fmt.Errorf("plot %s: %w", name, err)
	}
	line.Color = c
	line.Width = vg.Points(1.2)
	points.GlyphStyle.Color = c
	points.GlyphStyle.Radius = vg.Points(1.8)
	p.Add(line, points)
	p.Legend.Add(name, line, points)
	return nil
}

func save(p *plot.Plot, outDir, name string) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create plot dir: %w", err)
	}
	path := filepath.Join(outDir, name)
	if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
		return "", fmt.Errorf("save %s: %w", path, err)
	}
	return path, nil
}
