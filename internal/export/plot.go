// Package export renders unroll results as image files.
package export

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/san-kum/dmp/internal/dynamo"
	"github.com/san-kum/dmp/internal/metrics"
	"github.com/san-kum/dmp/internal/sim"
)

const (
	plotWidth  = 8 * vg.Inch
	plotHeight = 5 * vg.Inch
)

// Series is one named curve over time.
type Series struct {
	Name   string
	Values []float64
}

// Figures lists the plots SavePlots writes, by file stem.
var Figures = []string{"position", "velocity", "phase", "forcing", "goal_distance"}

// SavePlots writes every figure of result into dir with the given extension
// ("png", "svg" or "pdf") and returns the written paths.
func SavePlots(dir, ext string, result *sim.Result) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(Figures))
	for _, name := range Figures {
		path := filepath.Join(dir, name+"."+ext)
		if err := SaveFigure(path, name, result); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// SaveFigure renders one named figure of result. The image format follows the
// file extension.
func SaveFigure(path, name string, result *sim.Result) error {
	if len(result.Times) < 2 {
		return errors.Wrapf(dynamo.ErrPrecondition, "result has %d samples", len(result.Times))
	}
	var (
		series []Series
		ylabel string
	)
	switch name {
	case "position":
		series, ylabel = components("p", result.States), "position"
	case "velocity":
		series, ylabel = components("v", result.Velocities), "velocity"
	case "forcing":
		series, ylabel = components("f", result.Forcing), "forcing term"
	case "phase":
		series, ylabel = []Series{{Name: "phase", Values: result.Phases}}, "phase"
	case "goal_distance":
		dist := make([]float64, len(result.States))
		for i := range dist {
			dist[i] = metrics.Distance(result.States[i], result.Goals[i])
		}
		series, ylabel = []Series{{Name: "distance", Values: dist}}, "goal distance"
	default:
		return errors.Wrapf(dynamo.ErrPrecondition, "unknown figure %q", name)
	}
	p, err := LinePlot(name, "time (s)", ylabel, result.Times, series)
	if err != nil {
		return err
	}
	return p.Save(plotWidth, plotHeight, path)
}

// components splits per-tick rows into one series per column.
func components(prefix string, rows [][]float64) []Series {
	if len(rows) == 0 {
		return nil
	}
	out := make([]Series, len(rows[0]))
	for c := range out {
		out[c].Name = fmt.Sprintf("%s%d", prefix, c)
		out[c].Values = make([]float64, len(rows))
		for i, row := range rows {
			out[c].Values[i] = row[c]
		}
	}
	return out
}

// LinePlot builds a plot of every series against xs.
func LinePlot(title, xlabel, ylabel string, xs []float64, series []Series) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xlabel
	p.Y.Label.Text = ylabel
	p.Add(plotter.NewGrid())

	for i, s := range series {
		if len(s.Values) != len(xs) {
			return nil, errors.Wrapf(dynamo.ErrDimensionMismatch, "series %s has %d points, want %d", s.Name, len(s.Values), len(xs))
		}
		pts := make(plotter.XYs, 0, len(xs))
		for k := range xs {
			if math.IsNaN(s.Values[k]) || math.IsInf(s.Values[k], 0) {
				continue
			}
			pts = append(pts, plotter.XY{X: xs[k], Y: s.Values[k]})
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, errors.Wrapf(err, "series %s", s.Name)
		}
		line.LineStyle.Width = vg.Points(1.5)
		line.LineStyle.Color = plotutil.Color(i)
		p.Add(line)
		if len(series) > 1 {
			p.Legend.Add(s.Name, line)
		}
	}
	p.Legend.Top = true
	return p, nil
}
