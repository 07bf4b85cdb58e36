// export.go
// 2D embedding export: project the feature matrix onto the plane,
// squash into the unit square, write the JSON the external viewer
// reads, and render a scatter PNG for a look without the viewer.

package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gorgonia.org/tensor"
)

// Projector reduces an (N,F) feature matrix to one 2D point per row.
type Projector interface {
	Project(feats *tensor.Dense) ([][2]float64, error)
}

// PCAProjector scores each row against the top two principal components
// of the centered feature matrix (thin SVD, points = U·Σ).
type PCAProjector struct{}

func (PCAProjector) Project(feats *tensor.Dense) ([][2]float64, error) {
	shape := feats.Shape()
	n, f := shape[0], shape[1]
	if n == 0 {
		return nil, errors.New("empty feature matrix")
	}
	data := feats.Data().([]float32)

	means := make([]float64, f)
	for i := 0; i < n; i++ {
		for j := 0; j < f; j++ {
			means[j] += float64(data[i*f+j])
		}
	}
	for j := range means {
		means[j] /= float64(n)
	}
	centered := mat.NewDense(n, f, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < f; j++ {
			centered.Set(i, j, float64(data[i*f+j])-means[j])
		}
	}

	var svd mat.SVD
	if !svd.Factorize(centered, mat.SVDThin) {
		return nil, errors.New("svd failed to converge")
	}
	var u mat.Dense
	svd.UTo(&u)
	sigma := svd.Values(nil)

	pts := make([][2]float64, n)
	for i := 0; i < n; i++ {
		for c := 0; c < 2 && c < len(sigma); c++ {
			pts[i][c] = u.At(i, c) * sigma[c]
		}
	}
	return pts, nil
}

// NormalizePoints min-max scales each axis into [0,1]. An axis with no
// spread collapses to 0.5.
func NormalizePoints(pts [][2]float64) [][2]float64 {
	out := make([][2]float64, len(pts))
	if len(pts) == 0 {
		return out
	}
	for axis := 0; axis < 2; axis++ {
		lo, hi := pts[0][axis], pts[0][axis]
		for _, p := range pts[1:] {
			if p[axis] < lo {
				lo = p[axis]
			}
			if p[axis] > hi {
				hi = p[axis]
			}
		}
		span := hi - lo
		for i, p := range pts {
			if span == 0 {
				out[i][axis] = 0.5
			} else {
				out[i][axis] = (p[axis] - lo) / span
			}
		}
	}
	return out
}

// EmbeddingRecord is one viewer entry: where an image sits in the
// projected plane.
type EmbeddingRecord struct {
	Path  string     `json:"path"`
	Point [2]float64 `json:"point"`
}

// WriteEmbeddingJSON writes one record per image, paths made absolute
// for the external viewer.
func WriteEmbeddingJSON(path string, imagePaths []string, pts [][2]float64) error {
	if len(imagePaths) != len(pts) {
		return errors.Errorf("%d paths vs %d points", len(imagePaths), len(pts))
	}
	records := make([]EmbeddingRecord, len(pts))
	for i, p := range imagePaths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return errors.Wrapf(err, "resolve %s", p)
		}
		records[i] = EmbeddingRecord{Path: abs, Point: pts[i]}
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return errors.Wrapf(enc.Encode(records), "encode %s", path)
}

// SaveScatterPNG draws the projected embedding.
func SaveScatterPNG(path string, pts [][2]float64) error {
	p := plot.New()
	p.Title.Text = "discriminator feature embedding"
	p.X.Label.Text = "x"
	p.Y.Label.Text = "y"

	xys := make(plotter.XYs, len(pts))
	for i, pt := range pts {
		xys[i] = plotter.XY{X: pt[0], Y: pt[1]}
	}
	scatter, err := plotter.NewScatter(xys)
	if err != nil {
		return errors.Wrap(err, "scatter")
	}
	scatter.GlyphStyle.Radius = vg.Length(2)
	scatter.GlyphStyle.Shape = draw.CircleGlyph{}
	p.Add(scatter)

	return errors.Wrapf(p.Save(8*vg.Inch, 8*vg.Inch, path), "save %s", path)
}
