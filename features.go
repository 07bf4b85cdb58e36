// features.go
// The retrieval side: a prefix of the trained trunk reused as a fixed
// embedding, a feature matrix over the dataset, and k-nearest neighbors
// by squared euclidean distance.

package main

import (
	"fmt"
	"sort"

	"gorgonia.org/tensor"
)

// FeatureFunc embeds images with a truncated discriminator trunk. The
// cut point is fixed at construction: depths 1..4 stop after that conv
// stage, depth 5 runs through the shared dense representation.
type FeatureFunc struct {
	disc  *Discriminator
	depth int
	side  int
	dim   int
}

func NewFeatureFunc(disc *Discriminator, cfg Config) *FeatureFunc {
	depth := cfg.TruncDepth
	dim := 1024
	if depth < 5 {
		ch := cfg.BaseChannels << (depth - 1)
		s := cfg.ImageSize >> depth
		dim = ch * s * s
	}
	return &FeatureFunc{disc: disc, depth: depth, side: cfg.ImageSize, dim: dim}
}

// Dim is the feature width F.
func (ff *FeatureFunc) Dim() int { return ff.dim }

// Extract embeds one preprocessed image (3*S*S floats in [-1,1]).
// Inference only: no gradients, running batch statistics.
func (ff *FeatureFunc) Extract(img []float32) []float32 {
	setGrad(false)
	defer setGrad(true)
	x := NewTensorFrom(img, 1, 3, ff.side, ff.side)
	h := ff.disc.FeaturesAt(x, ff.depth, false)
	out := make([]float32, len(h.Data))
	copy(out, h.Data)
	return out
}

// BuildFeatureMatrix embeds every dataset image into one (N,F) matrix,
// rows in dataset order, alongside the matching path list.
func BuildFeatureMatrix(ff *FeatureFunc, ds *Dataset) (*tensor.Dense, []string) {
	n := ds.Len()
	backing := make([]float32, n*ff.dim)
	for i := 0; i < n; i++ {
		copy(backing[i*ff.dim:(i+1)*ff.dim], ff.Extract(ds.ImageData(i)))
		if (i+1)%512 == 0 {
			fmt.Printf("[knn] embedded %d/%d images\n", i+1, n)
		}
	}
	feats := tensor.New(tensor.WithShape(n, ff.dim), tensor.WithBacking(backing))
	return feats, append([]string(nil), ds.Paths...)
}

// Neighbor is one retrieval hit.
type Neighbor struct {
	Index    int
	Distance float64
}

// KNN returns the k rows of feats closest to query, nearest first, by
// squared euclidean distance normalized by the feature width. Equal
// distances keep ascending row order; k beyond N returns all N rows;
// k <= 0 or an empty matrix returns nothing.
func KNN(feats *tensor.Dense, query []float32, k int) []Neighbor {
	if feats == nil || k <= 0 {
		return nil
	}
	shape := feats.Shape()
	n, f := shape[0], shape[1]
	if n == 0 {
		return nil
	}
	if f != len(query) {
		panic("knn: query width does not match feature matrix")
	}
	data := feats.Data().([]float32)

	out := make([]Neighbor, n)
	for i := 0; i < n; i++ {
		row := data[i*f : (i+1)*f]
		var sum float64
		for j, q := range query {
			d := float64(row[j] - q)
			sum += d * d
		}
		out[i] = Neighbor{Index: i, Distance: sum / float64(f)}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Distance < out[b].Distance })
	if k < n {
		out = out[:k]
	}
	return out
}
