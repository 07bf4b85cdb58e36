// dataset.go
// Loads a directory tree of face images into memory once, preprocessed
// and ready to batch. Decoding is fanned out over a worker pool;
// corrupt files are skipped with a warning instead of sinking the run.

package main

import (
	"fmt"
	"io/fs"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

type Dataset struct {
	Paths   []string
	Images  []*tensor.Dense
	Side    int
	Skipped int
}

// LoadDataset walks cfg.DataDir recursively, decodes and preprocesses
// every jpeg/png it finds, and keeps the survivors in memory.
func LoadDataset(cfg Config) (*Dataset, error) {
	var paths []string
	err := filepath.WalkDir(cfg.DataDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(p)) {
		case ".jpg", ".jpeg", ".png":
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "walk %s", cfg.DataDir)
	}
	if len(paths) == 0 {
		return nil, errors.Errorf("no images under %s", cfg.DataDir)
	}

	imgs := make([]*tensor.Dense, len(paths))
	var skipped atomic.Int32
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				data, err := LoadImageTensor(paths[i], cfg.ImageSize)
				if err != nil {
					fmt.Printf("[data] WARNING: skipping %s: %v\n", paths[i], err)
					skipped.Add(1)
					continue
				}
				imgs[i] = tensor.New(
					tensor.Of(tensor.Float32),
					tensor.WithShape(3, cfg.ImageSize, cfg.ImageSize),
					tensor.WithBacking(data),
				)
			}
		}()
	}
	for i := range paths {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	ds := &Dataset{Side: cfg.ImageSize, Skipped: int(skipped.Load())}
	for i, im := range imgs {
		if im != nil {
			ds.Paths = append(ds.Paths, paths[i])
			ds.Images = append(ds.Images, im)
		}
	}
	if len(ds.Images) == 0 {
		return nil, errors.Errorf("no readable images under %s (%d corrupt)", cfg.DataDir, ds.Skipped)
	}
	fmt.Printf("[data] %d images loaded, %d skipped\n", len(ds.Images), ds.Skipped)
	return ds, nil
}

func (ds *Dataset) Len() int { return len(ds.Images) }

// Batches returns one epoch of shuffled index batches. Only full
// batches survive: batch statistics stay comparable across steps.
func (ds *Dataset) Batches(rng *rand.Rand, batch int) [][]int {
	perm := rng.Perm(ds.Len())
	var out [][]int
	for i := 0; i+batch <= len(perm); i += batch {
		out = append(out, perm[i:i+batch])
	}
	return out
}

// Gather copies the indexed images into one (B,3,S,S) training tensor.
func (ds *Dataset) Gather(idx []int) *Tensor {
	plane := 3 * ds.Side * ds.Side
	out := NewTensor(len(idx), 3, ds.Side, ds.Side)
	for n, i := range idx {
		copy(out.Data[n*plane:(n+1)*plane], ds.Images[i].Data().([]float32))
	}
	return out
}

// ImageData returns the preprocessed backing of image i.
func (ds *Dataset) ImageData(i int) []float32 {
	return ds.Images[i].Data().([]float32)
}
