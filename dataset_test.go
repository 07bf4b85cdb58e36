package main

import (
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"gorgonia.org/tensor"
)

func writeTestPNG(t *testing.T, path string, c color.RGBA, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}

// ============================================================
// Loading
// ============================================================

func TestLoadDatasetWalksAndSkips(t *testing.T) {
	dir := t.TempDir()
	writeTestPNG(t, filepath.Join(dir, "a.png"), color.RGBA{255, 0, 0, 255}, 12, 12)
	sub := filepath.Join(dir, "sub")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeTestPNG(t, filepath.Join(sub, "b.png"), color.RGBA{0, 255, 0, 255}, 7, 19)
	if err := os.WriteFile(filepath.Join(dir, "broken.jpg"), []byte("not an image"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatalf("write text file: %v", err)
	}

	cfg := testConfig()
	cfg.DataDir = dir
	cfg.ImageSize = 16
	cfg.Workers = 2
	ds, err := LoadDataset(cfg)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ds.Len() != 2 {
		t.Fatalf("expected 2 images, got %d", ds.Len())
	}
	if ds.Skipped != 1 {
		t.Errorf("expected 1 skipped file, got %d", ds.Skipped)
	}
	for i := 0; i < ds.Len(); i++ {
		if got := ds.Images[i].Shape(); got[0] != 3 || got[1] != 16 || got[2] != 16 {
			t.Errorf("image %d: expected shape (3,16,16), got %v", i, got)
		}
		for _, v := range ds.ImageData(i) {
			if v < -1 || v > 1 {
				t.Fatalf("image %d: value %f outside [-1,1]", i, v)
			}
		}
	}
}

func TestLoadDatasetEmptyDir(t *testing.T) {
	cfg := testConfig()
	cfg.DataDir = t.TempDir()
	if _, err := LoadDataset(cfg); err == nil {
		t.Error("expected an error on a directory without images")
	}
}

// ============================================================
// Batching
// ============================================================

func TestBatchesCoverWithoutRepeats(t *testing.T) {
	ds := &Dataset{Images: make([]*tensor.Dense, 10)}
	batches := ds.Batches(rand.New(rand.NewSource(2)), 3)
	if len(batches) != 3 {
		t.Fatalf("10 images at batch 3: expected 3 full batches, got %d", len(batches))
	}
	seen := make(map[int]bool)
	for _, b := range batches {
		if len(b) != 3 {
			t.Fatalf("partial batch of %d leaked through", len(b))
		}
		for _, i := range b {
			if seen[i] {
				t.Fatalf("index %d appears twice in one epoch", i)
			}
			seen[i] = true
		}
	}
	if len(seen) != 9 {
		t.Errorf("expected 9 distinct indices, got %d", len(seen))
	}
}

func TestBatchesShuffleByEpoch(t *testing.T) {
	ds := &Dataset{Images: make([]*tensor.Dense, 64)}
	rng := rand.New(rand.NewSource(3))
	a := ds.Batches(rng, 8)
	b := ds.Batches(rng, 8)
	same := true
	for i := range a {
		for j := range a[i] {
			if a[i][j] != b[i][j] {
				same = false
			}
		}
	}
	if same {
		t.Error("two epochs produced identical batch order")
	}
}

func TestGatherCopiesRows(t *testing.T) {
	side := 4
	plane := 3 * side * side
	mk := func(fill float32) *tensor.Dense {
		data := make([]float32, plane)
		for i := range data {
			data[i] = fill
		}
		return tensor.New(tensor.WithShape(3, side, side), tensor.WithBacking(data))
	}
	ds := &Dataset{
		Paths:  []string{"zero.png", "one.png"},
		Images: []*tensor.Dense{mk(0.25), mk(0.75)},
		Side:   side,
	}
	out := ds.Gather([]int{1, 0})
	if !shapeEq(out.Shape, []int{2, 3, side, side}) {
		t.Fatalf("expected shape (2,3,%d,%d), got %v", side, side, out.Shape)
	}
	if out.Data[0] != 0.75 {
		t.Errorf("row 0 should hold image 1, got %f", out.Data[0])
	}
	if out.Data[plane] != 0.25 {
		t.Errorf("row 1 should hold image 0, got %f", out.Data[plane])
	}
}
