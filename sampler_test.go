package main

import (
	"math/rand"
	"testing"
)

// testConfig is a scaled-down Config the component tests share: small
// spatial side and channel count keep pure-Go forward passes quick.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ImageSize = 32
	cfg.BaseChannels = 4
	cfg.BatchSize = 4
	cfg.Workers = 1
	return cfg
}

// ============================================================
// SampleLatent
// ============================================================

func TestSampleLatentLayout(t *testing.T) {
	cfg := testConfig()
	rng := rand.New(rand.NewSource(1))
	lb := SampleLatent(rng, cfg, 8)

	z, c, d := cfg.NoiseDim, cfg.NumCategories, cfg.ContinuousDim
	width := z + c + d
	if !shapeEq(lb.X.Shape, []int{8, width}) {
		t.Fatalf("expected shape (8,%d), got %v", width, lb.X.Shape)
	}
	if len(lb.Labels) != 8 || len(lb.Cont) != 8*d {
		t.Fatalf("targets sized %d labels, %d cont", len(lb.Labels), len(lb.Cont))
	}

	for b := 0; b < 8; b++ {
		row := lb.X.Data[b*width : (b+1)*width]
		var sum float32
		hot := 0
		for i := 0; i < c; i++ {
			v := row[z+i]
			if v != 0 && v != 1 {
				t.Errorf("row %d: one-hot entry %f", b, v)
			}
			if v == 1 {
				hot++
			}
			sum += v
		}
		if sum != 1 || hot != 1 {
			t.Errorf("row %d: one-hot sum %f with %d hot entries", b, sum, hot)
		}
		if row[z+lb.Labels[b]] != 1 {
			t.Errorf("row %d: label %d not the hot entry", b, lb.Labels[b])
		}
		for i := 0; i < d; i++ {
			v := row[z+c+i]
			if v < -1 || v > 1 {
				t.Errorf("row %d: continuous code %f outside [-1,1]", b, v)
			}
			if v != lb.Cont[b*d+i] {
				t.Errorf("row %d: cont target %f does not match packed %f", b, lb.Cont[b*d+i], v)
			}
		}
	}
}

func TestSampleLatentDeterministic(t *testing.T) {
	cfg := testConfig()
	a := SampleLatent(rand.New(rand.NewSource(99)), cfg, 4)
	b := SampleLatent(rand.New(rand.NewSource(99)), cfg, 4)
	for i := range a.X.Data {
		if a.X.Data[i] != b.X.Data[i] {
			t.Fatalf("same seed diverged at %d: %f vs %f", i, a.X.Data[i], b.X.Data[i])
		}
	}
	for i := range a.Labels {
		if a.Labels[i] != b.Labels[i] {
			t.Fatalf("labels diverged at %d", i)
		}
	}
}

// ============================================================
// SweepLatent
// ============================================================

func TestSweepLatentGrid(t *testing.T) {
	cfg := testConfig()
	cols := 4
	lb := SweepLatent(rand.New(rand.NewSource(5)), cfg, cols)

	z, c, d := cfg.NoiseDim, cfg.NumCategories, cfg.ContinuousDim
	width := z + c + d
	if !shapeEq(lb.X.Shape, []int{c * cols, width}) {
		t.Fatalf("expected %d rows, got %v", c*cols, lb.X.Shape)
	}

	for cat := 0; cat < c; cat++ {
		for j := 0; j < cols; j++ {
			row := lb.X.Data[(cat*cols+j)*width : (cat*cols+j+1)*width]
			if row[z+cat] != 1 {
				t.Errorf("cell (%d,%d): category not hot", cat, j)
			}
			if lb.Labels[cat*cols+j] != cat {
				t.Errorf("cell (%d,%d): label %d", cat, j, lb.Labels[cat*cols+j])
			}
		}
		first := lb.X.Data[(cat*cols)*width+z+c]
		last := lb.X.Data[(cat*cols+cols-1)*width+z+c]
		if first != -1 || last != 1 {
			t.Errorf("category %d: sweep endpoints (%f,%f), expected (-1,1)", cat, first, last)
		}
	}

	// every cell shares the same noise block
	base := lb.X.Data[:z]
	for b := 1; b < c*cols; b++ {
		row := lb.X.Data[b*width : b*width+z]
		for i := 0; i < z; i++ {
			if row[i] != base[i] {
				t.Fatalf("row %d: noise differs at %d", b, i)
			}
		}
	}
}

func TestSweepLatentSingleColumn(t *testing.T) {
	cfg := testConfig()
	lb := SweepLatent(rand.New(rand.NewSource(5)), cfg, 1)
	z, c := cfg.NoiseDim, cfg.NumCategories
	if lb.X.Shape[0] != c {
		t.Fatalf("expected %d rows, got %d", c, lb.X.Shape[0])
	}
	for cat := 0; cat < c; cat++ {
		if v := lb.X.Data[cat*lb.X.Shape[1]+z+c]; v != -1 {
			t.Errorf("cols=1 sweep value: expected -1, got %f", v)
		}
	}
}
