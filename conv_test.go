package main

import (
	"math"
	"math/rand"
	"testing"
)

func ones(n int) []float32 {
	v := make([]float32, n)
	for i := range v {
		v[i] = 1
	}
	return v
}

// ============================================================
// Geometry
// ============================================================

func TestConvOutputSides(t *testing.T) {
	if got := convOut(64, 4, 2, 1); got != 32 {
		t.Errorf("convOut(64,4,2,1): expected 32, got %d", got)
	}
	if got := convOut(3, 2, 1, 0); got != 2 {
		t.Errorf("convOut(3,2,1,0): expected 2, got %d", got)
	}
	if got := convTOut(4, 4, 2, 1); got != 8 {
		t.Errorf("convTOut(4,4,2,1): expected 8, got %d", got)
	}
}

func TestConvTransposeInvertsConvGeometry(t *testing.T) {
	for _, side := range []int{8, 16, 32, 64, 112} {
		down := convOut(side, 4, 2, 1)
		if up := convTOut(down, 4, 2, 1); up != side {
			t.Errorf("side %d: down %d up %d", side, down, up)
		}
	}
}

// ============================================================
// Forward values
// ============================================================

func TestConv2dSumKernel(t *testing.T) {
	// Two input channels of ones, a single all-ones 2x2 kernel, stride 1,
	// no padding: every output pixel sums 2*2*2 taps.
	x := NewTensorFrom(ones(2*3*3), 1, 2, 3, 3)
	w := NewParam(1, 2, 2, 2)
	for i := range w.Data {
		w.Data[i] = 1
	}
	y := conv2d(x, w, 1, 0)
	if y.Shape[0] != 1 || y.Shape[1] != 1 || y.Shape[2] != 2 || y.Shape[3] != 2 {
		t.Fatalf("expected shape (1,1,2,2), got %v", y.Shape)
	}
	for i, v := range y.Data {
		if v != 8 {
			t.Errorf("out[%d]: expected 8, got %f", i, v)
		}
	}
}

func TestConv2dStrideAndPadShape(t *testing.T) {
	x := NewTensorFrom(make([]float32, 2*3*32*32), 2, 3, 32, 32)
	w := NewParam(8, 3, 4, 4)
	y := conv2d(x, w, 2, 1)
	want := []int{2, 8, 16, 16}
	for i := range want {
		if y.Shape[i] != want[i] {
			t.Fatalf("expected shape %v, got %v", want, y.Shape)
		}
	}
}

func TestConvT2dUpsamplesShape(t *testing.T) {
	x := NewTensorFrom(make([]float32, 2*4*4*4), 2, 4, 4, 4)
	w := NewParam(4, 2, 4, 4)
	y := convT2d(x, w, 2, 1)
	want := []int{2, 2, 8, 8}
	for i := range want {
		if y.Shape[i] != want[i] {
			t.Fatalf("expected shape %v, got %v", want, y.Shape)
		}
	}
}

// ============================================================
// Backward values (1x1 kernel keeps the algebra exact)
// ============================================================

func TestConv2dBackward(t *testing.T) {
	// k=1 stride=1 reduces the conv to y = w*x per pixel, so with a
	// ones seed: dw = sum(x), dx = w everywhere.
	x := NewParam(1, 1, 2, 2)
	copy(x.Data, []float32{1, 2, 3, 4})
	w := NewParam(1, 1, 1, 1)
	w.Data[0] = 3
	y := conv2d(x, w, 1, 0)
	wantFwd := []float32{3, 6, 9, 12}
	for i := range wantFwd {
		if y.Data[i] != wantFwd[i] {
			t.Errorf("forward[%d]: expected %f, got %f", i, wantFwd[i], y.Data[i])
		}
	}
	Backward(y)
	if w.Grad[0] != 10 {
		t.Errorf("weight grad: expected 10, got %f", w.Grad[0])
	}
	for i := range x.Grad {
		if x.Grad[i] != 3 {
			t.Errorf("input grad[%d]: expected 3, got %f", i, x.Grad[i])
		}
	}
}

func TestConvT2dBackward(t *testing.T) {
	x := NewParam(1, 1, 2, 2)
	copy(x.Data, []float32{1, 2, 3, 4})
	w := NewParam(1, 1, 1, 1)
	w.Data[0] = 2
	y := convT2d(x, w, 1, 0)
	wantFwd := []float32{2, 4, 6, 8}
	for i := range wantFwd {
		if y.Data[i] != wantFwd[i] {
			t.Errorf("forward[%d]: expected %f, got %f", i, wantFwd[i], y.Data[i])
		}
	}
	Backward(y)
	if w.Grad[0] != 10 {
		t.Errorf("weight grad: expected 10, got %f", w.Grad[0])
	}
	for i := range x.Grad {
		if x.Grad[i] != 2 {
			t.Errorf("input grad[%d]: expected 2, got %f", i, x.Grad[i])
		}
	}
}

// ============================================================
// im2col / col2im adjoint identity
// ============================================================

func TestIm2colCol2imAdjoint(t *testing.T) {
	// <im2col(x), y> must equal <x, col2im(y)> — both backward passes
	// and the transposed-conv forward rest on this.
	rng := rand.New(rand.NewSource(7))
	c, h, w, k, stride, pad := 2, 5, 5, 3, 2, 1
	oh := convOut(h, k, stride, pad)
	ow := convOut(w, k, stride, pad)

	x := make([]float32, c*h*w)
	for i := range x {
		x[i] = float32(rng.NormFloat64())
	}
	y := make([]float32, c*k*k*oh*ow)
	for i := range y {
		y[i] = float32(rng.NormFloat64())
	}

	cols := make([]float32, len(y))
	im2col(x, c, h, w, k, stride, pad, cols)
	var lhs float64
	for i := range cols {
		lhs += float64(cols[i]) * float64(y[i])
	}

	img := make([]float32, len(x))
	col2im(y, c, h, w, k, stride, pad, img)
	var rhs float64
	for i := range img {
		rhs += float64(img[i]) * float64(x[i])
	}

	if math.Abs(lhs-rhs) > 1e-3 {
		t.Errorf("adjoint identity broken: %f vs %f", lhs, rhs)
	}
}

func TestIm2colZeroPads(t *testing.T) {
	// 1x1 image, 3x3 kernel, pad 1: only the center tap is real.
	src := []float32{5}
	dst := make([]float32, 9)
	im2col(src, 1, 1, 1, 3, 1, 1, dst)
	for i, v := range dst {
		if i == 4 {
			if v != 5 {
				t.Errorf("center tap: expected 5, got %f", v)
			}
		} else if v != 0 {
			t.Errorf("padded tap %d: expected 0, got %f", i, v)
		}
	}
}
