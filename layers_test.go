package main

import "testing"

// ============================================================
// Dense
// ============================================================

func TestDenseIdentity(t *testing.T) {
	d := NewDense(2, 2, false, 0)
	copy(d.W.Data, []float32{1, 0, 0, 1})
	x := NewParam(1, 2)
	copy(x.Data, []float32{3, 7})
	y := d.Apply(x)
	if y.Data[0] != 3 || y.Data[1] != 7 {
		t.Errorf("identity weight: expected (3,7), got (%f,%f)", y.Data[0], y.Data[1])
	}
}

func TestDenseBias(t *testing.T) {
	d := NewDense(2, 1, true, 0)
	copy(d.W.Data, []float32{1, 1})
	d.B.Data[0] = 10
	x := NewParam(1, 2)
	copy(x.Data, []float32{1, 2})
	y := d.Apply(x)
	if y.Data[0] != 13 {
		t.Errorf("expected 13, got %f", y.Data[0])
	}
}

func TestDenseBackward(t *testing.T) {
	d := NewDense(2, 1, true, 0)
	copy(d.W.Data, []float32{2, 3})
	x := NewParam(1, 2)
	copy(x.Data, []float32{5, 7})
	y := d.Apply(x)
	Backward(y)
	if d.W.Grad[0] != 5 || d.W.Grad[1] != 7 {
		t.Errorf("weight grad: expected (5,7), got (%f,%f)", d.W.Grad[0], d.W.Grad[1])
	}
	if d.B.Grad[0] != 1 {
		t.Errorf("bias grad: expected 1, got %f", d.B.Grad[0])
	}
	if x.Grad[0] != 2 || x.Grad[1] != 3 {
		t.Errorf("input grad: expected (2,3), got (%f,%f)", x.Grad[0], x.Grad[1])
	}
}

// ============================================================
// Convolution layer wrappers
// ============================================================

func TestConvLayerWeightShapes(t *testing.T) {
	c := NewConv2D(3, 8, 4, 2, 1, 0.02)
	if !shapeEq(c.W.Shape, []int{8, 3, 4, 4}) {
		t.Errorf("conv weight: expected (8,3,4,4), got %v", c.W.Shape)
	}
	ct := NewConvT2D(8, 3, 4, 2, 1, 0.02)
	if !shapeEq(ct.W.Shape, []int{8, 3, 4, 4}) {
		t.Errorf("convT weight: expected (8,3,4,4), got %v", ct.W.Shape)
	}
}

// ============================================================
// Parameter registry
// ============================================================

func TestParamSetOrderStable(t *testing.T) {
	ps := newParamSet()
	a := NewParam(2)
	b := NewParam(3)
	ps.add("alpha", a)
	ps.addNorm("norm", NewBatchNorm(4))
	ps.add("omega", b)

	first := ps.list()
	second := ps.list()
	if len(first) != 4 {
		t.Fatalf("expected 4 parameters, got %d", len(first))
	}
	if first[0] != a || first[3] != b {
		t.Error("registration order not preserved")
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("list() order changed between calls at %d", i)
		}
	}
}

func TestParamSetStateIsLive(t *testing.T) {
	ps := newParamSet()
	p := NewParam(2)
	p.Data[0], p.Data[1] = 1, 2
	ps.add("layer", p)

	st := ps.state()
	e, ok := st["layer.w"]
	if !ok {
		t.Fatal("missing layer.w entry")
	}
	if e.Data[0] != 1 {
		t.Errorf("expected 1, got %f", e.Data[0])
	}
	e.Data[1] = 9
	if p.Data[1] != 9 {
		t.Error("state entry is a copy; expected a live view")
	}
}

func TestParamSetBuffersInState(t *testing.T) {
	ps := newParamSet()
	bn := NewBatchNorm(3)
	bn.RunMean[1] = 0.5
	ps.addNorm("bn", bn)

	st := ps.state()
	for _, name := range []string{"bn.gamma", "bn.beta", "bn.run_mean", "bn.run_var"} {
		if _, ok := st[name]; !ok {
			t.Errorf("missing %s entry", name)
		}
	}
	if st["bn.run_mean"].Data[1] != 0.5 {
		t.Errorf("buffer not exposed: expected 0.5, got %f", st["bn.run_mean"].Data[1])
	}
	params := ps.list()
	if len(params) != 2 {
		t.Errorf("buffers leaked into the optimizer list: %d params", len(params))
	}
}
