package main

import (
	"math"
	"testing"
)

// ============================================================
// Adam
// ============================================================

func TestAdamFirstStepSize(t *testing.T) {
	opt := NewAdam(DefaultConfig())
	p := NewParam(1)
	p.Data[0] = 1
	p.Grad[0] = 0.5
	opt.Step([]*Tensor{p}, "test", 0.1)
	// bias correction makes the first step ~lr regardless of grad scale
	if absDiff(p.Data[0], 0.9) > 1e-3 {
		t.Errorf("expected ~0.9, got %f", p.Data[0])
	}
	if p.Grad[0] != 0 {
		t.Errorf("gradient not zeroed by the step: %f", p.Grad[0])
	}
	if opt.StepCount("test") != 1 {
		t.Errorf("expected step count 1, got %d", opt.StepCount("test"))
	}
}

func TestAdamStepDirection(t *testing.T) {
	opt := NewAdam(DefaultConfig())
	p := NewParam(2)
	p.Grad[0], p.Grad[1] = 2, -2
	opt.Step([]*Tensor{p}, "dir", 0.01)
	if p.Data[0] >= 0 {
		t.Errorf("positive grad should decrease the weight, got %f", p.Data[0])
	}
	if p.Data[1] <= 0 {
		t.Errorf("negative grad should increase the weight, got %f", p.Data[1])
	}
}

func TestAdamPartitionsIndependent(t *testing.T) {
	opt := NewAdam(DefaultConfig())
	a := NewParam(1)
	b := NewParam(1)
	a.Grad[0] = 1
	opt.Step([]*Tensor{a}, "a", 0.01)
	if opt.StepCount("a") != 1 || opt.StepCount("b") != 0 {
		t.Errorf("expected counts (1,0), got (%d,%d)", opt.StepCount("a"), opt.StepCount("b"))
	}
	b.Grad[0] = 1
	opt.Step([]*Tensor{b}, "b", 0.01)
	if opt.StepCount("a") != 1 || opt.StepCount("b") != 1 {
		t.Errorf("expected counts (1,1), got (%d,%d)", opt.StepCount("a"), opt.StepCount("b"))
	}
}

func TestAdamDescendsQuadratic(t *testing.T) {
	opt := NewAdam(DefaultConfig())
	p := NewParam(1)
	for i := 0; i < 500; i++ {
		p.Grad[0] = 2 * (p.Data[0] - 3)
		opt.Step([]*Tensor{p}, "q", 0.05)
	}
	if math.Abs(float64(p.Data[0])-3) > 0.5 {
		t.Errorf("expected convergence toward 3, got %f", p.Data[0])
	}
}

// ============================================================
// Gradient clipping
// ============================================================

func TestClipGrads(t *testing.T) {
	p := NewParam(3)
	copy(p.Grad, []float32{-5, 0.5, 5})
	clipGrads([]*Tensor{p}, 1)
	want := []float32{-1, 0.5, 1}
	for i := range want {
		if p.Grad[i] != want[i] {
			t.Errorf("grad[%d]: expected %f, got %f", i, want[i], p.Grad[i])
		}
	}
}

func TestClipGradsDisabled(t *testing.T) {
	p := NewParam(2)
	copy(p.Grad, []float32{-5, 5})
	clipGrads([]*Tensor{p}, 0)
	if p.Grad[0] != -5 || p.Grad[1] != 5 {
		t.Errorf("clip 0 should be a no-op, got (%f,%f)", p.Grad[0], p.Grad[1])
	}
}

func TestStepAppliesClip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GradClip = 1
	opt := NewAdam(cfg)
	p := NewParam(1)
	p.Grad[0] = 1000
	opt.Step([]*Tensor{p}, "c", 0.1)
	// clipped to 1, the first bias-corrected step is still ~lr
	if absDiff(p.Data[0], -0.1) > 1e-3 {
		t.Errorf("expected ~-0.1, got %f", p.Data[0])
	}
}

func TestZeroGrads(t *testing.T) {
	p := NewParam(2)
	p.Grad[0], p.Grad[1] = 3, -3
	zeroGrads([]*Tensor{p})
	if p.Grad[0] != 0 || p.Grad[1] != 0 {
		t.Errorf("expected zeroed grads, got (%f,%f)", p.Grad[0], p.Grad[1])
	}
}
