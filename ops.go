// ops.go
// Elementwise ops and activations on tensors. Each op records a
// backward closure only while grad tracking is on; a child with nil
// Grad is detached and receives nothing.

package main

import "math"

// Add returns self + other, elementwise. Shapes must match.
func (t *Tensor) Add(other *Tensor) *Tensor {
	n := len(t.Data)
	if n != len(other.Data) {
		panic("tensor: Add shape mismatch")
	}
	out := NewTensor(t.Shape...)
	for i := 0; i < n; i++ {
		out.Data[i] = t.Data[i] + other.Data[i]
	}
	if gradOn() {
		out.children = []Node{t, other}
		out.backFn = func() {
			if t.Grad != nil {
				for i := 0; i < n; i++ {
					t.Grad[i] += out.Grad[i]
				}
			}
			if other.Grad != nil {
				for i := 0; i < n; i++ {
					other.Grad[i] += out.Grad[i]
				}
			}
		}
	}
	return out
}

// Scale returns self * s.
func (t *Tensor) Scale(s float32) *Tensor {
	n := len(t.Data)
	out := NewTensor(t.Shape...)
	for i := 0; i < n; i++ {
		out.Data[i] = t.Data[i] * s
	}
	if gradOn() {
		out.children = []Node{t}
		out.backFn = func() {
			if t.Grad != nil {
				for i := 0; i < n; i++ {
					t.Grad[i] += s * out.Grad[i]
				}
			}
		}
	}
	return out
}

// ReLU applies max(0, x) elementwise.
func (t *Tensor) ReLU() *Tensor {
	n := len(t.Data)
	out := NewTensor(t.Shape...)
	for i := 0; i < n; i++ {
		if t.Data[i] > 0 {
			out.Data[i] = t.Data[i]
		}
	}
	if gradOn() {
		out.children = []Node{t}
		src := t.Data
		out.backFn = func() {
			if t.Grad != nil {
				for i := 0; i < n; i++ {
					if src[i] > 0 {
						t.Grad[i] += out.Grad[i]
					}
				}
			}
		}
	}
	return out
}

// LeakyReLU applies x for x > 0, slope*x otherwise.
func (t *Tensor) LeakyReLU(slope float32) *Tensor {
	n := len(t.Data)
	out := NewTensor(t.Shape...)
	for i := 0; i < n; i++ {
		if t.Data[i] > 0 {
			out.Data[i] = t.Data[i]
		} else {
			out.Data[i] = slope * t.Data[i]
		}
	}
	if gradOn() {
		out.children = []Node{t}
		src := t.Data
		out.backFn = func() {
			if t.Grad != nil {
				for i := 0; i < n; i++ {
					if src[i] > 0 {
						t.Grad[i] += out.Grad[i]
					} else {
						t.Grad[i] += slope * out.Grad[i]
					}
				}
			}
		}
	}
	return out
}

// Tanh applies tanh elementwise, bounding values to (-1, 1).
func (t *Tensor) Tanh() *Tensor {
	n := len(t.Data)
	out := NewTensor(t.Shape...)
	for i := 0; i < n; i++ {
		out.Data[i] = float32(math.Tanh(float64(t.Data[i])))
	}
	if gradOn() {
		out.children = []Node{t}
		y := out.Data
		out.backFn = func() {
			if t.Grad != nil {
				for i := 0; i < n; i++ {
					t.Grad[i] += (1 - y[i]*y[i]) * out.Grad[i]
				}
			}
		}
	}
	return out
}

// Reshape returns a copy of the tensor with a new shape of equal size.
func (t *Tensor) Reshape(shape ...int) *Tensor {
	if numel(shape) != len(t.Data) {
		panic("tensor: Reshape element count mismatch")
	}
	out := NewTensor(shape...)
	copy(out.Data, t.Data)
	if gradOn() {
		out.children = []Node{t}
		out.backFn = func() {
			if t.Grad != nil {
				for i := range out.Grad {
					t.Grad[i] += out.Grad[i]
				}
			}
		}
	}
	return out
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
