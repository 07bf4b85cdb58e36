// norm.go
// Batch normalization over (B,C,H,W) or (B,F) tensors: one core, the
// channel axis is always axis 1. Training normalizes by batch stats and
// maintains running estimates; eval normalizes by the running estimates.

package main

import "math"

// BatchNorm holds the learned scale/shift and the running statistics.
// RunMean/RunVar are buffers, not parameters: no gradients, but they
// travel with checkpoints.
type BatchNorm struct {
	Gamma   *Tensor
	Beta    *Tensor
	RunMean []float32
	RunVar  []float32

	Momentum float32
	Eps      float32
}

func NewBatchNorm(c int) *BatchNorm {
	bn := &BatchNorm{
		Gamma:    NewParam(c),
		Beta:     NewParam(c),
		RunMean:  make([]float32, c),
		RunVar:   make([]float32, c),
		Momentum: 0.1,
		Eps:      1e-5,
	}
	for i := 0; i < c; i++ {
		bn.Gamma.Data[i] = 1
		bn.RunVar[i] = 1
	}
	return bn
}

func (bn *BatchNorm) Params() []*Tensor { return []*Tensor{bn.Gamma, bn.Beta} }

// Apply normalizes x per channel. train selects batch statistics and
// updates the running ones; otherwise the running statistics are used.
func (bn *BatchNorm) Apply(x *Tensor, train bool) *Tensor {
	var c, spatial int
	switch len(x.Shape) {
	case 2:
		c, spatial = x.Shape[1], 1
	case 4:
		c, spatial = x.Shape[1], x.Shape[2]*x.Shape[3]
	default:
		panic("batchnorm: want rank 2 or 4 input")
	}
	if c != len(bn.Gamma.Data) {
		panic("batchnorm: channel count mismatch")
	}
	bsz := x.Shape[0]
	n := bsz * spatial

	mean := make([]float32, c)
	inv := make([]float32, c)
	if train {
		for ci := 0; ci < c; ci++ {
			var sum float64
			for b := 0; b < bsz; b++ {
				seg := x.Data[(b*c+ci)*spatial : (b*c+ci+1)*spatial]
				for _, v := range seg {
					sum += float64(v)
				}
			}
			m := sum / float64(n)
			var sq float64
			for b := 0; b < bsz; b++ {
				seg := x.Data[(b*c+ci)*spatial : (b*c+ci+1)*spatial]
				for _, v := range seg {
					d := float64(v) - m
					sq += d * d
				}
			}
			variance := sq / float64(n)
			mean[ci] = float32(m)
			inv[ci] = float32(1.0 / math.Sqrt(variance+float64(bn.Eps)))

			unbiased := variance
			if n > 1 {
				unbiased = sq / float64(n-1)
			}
			bn.RunMean[ci] = (1-bn.Momentum)*bn.RunMean[ci] + bn.Momentum*float32(m)
			bn.RunVar[ci] = (1-bn.Momentum)*bn.RunVar[ci] + bn.Momentum*float32(unbiased)
		}
	} else {
		for ci := 0; ci < c; ci++ {
			mean[ci] = bn.RunMean[ci]
			inv[ci] = float32(1.0 / math.Sqrt(float64(bn.RunVar[ci])+float64(bn.Eps)))
		}
	}

	out := NewTensor(x.Shape...)
	xhat := make([]float32, len(x.Data))
	for b := 0; b < bsz; b++ {
		for ci := 0; ci < c; ci++ {
			off := (b*c + ci) * spatial
			g, bt, m, iv := bn.Gamma.Data[ci], bn.Beta.Data[ci], mean[ci], inv[ci]
			for s := 0; s < spatial; s++ {
				h := (x.Data[off+s] - m) * iv
				xhat[off+s] = h
				out.Data[off+s] = g*h + bt
			}
		}
	}

	if gradOn() {
		gamma, beta := bn.Gamma, bn.Beta
		out.children = []Node{x, gamma, beta}
		out.backFn = func() {
			for ci := 0; ci < c; ci++ {
				var sumG, sumGX float64
				for b := 0; b < bsz; b++ {
					off := (b*c + ci) * spatial
					for s := 0; s < spatial; s++ {
						g := float64(out.Grad[off+s])
						sumG += g
						sumGX += g * float64(xhat[off+s])
					}
				}
				gamma.Grad[ci] += float32(sumGX)
				beta.Grad[ci] += float32(sumG)

				if x.Grad == nil {
					continue
				}
				scale := float64(gamma.Data[ci]) * float64(inv[ci])
				if train {
					nf := float64(n)
					for b := 0; b < bsz; b++ {
						off := (b*c + ci) * spatial
						for s := 0; s < spatial; s++ {
							g := float64(out.Grad[off+s])
							h := float64(xhat[off+s])
							x.Grad[off+s] += float32(scale / nf * (nf*g - sumG - h*sumGX))
						}
					}
				} else {
					for b := 0; b < bsz; b++ {
						off := (b*c + ci) * spatial
						for s := 0; s < spatial; s++ {
							x.Grad[off+s] += float32(scale * float64(out.Grad[off+s]))
						}
					}
				}
			}
		}
	}
	return out
}
