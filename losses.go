// losses.go
// The three training objectives, each reduced to a mean scalar packed
// in a shape-[1] tensor so losses can be summed and sent through
// Backward like anything else.

package main

import "math"

// BCEWithLogits is the binary real/fake loss on raw logits against a
// constant target (1 for real, 0 for fake). The stable form
// max(z,0) - z*y + log(1+exp(-|z|)) avoids overflow in either tail.
func BCEWithLogits(logits *Tensor, target float32) *Tensor {
	n := len(logits.Data)
	sig := make([]float32, n)
	var total float64
	for i, z := range logits.Data {
		zf := float64(z)
		total += math.Max(zf, 0) - zf*float64(target) + math.Log1p(math.Exp(-math.Abs(zf)))
		sig[i] = float32(1.0 / (1.0 + math.Exp(-zf)))
	}
	out := NewTensorFrom([]float32{float32(total / float64(n))}, 1)
	if gradOn() {
		out.children = []Node{logits}
		out.backFn = func() {
			if logits.Grad == nil {
				return
			}
			g := out.Grad[0] / float32(n)
			for i := 0; i < n; i++ {
				logits.Grad[i] += (sig[i] - target) * g
			}
		}
	}
	return out
}

// SoftmaxCrossEntropy computes the mean of -log(softmax(row)[target])
// over the batch. logits is (B,C); targets holds one class index per row.
func SoftmaxCrossEntropy(logits *Tensor, targets []int) *Tensor {
	bsz, c := logits.Shape[0], logits.Shape[1]
	probs := make([]float32, bsz*c)
	var total float64
	for b := 0; b < bsz; b++ {
		row := logits.Data[b*c : (b+1)*c]
		maxVal := row[0]
		for _, v := range row[1:] {
			if v > maxVal {
				maxVal = v
			}
		}
		var expSum float64
		for i := 0; i < c; i++ {
			expSum += math.Exp(float64(row[i] - maxVal))
		}
		logSumExp := math.Log(expSum) + float64(maxVal)
		total += logSumExp - float64(row[targets[b]])
		for i := 0; i < c; i++ {
			probs[b*c+i] = float32(math.Exp(float64(row[i]-maxVal)) / expSum)
		}
	}
	out := NewTensorFrom([]float32{float32(total / float64(bsz))}, 1)
	if gradOn() {
		tgt := append([]int(nil), targets...)
		out.children = []Node{logits}
		out.backFn = func() {
			if logits.Grad == nil {
				return
			}
			g := out.Grad[0] / float32(bsz)
			for b := 0; b < bsz; b++ {
				for i := 0; i < c; i++ {
					ind := float32(0)
					if i == tgt[b] {
						ind = 1
					}
					logits.Grad[b*c+i] += (probs[b*c+i] - ind) * g
				}
			}
		}
	}
	return out
}

// MSELoss is the mean squared error against a raw target slice of the
// same length as pred. The targets carry no gradient.
func MSELoss(pred *Tensor, target []float32) *Tensor {
	n := len(pred.Data)
	if n != len(target) {
		panic("mse: length mismatch")
	}
	var total float64
	for i := 0; i < n; i++ {
		d := float64(pred.Data[i] - target[i])
		total += d * d
	}
	out := NewTensorFrom([]float32{float32(total / float64(n))}, 1)
	if gradOn() {
		out.children = []Node{pred}
		out.backFn = func() {
			if pred.Grad == nil {
				return
			}
			g := out.Grad[0]
			for i := 0; i < n; i++ {
				pred.Grad[i] += 2 * (pred.Data[i] - target[i]) / float32(n) * g
			}
		}
	}
	return out
}
