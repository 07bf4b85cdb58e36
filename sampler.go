// sampler.go
// Structured generator input: gaussian noise, a one-hot category draw,
// and a uniform continuous code, packed side by side into one row per
// example. The drawn label and code ride along as the targets the
// auxiliary head has to recover.

package main

import "math/rand"

// LatentBatch is one sampled generator input batch plus the auxiliary
// supervision targets that produced it.
type LatentBatch struct {
	X      *Tensor   // (B, Z+C+D)
	Labels []int     // category index per row
	Cont   []float32 // (B*D) continuous code per row
}

// SampleLatent draws a fresh batch: noise ~ N(0,1), category ~
// Uniform{0..C-1} one-hot encoded, continuous ~ Uniform(-1,1). Pure
// sampling; the same seeded source always yields the same batch.
func SampleLatent(rng *rand.Rand, cfg Config, batch int) *LatentBatch {
	z, c, d := cfg.NoiseDim, cfg.NumCategories, cfg.ContinuousDim
	width := z + c + d
	data := make([]float32, batch*width)
	labels := make([]int, batch)
	cont := make([]float32, batch*d)

	for b := 0; b < batch; b++ {
		row := data[b*width : (b+1)*width]
		for i := 0; i < z; i++ {
			row[i] = float32(rng.NormFloat64())
		}
		lab := rng.Intn(c)
		labels[b] = lab
		row[z+lab] = 1
		for i := 0; i < d; i++ {
			v := float32(rng.Float64()*2 - 1)
			row[z+c+i] = v
			cont[b*d+i] = v
		}
	}

	return &LatentBatch{X: NewTensorFrom(data, batch, width), Labels: labels, Cont: cont}
}

// SweepLatent builds the diagnostic batch for sample sheets: one row of
// images per category, the first continuous dim sweeping -1..1 across
// cols, noise shared by every cell so only the codes vary.
func SweepLatent(rng *rand.Rand, cfg Config, cols int) *LatentBatch {
	z, c, d := cfg.NoiseDim, cfg.NumCategories, cfg.ContinuousDim
	width := z + c + d
	noise := make([]float32, z)
	for i := range noise {
		noise[i] = float32(rng.NormFloat64())
	}

	batch := c * cols
	data := make([]float32, batch*width)
	labels := make([]int, batch)
	cont := make([]float32, batch*d)
	for cat := 0; cat < c; cat++ {
		for j := 0; j < cols; j++ {
			b := cat*cols + j
			row := data[b*width : (b+1)*width]
			copy(row, noise)
			row[z+cat] = 1
			labels[b] = cat
			v := float32(-1)
			if cols > 1 {
				v = float32(2*j)/float32(cols-1) - 1
			}
			row[z+c] = v
			cont[b*d] = v
		}
	}

	return &LatentBatch{X: NewTensorFrom(data, batch, width), Labels: labels, Cont: cont}
}
