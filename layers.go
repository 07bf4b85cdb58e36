// layers.go
// Network building blocks: dense and (transposed) convolution layers,
// plus the named parameter registry both networks hang their weights on.

package main

import "math/rand"

func initNormal(t *Tensor, std float64) {
	for i := range t.Data {
		t.Data[i] = float32(rand.NormFloat64() * std)
	}
}

// Dense is a fully connected layer, weight (out,in), optional bias.
type Dense struct {
	W *Tensor
	B *Tensor
}

func NewDense(in, out int, bias bool, std float64) *Dense {
	d := &Dense{W: NewParam(out, in)}
	initNormal(d.W, std)
	if bias {
		d.B = NewParam(out)
	}
	return d
}

// Apply computes x @ W^T (+ bias) for x of shape (B,in).
func (d *Dense) Apply(x *Tensor) *Tensor {
	out, in := d.W.Shape[0], d.W.Shape[1]
	if x.Shape[1] != in {
		panic("dense: input width mismatch")
	}
	bsz := x.Shape[0]
	y := NewTensor(bsz, out)
	gemm(false, true, bsz, out, in, 1, x.Data, d.W.Data, 0, y.Data)
	if d.B != nil {
		for b := 0; b < bsz; b++ {
			row := y.Data[b*out : (b+1)*out]
			for j := 0; j < out; j++ {
				row[j] += d.B.Data[j]
			}
		}
	}

	if gradOn() {
		w, bias := d.W, d.B
		if bias != nil {
			y.children = []Node{x, w, bias}
		} else {
			y.children = []Node{x, w}
		}
		y.backFn = func() {
			gemm(true, false, out, in, bsz, 1, y.Grad, x.Data, 1, w.Grad)
			if x.Grad != nil {
				gemm(false, false, bsz, in, out, 1, y.Grad, w.Data, 1, x.Grad)
			}
			if bias != nil {
				for b := 0; b < bsz; b++ {
					row := y.Grad[b*out : (b+1)*out]
					for j := 0; j < out; j++ {
						bias.Grad[j] += row[j]
					}
				}
			}
		}
	}
	return y
}

func (d *Dense) Params() []*Tensor {
	if d.B != nil {
		return []*Tensor{d.W, d.B}
	}
	return []*Tensor{d.W}
}

// Conv2D is a strided convolution, weight (OC,IC,k,k), no bias: the
// normalization layers behind it absorb any shift.
type Conv2D struct {
	W      *Tensor
	Stride int
	Pad    int
}

func NewConv2D(inC, outC, k, stride, pad int, std float64) *Conv2D {
	c := &Conv2D{W: NewParam(outC, inC, k, k), Stride: stride, Pad: pad}
	initNormal(c.W, std)
	return c
}

func (c *Conv2D) Apply(x *Tensor) *Tensor { return conv2d(x, c.W, c.Stride, c.Pad) }

func (c *Conv2D) Params() []*Tensor { return []*Tensor{c.W} }

// ConvT2D is a transposed convolution, weight (IC,OC,k,k), no bias.
type ConvT2D struct {
	W      *Tensor
	Stride int
	Pad    int
}

func NewConvT2D(inC, outC, k, stride, pad int, std float64) *ConvT2D {
	c := &ConvT2D{W: NewParam(inC, outC, k, k), Stride: stride, Pad: pad}
	initNormal(c.W, std)
	return c
}

func (c *ConvT2D) Apply(x *Tensor) *Tensor { return convT2d(x, c.W, c.Stride, c.Pad) }

func (c *ConvT2D) Params() []*Tensor { return []*Tensor{c.W} }

// paramSet registers parameters and stat buffers under stable names.
// Insertion order is the optimizer order: Adam states are positional,
// so the list must come back identical every call.
type paramSet struct {
	names   []string
	byName  map[string]*Tensor
	bufName []string
	buffers map[string]StateEntry
}

func newParamSet() *paramSet {
	return &paramSet{
		byName:  make(map[string]*Tensor),
		buffers: make(map[string]StateEntry),
	}
}

func (ps *paramSet) add(name string, params ...*Tensor) {
	suffixes := []string{"w", "b"}
	for i, p := range params {
		n := name + "." + suffixes[i]
		ps.names = append(ps.names, n)
		ps.byName[n] = p
	}
}

func (ps *paramSet) addNorm(name string, bn *BatchNorm) {
	ps.names = append(ps.names, name+".gamma", name+".beta")
	ps.byName[name+".gamma"] = bn.Gamma
	ps.byName[name+".beta"] = bn.Beta
	ps.bufName = append(ps.bufName, name+".run_mean", name+".run_var")
	ps.buffers[name+".run_mean"] = StateEntry{Shape: []int{len(bn.RunMean)}, Data: bn.RunMean}
	ps.buffers[name+".run_var"] = StateEntry{Shape: []int{len(bn.RunVar)}, Data: bn.RunVar}
}

// list returns the parameters in registration order.
func (ps *paramSet) list() []*Tensor {
	out := make([]*Tensor, len(ps.names))
	for i, n := range ps.names {
		out[i] = ps.byName[n]
	}
	return out
}

// state exposes parameters and buffers for checkpointing. The slices
// are live: loading a checkpoint writes through them.
func (ps *paramSet) state() map[string]StateEntry {
	m := make(map[string]StateEntry, len(ps.names)+len(ps.bufName))
	for _, n := range ps.names {
		p := ps.byName[n]
		m[n] = StateEntry{Shape: p.Shape, Data: p.Data}
	}
	for _, n := range ps.bufName {
		m[n] = ps.buffers[n]
	}
	return m
}
