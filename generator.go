// generator.go
// Maps a latent row to a 3xSxS image: dense projection up to a deep
// 4x4 map, then four stride-2 transposed convolutions, each halving
// channels and doubling the side, tanh at the end to land in (-1,1).

package main

// weightStd is the init scale for every conv and dense weight.
const weightStd = 0.02

type Generator struct {
	proj     *Dense
	projNorm *BatchNorm
	ups      []*ConvT2D
	norms    []*BatchNorm

	base  int
	start int
	ps    *paramSet
}

func NewGenerator(cfg Config) *Generator {
	b8 := 8 * cfg.BaseChannels
	start := cfg.ProjSize()
	g := &Generator{base: cfg.BaseChannels, start: start, ps: newParamSet()}

	g.proj = NewDense(cfg.LatentDim(), b8*start*start, false, weightStd)
	g.projNorm = NewBatchNorm(b8 * start * start)
	g.ps.add("proj", g.proj.Params()...)
	g.ps.addNorm("proj_bn", g.projNorm)

	chans := []int{b8, 4 * cfg.BaseChannels, 2 * cfg.BaseChannels, cfg.BaseChannels, 3}
	for i := 0; i < 4; i++ {
		up := NewConvT2D(chans[i], chans[i+1], 4, 2, 1, weightStd)
		g.ups = append(g.ups, up)
		g.ps.add(upName(i), up.Params()...)
		if i < 3 {
			bn := NewBatchNorm(chans[i+1])
			g.norms = append(g.norms, bn)
			g.ps.addNorm(upName(i)+"_bn", bn)
		}
	}
	return g
}

func upName(i int) string {
	return [...]string{"up1", "up2", "up3", "up4"}[i]
}

// Forward maps x (B, Z+C+D) to images (B,3,S,S) in (-1,1).
func (g *Generator) Forward(x *Tensor, train bool) *Tensor {
	h := g.proj.Apply(x)
	h = g.projNorm.Apply(h, train)
	h = h.ReLU()
	h = h.Reshape(x.Shape[0], 8*g.base, g.start, g.start)
	for i, up := range g.ups {
		h = up.Apply(h)
		if i < 3 {
			h = g.norms[i].Apply(h, train)
			h = h.ReLU()
		}
	}
	return h.Tanh()
}

// Params returns the generator partition in stable order.
func (g *Generator) Params() []*Tensor { return g.ps.list() }

// State exposes weights and norm buffers for checkpointing.
func (g *Generator) State() map[string]StateEntry { return g.ps.state() }
