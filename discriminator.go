// discriminator.go
// The shared trunk and its two heads. Four stride-2 convolutions feed a
// 1024-wide shared representation; the real/fake head reads one scalar
// from it, the auxiliary branch squeezes it through 128 and predicts
// the category and the continuous code. Everything the auxiliary loss
// learns flows back through the same trunk the retrieval features come
// from.

package main

// leakSlope is the negative slope of every trunk nonlinearity.
const leakSlope = 0.2

type Discriminator struct {
	convs  []*Conv2D
	norms  []*BatchNorm
	fc     *Dense
	fcNorm *BatchNorm
	rf     *Dense

	q     *Dense
	qNorm *BatchNorm
	qCat  *Dense
	qCont *Dense

	flat   int
	discPS *paramSet
	auxPS  *paramSet
}

func NewDiscriminator(cfg Config) *Discriminator {
	base := cfg.BaseChannels
	d := &Discriminator{discPS: newParamSet(), auxPS: newParamSet()}

	chans := []int{3, base, 2 * base, 4 * base, 8 * base}
	for i := 0; i < 4; i++ {
		cv := NewConv2D(chans[i], chans[i+1], 4, 2, 1, weightStd)
		d.convs = append(d.convs, cv)
		name := convName(i)
		d.discPS.add(name, cv.Params()...)
		if i > 0 {
			bn := NewBatchNorm(chans[i+1])
			d.norms = append(d.norms, bn)
			d.discPS.addNorm(name+"_bn", bn)
		}
	}

	side := cfg.ProjSize()
	d.flat = 8 * base * side * side
	d.fc = NewDense(d.flat, 1024, false, weightStd)
	d.fcNorm = NewBatchNorm(1024)
	d.rf = NewDense(1024, 1, true, weightStd)
	d.discPS.add("fc", d.fc.Params()...)
	d.discPS.addNorm("fc_bn", d.fcNorm)
	d.discPS.add("rf", d.rf.Params()...)

	d.q = NewDense(1024, 128, false, weightStd)
	d.qNorm = NewBatchNorm(128)
	d.qCat = NewDense(128, cfg.NumCategories, true, weightStd)
	d.qCont = NewDense(128, cfg.ContinuousDim, true, weightStd)
	d.auxPS.add("q", d.q.Params()...)
	d.auxPS.addNorm("q_bn", d.qNorm)
	d.auxPS.add("q_cat", d.qCat.Params()...)
	d.auxPS.add("q_cont", d.qCont.Params()...)

	return d
}

func convName(i int) string {
	return [...]string{"conv1", "conv2", "conv3", "conv4"}[i]
}

// stages runs the first depth conv stages (1..4).
func (d *Discriminator) stages(x *Tensor, depth int, train bool) *Tensor {
	h := x
	for i := 0; i < depth; i++ {
		h = d.convs[i].Apply(h)
		if i > 0 {
			h = d.norms[i-1].Apply(h, train)
		}
		h = h.LeakyReLU(leakSlope)
	}
	return h
}

// shared runs the full trunk through the 1024-wide representation both
// heads consume.
func (d *Discriminator) shared(x *Tensor, train bool) *Tensor {
	h := d.stages(x, 4, train)
	h = h.Reshape(h.Shape[0], d.flat)
	h = d.fc.Apply(h)
	h = d.fcNorm.Apply(h, train)
	return h.LeakyReLU(leakSlope)
}

// ForwardRF returns only the real/fake logit (B,1). The discriminator
// phase needs nothing else.
func (d *Discriminator) ForwardRF(x *Tensor, train bool) *Tensor {
	return d.rf.Apply(d.shared(x, train))
}

// Forward returns the real/fake logit (B,1), category logits (B,C) and
// continuous estimate (B,D).
func (d *Discriminator) Forward(x *Tensor, train bool) (*Tensor, *Tensor, *Tensor) {
	rep := d.shared(x, train)
	logit := d.rf.Apply(rep)
	qh := d.q.Apply(rep)
	qh = d.qNorm.Apply(qh, train)
	qh = qh.LeakyReLU(leakSlope)
	return logit, d.qCat.Apply(qh), d.qCont.Apply(qh)
}

// FeaturesAt returns the flattened trunk output at the given depth:
// 1..4 cut after that conv stage, 5 cuts after the shared dense.
func (d *Discriminator) FeaturesAt(x *Tensor, depth int, train bool) *Tensor {
	if depth >= 5 {
		return d.shared(x, train)
	}
	h := d.stages(x, depth, train)
	return h.Reshape(h.Shape[0], len(h.Data)/h.Shape[0])
}

// DiscParams is the trunk + real/fake head partition, stable order.
func (d *Discriminator) DiscParams() []*Tensor { return d.discPS.list() }

// AuxParams is the auxiliary branch partition, stable order.
func (d *Discriminator) AuxParams() []*Tensor { return d.auxPS.list() }

// State merges trunk, heads and norm buffers into one checkpoint map.
func (d *Discriminator) State() map[string]StateEntry {
	m := d.discPS.state()
	for k, v := range d.auxPS.state() {
		m["aux."+k] = v
	}
	return m
}
