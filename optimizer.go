// optimizer.go
// Adam with one state slot per parameter partition. A partition's
// parameter list must arrive in the same order every step: moment
// slots are positional.

package main

import "math"

type AdamState struct {
	M [][]float32
	V [][]float32
	T int
}

// Adam holds per-partition optimizer state keyed by name ("gen",
// "disc", "aux"). Each partition steps independently.
type Adam struct {
	states map[string]*AdamState

	beta1 float64
	beta2 float64
	eps   float64
	clip  float64
}

func NewAdam(cfg Config) *Adam {
	return &Adam{
		states: make(map[string]*AdamState),
		beta1:  cfg.Beta1,
		beta2:  cfg.Beta2,
		eps:    cfg.EpsAdam,
		clip:   cfg.GradClip,
	}
}

func (a *Adam) ensure(params []*Tensor, key string) *AdamState {
	st, ok := a.states[key]
	if !ok {
		m := make([][]float32, len(params))
		v := make([][]float32, len(params))
		for i, p := range params {
			m[i] = make([]float32, len(p.Data))
			v[i] = make([]float32, len(p.Data))
		}
		st = &AdamState{M: m, V: v}
		a.states[key] = st
	}
	return st
}

// StepCount reports how many times a partition has been stepped.
func (a *Adam) StepCount(key string) int {
	if st, ok := a.states[key]; ok {
		return st.T
	}
	return 0
}

// Step applies one Adam update to the partition and zeroes its
// gradients on the way through.
func (a *Adam) Step(params []*Tensor, key string, lr float64) {
	st := a.ensure(params, key)
	st.T++
	b1Corr := 1.0 - math.Pow(a.beta1, float64(st.T))
	b2Corr := 1.0 - math.Pow(a.beta2, float64(st.T))

	clipGrads(params, a.clip)

	for i, p := range params {
		mi := st.M[i]
		vi := st.V[i]
		for j := 0; j < len(p.Data); j++ {
			g := float64(p.Grad[j])
			m := a.beta1*float64(mi[j]) + (1-a.beta1)*g
			v := a.beta2*float64(vi[j]) + (1-a.beta2)*g*g
			mi[j] = float32(m)
			vi[j] = float32(v)
			mhat := m / b1Corr
			vhat := v / b2Corr
			p.Data[j] -= float32(lr * mhat / (math.Sqrt(vhat) + a.eps))
			p.Grad[j] = 0
		}
	}
}

// clipGrads clips gradients to [-clip, clip]. clip <= 0 disables it.
func clipGrads(params []*Tensor, clip float64) {
	if clip <= 0 {
		return
	}
	c := float32(clip)
	for _, p := range params {
		for j := range p.Grad {
			if p.Grad[j] > c {
				p.Grad[j] = c
			} else if p.Grad[j] < -c {
				p.Grad[j] = -c
			}
		}
	}
}

func zeroGrads(params []*Tensor) {
	for _, p := range params {
		p.ZeroGrad()
	}
}
