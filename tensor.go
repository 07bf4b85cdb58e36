// tensor.go
// Reverse-mode autodiff over flat float32 tensors. Every op builds a
// closure that knows how to push gradients to its children; Backward
// walks the graph once in reverse topological order.

package main

import (
	"sync"
	"sync/atomic"
)

// gradEnabled controls whether ops record children and backward closures.
// Forward passes for inference (feature extraction, sample sheets, the
// detached generator copy in the discriminator phase) run with it off.
// Toggled only between phases, never while a forward pass is in flight.
var gradEnabled atomic.Bool

func init() { gradEnabled.Store(true) }

func setGrad(on bool) { gradEnabled.Store(on) }
func gradOn() bool    { return gradEnabled.Load() }

// Node is anything in the autograd compute graph.
type Node interface {
	getChildren() []Node
	doBackward()
}

// Tensor is a differentiable n-d array, stored flat in row-major order.
// A nil Grad marks a detached leaf: gradients stop there.
type Tensor struct {
	Data     []float32
	Grad     []float32
	Shape    []int
	children []Node
	backFn   func()
}

func numel(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

// NewTensor allocates a zero tensor. Grad is allocated only while grad
// tracking is on; tensors born with it off stay detached.
func NewTensor(shape ...int) *Tensor {
	n := numel(shape)
	var g []float32
	if gradEnabled.Load() {
		g = make([]float32, n)
	}
	return &Tensor{Data: make([]float32, n), Shape: shape, Grad: g}
}

// NewTensorFrom wraps data (not copied) in a tensor of the given shape.
func NewTensorFrom(data []float32, shape ...int) *Tensor {
	if len(data) != numel(shape) {
		panic("tensor: data length does not match shape")
	}
	var g []float32
	if gradEnabled.Load() {
		g = make([]float32, len(data))
	}
	return &Tensor{Data: data, Shape: shape, Grad: g}
}

// NewParam allocates a zero tensor that always carries a gradient,
// regardless of the tracking switch. Weights and biases use this.
func NewParam(shape ...int) *Tensor {
	n := numel(shape)
	return &Tensor{Data: make([]float32, n), Grad: make([]float32, n), Shape: shape}
}

func (t *Tensor) getChildren() []Node { return t.children }
func (t *Tensor) doBackward() {
	if t.backFn != nil {
		t.backFn()
	}
}

// Numel is the total element count.
func (t *Tensor) Numel() int { return len(t.Data) }

// Dim returns the size of axis i.
func (t *Tensor) Dim(i int) int { return t.Shape[i] }

func (t *Tensor) ZeroGrad() {
	for i := range t.Grad {
		t.Grad[i] = 0
	}
}

// backwardVisitedPool reuses visited maps across Backward calls to
// reduce GC pressure.
var backwardVisitedPool = sync.Pool{
	New: func() interface{} { return make(map[Node]bool) },
}

// Backward runs reverse-mode autodiff from root, seeding its gradient
// with ones. Gradients accumulate into every reachable non-detached
// tensor; parameters keep theirs until the optimizer consumes them.
func Backward(root *Tensor) {
	if root.Grad == nil {
		return
	}
	topo := make([]Node, 0, 256)
	visited := backwardVisitedPool.Get().(map[Node]bool)

	var build func(n Node)
	build = func(n Node) {
		if visited[n] {
			return
		}
		visited[n] = true
		for _, c := range n.getChildren() {
			build(c)
		}
		topo = append(topo, n)
	}
	build(root)

	for i := range root.Grad {
		root.Grad[i] = 1.0
	}

	for i := len(topo) - 1; i >= 0; i-- {
		topo[i].doBackward()
	}

	clear(visited)
	backwardVisitedPool.Put(visited)
}
