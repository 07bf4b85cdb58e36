// conv.go
// Strided and transposed convolution, lowered to gemm through
// im2col/col2im. col2im is the exact adjoint of im2col, which is what
// makes the transposed convolution and both backward passes line up.

package main

// convOut is the output side length of a convolution.
func convOut(in, k, stride, pad int) int {
	return (in+2*pad-k)/stride + 1
}

// convTOut is the output side length of a transposed convolution.
func convTOut(in, k, stride, pad int) int {
	return (in-1)*stride + k - 2*pad
}

// im2col unrolls one image (C,H,W) into dst with shape
// (C*k*k, OH*OW): column p holds the receptive field of output pixel p.
// Out-of-bounds taps are zero.
func im2col(src []float32, c, h, w, k, stride, pad int, dst []float32) {
	oh := convOut(h, k, stride, pad)
	ow := convOut(w, k, stride, pad)
	row := 0
	for ci := 0; ci < c; ci++ {
		plane := src[ci*h*w : (ci+1)*h*w]
		for ki := 0; ki < k; ki++ {
			for kj := 0; kj < k; kj++ {
				d := dst[row*oh*ow : (row+1)*oh*ow]
				for oy := 0; oy < oh; oy++ {
					iy := oy*stride - pad + ki
					if iy < 0 || iy >= h {
						for ox := 0; ox < ow; ox++ {
							d[oy*ow+ox] = 0
						}
						continue
					}
					for ox := 0; ox < ow; ox++ {
						ix := ox*stride - pad + kj
						if ix < 0 || ix >= w {
							d[oy*ow+ox] = 0
						} else {
							d[oy*ow+ox] = plane[iy*w+ix]
						}
					}
				}
				row++
			}
		}
	}
}

// col2im scatters columns back onto an image, accumulating into dst.
// Exact adjoint of im2col over the same geometry.
func col2im(cols []float32, c, h, w, k, stride, pad int, dst []float32) {
	oh := convOut(h, k, stride, pad)
	ow := convOut(w, k, stride, pad)
	row := 0
	for ci := 0; ci < c; ci++ {
		plane := dst[ci*h*w : (ci+1)*h*w]
		for ki := 0; ki < k; ki++ {
			for kj := 0; kj < k; kj++ {
				s := cols[row*oh*ow : (row+1)*oh*ow]
				for oy := 0; oy < oh; oy++ {
					iy := oy*stride - pad + ki
					if iy < 0 || iy >= h {
						continue
					}
					for ox := 0; ox < ow; ox++ {
						ix := ox*stride - pad + kj
						if ix < 0 || ix >= w {
							continue
						}
						plane[iy*w+ix] += s[oy*ow+ox]
					}
				}
				row++
			}
		}
	}
}

// conv2d applies weight (OC,IC,k,k) to x (B,IC,H,W) with no bias.
func conv2d(x, w *Tensor, stride, pad int) *Tensor {
	bsz, ic, h, wd := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	oc, k := w.Shape[0], w.Shape[2]
	if w.Shape[1] != ic {
		panic("conv2d: input channel mismatch")
	}
	oh := convOut(h, k, stride, pad)
	ow := convOut(wd, k, stride, pad)
	out := NewTensor(bsz, oc, oh, ow)

	colRows := ic * k * k
	colCols := oh * ow
	cols := make([]float32, colRows*colCols)
	inPlane := ic * h * wd
	outPlane := oc * colCols
	for b := 0; b < bsz; b++ {
		im2col(x.Data[b*inPlane:(b+1)*inPlane], ic, h, wd, k, stride, pad, cols)
		gemm(false, false, oc, colCols, colRows, 1, w.Data, cols, 0, out.Data[b*outPlane:(b+1)*outPlane])
	}

	if gradOn() {
		out.children = []Node{x, w}
		out.backFn = func() {
			bcols := make([]float32, colRows*colCols)
			var gcols []float32
			if x.Grad != nil {
				gcols = make([]float32, colRows*colCols)
			}
			for b := 0; b < bsz; b++ {
				gout := out.Grad[b*outPlane : (b+1)*outPlane]
				im2col(x.Data[b*inPlane:(b+1)*inPlane], ic, h, wd, k, stride, pad, bcols)
				gemm(false, true, oc, colRows, colCols, 1, gout, bcols, 1, w.Grad)
				if x.Grad != nil {
					gemm(true, false, colRows, colCols, oc, 1, w.Data, gout, 0, gcols)
					col2im(gcols, ic, h, wd, k, stride, pad, x.Grad[b*inPlane:(b+1)*inPlane])
				}
			}
		}
	}
	return out
}

// convT2d applies transposed-conv weight (IC,OC,k,k) to x (B,IC,H,W),
// no bias. Forward here is the adjoint of conv2d's forward: scatter
// weighted taps instead of gathering them.
func convT2d(x, w *Tensor, stride, pad int) *Tensor {
	bsz, ic, h, wd := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	oc, k := w.Shape[1], w.Shape[2]
	if w.Shape[0] != ic {
		panic("convT2d: input channel mismatch")
	}
	oh := convTOut(h, k, stride, pad)
	ow := convTOut(wd, k, stride, pad)
	out := NewTensor(bsz, oc, oh, ow)

	colRows := oc * k * k
	colCols := h * wd
	cols := make([]float32, colRows*colCols)
	inPlane := ic * colCols
	outPlane := oc * oh * ow
	for b := 0; b < bsz; b++ {
		gemm(true, false, colRows, colCols, ic, 1, w.Data, x.Data[b*inPlane:(b+1)*inPlane], 0, cols)
		col2im(cols, oc, oh, ow, k, stride, pad, out.Data[b*outPlane:(b+1)*outPlane])
	}

	if gradOn() {
		out.children = []Node{x, w}
		out.backFn = func() {
			gcols := make([]float32, colRows*colCols)
			for b := 0; b < bsz; b++ {
				im2col(out.Grad[b*outPlane:(b+1)*outPlane], oc, oh, ow, k, stride, pad, gcols)
				gemm(false, true, ic, colRows, colCols, 1, x.Data[b*inPlane:(b+1)*inPlane], gcols, 1, w.Grad)
				if x.Grad != nil {
					gemm(false, false, ic, colCols, colRows, 1, w.Data, gcols, 1, x.Grad[b*inPlane:(b+1)*inPlane])
				}
			}
		}
	}
	return out
}
