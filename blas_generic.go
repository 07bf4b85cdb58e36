//go:build !cgo || (!darwin && !linux)

package main

const hasBLAS = false

// gemm computes C = alpha*op(A)*op(B) + beta*C, row-major.
// op(A) is m x k, op(B) is k x n, C is m x n. Pure Go fallback; loop
// orders are chosen so the innermost walk is contiguous.
func gemm(transA, transB bool, m, n, k int, alpha float32, a, b []float32, beta float32, c []float32) {
	if m == 0 || n == 0 || k == 0 {
		return
	}
	switch beta {
	case 1:
	case 0:
		for i := range c[:m*n] {
			c[i] = 0
		}
	default:
		for i := range c[:m*n] {
			c[i] *= beta
		}
	}

	switch {
	case !transA && !transB:
		for i := 0; i < m; i++ {
			ci := c[i*n : i*n+n]
			for p := 0; p < k; p++ {
				aip := alpha * a[i*k+p]
				if aip == 0 {
					continue
				}
				bp := b[p*n : p*n+n]
				for j := range ci {
					ci[j] += aip * bp[j]
				}
			}
		}
	case !transA && transB:
		for i := 0; i < m; i++ {
			ai := a[i*k : i*k+k]
			for j := 0; j < n; j++ {
				bj := b[j*k : j*k+k]
				var sum float32
				for p := range ai {
					sum += ai[p] * bj[p]
				}
				c[i*n+j] += alpha * sum
			}
		}
	case transA && !transB:
		for p := 0; p < k; p++ {
			ap := a[p*m : p*m+m]
			bp := b[p*n : p*n+n]
			for i := 0; i < m; i++ {
				aip := alpha * ap[i]
				if aip == 0 {
					continue
				}
				ci := c[i*n : i*n+n]
				for j := range ci {
					ci[j] += aip * bp[j]
				}
			}
		}
	default: // transA && transB
		for i := 0; i < m; i++ {
			for j := 0; j < n; j++ {
				var sum float32
				for p := 0; p < k; p++ {
					sum += a[p*m+i] * b[j*k+p]
				}
				c[i*n+j] += alpha * sum
			}
		}
	}
}
