//go:build cgo && (darwin || linux)

package main

/*
#cgo darwin CFLAGS: -DACCELERATE_NEW_LAPACK
#cgo darwin LDFLAGS: -framework Accelerate
#cgo linux CFLAGS: -I/usr/include/openblas
#cgo linux LDFLAGS: -lopenblas

#ifdef __APPLE__
#include <Accelerate/Accelerate.h>
#else
#include <cblas.h>
#endif

static void vis_sgemm(int ta, int tb, int m, int n, int k,
                      float alpha, const float *A, const float *B,
                      float beta, float *C) {
    cblas_sgemm(CblasRowMajor,
                ta ? CblasTrans : CblasNoTrans,
                tb ? CblasTrans : CblasNoTrans,
                m, n, k, alpha,
                A, ta ? m : k,
                B, tb ? k : n,
                beta, C, n);
}
*/
import "C"
import "unsafe"

const hasBLAS = true

// gemm computes C = alpha*op(A)*op(B) + beta*C, row-major.
// op(A) is m x k, op(B) is k x n, C is m x n.
func gemm(transA, transB bool, m, n, k int, alpha float32, a, b []float32, beta float32, c []float32) {
	if m == 0 || n == 0 || k == 0 {
		return
	}
	ta, tb := 0, 0
	if transA {
		ta = 1
	}
	if transB {
		tb = 1
	}
	C.vis_sgemm(C.int(ta), C.int(tb), C.int(m), C.int(n), C.int(k),
		C.float(alpha),
		(*C.float)(unsafe.Pointer(&a[0])),
		(*C.float)(unsafe.Pointer(&b[0])),
		C.float(beta),
		(*C.float)(unsafe.Pointer(&c[0])))
}
