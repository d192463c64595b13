// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.7.18
//

// Packed symmetric-matrix primitives for the 8-parameter particle state.
// An 8x8 symmetric matrix is stored as its 36 lower-triangular entries in
// row order; a 3x3 block as 6 entries. These kernels are the hot path of
// the fit and never signal errors: degenerate inputs propagate through the
// affected lane as NaN or clamped pivots, and callers guard.

package gokfp

import "math"

// IJ maps a (row, column) pair of a symmetric matrix to its packed
// lower-triangular offset.
func IJ(i, j int) int {
	if j <= i {
		return i*(i+1)/2 + j
	}
	return j*(j+1)/2 + i
}

// InvertCholetsky3 inverts a symmetric 3x3 block stored as 6 packed entries
// in place, using a UtDU decomposition with sign bookkeeping so that blocks
// made slightly indefinite by rounding still invert. Near-singular pivots
// are clamped to SmallDet; the result is then unreliable and callers must
// check the block rank before trusting it.
func InvertCholetsky3(a *[6]float64) {
	var d [3]float64
	var u [3][3]float64

	for i := 0; i < 3; i++ {
		uud := 0.0
		for j := 0; j < i; j++ {
			uud += u[j][i] * u[j][i] * d[j]
		}
		uud = a[i*(i+3)/2] - uud

		if math.Abs(uud) < SmallDet {
			uud = SmallDet
		}

		d[i] = uud / math.Abs(uud)
		u[i][i] = math.Sqrt(math.Abs(uud))

		for j := i + 1; j < 3; j++ {
			uud = 0.0
			for k := 0; k < i; k++ {
				uud += u[k][i] * u[k][j] * d[k]
			}
			uud = a[j*(j+1)/2+i] - uud
			u[i][j] = d[i] / u[i][i] * uud
		}
	}

	// invert the triangular factor
	u1 := [3]float64{u[0][0], u[1][1], u[2][2]}
	for i := 0; i < 3; i++ {
		u[i][i] = 1.0 / u[i][i]
	}
	u[0][1] = -u[0][1] * u[0][0] * u[1][1]
	u[1][2] = -u[1][2] * u[1][1] * u[2][2]
	u[0][2] = u[0][1]*u1[1]*u[1][2] - u[0][2]*u[0][0]*u[2][2]

	a[0] = u[0][0]*u[0][0]*d[0] + u[0][1]*u[0][1]*d[1] + u[0][2]*u[0][2]*d[2]
	a[1] = u[0][1]*u[1][1]*d[1] + u[0][2]*u[1][2]*d[2]
	a[2] = u[1][1]*u[1][1]*d[1] + u[1][2]*u[1][2]*d[2]
	a[3] = u[0][2] * u[2][2] * d[2]
	a[4] = u[1][2] * u[2][2] * d[2]
	a[5] = u[2][2] * u[2][2] * d[2]
}

// MultQSQt computes the congruence S' = Q*S*Qt for a packed symmetric S and
// a dense row-major 8x8 Q, writing the packed result to out. Only the lower
// triangle is formed, which both preserves exact symmetry and halves the
// work of a dense triple product.
func MultQSQt(q *[64]float64, s, out *[36]float64) {
	const n = 8
	var mA [n * n]float64 // S*Qt

	for i, ij := 0, 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := 0.0
			for k := 0; k < n; k++ {
				v += s[IJ(i, k)] * q[j*n+k]
			}
			mA[ij] = v
			ij++
		}
	}
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			v := 0.0
			for k := 0; k < n; k++ {
				v += q[i*n+k] * mA[k*n+j]
			}
			out[i*(i+1)/2+j] = v
		}
	}
}

// applyJacobian1 applies the rank-one Jacobian J = I + h*ek' to a packed
// covariance in place: x_i' = x_i + h_i*x_k. This is the single-derivative
// update used when only one parameter couples back into the others, e.g.
// folding the path-length uncertainty into the spatial block.
func applyJacobian1(c *[36]float64, h *[8]float64, k int) {
	var ck [8]float64
	for i := 0; i < 8; i++ {
		ck[i] = c[IJ(i, k)]
	}
	ckk := ck[k]
	for i := 0; i < 8; i++ {
		for j := 0; j <= i; j++ {
			c[IJ(i, j)] += h[i]*ck[j] + h[j]*ck[i] + h[i]*h[j]*ckk
		}
	}
}
