// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.7.22
//

// Geometric and statistical separation estimators: euclidean distances
// between transported trajectories and chi2-normalised deviations weighting
// the residual with the combined covariance.

package gokfp

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// GetDistanceFromPoint returns the euclidean distance between the point and
// the trajectory point closest to it.
func (prt *Particle) GetDistanceFromPoint(f Field, xyz [3]float64) float64 {
	ds := prt.GetDStoPoint(f, xyz)
	var p [8]float64
	var c [36]float64
	prt.Transport(f, ds, &p, &c)
	return EucDist([3]float64{p[0], p[1], p[2]}, xyz)
}

// GetDistanceFromVertex returns the distance of closest approach to the
// fitted vertex position.
func (prt *Particle) GetDistanceFromVertex(f Field, vtx *Particle) float64 {
	return prt.GetDistanceFromPoint(f, [3]float64{vtx.p[0], vtx.p[1], vtx.p[2]})
}

// GetDistanceFromParticle returns the distance between the two trajectories
// at their mutual closest approach.
func (prt *Particle) GetDistanceFromParticle(f Field, other *Particle) float64 {
	ds, ds1 := prt.GetDStoParticle(f, other)
	var p1, p2 [8]float64
	var c1, c2 [36]float64
	prt.Transport(f, ds, &p1, &c1)
	other.Transport(f, ds1, &p2, &c2)
	return EucDist([3]float64{p1[0], p1[1], p1[2]}, [3]float64{p2[0], p2[1], p2[2]})
}

// chi2Dist3 returns sqrt(|r' W^-1 r|) for a residual r and a packed 3x3
// weight, NaN when the weight is not positive definite.
func chi2Dist3(r [3]float64, w [6]float64) float64 {
	sym := mat.NewSymDense(3, []float64{
		w[0], w[1], w[3],
		w[1], w[2], w[4],
		w[3], w[4], w[5],
	})
	var chol mat.Cholesky
	if !chol.Factorize(sym) {
		return math.NaN()
	}
	rv := mat.NewVecDense(3, r[:])
	var x mat.VecDense
	if err := chol.SolveVecTo(&x, rv); err != nil {
		return math.NaN()
	}
	chi2 := mat.Dot(rv, &x)
	return math.Sqrt(math.Abs(chi2))
}

// GetDeviationFromPoint returns the chi2-normalised distance to a point
// with covariance cv. The trajectory is transported to its closest
// approach; the combined position covariance weights the residual.
func (prt *Particle) GetDeviationFromPoint(f Field, xyz [3]float64, cv [6]float64) float64 {
	ds := prt.GetDStoPoint(f, xyz)
	var p [8]float64
	var c [36]float64
	prt.Transport(f, ds, &p, &c)
	addSCorrection(&p, &c, xyz)

	w := [6]float64{
		c[0] + cv[0],
		c[1] + cv[1], c[2] + cv[2],
		c[3] + cv[3], c[4] + cv[4], c[5] + cv[5],
	}
	r := [3]float64{p[0] - xyz[0], p[1] - xyz[1], p[2] - xyz[2]}
	return chi2Dist3(r, w)
}

// GetDeviationFromVertex returns the chi2-normalised distance to a fitted
// vertex.
func (prt *Particle) GetDeviationFromVertex(f Field, vtx *Particle) float64 {
	return prt.GetDeviationFromPoint(f,
		[3]float64{vtx.p[0], vtx.p[1], vtx.p[2]},
		[6]float64{vtx.c[0], vtx.c[1], vtx.c[2], vtx.c[3], vtx.c[4], vtx.c[5]})
}

// GetDeviationFromParticle returns the chi2-normalised separation of two
// trajectories at their mutual closest approach.
func (prt *Particle) GetDeviationFromParticle(f Field, other *Particle) float64 {
	ds, ds1 := prt.GetDStoParticle(f, other)
	var p1, p2 [8]float64
	var c1, c2 [36]float64
	prt.Transport(f, ds, &p1, &c1)
	other.Transport(f, ds1, &p2, &c2)

	w := [6]float64{
		c1[0] + c2[0],
		c1[1] + c2[1], c1[2] + c2[2],
		c1[3] + c2[3], c1[4] + c2[4], c1[5] + c2[5],
	}
	r := [3]float64{p1[0] - p2[0], p1[1] - p2[1], p1[2] - p2[2]}
	return chi2Dist3(r, w)
}

// GetDistanceToVertexLine returns the distance l of the particle position
// from the vertex, its uncertainty dl, and whether the particle points away
// from the vertex (consistent with having been produced there). ok is false
// when the uncertainty is not defined.
func (prt *Particle) GetDistanceToVertexLine(vtx *Particle) (l, dl float64, fromVertex, ok bool) {
	dx := prt.p[0] - vtx.p[0]
	dy := prt.p[1] - vtx.p[1]
	dz := prt.p[2] - vtx.p[2]
	l = math.Sqrt(dx*dx + dy*dy + dz*dz)
	if l < 1.0e-8 {
		l = 1.0e-8
	}

	cs := [6]float64{
		prt.c[0] + vtx.c[0],
		prt.c[1] + vtx.c[1], prt.c[2] + vtx.c[2],
		prt.c[3] + vtx.c[3], prt.c[4] + vtx.c[4], prt.c[5] + vtx.c[5],
	}
	dl2 := cs[0]*dx*dx + cs[2]*dy*dy + cs[5]*dz*dz +
		2*(cs[1]*dx*dy+cs[3]*dx*dz+cs[4]*dy*dz)
	ok = dl2 >= 0
	dl = math.Sqrt(math.Abs(dl2)) / l

	proj := dx*prt.p[3] + dy*prt.p[4] + dz*prt.p[5]
	fromVertex = l < 3*dl || proj >= 0
	return l, dl, fromVertex, ok
}

// CovarianceOK reports whether the covariance matrix is a valid one:
// finite, with nonnegative diagonal and nonnegative eigenvalues up to a
// small tolerance.
func (prt *Particle) CovarianceOK() bool {
	const tol = 1.0e-10
	for i := 0; i < 8; i++ {
		d := prt.c[IJ(i, i)]
		if math.IsNaN(d) || d < 0 {
			return false
		}
	}
	dense := make([]float64, 64)
	for i := 0; i < 8; i++ {
		for j := 0; j < 8; j++ {
			v := prt.c[IJ(i, j)]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
			dense[i*8+j] = v
		}
	}
	sym := mat.NewSymDense(8, dense)
	var eig mat.EigenSym
	if !eig.Factorize(sym, false) {
		return false
	}
	vals := eig.Values(nil)
	scale := 1.0
	for _, v := range vals {
		if math.Abs(v) > scale {
			scale = math.Abs(v)
		}
	}
	for _, v := range vals {
		if v < -tol*scale {
			return false
		}
	}
	return true
}
