// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.7.22
//

// Fit constraints: mass-shell projections (nonlinear and linearised), the
// zero-decay-length constraint, and the production-vertex fit.

package gokfp

import (
	"fmt"
	"math"
)

// setMassConstraint projects a 7-parameter state onto the mass shell
// E^2 - p^2 = mass^2 by solving for the Lagrange multiplier lambda of the
// scaling (p, E) -> (p/(1-lambda), E/(1+lambda)) and propagating the
// covariance through the projection Jacobian. With apply false only the
// Jacobian bookkeeping runs and the state is left untouched.
func setMassConstraint(mP *[8]float64, mC *[36]float64, mJ *[7][7]float64, mass float64, apply bool) {
	for i := 0; i < 7; i++ {
		for j := 0; j < 7; j++ {
			mJ[i][j] = 0
			if i == j {
				mJ[i][j] = 1
			}
		}
	}
	if !apply {
		return
	}

	e := mP[6]
	p2 := mP[3]*mP[3] + mP[4]*mP[4] + mP[5]*mP[5]
	e2 := e * e
	m2 := mass * mass

	a := e2 - p2 + 2.0*m2
	b := -2.0 * (e2 + p2)
	c := e2 - p2 - m2

	// seed lambda from the linear term, refine with the quadratic root when
	// the discriminant allows
	lambda := 0.0
	if math.Abs(b) > 1.0e-10 {
		lambda = -c / b
	}
	d := 4.0*e2*p2 - m2*(e2-p2-2.0*m2)
	if d >= 0 && math.Abs(a) > 1.0e-10 {
		lambda = (e2 + p2 - math.Sqrt(d)) / a
	}
	if e < 0 {
		lambda = -1.0e6
	}

	// Newton refinement of f(lambda) = -m2*l^4 + a*l^2 + b*l + c
	for iter := 0; iter < MassConstraintSteps; iter++ {
		df := -4.0*m2*lambda*lambda*lambda + 2.0*a*lambda + b
		if math.Abs(df) < 1.0e-10 {
			break
		}
		fv := -m2*lambda*lambda*lambda*lambda + a*lambda*lambda + b*lambda + c
		lambda -= fv / df
	}

	lpi := 1.0 / (1.0 + lambda)
	lmi := 1.0 / (1.0 - lambda)
	lp2i := lpi * lpi
	lm2i := lmi * lmi

	// derivative of the constraint value at the solution
	lambda2 := lambda * lambda
	dfl := -4.0*m2*lambda*lambda2 + 2.0*a*lambda + b
	dfx := [4]float64{
		-2.0 * (1.0 + lambda) * (1.0 + lambda) * mP[3],
		-2.0 * (1.0 + lambda) * (1.0 + lambda) * mP[4],
		-2.0 * (1.0 + lambda) * (1.0 + lambda) * mP[5],
		2.0 * (1.0 - lambda) * (1.0 - lambda) * mP[6],
	}
	var dlx [4]float64
	for i := 0; i < 4; i++ {
		dlx[i] = 1
		if math.Abs(dfl) > 1.0e-10 {
			dlx[i] = -dfx[i] / dfl
		}
	}

	dxx := [4]float64{
		mP[3] * lm2i,
		mP[4] * lm2i,
		mP[5] * lm2i,
		-mP[6] * lp2i,
	}

	for i := 3; i < 7; i++ {
		for j := 3; j < 7; j++ {
			mJ[i][j] = dlx[j-3] * dxx[i-3]
		}
		if i < 6 {
			mJ[i][i] += lmi
		} else {
			mJ[i][i] += lpi
		}
	}

	// C' = J * C * J'
	var mCJ [7][7]float64
	for i := 0; i < 7; i++ {
		for j := 0; j < 7; j++ {
			v := 0.0
			for k := 0; k < 7; k++ {
				v += mC[IJ(i, k)] * mJ[j][k]
			}
			mCJ[i][j] = v
		}
	}
	for i := 0; i < 7; i++ {
		for j := 0; j <= i; j++ {
			v := 0.0
			for k := 0; k < 7; k++ {
				v += mJ[i][k] * mCJ[k][j]
			}
			mC[IJ(i, j)] = v
		}
	}

	mP[3] *= lmi
	mP[4] *= lmi
	mP[5] *= lmi
	mP[6] *= lpi
}

// SetNonlinearMassConstraint forces the particle exactly onto the mass
// shell. The state ends with E^2 - p^2 = mass^2 to numerical precision; the
// chi2 and NDF are unchanged since the projection carries no new
// measurement.
func (prt *Particle) SetNonlinearMassConstraint(mass float64) {
	var mJ [7][7]float64
	setMassConstraint(&prt.p, &prt.c, &mJ, mass, true)
	prt.massHypo = mass
	prt.sumDaughterMass = mass
}

// SetMassConstraint applies the mass hypothesis as a linearised measurement
// of m^2 with variance (mass*sigma)^2, adding one degree of freedom. A
// zero sigma makes it an exact constraint up to linearisation.
func (prt *Particle) SetMassConstraint(mass, sigma float64) error {
	if mass < 0 {
		return fmt.Errorf("SetMassConstraint() failed, err= negative mass %f", mass)
	}
	if sigma < 0 {
		return fmt.Errorf("SetMassConstraint() failed, err= negative sigma %f", sigma)
	}

	m2 := mass * mass
	s2 := m2 * sigma * sigma

	px, py, pz, e := prt.p[3], prt.p[4], prt.p[5], prt.p[6]
	h := [8]float64{0, 0, 0, -2 * px, -2 * py, -2 * pz, 2 * e, 0}
	zeta := m2 - (e*e - px*px - py*py - pz*pz)

	var mCHt [8]float64
	sEst := 0.0
	for i := 0; i < 8; i++ {
		v := 0.0
		for j := 0; j < 8; j++ {
			v += prt.c[IJ(i, j)] * h[j]
		}
		mCHt[i] = v
		sEst += h[i] * v
	}
	if sEst < 1.0e-20 {
		return nil
	}

	w := 1.0 / (s2 + sEst)
	prt.chi2 += zeta * zeta * w
	prt.ndf += 1

	for i := 0; i < 8; i++ {
		ki := mCHt[i] * w
		prt.p[i] += ki * zeta
	}
	for i := 0; i < 8; i++ {
		for j := 0; j <= i; j++ {
			prt.c[IJ(i, j)] -= mCHt[i] * w * mCHt[j]
		}
	}
	prt.massHypo = mass
	return nil
}

// SetNoDecayLength constrains the decay point to the production point,
// measuring S = 0 with the fitted S uncertainty. Used for promptly decaying
// resonances.
func (prt *Particle) SetNoDecayLength(f Field) {
	prt.TransportToDecayVertex(f)

	s := prt.c[35]
	if s < 1.0e-20 {
		return
	}
	zeta := -prt.p[ParS]

	var mCHt [8]float64
	for i := 0; i < 8; i++ {
		mCHt[i] = prt.c[IJ(i, ParS)]
	}

	prt.chi2 += zeta * zeta / s
	prt.ndf += 1
	for i := 0; i < 8; i++ {
		prt.p[i] += mCHt[i] / s * zeta
	}
	for i := 0; i < 8; i++ {
		for j := 0; j <= i; j++ {
			prt.c[IJ(i, j)] -= mCHt[i] / s * mCHt[j]
		}
	}
}

// SetProductionVertex fits the particle to the measured production vertex:
// the trajectory is transported to the vertex, the position block is
// replaced by the vertex measurement, the momentum absorbs the residual
// through the smoothing gain, and S becomes the fitted decay length
// parameter. Afterwards the particle sits at the production vertex.
func (prt *Particle) SetProductionVertex(f Field, vtx *Particle) {
	m := [3]float64{vtx.p[0], vtx.p[1], vtx.p[2]}
	mV := [6]float64{vtx.c[0], vtx.c[1], vtx.c[2], vtx.c[3], vtx.c[4], vtx.c[5]}

	noS := prt.c[35] <= 0
	if noS {
		prt.TransportToDecayVertex(f)
		prt.p[ParS] = 0
		for i := 28; i < 36; i++ {
			prt.c[i] = 0
		}
	} else {
		ds := prt.GetDStoPoint(f, m)
		prt.TransportToDS(f, ds)
		prt.p[ParS] = -prt.sFromDecay
		prt.convert(f, true)
	}

	// smoothing gain B = C_pX * Ai with Ai the inverted position block
	mAi := [6]float64{prt.c[0], prt.c[1], prt.c[2], prt.c[3], prt.c[4], prt.c[5]}
	InvertCholetsky3(&mAi)

	var mB [5][3]float64
	for i := 0; i < 5; i++ {
		r := 3 + i
		cx := prt.c[IJ(r, 0)]
		cy := prt.c[IJ(r, 1)]
		cz := prt.c[IJ(r, 2)]
		mB[i][0] = cx*mAi[0] + cy*mAi[1] + cz*mAi[3]
		mB[i][1] = cx*mAi[1] + cy*mAi[2] + cz*mAi[4]
		mB[i][2] = cx*mAi[3] + cy*mAi[4] + cz*mAi[5]
	}

	z := [3]float64{m[0] - prt.p[0], m[1] - prt.p[1], m[2] - prt.p[2]}

	// chi2 of the vertex residual against the combined uncertainty
	mAVi := [6]float64{
		prt.c[0] - mV[0],
		prt.c[1] - mV[1], prt.c[2] - mV[2],
		prt.c[3] - mV[3], prt.c[4] - mV[4], prt.c[5] - mV[5],
	}
	InvertCholetsky3(&mAVi)
	dChi2 := mAVi[0]*z[0]*z[0] + mAVi[2]*z[1]*z[1] + mAVi[5]*z[2]*z[2] +
		2*(mAVi[1]*z[0]*z[1]+mAVi[3]*z[0]*z[2]+mAVi[4]*z[1]*z[2])
	prt.chi2 += math.Abs(dChi2)
	prt.ndf += 2

	prt.p[0], prt.p[1], prt.p[2] = m[0], m[1], m[2]
	for i := 0; i < 5; i++ {
		prt.p[3+i] += mB[i][0]*z[0] + mB[i][1]*z[1] + mB[i][2]*z[2]
	}

	// position block becomes the vertex covariance; cross terms and the
	// lower block follow the smoother update
	var cCross [5][3]float64
	for i := 0; i < 5; i++ {
		r := 3 + i
		cCross[i][0] = prt.c[IJ(r, 0)]
		cCross[i][1] = prt.c[IJ(r, 1)]
		cCross[i][2] = prt.c[IJ(r, 2)]
	}
	prt.c[0], prt.c[1], prt.c[2] = mV[0], mV[1], mV[2]
	prt.c[3], prt.c[4], prt.c[5] = mV[3], mV[4], mV[5]

	var d [5][3]float64
	for i := 0; i < 5; i++ {
		for k := 0; k < 3; k++ {
			d[i][k] = mB[i][0]*mV[IJ(k, 0)] + mB[i][1]*mV[IJ(k, 1)] + mB[i][2]*mV[IJ(k, 2)] -
				cCross[i][k]
		}
	}
	for i := 0; i < 5; i++ {
		r := 3 + i
		for k := 0; k < 3; k++ {
			prt.c[IJ(r, k)] += d[i][k]
		}
		for j := 0; j <= i; j++ {
			prt.c[IJ(r, 3+j)] += d[i][0]*mB[j][0] + d[i][1]*mB[j][1] + d[i][2]*mB[j][2]
		}
	}

	if noS {
		prt.p[ParS] = 0
		for i := 28; i < 36; i++ {
			prt.c[i] = 0
		}
		prt.sFromDecay = 0
	} else {
		prt.sFromDecay = -prt.p[ParS]
	}
	prt.atProductionVertex = true
}
