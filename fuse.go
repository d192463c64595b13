// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.7.22
//

// Daughter fusion: the Kalman measurement update that accumulates daughter
// tracks into a composite particle. The daughter state transported to the
// linearisation vertex is the measurement; the composite absorbs its
// position through the gain and adds its momentum and energy directly.

package gokfp

import (
	"fmt"
	"math"
)

// ConstructOpt configures a one-shot composite construction.
type ConstructOpt struct {
	ProdVertex    *Particle // production vertex to fit the mother against, nil to skip
	Mass          float64   // mass hypothesis, negative for none
	ConstrainMass bool      // apply Mass as a linearised constraint after fusion
	AtVtxGuess    bool      // daughters are already transported to the vertex guess
}

func NewConstructOpt() *ConstructOpt {
	return &ConstructOpt{Mass: -1}
}

// GetMeasurement transports the daughter to the linearisation point xyz and
// returns its 8 parameters and 36 covariances there, inflated by the
// transport-length uncertainty. With atVtxGuess set the daughter state is
// taken as is.
func (prt *Particle) GetMeasurement(f Field, xyz [3]float64, m *[8]float64, v *[36]float64, atVtxGuess bool) {
	if atVtxGuess {
		*m = prt.p
		*v = prt.c
		return
	}
	ds := prt.GetDStoPoint(f, xyz)
	prt.Transport(f, ds, m, v)
	addSCorrection(m, v, xyz)
}

// getSCorrection scales the residual transport-length uncertainty with the
// remaining distance to the vertex estimate.
func getSCorrection(p *[8]float64, xyz [3]float64) float64 {
	dx := xyz[0] - p[0]
	dy := xyz[1] - p[1]
	dz := xyz[2] - p[2]
	p2 := p[3]*p[3] + p[4]*p[4] + p[5]*p[5]
	if p2 < MinP2 {
		return 1.0
	}
	return 0.1 + 10*math.Sqrt((dx*dx+dy*dy+dz*dz)/p2)
}

// addSCorrection inflates the spatial covariance block by the rank-one
// outer product of the trajectory direction scaled with getSCorrection.
func addSCorrection(p *[8]float64, v *[36]float64, xyz [3]float64) {
	sigmaS := getSCorrection(p, xyz)
	hx := sigmaS * p[3]
	hy := sigmaS * p[4]
	hz := sigmaS * p[5]
	v[0] += hx * hx
	v[1] += hx * hy
	v[2] += hy * hy
	v[3] += hx * hz
	v[4] += hy * hz
	v[5] += hz * hz
}

// AddDaughter fuses one daughter track into the composite, dispatching on
// the configured construct method. Charge, NDF and the daughter id list are
// updated; the composite is left at its decay-vertex estimate.
func (prt *Particle) AddDaughter(f Field, d *Particle, atVtxGuess bool) {
	prt.AddDaughterId(d.Id())
	prt.sumDaughterMass += d.sumDaughterMass
	prt.fuseDaughter(f, d, atVtxGuess, prt.constructMethod)
}

// fuseDaughter runs the shared fusion update. mode selects the energy
// policy; see the Method* constants.
func (prt *Particle) fuseDaughter(f Field, d *Particle, atVtxGuess bool, mode int) {
	// refine the linearisation point from the pair closest approach when
	// nothing better is known
	maxIter := 1
	if !prt.isLinearized && !atVtxGuess && prt.NDaughters() > 1 {
		ds, ds1 := prt.GetDStoParticle(f, d)
		prt.TransportToDS(f, ds)
		var pd [8]float64
		var cd [36]float64
		d.Transport(f, ds1, &pd, &cd)
		prt.vtxGuess = [3]float64{
			0.5 * (prt.p[0] + pd[0]),
			0.5 * (prt.p[1] + pd[1]),
			0.5 * (prt.p[2] + pd[2]),
		}
		maxIter = 2
	} else if prt.NDaughters() == 1 {
		// first daughter seeds the vertex position
		if prt.isLinearized {
			prt.p[0], prt.p[1], prt.p[2] = prt.vtxGuess[0], prt.vtxGuess[1], prt.vtxGuess[2]
		} else {
			prt.vtxGuess = [3]float64{d.p[0], d.p[1], d.p[2]}
			prt.p[0], prt.p[1], prt.p[2] = d.p[0], d.p[1], d.p[2]
		}
		if prt.isVtxErrGuess {
			// caller-supplied prior width replaces the wide default
			prt.c[0] = SQ(prt.vtxErrGuess[0])
			prt.c[1] = 0
			prt.c[2] = SQ(prt.vtxErrGuess[1])
			prt.c[3], prt.c[4] = 0, 0
			prt.c[5] = SQ(prt.vtxErrGuess[2])
		}
	}

	var m [8]float64
	var mV [36]float64

	for iter := 0; iter < maxIter; iter++ {
		d.GetMeasurement(f, prt.vtxGuess, &m, &mV, atVtxGuess)

		switch mode {
		case MethodEnergyCalc:
			recomputeEnergy(&m, &mV, d.massHypo)
		case MethodEnergyFitMC:
			var mJ [7][7]float64
			setMassConstraint(&m, &mV, &mJ, d.massHypo, d.massHypo >= 0)
		}

		mS := [6]float64{
			prt.c[0] + mV[0],
			prt.c[1] + mV[1], prt.c[2] + mV[2],
			prt.c[3] + mV[3], prt.c[4] + mV[4], prt.c[5] + mV[5],
		}
		InvertCholetsky3(&mS)

		zeta := [3]float64{
			m[0] - prt.p[0],
			m[1] - prt.p[1],
			m[2] - prt.p[2],
		}

		// CHt = C * H', H projecting the position; momentum rows carry the
		// anti-correlation with the measurement
		var mCHt0, mCHt1, mCHt2 [7]float64
		mCHt0[0], mCHt1[0], mCHt2[0] = prt.c[0], prt.c[1], prt.c[3]
		mCHt0[1], mCHt1[1], mCHt2[1] = prt.c[1], prt.c[2], prt.c[4]
		mCHt0[2], mCHt1[2], mCHt2[2] = prt.c[3], prt.c[4], prt.c[5]
		mCHt0[3], mCHt1[3], mCHt2[3] = prt.c[6]-mV[6], prt.c[7]-mV[7], prt.c[8]-mV[8]
		mCHt0[4], mCHt1[4], mCHt2[4] = prt.c[10]-mV[10], prt.c[11]-mV[11], prt.c[12]-mV[12]
		mCHt0[5], mCHt1[5], mCHt2[5] = prt.c[15]-mV[15], prt.c[16]-mV[16], prt.c[17]-mV[17]
		mCHt0[6], mCHt1[6], mCHt2[6] = prt.c[21]-mV[21], prt.c[22]-mV[22], prt.c[23]-mV[23]

		var k0, k1, k2 [7]float64
		for i := 0; i < 7; i++ {
			k0[i] = mCHt0[i]*mS[0] + mCHt1[i]*mS[1] + mCHt2[i]*mS[3]
			k1[i] = mCHt0[i]*mS[1] + mCHt1[i]*mS[2] + mCHt2[i]*mS[4]
			k2[i] = mCHt0[i]*mS[3] + mCHt1[i]*mS[4] + mCHt2[i]*mS[5]
		}

		if iter < maxIter-1 {
			// update only the linearisation point and redo the measurement
			for i := 0; i < 3; i++ {
				prt.vtxGuess[i] = prt.p[i] +
					k0[i]*zeta[0] + k1[i]*zeta[1] + k2[i]*zeta[2]
			}
			continue
		}

		ffP := prt.p
		ffC := prt.c
		for i := 3; i < 7; i++ {
			ffP[i] += m[i]
		}
		for _, idx := range [10]int{9, 13, 14, 18, 19, 20, 24, 25, 26, 27} {
			ffC[idx] += mV[idx]
		}

		for i := 0; i < 7; i++ {
			prt.p[i] = ffP[i] + k0[i]*zeta[0] + k1[i]*zeta[1] + k2[i]*zeta[2]
		}
		for i, k := 0, 0; i < 7; i++ {
			for j := 0; j <= i; j++ {
				prt.c[k] = ffC[k] - (k0[i]*mCHt0[j] + k1[i]*mCHt1[j] + k2[i]*mCHt2[j])
				k++
			}
		}

		prt.chi2 += mS[0]*zeta[0]*zeta[0] + mS[2]*zeta[1]*zeta[1] + mS[5]*zeta[2]*zeta[2] +
			2*(mS[1]*zeta[0]*zeta[1]+mS[3]*zeta[0]*zeta[2]+mS[4]*zeta[1]*zeta[2])
	}

	prt.ndf += 2
	prt.q += d.q
	prt.sFromDecay = 0
}

// recomputeEnergy overwrites the measured energy and its covariance rows
// from the momentum block under the daughter mass hypothesis.
func recomputeEnergy(m *[8]float64, mV *[36]float64, mass float64) {
	if mass < 0 {
		return
	}
	p2 := m[3]*m[3] + m[4]*m[4] + m[5]*m[5]
	e := math.Sqrt(mass*mass + p2)
	m[6] = e

	var h [3]float64
	if e > SmallDet {
		h[0] = m[3] / e
		h[1] = m[4] / e
		h[2] = m[5] / e
	}
	for i := 0; i < 6; i++ {
		mV[IJ(6, i)] = h[0]*mV[IJ(3, i)] + h[1]*mV[IJ(4, i)] + h[2]*mV[IJ(5, i)]
	}
	mV[27] = h[0]*h[0]*mV[9] + h[1]*h[1]*mV[14] + h[2]*h[2]*mV[20] +
		2*(h[0]*h[1]*mV[13]+h[0]*h[2]*mV[18]+h[1]*h[2]*mV[19])
}

// Construct builds the composite from at least two daughters in one call,
// optionally fitting it to a production vertex and applying a mass
// hypothesis afterwards.
func (prt *Particle) Construct(f Field, daughters []*Particle, opt *ConstructOpt) error {
	if opt == nil {
		opt = NewConstructOpt()
	}
	if len(daughters) < 2 {
		return fmt.Errorf("Construct() failed, err= need at least 2 daughters, got %d", len(daughters))
	}

	vtxGuess := prt.vtxGuess
	vtxErrGuess := prt.vtxErrGuess
	isLinearized := prt.isLinearized
	isVtxErrGuess := prt.isVtxErrGuess
	prt.Reset()
	prt.vtxGuess = vtxGuess
	prt.vtxErrGuess = vtxErrGuess
	prt.isLinearized = isLinearized
	prt.isVtxErrGuess = isVtxErrGuess

	for _, d := range daughters {
		prt.AddDaughter(f, d, opt.AtVtxGuess)
	}

	if opt.ProdVertex != nil {
		prt.SetProductionVertex(f, opt.ProdVertex)
	}
	if opt.Mass >= 0 {
		if opt.ConstrainMass {
			if err := prt.SetMassConstraint(opt.Mass, 0); err != nil {
				return fmt.Errorf("Construct() failed, err= %s", err)
			}
		} else {
			prt.SetMassHypo(opt.Mass)
		}
	}
	return nil
}

// ConstructGammaBz reconstructs a photon conversion from an e+e- pair in a
// uniform Bz. The pair is transported to its closest approach, fused with
// the energy-fit policy, and forced onto the zero-mass shell.
func (prt *Particle) ConstructGammaBz(d1, d2 *Particle, bz float64) {
	f := UniformBz(bz)

	ds, ds1 := d1.GetDStoParticle(f, d2)
	e1 := *d1
	e2 := *d2
	e1.TransportToDS(f, ds)
	e2.TransportToDS(f, ds1)

	prt.Reset()
	prt.vtxGuess = [3]float64{
		0.5 * (e1.p[0] + e2.p[0]),
		0.5 * (e1.p[1] + e2.p[1]),
		0.5 * (e1.p[2] + e2.p[2]),
	}
	prt.isLinearized = true
	prt.p[0], prt.p[1], prt.p[2] = prt.vtxGuess[0], prt.vtxGuess[1], prt.vtxGuess[2]

	prt.AddDaughterId(e1.Id())
	prt.sumDaughterMass += e1.sumDaughterMass
	prt.fuseDaughter(f, &e1, true, MethodEnergyFit)
	prt.AddDaughterId(e2.Id())
	prt.sumDaughterMass += e2.sumDaughterMass
	prt.fuseDaughter(f, &e2, true, MethodEnergyFit)

	prt.SetNonlinearMassConstraint(0)
	prt.isLinearized = false
}

// ------------------------------------
// Subtraction
// ------------------------------------

// SubtractFromVertex removes this particle's position measurement from a
// previously fitted vertex, reversing the fusion update with a negated gain.
func (prt *Particle) SubtractFromVertex(f Field, vtx *Particle) {
	lin := vtx.vtxGuess
	if !vtx.isLinearized {
		lin = [3]float64{vtx.p[0], vtx.p[1], vtx.p[2]}
	}

	var m [8]float64
	var mV [36]float64
	prt.GetMeasurement(f, lin, &m, &mV, false)

	// the measurement noise enters with opposite sign when decorrelating
	mS := [6]float64{
		mV[0] - vtx.c[0],
		mV[1] - vtx.c[1], mV[2] - vtx.c[2],
		mV[3] - vtx.c[3], mV[4] - vtx.c[4], mV[5] - vtx.c[5],
	}
	InvertCholetsky3(&mS)

	zeta := [3]float64{
		m[0] - vtx.p[0],
		m[1] - vtx.p[1],
		m[2] - vtx.p[2],
	}

	var mCHt0, mCHt1, mCHt2 [3]float64
	mCHt0[0], mCHt1[0], mCHt2[0] = vtx.c[0], vtx.c[1], vtx.c[3]
	mCHt0[1], mCHt1[1], mCHt2[1] = vtx.c[1], vtx.c[2], vtx.c[4]
	mCHt0[2], mCHt1[2], mCHt2[2] = vtx.c[3], vtx.c[4], vtx.c[5]

	var k0, k1, k2 [3]float64
	for i := 0; i < 3; i++ {
		k0[i] = mCHt0[i]*mS[0] + mCHt1[i]*mS[1] + mCHt2[i]*mS[3]
		k1[i] = mCHt0[i]*mS[1] + mCHt1[i]*mS[2] + mCHt2[i]*mS[4]
		k2[i] = mCHt0[i]*mS[3] + mCHt1[i]*mS[4] + mCHt2[i]*mS[5]
	}

	for i := 0; i < 3; i++ {
		vtx.p[i] -= k0[i]*zeta[0] + k1[i]*zeta[1] + k2[i]*zeta[2]
	}
	for i, k := 0, 0; i < 3; i++ {
		for j := 0; j <= i; j++ {
			vtx.c[k] += k0[i]*mCHt0[j] + k1[i]*mCHt1[j] + k2[i]*mCHt2[j]
			k++
		}
	}

	vtx.ndf -= 2
	vtx.q -= prt.q
	vtx.chi2 -= mS[0]*zeta[0]*zeta[0] + mS[2]*zeta[1]*zeta[1] + mS[5]*zeta[2]*zeta[2] +
		2*(mS[1]*zeta[0]*zeta[1]+mS[3]*zeta[0]*zeta[2]+mS[4]*zeta[1]*zeta[2])
}

// SubtractFromParticle removes this particle from a composite, reversing the
// full 7-parameter fusion: position through the negated gain, momentum and
// energy by direct subtraction.
func (prt *Particle) SubtractFromParticle(f Field, comp *Particle) {
	lin := comp.vtxGuess
	if !comp.isLinearized {
		lin = [3]float64{comp.p[0], comp.p[1], comp.p[2]}
	}

	var m [8]float64
	var mV [36]float64
	prt.GetMeasurement(f, lin, &m, &mV, false)

	mS := [6]float64{
		mV[0] - comp.c[0],
		mV[1] - comp.c[1], mV[2] - comp.c[2],
		mV[3] - comp.c[3], mV[4] - comp.c[4], mV[5] - comp.c[5],
	}
	InvertCholetsky3(&mS)

	zeta := [3]float64{
		m[0] - comp.p[0],
		m[1] - comp.p[1],
		m[2] - comp.p[2],
	}

	var mCHt0, mCHt1, mCHt2 [7]float64
	mCHt0[0], mCHt1[0], mCHt2[0] = mV[0], mV[1], mV[3]
	mCHt0[1], mCHt1[1], mCHt2[1] = mV[1], mV[2], mV[4]
	mCHt0[2], mCHt1[2], mCHt2[2] = mV[3], mV[4], mV[5]
	mCHt0[3], mCHt1[3], mCHt2[3] = comp.c[6]-mV[6], comp.c[7]-mV[7], comp.c[8]-mV[8]
	mCHt0[4], mCHt1[4], mCHt2[4] = comp.c[10]-mV[10], comp.c[11]-mV[11], comp.c[12]-mV[12]
	mCHt0[5], mCHt1[5], mCHt2[5] = comp.c[15]-mV[15], comp.c[16]-mV[16], comp.c[17]-mV[17]
	mCHt0[6], mCHt1[6], mCHt2[6] = comp.c[21]-mV[21], comp.c[22]-mV[22], comp.c[23]-mV[23]

	var k0, k1, k2 [7]float64
	for i := 0; i < 7; i++ {
		k0[i] = mCHt0[i]*mS[0] + mCHt1[i]*mS[1] + mCHt2[i]*mS[3]
		k1[i] = mCHt0[i]*mS[1] + mCHt1[i]*mS[2] + mCHt2[i]*mS[4]
		k2[i] = mCHt0[i]*mS[3] + mCHt1[i]*mS[4] + mCHt2[i]*mS[5]
	}

	ffP := comp.p
	ffC := comp.c
	for i := 3; i < 7; i++ {
		ffP[i] -= m[i]
	}
	for _, idx := range [10]int{9, 13, 14, 18, 19, 20, 24, 25, 26, 27} {
		ffC[idx] -= mV[idx]
	}

	for i := 0; i < 7; i++ {
		comp.p[i] = ffP[i] - (k0[i]*zeta[0] + k1[i]*zeta[1] + k2[i]*zeta[2])
	}
	for i, k := 0, 0; i < 7; i++ {
		for j := 0; j <= i; j++ {
			comp.c[k] = ffC[k] + k0[i]*mCHt0[j] + k1[i]*mCHt1[j] + k2[i]*mCHt2[j]
			k++
		}
	}

	comp.ndf -= 2
	comp.q -= prt.q
	comp.sumDaughterMass -= prt.sumDaughterMass
	comp.chi2 -= mS[0]*zeta[0]*zeta[0] + mS[2]*zeta[1]*zeta[1] + mS[5]*zeta[2]*zeta[2] +
		2*(mS[1]*zeta[0]*zeta[1]+mS[3]*zeta[0]*zeta[2]+mS[4]*zeta[1]*zeta[2])
}
