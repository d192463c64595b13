// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.7.21
//

// Particle state for the Kalman-filter reconstruction of decayed particles.
// The method follows "Reconstruction of decayed particles based on the
// Kalman filter" (CBM-SOFT note 2007-003).

package gokfp

import (
	"fmt"
	"math"

	"golang.org/x/exp/slices"
)

// Parameter indices of the state vector.
// {X, Y, Z, Px, Py, Pz, E, S}; S = signed path length over momentum since
// the decay vertex, used to derive the decay length.
const (
	ParX = iota
	ParY
	ParZ
	ParPx
	ParPy
	ParPz
	ParE
	ParS
)

// Construct methods: the policy for the energy parameter during fusion.
const (
	// Energy is an independent fitted quantity.
	MethodEnergyFit = 0
	// Energy is derived from momentum and the daughter mass hypothesis.
	MethodEnergyCalc = 1
	// Energy is fitted, with each daughter constrained to its mass shell.
	MethodEnergyFitMC = 2
)

// Particle holds one fit instance: the 8-parameter state vector, its packed
// covariance, and the fit metadata. A Particle is exclusively owned by its
// call site; nothing in the engine shares or locks it.
type Particle struct {
	p [8]float64  // X, Y, Z, Px, Py, Pz, E, S
	c [36]float64 // packed lower-triangular covariance of p

	q    float64 // charge
	ndf  float64 // degrees of freedom (fractional under masked partial updates)
	chi2 float64

	sFromDecay float64 // path parameter from the decay vertex to the current position

	vtxGuess    [3]float64 // linearisation point for the nonlinear solvers
	vtxErrGuess [3]float64

	sumDaughterMass float64 // accumulated daughter mass hypotheses
	massHypo        float64 // mass hypothesis of this particle, -1 if none

	id          int
	daughterIds []int
	pdg         int

	constructMethod int

	atProductionVertex bool // position error describes the production point
	isLinearized       bool // vtxGuess was supplied by the caller
	isVtxErrGuess      bool
}

// NewParticle returns an empty composite ready to accumulate daughters.
func NewParticle() *Particle {
	prt := &Particle{}
	prt.Reset()
	return prt
}

// Reset clears the fit state while keeping the bookkeeping configuration
// (id, PDG hypothesis, construct method). The covariance is seeded with a
// wide position prior so the first fused daughter determines the vertex.
func (prt *Particle) Reset() {
	prt.p = [8]float64{}
	prt.c = [36]float64{}
	prt.c[0], prt.c[2], prt.c[5] = PriorPosVar, PriorPosVar, PriorPosVar
	prt.c[35] = 1

	prt.q = 0
	prt.ndf = 0
	prt.chi2 = 0
	prt.sFromDecay = 0
	prt.vtxGuess = [3]float64{}
	prt.vtxErrGuess = [3]float64{}
	prt.sumDaughterMass = 0
	prt.massHypo = -1
	prt.daughterIds = prt.daughterIds[:0]
	prt.atProductionVertex = false
	prt.isLinearized = false
	prt.isVtxErrGuess = false
}

// Initialize seeds the state from measured cartesian track parameters
// {X,Y,Z,Px,Py,Pz}, their 21-entry packed covariance, the charge, and the
// mass hypothesis. The energy and its covariance rows are derived from the
// momentum block.
func (prt *Particle) Initialize(param []float64, cov []float64, charge, mass float64) error {
	if len(param) != 6 {
		return fmt.Errorf("Initialize() failed, err= param length %d, want 6", len(param))
	}
	if len(cov) != 21 {
		return fmt.Errorf("Initialize() failed, err= cov length %d, want 21", len(cov))
	}
	if mass < 0 {
		return fmt.Errorf("Initialize() failed, err= negative mass hypothesis %f", mass)
	}

	prt.Reset()
	copy(prt.p[:6], param)
	p2 := SQ(param[3]) + SQ(param[4]) + SQ(param[5])
	energy := math.Sqrt(mass*mass + p2)
	prt.p[ParE] = energy
	prt.p[ParS] = 0

	copy(prt.c[:21], cov)

	// energy rows from dE/dp = p/E
	var h [3]float64
	if energy > SmallDet {
		h[0] = param[3] / energy
		h[1] = param[4] / energy
		h[2] = param[5] / energy
	}
	for i := 0; i < 6; i++ {
		prt.c[IJ(6, i)] = h[0]*prt.c[IJ(3, i)] + h[1]*prt.c[IJ(4, i)] + h[2]*prt.c[IJ(5, i)]
	}
	prt.c[27] = h[0]*h[0]*prt.c[9] + h[1]*h[1]*prt.c[14] + h[2]*h[2]*prt.c[20] +
		2*(h[0]*h[1]*prt.c[13]+h[0]*h[2]*prt.c[18]+h[1]*h[2]*prt.c[19])
	for i := 28; i < 35; i++ {
		prt.c[i] = 0
	}
	prt.c[35] = 1

	prt.q = charge
	prt.massHypo = mass
	prt.sumDaughterMass = mass
	return nil
}

// ------------------------------------
// Simple accessors
// ------------------------------------

func (prt *Particle) X() float64    { return prt.p[ParX] }
func (prt *Particle) Y() float64    { return prt.p[ParY] }
func (prt *Particle) Z() float64    { return prt.p[ParZ] }
func (prt *Particle) Px() float64   { return prt.p[ParPx] }
func (prt *Particle) Py() float64   { return prt.p[ParPy] }
func (prt *Particle) Pz() float64   { return prt.p[ParPz] }
func (prt *Particle) E() float64    { return prt.p[ParE] }
func (prt *Particle) S() float64    { return prt.p[ParS] }
func (prt *Particle) Q() float64    { return prt.q }
func (prt *Particle) Chi2() float64 { return prt.chi2 }
func (prt *Particle) NDF() float64  { return prt.ndf }

func (prt *Particle) Parameter(i int) float64        { return prt.p[i] }
func (prt *Particle) Covariance(i int) float64       { return prt.c[i] }
func (prt *Particle) CovarianceIJ(i, j int) float64  { return prt.c[IJ(i, j)] }
func (prt *Particle) Parameters() [8]float64         { return prt.p }
func (prt *Particle) CovarianceMatrix() [36]float64  { return prt.c }
func (prt *Particle) SetParameter(i int, v float64)  { prt.p[i] = v }
func (prt *Particle) SetCovariance(i int, v float64) { prt.c[i] = v }
func (prt *Particle) SetCovarianceIJ(i, j int, v float64) {
	prt.c[IJ(i, j)] = v
}

func (prt *Particle) AtProductionVertex() bool { return prt.atProductionVertex }
func (prt *Particle) SFromDecay() float64      { return prt.sFromDecay }

// ------------------------------------
// Configuration
// ------------------------------------

// SetConstructMethod selects the energy-treatment policy. The method must
// stay fixed for the lifetime of a fit; changing it mid-fusion is undefined.
func (prt *Particle) SetConstructMethod(m int) error {
	if m != MethodEnergyFit && m != MethodEnergyCalc && m != MethodEnergyFitMC {
		return fmt.Errorf("SetConstructMethod() failed, err= invalid method %d", m)
	}
	prt.constructMethod = m
	return nil
}

func (prt *Particle) ConstructMethod() int { return prt.constructMethod }

func (prt *Particle) SetMassHypo(m float64)    { prt.massHypo = m }
func (prt *Particle) MassHypo() float64        { return prt.massHypo }
func (prt *Particle) SumDaughterMass() float64 { return prt.sumDaughterMass }

// SetVtxGuess supplies the decay-vertex linearisation point used by the
// iterative closest-approach solvers before any fit estimate exists.
func (prt *Particle) SetVtxGuess(x, y, z float64) {
	prt.vtxGuess = [3]float64{x, y, z}
	prt.isLinearized = true
}

func (prt *Particle) SetVtxErrGuess(x, y, z float64) {
	prt.vtxErrGuess = [3]float64{x, y, z}
	prt.isVtxErrGuess = true
}

// ------------------------------------
// Bookkeeping
// ------------------------------------

func (prt *Particle) Id() int      { return prt.id }
func (prt *Particle) SetId(id int) { prt.id = id }
func (prt *Particle) PDG() int     { return prt.pdg }
func (prt *Particle) SetPDG(p int) { prt.pdg = p }

func (prt *Particle) NDaughters() int      { return len(prt.daughterIds) }
func (prt *Particle) DaughterIds() []int   { return prt.daughterIds }
func (prt *Particle) DaughterId(i int) int { return prt.daughterIds[i] }
func (prt *Particle) CleanDaughterIds()    { prt.daughterIds = prt.daughterIds[:0] }
func (prt *Particle) SetNDaughters(n int) {
	if cap(prt.daughterIds) < n {
		prt.daughterIds = append(make([]int, 0, n), prt.daughterIds...)
	}
}

// AddDaughterId records a daughter id. Duplicates are a caller-contract
// violation; they are flagged at debug level, not rejected.
func (prt *Particle) AddDaughterId(id int) {
	if slices.Contains(prt.daughterIds, id) {
		PrintD(1, "duplicate daughter id %d on particle %d\n", id, prt.id)
	}
	prt.daughterIds = append(prt.daughterIds, id)
}

// ------------------------------------
// Frame operations
// ------------------------------------

// RotateXY rotates the particle around the z axis through the point vtx.
func (prt *Particle) RotateXY(angle float64, vtx [3]float64) {
	prt.p[0] -= vtx[0]
	prt.p[1] -= vtx[1]
	prt.p[2] -= vtx[2]

	s, c := math.Sincos(angle)

	x, y := prt.p[0], prt.p[1]
	px, py := prt.p[3], prt.p[4]
	prt.p[0] = c*x - s*y
	prt.p[1] = s*x + c*y
	prt.p[3] = c*px - s*py
	prt.p[4] = s*px + c*py

	var j [64]float64
	for i := 0; i < 8; i++ {
		j[i*8+i] = 1
	}
	j[0*8+0], j[0*8+1] = c, -s
	j[1*8+0], j[1*8+1] = s, c
	j[3*8+3], j[3*8+4] = c, -s
	j[4*8+3], j[4*8+4] = s, c

	var out [36]float64
	MultQSQt(&j, &prt.c, &out)
	prt.c = out

	prt.p[0] += vtx[0]
	prt.p[1] += vtx[1]
	prt.p[2] += vtx[2]
}

// convert switches the covariance between the decay-vertex and
// production-vertex representations. The path-length uncertainty couples
// into the other parameters through the local trajectory derivative
// h = (dx/dS, dp/dS) = (+-p, q*CLight*(p x B)).
func (prt *Particle) convert(f Field, toProduction bool) {
	bx, by, bz := f.Value(prt.p[0], prt.p[1], prt.p[2])
	cl := prt.q * CLight
	bx *= cl
	by *= cl
	bz *= cl

	var h [8]float64
	h[0] = prt.p[3]
	h[1] = prt.p[4]
	h[2] = prt.p[5]
	if toProduction {
		h[0], h[1], h[2] = -h[0], -h[1], -h[2]
	}
	h[3] = h[1]*bz - h[2]*by
	h[4] = h[2]*bx - h[0]*bz
	h[5] = h[0]*by - h[1]*bx

	applyJacobian1(&prt.c, &h, ParS)
}
