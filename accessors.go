// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.7.22
//

// Derived kinematic quantities with first-order error propagation. Each
// getter returns (value, sigma, ok); ok reports whether the quantity is
// defined for the current state, e.g. a positive squared mass or a nonzero
// transverse momentum.

package gokfp

import "math"

// GetMomentum returns |p| and its uncertainty.
func (prt *Particle) GetMomentum() (p, sigma float64, ok bool) {
	x, y, z := prt.p[3], prt.p[4], prt.p[5]
	p2 := x*x + y*y + z*z
	p = math.Sqrt(p2)
	if p2 < MinP2 {
		return p, 0, false
	}
	s2 := (x*x*prt.c[9] + y*y*prt.c[14] + z*z*prt.c[20] +
		2*(x*y*prt.c[13]+x*z*prt.c[18]+y*z*prt.c[19])) / p2
	if s2 < 0 {
		return p, 0, false
	}
	return p, math.Sqrt(s2), true
}

// GetPt returns the transverse momentum and its uncertainty.
func (prt *Particle) GetPt() (pt, sigma float64, ok bool) {
	x, y := prt.p[3], prt.p[4]
	pt2 := x*x + y*y
	pt = math.Sqrt(pt2)
	if pt2 < MinPt2 {
		return pt, 0, false
	}
	s2 := (x*x*prt.c[9] + y*y*prt.c[14] + 2*x*y*prt.c[13]) / pt2
	if s2 < 0 {
		return pt, 0, false
	}
	return pt, math.Sqrt(s2), true
}

// GetEta returns the pseudorapidity and its uncertainty.
func (prt *Particle) GetEta() (eta, sigma float64, ok bool) {
	px, py, pz := prt.p[3], prt.p[4], prt.p[5]
	pt2 := px*px + py*py
	p2 := pt2 + pz*pz
	p := math.Sqrt(p2)
	if pt2 < MinPt2 {
		if pz >= 0 {
			return math.Inf(1), 0, false
		}
		return math.Inf(-1), 0, false
	}
	eta = 0.5 * math.Log((p+pz)/(p-pz))

	h3 := -px * pz
	h4 := -py * pz
	s2 := (h3*h3*prt.c[9] + h4*h4*prt.c[14] + pt2*pt2*prt.c[20] +
		2*(h3*(h4*prt.c[13]+prt.c[18]*pt2)+pt2*h4*prt.c[19])) / (p2 * pt2 * pt2)
	if s2 < 0 {
		return eta, 0, false
	}
	return eta, math.Sqrt(s2), true
}

// GetPhi returns the azimuthal angle and its uncertainty.
func (prt *Particle) GetPhi() (phi, sigma float64, ok bool) {
	px, py := prt.p[3], prt.p[4]
	pt2 := px*px + py*py
	phi = math.Atan2(py, px)
	if pt2 < MinPt2 {
		return phi, 0, false
	}
	s2 := (py*py*prt.c[9] - 2*px*py*prt.c[13] + px*px*prt.c[14]) / (pt2 * pt2)
	if s2 < 0 {
		return phi, 0, false
	}
	return phi, math.Sqrt(s2), true
}

// GetMass returns the invariant mass and its uncertainty. A negative
// squared mass reports ok=false with a zero mass and a large sigma.
func (prt *Particle) GetMass() (mass, sigma float64, ok bool) {
	px, py, pz, e := prt.p[3], prt.p[4], prt.p[5], prt.p[6]
	s := px*px*prt.c[9] + py*py*prt.c[14] + pz*pz*prt.c[20] + e*e*prt.c[27] +
		2*(px*py*prt.c[13]+pz*(px*prt.c[18]+py*prt.c[19])-
			e*(px*prt.c[24]+py*prt.c[25]+pz*prt.c[26]))

	m2 := e*e - px*px - py*py - pz*pz
	if m2 < 0 {
		return 0, 1.0e20, false
	}
	mass = math.Sqrt(m2)
	if s < 0 || mass < SmallDet {
		return mass, 1.0e20, false
	}
	return mass, math.Sqrt(s) / mass, true
}

// GetDecayLength returns the flight distance between the production and
// decay vertices. Defined only after a production-vertex fit.
func (prt *Particle) GetDecayLength() (l, sigma float64, ok bool) {
	px, py, pz := prt.p[3], prt.p[4], prt.p[5]
	t := prt.p[ParS]
	p2 := px*px + py*py + pz*pz
	l = t * math.Sqrt(p2)
	if p2 < MinP2 {
		return l, 0, false
	}
	s2 := p2*prt.c[35] +
		t*t/p2*(px*px*prt.c[9]+py*py*prt.c[14]+pz*pz*prt.c[20]+
			2*(px*py*prt.c[13]+px*pz*prt.c[18]+py*pz*prt.c[19])) +
		2*t*(px*prt.c[31]+py*prt.c[32]+pz*prt.c[33])
	if s2 < 0 {
		return l, 0, false
	}
	return l, math.Sqrt(s2), true
}

// GetDecayLengthXY returns the transverse projection of the flight
// distance.
func (prt *Particle) GetDecayLengthXY() (l, sigma float64, ok bool) {
	px, py := prt.p[3], prt.p[4]
	t := prt.p[ParS]
	pt2 := px*px + py*py
	l = t * math.Sqrt(pt2)
	if pt2 < MinPt2 {
		return l, 0, false
	}
	s2 := pt2*prt.c[35] +
		t*t/pt2*(px*px*prt.c[9]+py*py*prt.c[14]+2*px*py*prt.c[13]) +
		2*t*(px*prt.c[31]+py*prt.c[32])
	if s2 < 0 {
		return l, 0, false
	}
	return l, math.Sqrt(s2), true
}

// GetLifeTime returns c*tau in cm and its uncertainty, using the fitted
// mass of the state.
func (prt *Particle) GetLifeTime() (ctau, sigma float64, ok bool) {
	mass, dm, mok := prt.GetMass()
	t := prt.p[ParS]
	ctau = t * mass
	if !mok {
		return ctau, 0, false
	}
	px, py, pz, e := prt.p[3], prt.p[4], prt.p[5], prt.p[6]
	cTM := -px*prt.c[31] - py*prt.c[32] - pz*prt.c[33] + e*prt.c[34]
	s2 := mass*mass*prt.c[35] + 2*t*cTM + t*t*dm*dm
	if s2 < 0 {
		return ctau, 0, false
	}
	return ctau, math.Sqrt(s2), true
}

// GetR returns the transverse distance of the decay point from the beam
// axis.
func (prt *Particle) GetR() (r, sigma float64, ok bool) {
	x, y := prt.p[0], prt.p[1]
	r2 := x*x + y*y
	r = math.Sqrt(r2)
	if r2 < SmallDet {
		return r, 0, false
	}
	s2 := (x*x*prt.c[0] + 2*x*y*prt.c[1] + y*y*prt.c[2]) / r2
	if s2 < 0 {
		return r, 0, false
	}
	return r, math.Sqrt(s2), true
}
