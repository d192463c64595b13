// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.7.21
//

// Trajectory extrapolation and closest-approach solvers. The path parameter
// ds is measured in cm/(GeV/c): the new position is reached after a path
// length of ds*|p|. All extrapolations are exact helices for uniform fields;
// a general field is integrated as a fixed number of uniform-helix substeps
// with the field sampled at the predicted substep midpoint.

package gokfp

import "math"

// helixStep returns the momentum rotation R and the position response M for
// an exact helix step of length ds in the uniform field b [kG], so that
//
//	x' = x + M*p,  p' = R*p.
//
// For |B| -> 0 both blocks reduce to the straight line (R=I, M=ds*I).
func helixStep(q, bx, by, bz, ds float64) (r, m [3][3]float64) {
	bt := math.Sqrt(bx*bx + by*by + bz*bz)
	bq := bt * q * CLight

	var ex, ey, ez float64
	if bt > SmallBq {
		ex, ey, ez = bx/bt, by/bt, bz/bt
	}

	phi := -bq * ds
	sa, ca := math.Sincos(phi)

	bs := bq * ds
	var sB, cB float64
	if math.Abs(bs) > 1.0e-10 {
		sB = math.Sin(bs) / bq
		cB = (1 - math.Cos(bs)) / bq
	} else {
		// series expansion, keeps ds -> 0 exact
		sB = (1 - bs/math.Sqrt(6)) * (1 + bs/math.Sqrt(6)) * ds
		cB = 0.5 * sB * bs
	}

	// R = ca*I + sa*K + (1-ca)*E with K = [e]x, E = e*e'
	k := [3][3]float64{
		{0, -ez, ey},
		{ez, 0, -ex},
		{-ey, ex, 0},
	}
	e := [3][3]float64{
		{ex * ex, ex * ey, ex * ez},
		{ey * ex, ey * ey, ey * ez},
		{ez * ex, ez * ey, ez * ez},
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			d := 0.0
			if i == j {
				d = 1
			}
			r[i][j] = ca*d + sa*k[i][j] + (1-ca)*e[i][j]
			m[i][j] = sB*d - cB*k[i][j] + (ds-sB)*e[i][j]
		}
	}
	return r, m
}

// transportUniform extrapolates the state by ds in a uniform field, writing
// the result to pOut/cOut. Source and destination may alias.
func transportUniform(p *[8]float64, c *[36]float64, q, bx, by, bz, ds float64,
	pOut *[8]float64, cOut *[36]float64) {

	r, m := helixStep(q, bx, by, bz, ds)

	px, py, pz := p[3], p[4], p[5]
	var pp [8]float64
	pp[0] = p[0] + m[0][0]*px + m[0][1]*py + m[0][2]*pz
	pp[1] = p[1] + m[1][0]*px + m[1][1]*py + m[1][2]*pz
	pp[2] = p[2] + m[2][0]*px + m[2][1]*py + m[2][2]*pz
	pp[3] = r[0][0]*px + r[0][1]*py + r[0][2]*pz
	pp[4] = r[1][0]*px + r[1][1]*py + r[1][2]*pz
	pp[5] = r[2][0]*px + r[2][1]*py + r[2][2]*pz
	pp[6] = p[6]
	pp[7] = p[7]

	var j [64]float64
	for i := 0; i < 8; i++ {
		j[i*8+i] = 1
	}
	for i := 0; i < 3; i++ {
		for k := 0; k < 3; k++ {
			j[i*8+3+k] = m[i][k]
			j[(3+i)*8+3+k] = r[i][k]
		}
	}

	var out [36]float64
	MultQSQt(&j, c, &out)
	*pOut = pp
	*cOut = out
}

// transportLine extrapolates the state by ds along a straight line.
func transportLine(p *[8]float64, c *[36]float64, ds float64,
	pOut *[8]float64, cOut *[36]float64) {

	pp := *p
	pp[0] = p[0] + ds*p[3]
	pp[1] = p[1] + ds*p[4]
	pp[2] = p[2] + ds*p[5]

	var j [64]float64
	for i := 0; i < 8; i++ {
		j[i*8+i] = 1
	}
	j[0*8+3] = ds
	j[1*8+4] = ds
	j[2*8+5] = ds

	var out [36]float64
	MultQSQt(&j, c, &out)
	*pOut = pp
	*cOut = out
}

// transportField integrates a general field as FieldSubSteps uniform-helix
// substeps, sampling the field at the line-predicted midpoint of each step.
func transportField(p *[8]float64, c *[36]float64, q float64, eval FieldFunc, ds float64,
	pOut *[8]float64, cOut *[36]float64) {

	cur := *p
	cc := *c
	step := ds / FieldSubSteps
	for i := 0; i < FieldSubSteps; i++ {
		mx := cur[0] + 0.5*step*cur[3]
		my := cur[1] + 0.5*step*cur[4]
		mz := cur[2] + 0.5*step*cur[5]
		bx, by, bz := eval(mx, my, mz)
		transportUniform(&cur, &cc, q, bx, by, bz, step, &cur, &cc)
	}
	*pOut = cur
	*cOut = cc
}

// Transport extrapolates the particle by ds under the field model, writing
// the 8 parameters and 36 covariances to pOut/cOut without touching the
// receiver. Neutral particles follow straight lines regardless of the field.
func (prt *Particle) Transport(f Field, ds float64, pOut *[8]float64, cOut *[36]float64) {
	if prt.q == 0 || f.Model == FieldLine {
		transportLine(&prt.p, &prt.c, ds, pOut, cOut)
		return
	}
	switch f.Model {
	case FieldBz:
		transportUniform(&prt.p, &prt.c, prt.q, 0, 0, f.B, ds, pOut, cOut)
	case FieldBy:
		transportUniform(&prt.p, &prt.c, prt.q, 0, f.B, 0, ds, pOut, cOut)
	case FieldMap:
		transportField(&prt.p, &prt.c, prt.q, f.Eval, ds, pOut, cOut)
	}
}

// TransportToDS moves the particle itself by ds and advances the distance
// from the decay vertex accordingly.
func (prt *Particle) TransportToDS(f Field, ds float64) {
	prt.Transport(f, ds, &prt.p, &prt.c)
	prt.sFromDecay += ds
}

// TransportToDSLine moves the particle by ds along a straight line,
// bypassing the field model.
func (prt *Particle) TransportToDSLine(ds float64) {
	transportLine(&prt.p, &prt.c, ds, &prt.p, &prt.c)
	prt.sFromDecay += ds
}

// TransportToDecayVertex brings the particle back to its decay vertex and
// restores the decay-vertex covariance representation.
func (prt *Particle) TransportToDecayVertex(f Field) {
	if prt.sFromDecay != 0 {
		prt.TransportToDS(f, -prt.sFromDecay)
	}
	if prt.atProductionVertex {
		prt.convert(f, false)
		prt.atProductionVertex = false
	}
}

// TransportToProductionVertex brings the particle to its production vertex,
// located at parameter -S relative to the decay vertex, and switches the
// covariance to the production-vertex representation.
func (prt *Particle) TransportToProductionVertex(f Field) {
	if prt.sFromDecay != -prt.p[ParS] {
		prt.TransportToDS(f, -prt.sFromDecay-prt.p[ParS])
	}
	if !prt.atProductionVertex {
		prt.convert(f, true)
		prt.atProductionVertex = true
	}
}

// ------------------------------------
// dS to a point
// ------------------------------------

// GetDStoPoint returns the path parameter of the trajectory point closest to
// xyz under the field model.
func (prt *Particle) GetDStoPoint(f Field, xyz [3]float64) float64 {
	if prt.q == 0 || f.Model == FieldLine {
		return dsToPointLine(&prt.p, xyz)
	}
	switch f.Model {
	case FieldBz:
		return dsToPointBz(f.B, prt.q, &prt.p, xyz)
	case FieldBy:
		rp := rotateZY(&prt.p)
		return dsToPointBz(f.B, prt.q, &rp, [3]float64{xyz[0], -xyz[2], xyz[1]})
	case FieldMap:
		return prt.dsToPointField(f, xyz)
	}
	return 0
}

func dsToPointLine(p *[8]float64, xyz [3]float64) float64 {
	p2 := p[3]*p[3] + p[4]*p[4] + p[5]*p[5]
	if p2 < MinP2 {
		p2 = 1
	}
	return (p[3]*(xyz[0]-p[0]) + p[4]*(xyz[1]-p[1]) + p[5]*(xyz[2]-p[2])) / p2
}

// dsToPointBz solves the transverse closest approach of a helix in a uniform
// Bz in closed form.
func dsToPointBz(bz, q float64, p *[8]float64, xyz [3]float64) float64 {
	bq := bz * q * CLight
	pt2 := p[3]*p[3] + p[4]*p[4]
	if pt2 < MinPt2 {
		return dsToPointLine(p, xyz)
	}
	dx := xyz[0] - p[0]
	dy := xyz[1] - p[1]
	a := dx*p[3] + dy*p[4]
	if math.Abs(bq) < SmallBq {
		return a / pt2
	}
	return math.Atan2(bq*a, pt2+bq*(dy*p[3]-dx*p[4])) / bq
}

// rotateZY maps a state into the frame where a uniform By becomes a uniform
// Bz: (x, y, z) -> (x, -z, y).
func rotateZY(p *[8]float64) [8]float64 {
	return [8]float64{p[0], -p[2], p[1], p[3], -p[5], p[4], p[6], p[7]}
}

// dsToPointField refines the closest approach to xyz in a general field with
// a fixed number of Newton steps on g(s) = (x(s)-w) . dx(s).
func (prt *Particle) dsToPointField(f Field, xyz [3]float64) float64 {
	_, by, bz := f.Value(prt.p[0], prt.p[1], prt.p[2])
	var ds float64
	if math.Abs(by) > math.Abs(bz) {
		rp := rotateZY(&prt.p)
		ds = dsToPointBz(by, prt.q, &rp, [3]float64{xyz[0], -xyz[2], xyz[1]})
	} else {
		ds = dsToPointBz(bz, prt.q, &prt.p, xyz)
	}

	for iter := 0; iter < DSIterSteps; iter++ {
		x, dx, ddx := prt.trajDerivatives(f, ds)
		r := [3]float64{x[0] - xyz[0], x[1] - xyz[1], x[2] - xyz[2]}
		g := dot3(r, dx)
		dg := dot3(dx, dx) + dot3(r, ddx)
		if math.Abs(dg) < SmallDet {
			break
		}
		ds -= g / dg
	}
	return ds
}

// trajDerivatives returns the position, its first derivative (the momentum)
// and second derivative with respect to ds at the trajectory point ds,
// using the parameter-only substepped advance.
func (prt *Particle) trajDerivatives(f Field, ds float64) (x, dx, ddx [3]float64) {
	p := prt.transportParam(f, ds)
	x = [3]float64{p[0], p[1], p[2]}
	dx = [3]float64{p[3], p[4], p[5]}
	// dp/ds = q*CLight * (p x B)
	bx, by, bz := f.Value(p[0], p[1], p[2])
	cl := prt.q * CLight
	ddx = cross3(dx, [3]float64{bx * cl, by * cl, bz * cl})
	return x, dx, ddx
}

// transportParam advances the parameter vector only, without the covariance.
func (prt *Particle) transportParam(f Field, ds float64) [8]float64 {
	p := prt.p
	if prt.q == 0 || f.Model == FieldLine {
		p[0] += ds * p[3]
		p[1] += ds * p[4]
		p[2] += ds * p[5]
		return p
	}
	var steps int
	switch f.Model {
	case FieldMap:
		steps = FieldSubSteps
	default:
		steps = 1
	}
	step := ds / float64(steps)
	for i := 0; i < steps; i++ {
		bx, by, bz := f.Value(p[0]+0.5*step*p[3], p[1]+0.5*step*p[4], p[2]+0.5*step*p[5])
		r, m := helixStep(prt.q, bx, by, bz, step)
		px, py, pz := p[3], p[4], p[5]
		p[0] += m[0][0]*px + m[0][1]*py + m[0][2]*pz
		p[1] += m[1][0]*px + m[1][1]*py + m[1][2]*pz
		p[2] += m[2][0]*px + m[2][1]*py + m[2][2]*pz
		p[3] = r[0][0]*px + r[0][1]*py + r[0][2]*pz
		p[4] = r[1][0]*px + r[1][1]*py + r[1][2]*pz
		p[5] = r[2][0]*px + r[2][1]*py + r[2][2]*pz
	}
	return p
}

// ------------------------------------
// dS to another particle
// ------------------------------------

// GetDStoParticle returns the pair of path parameters bringing the two
// trajectories to their mutual closest approach under the field model.
func (prt *Particle) GetDStoParticle(f Field, other *Particle) (ds, ds1 float64) {
	lineCase := (prt.q == 0 && other.q == 0) || f.Model == FieldLine
	if lineCase {
		return dsToParticleLine(&prt.p, &other.p)
	}
	switch f.Model {
	case FieldBz:
		return dsToParticleBz(f.B, prt.q, other.q, &prt.p, &other.p)
	case FieldBy:
		rp := rotateZY(&prt.p)
		ro := rotateZY(&other.p)
		return dsToParticleBz(f.B, prt.q, other.q, &rp, &ro)
	case FieldMap:
		return prt.dsToParticleField(f, other)
	}
	return 0, 0
}

// dsToParticleLine solves the closest approach of two straight lines.
func dsToParticleLine(p1, p2 *[8]float64) (ds, ds1 float64) {
	p12 := p1[3]*p1[3] + p1[4]*p1[4] + p1[5]*p1[5]
	p22 := p2[3]*p2[3] + p2[4]*p2[4] + p2[5]*p2[5]
	p1p2 := p1[3]*p2[3] + p1[4]*p2[4] + p1[5]*p2[5]

	drx := p2[0] - p1[0]
	dry := p2[1] - p1[1]
	drz := p2[2] - p1[2]
	drp1 := p1[3]*drx + p1[4]*dry + p1[5]*drz
	drp2 := p2[3]*drx + p2[4]*dry + p2[5]*drz

	detp := p1p2*p1p2 - p12*p22
	if math.Abs(detp) < SmallDet {
		// parallel tracks, project the offset on the first
		if p12 < MinP2 {
			p12 = 1
		}
		if p22 < MinP2 {
			p22 = 1
		}
		ds = drp1 / p12
		ds1 = (-drp2 + p1p2*ds) / p22
		return ds, ds1
	}
	ds = (drp2*p1p2 - drp1*p22) / detp
	ds1 = (drp2*p12 - drp1*p1p2) / detp
	return ds, ds1
}

// helixCenter returns the transverse rotation center and radius of a charged
// trajectory in a uniform Bz with curvature bq.
func helixCenter(p *[8]float64, bq float64) (ox, oy, r float64) {
	ox = p[0] + p[4]/bq
	oy = p[1] - p[3]/bq
	r = math.Sqrt(p[3]*p[3]+p[4]*p[4]) / math.Abs(bq)
	return ox, oy, r
}

// helixPathTo returns the path parameter at which the helix reaches the
// transverse point (wx, wy) on its circle.
func helixPathTo(p *[8]float64, bq, ox, oy, wx, wy float64) float64 {
	pt2 := p[3]*p[3] + p[4]*p[4]
	rx := wx - ox
	ry := wy - oy
	// momentum at the target point is bq * (ry, -rx) rotated; recover the
	// turn angle from the start momentum
	psx := bq * ry
	psy := -bq * rx
	sinPhi := -(p[3]*psy - p[4]*psx) / pt2
	cosPhi := (p[3]*psx + p[4]*psy) / pt2
	return math.Atan2(sinPhi, cosPhi) / bq
}

// dsToParticleBz solves the closest approach of two trajectories in a
// uniform Bz. The transverse projections are circles (or lines for neutral
// tracks); candidate points come from the circle-circle or line-circle
// geometry, and the pair minimising the full 3D separation wins.
func dsToParticleBz(bz, q1, q2 float64, p1, p2 *[8]float64) (ds, ds1 float64) {
	bq1 := bz * q1 * CLight
	bq2 := bz * q2 * CLight
	isLine1 := math.Abs(bq1) < SmallBq
	isLine2 := math.Abs(bq2) < SmallBq

	if isLine1 && isLine2 {
		return dsToParticleLine(p1, p2)
	}
	if isLine1 {
		// swap so the first trajectory is the curved one
		ds1, ds = dsToParticleBz(bz, q2, q1, p2, p1)
		return ds, ds1
	}

	o1x, o1y, r1 := helixCenter(p1, bq1)

	type cand struct{ s, s1 float64 }
	var cands []cand

	if isLine2 {
		// line-circle: foot of the perpendicular and the intersections
		px, py := p2[3], p2[4]
		pt2 := px*px + py*py
		if pt2 < MinPt2 {
			s := dsToPointBz(bz, q1, p1, [3]float64{p2[0], p2[1], p2[2]})
			return s, 0
		}
		t0 := (px*(o1x-p2[0]) + py*(o1y-p2[1])) / pt2
		fx := p2[0] + t0*px
		fy := p2[1] + t0*py
		d2 := SQ(fx-o1x) + SQ(fy-o1y)
		if d2 < r1*r1 {
			dt := math.Sqrt((r1*r1 - d2) / pt2)
			for _, t := range [2]float64{t0 - dt, t0 + dt} {
				wx := p2[0] + t*px
				wy := p2[1] + t*py
				cands = append(cands, cand{helixPathTo(p1, bq1, o1x, o1y, wx, wy), t})
			}
		} else {
			// no intersection, use the closest points of circle and line
			cands = append(cands,
				cand{dsToPointBz(bz, q1, p1, [3]float64{fx, fy, 0}), t0})
		}
	} else {
		o2x, o2y, r2 := helixCenter(p2, bq2)
		dx := o2x - o1x
		dy := o2y - o1y
		d := math.Sqrt(dx*dx + dy*dy)
		if d < SmallDet {
			// concentric circles, fall back to point approach
			s := dsToPointBz(bz, q1, p1, [3]float64{p2[0], p2[1], p2[2]})
			s1 := dsToPointBz(bz, q2, p2, [3]float64{p1[0], p1[1], p1[2]})
			return s, s1
		}
		ux, uy := dx/d, dy/d
		a := (d*d + r1*r1 - r2*r2) / (2 * d)
		h2 := r1*r1 - a*a
		if h2 >= 0 {
			h := math.Sqrt(h2)
			for _, sgn := range [2]float64{-1, 1} {
				wx := o1x + a*ux - sgn*h*uy
				wy := o1y + a*uy + sgn*h*ux
				cands = append(cands, cand{
					helixPathTo(p1, bq1, o1x, o1y, wx, wy),
					helixPathTo(p2, bq2, o2x, o2y, wx, wy),
				})
			}
		} else {
			// disjoint circles, closest points along the center axis
			w1x := o1x + r1*ux
			w1y := o1y + r1*uy
			w2x := o2x - r2*ux
			w2y := o2y - r2*uy
			cands = append(cands, cand{
				helixPathTo(p1, bq1, o1x, o1y, w1x, w1y),
				helixPathTo(p2, bq2, o2x, o2y, w2x, w2y),
			})
			// inner-containment orientation
			w1x = o1x - r1*ux
			w1y = o1y - r1*uy
			w2x = o2x + r2*ux
			w2y = o2y + r2*uy
			cands = append(cands, cand{
				helixPathTo(p1, bq1, o1x, o1y, w1x, w1y),
				helixPathTo(p2, bq2, o2x, o2y, w2x, w2y),
			})
		}
	}

	// pick the candidate pair with the smallest 3D separation, including the
	// longitudinal advance
	best := math.Inf(1)
	for _, cc := range cands {
		z1 := p1[2] + p1[5]*cc.s
		z2 := p2[2] + p2[5]*cc.s1
		x1 := trajPointBz(p1, bq1, cc.s)
		x2 := [2]float64{p2[0], p2[1]}
		if !isLine2 {
			x2 = trajPointBz(p2, bq2, cc.s1)
		} else {
			x2[0] += p2[3] * cc.s1
			x2[1] += p2[4] * cc.s1
		}
		sep := SQ(x1[0]-x2[0]) + SQ(x1[1]-x2[1]) + SQ(z1-z2)
		if sep < best {
			best = sep
			ds, ds1 = cc.s, cc.s1
		}
	}
	return ds, ds1
}

// trajPointBz returns the transverse position of a Bz helix at path s.
func trajPointBz(p *[8]float64, bq, s float64) [2]float64 {
	sb, cb := math.Sincos(bq * s)
	return [2]float64{
		p[0] + (p[3]*sb+p[4]*(1-cb))/bq,
		p[1] + (p[4]*sb-p[3]*(1-cb))/bq,
	}
}

// dsToParticleField refines the mutual closest approach in a general field
// with a fixed number of 2x2 Newton steps on the gradient of the squared
// separation.
func (prt *Particle) dsToParticleField(f Field, other *Particle) (ds, ds1 float64) {
	_, b1y, b1z := f.Value(prt.p[0], prt.p[1], prt.p[2])
	if math.Abs(b1y) > math.Abs(b1z) {
		rp := rotateZY(&prt.p)
		ro := rotateZY(&other.p)
		ds, ds1 = dsToParticleBz(b1y, prt.q, other.q, &rp, &ro)
	} else {
		ds, ds1 = dsToParticleBz(b1z, prt.q, other.q, &prt.p, &other.p)
	}

	for iter := 0; iter < DSIterSteps; iter++ {
		x, dx, ddx := prt.trajDerivatives(f, ds)
		x1, dx1, ddx1 := other.trajDerivatives(f, ds1)
		r := [3]float64{x[0] - x1[0], x[1] - x1[1], x[2] - x1[2]}

		g0 := dot3(r, dx)
		g1 := -dot3(r, dx1)
		h00 := dot3(dx, dx) + dot3(r, ddx)
		h01 := -dot3(dx, dx1)
		h11 := dot3(dx1, dx1) - dot3(r, ddx1)

		det := h00*h11 - h01*h01
		if math.Abs(det) < SmallDet {
			break
		}
		ds -= (g0*h11 - g1*h01) / det
		ds1 -= (h00*g1 - h01*g0) / det
	}
	return ds, ds1
}
