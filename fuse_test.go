// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.7.23
//

package gokfp

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mPion = 0.13957

func TestConstructTwoProngVertex(t *testing.T) {
	f := NoField()
	d1 := makeTrack(t, [3]float64{-1, 0, 0}, [3]float64{1, 0, 0}, 1, mPion)
	d2 := makeTrack(t, [3]float64{0, -1, 0}, [3]float64{0, 1, 0}, -1, mPion)
	d1.SetId(1)
	d2.SetId(2)

	mother := NewParticle()
	require.NoError(t, mother.Construct(f, []*Particle{d1, d2}, nil))

	// tracks cross at the origin
	assert.InDelta(t, 0.0, mother.X(), 1e-9)
	assert.InDelta(t, 0.0, mother.Y(), 1e-9)
	assert.InDelta(t, 0.0, mother.Z(), 1e-9)

	assert.InDelta(t, 1.0, mother.Px(), 1e-9)
	assert.InDelta(t, 1.0, mother.Py(), 1e-9)
	assert.InDelta(t, 0.0, mother.Pz(), 1e-9)
	assert.InDelta(t, d1.E()+d2.E(), mother.E(), 1e-9)

	assert.Equal(t, 4.0, mother.NDF())
	assert.Equal(t, 0.0, mother.Q())
	assert.Equal(t, []int{1, 2}, mother.DaughterIds())
	assert.Less(t, mother.Chi2(), 1e-6)
	assert.True(t, mother.CovarianceOK())

	// invariant mass of the pair
	e := d1.E() + d2.E()
	want := math.Sqrt(e*e - 2)
	mass, sigma, ok := mother.GetMass()
	assert.True(t, ok)
	assert.InDelta(t, want, mass, 1e-9)
	assert.Greater(t, sigma, 0.0)
}

func TestAddDaughterOrderInvariance(t *testing.T) {
	f := NoField()
	build := func(order []int) *Particle {
		d1 := makeTrack(t, [3]float64{-1, 0, 0}, [3]float64{1, 0, 0.2}, 1, mPion)
		d2 := makeTrack(t, [3]float64{0, -1, 0}, [3]float64{0, 1, -0.1}, -1, mPion)
		ds := []*Particle{d1, d2}
		m := NewParticle()
		m.SetVtxGuess(0, 0, 0)
		for _, i := range order {
			m.AddDaughter(f, ds[i], false)
		}
		return m
	}

	m12 := build([]int{0, 1})
	m21 := build([]int{1, 0})

	if diff := cmp.Diff(m12.Parameters(), m21.Parameters(), cmpopts.EquateApprox(1e-6, 1e-9)); diff != "" {
		t.Errorf("parameters depend on daughter order (-12 +21):\n%s", diff)
	}
	if diff := cmp.Diff(m12.CovarianceMatrix(), m21.CovarianceMatrix(), cmpopts.EquateApprox(1e-6, 1e-9)); diff != "" {
		t.Errorf("covariance depends on daughter order (-12 +21):\n%s", diff)
	}
	assert.InDelta(t, m12.Chi2(), m21.Chi2(), 1e-9)
	assert.Equal(t, m12.NDF(), m21.NDF())
}

func TestConstructCollinearPair(t *testing.T) {
	// degenerate geometry: both daughters at the same point with parallel
	// momenta; the fit must stay finite and reproduce the pair mass
	f := NoField()
	d1 := makeTrack(t, [3]float64{0, 0, 0}, [3]float64{0, 0, 1}, 1, mPion)
	d2 := makeTrack(t, [3]float64{0, 0, 0}, [3]float64{0, 0, 1}, -1, mPion)

	mother := NewParticle()
	mother.SetVtxGuess(0, 0, 0)
	require.NoError(t, mother.Construct(f, []*Particle{d1, d2}, nil))

	mass, _, ok := mother.GetMass()
	assert.True(t, ok)
	assert.InDelta(t, 2*mPion, mass, 1e-6)
	assert.True(t, mother.CovarianceOK())
}

func TestConstructWithMassConstraint(t *testing.T) {
	f := NoField()
	d1 := makeTrack(t, [3]float64{-1, 0, 0}, [3]float64{1, 0, 0}, 1, mPion)
	d2 := makeTrack(t, [3]float64{0, -1, 0}, [3]float64{0, 1, 0}, -1, mPion)

	free := NewParticle()
	require.NoError(t, free.Construct(f, []*Particle{d1, d2}, nil))
	m0, _, _ := free.GetMass()
	target := m0 * 1.01

	opt := NewConstructOpt()
	opt.Mass = target
	opt.ConstrainMass = true
	mother := NewParticle()
	require.NoError(t, mother.Construct(f, []*Particle{d1, d2}, opt))

	mass, _, ok := mother.GetMass()
	assert.True(t, ok)
	assert.Less(t, math.Abs(mass-target), math.Abs(m0-target))
	assert.Equal(t, 5.0, mother.NDF())
}

func TestConstructRequiresTwoDaughters(t *testing.T) {
	d1 := makeTrack(t, [3]float64{0, 0, 0}, [3]float64{1, 0, 0}, 1, mPion)
	mother := NewParticle()
	assert.Error(t, mother.Construct(NoField(), []*Particle{d1}, nil))
	assert.Error(t, mother.Construct(NoField(), nil, nil))
}

func TestConstructMethodEnergyCalc(t *testing.T) {
	// with the energy recomputed from the mass hypothesis the mother energy
	// still sums the daughter energies for on-shell inputs
	f := NoField()
	d1 := makeTrack(t, [3]float64{-1, 0, 0}, [3]float64{1, 0, 0}, 1, mPion)
	d2 := makeTrack(t, [3]float64{0, -1, 0}, [3]float64{0, 1, 0}, -1, mPion)

	mother := NewParticle()
	require.NoError(t, mother.SetConstructMethod(MethodEnergyCalc))
	require.NoError(t, mother.Construct(f, []*Particle{d1, d2}, nil))

	assert.InDelta(t, d1.E()+d2.E(), mother.E(), 1e-9)
	assert.True(t, mother.CovarianceOK())
}

func TestSubtractFromParticle(t *testing.T) {
	f := NoField()
	d1 := makeTrack(t, [3]float64{-1, 0, 0}, [3]float64{1, 0, 0}, 1, mPion)
	d2 := makeTrack(t, [3]float64{0, -1, 0}, [3]float64{0, 1, 0}, -1, mPion)

	mother := NewParticle()
	require.NoError(t, mother.Construct(f, []*Particle{d1, d2}, nil))

	d2.SubtractFromParticle(f, mother)

	assert.Equal(t, 2.0, mother.NDF())
	assert.Equal(t, 1.0, mother.Q())
	assert.InDelta(t, d1.Px(), mother.Px(), 1e-6)
	assert.InDelta(t, d1.Py(), mother.Py(), 1e-6)
	assert.InDelta(t, d1.E(), mother.E(), 1e-6)
}

func TestSubtractFromVertex(t *testing.T) {
	f := NoField()
	d1 := makeTrack(t, [3]float64{-1, 0, 0}, [3]float64{1, 0, 0}, 1, mPion)
	d2 := makeTrack(t, [3]float64{0, -1, 0}, [3]float64{0, 1, 0}, -1, mPion)

	vtx := NewParticle()
	require.NoError(t, vtx.Construct(f, []*Particle{d1, d2}, nil))
	ndf0 := vtx.NDF()
	q0 := vtx.Q()

	d2.SubtractFromVertex(f, vtx)

	assert.Equal(t, ndf0-2, vtx.NDF())
	assert.Equal(t, q0-d2.Q(), vtx.Q())
	assert.False(t, math.IsNaN(vtx.Chi2()))
	assert.False(t, math.IsNaN(vtx.X()))
}

func TestConstructGammaBz(t *testing.T) {
	const bz = 5.0
	e1 := makeTrack(t, [3]float64{0, 0, 10}, [3]float64{0.1, 0, 1.0}, -1, 0.000511)
	e2 := makeTrack(t, [3]float64{0, 0, 10}, [3]float64{-0.12, 0, 0.8}, 1, 0.000511)
	e1.SetId(11)
	e2.SetId(12)

	gamma := NewParticle()
	gamma.ConstructGammaBz(e1, e2, bz)

	assert.InDelta(t, 0.0, gamma.X(), 1e-3)
	assert.InDelta(t, 0.0, gamma.Y(), 1e-3)
	assert.InDelta(t, 10.0, gamma.Z(), 1e-3)
	assert.Equal(t, 0.0, gamma.Q())
	assert.Equal(t, []int{11, 12}, gamma.DaughterIds())

	// on the zero-mass shell after the projection
	m2 := SQ(gamma.E()) - SQ(gamma.Px()) - SQ(gamma.Py()) - SQ(gamma.Pz())
	assert.InDelta(t, 0.0, m2, 1e-6)
}

func TestConstructWithVtxErrGuess(t *testing.T) {
	f := NoField()
	d1 := makeTrack(t, [3]float64{-1, 0, 0}, [3]float64{1, 0, 0}, 1, mPion)
	d2 := makeTrack(t, [3]float64{0, -1, 0}, [3]float64{0, 1, 0}, -1, mPion)

	mother := NewParticle()
	mother.SetVtxGuess(0, 0, 0)
	mother.SetVtxErrGuess(0.1, 0.1, 0.1)
	require.NoError(t, mother.Construct(f, []*Particle{d1, d2}, nil))

	// the tighter prior still lands on the crossing point for consistent
	// measurements
	assert.InDelta(t, 0.0, mother.X(), 1e-9)
	assert.InDelta(t, 0.0, mother.Y(), 1e-9)
	assert.True(t, mother.CovarianceOK())
	assert.Less(t, mother.Covariance(0), 1e-4)
}

func TestGetMeasurementAtVtxGuess(t *testing.T) {
	d := makeTrack(t, [3]float64{1, 2, 3}, [3]float64{0.5, 0, 1}, 1, mPion)
	var m [8]float64
	var v [36]float64
	d.GetMeasurement(NoField(), [3]float64{9, 9, 9}, &m, &v, true)
	assert.Equal(t, d.Parameters(), m)
	assert.Equal(t, d.CovarianceMatrix(), v)
}
