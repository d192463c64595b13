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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetNonlinearMassConstraint(t *testing.T) {
	// off-shell state: E=2, p=1 gives m^2=3, projected down to m=1
	prt := makeTrack(t, [3]float64{0, 0, 0}, [3]float64{1, 0, 0}, 1, math.Sqrt(3))
	require.InDelta(t, 2.0, prt.E(), 1e-12)

	prt.SetNonlinearMassConstraint(1.0)

	m2 := SQ(prt.E()) - SQ(prt.Px()) - SQ(prt.Py()) - SQ(prt.Pz())
	assert.InDelta(t, 1.0, m2, 1e-9)
	assert.Equal(t, 1.0, prt.MassHypo())

	// the projection carries no measurement
	assert.Equal(t, 0.0, prt.Chi2())
	assert.Equal(t, 0.0, prt.NDF())
	assert.True(t, prt.CovarianceOK())
}

func TestSetNonlinearMassConstraintZeroMass(t *testing.T) {
	prt := makeTrack(t, [3]float64{0, 0, 0}, [3]float64{0.3, 0, 1.2}, 0, 0.05)
	prt.SetNonlinearMassConstraint(0)
	m2 := SQ(prt.E()) - SQ(prt.Px()) - SQ(prt.Py()) - SQ(prt.Pz())
	assert.InDelta(t, 0.0, m2, 1e-12)
}

func TestSetMassConstraintLinear(t *testing.T) {
	f := NoField()
	d1 := makeTrack(t, [3]float64{-1, 0, 0}, [3]float64{1, 0, 0}, 1, mPion)
	d2 := makeTrack(t, [3]float64{0, -1, 0}, [3]float64{0, 1, 0}, -1, mPion)
	mother := NewParticle()
	require.NoError(t, mother.Construct(f, []*Particle{d1, d2}, nil))

	m0, _, _ := mother.GetMass()
	target := m0 * 1.02
	ndf0 := mother.NDF()
	chi20 := mother.Chi2()

	require.NoError(t, mother.SetMassConstraint(target, 0))

	mass, _, ok := mother.GetMass()
	assert.True(t, ok)
	assert.Less(t, math.Abs(mass-target), math.Abs(m0-target))
	assert.Equal(t, ndf0+1, mother.NDF())
	assert.Greater(t, mother.Chi2(), chi20)
}

func TestSetMassConstraintRejectsBadInput(t *testing.T) {
	prt := makeTrack(t, [3]float64{0, 0, 0}, [3]float64{1, 0, 0}, 1, mPion)
	assert.Error(t, prt.SetMassConstraint(-1, 0))
	assert.Error(t, prt.SetMassConstraint(0.5, -0.1))
}

func TestSetNoDecayLength(t *testing.T) {
	prt := makeTrack(t, [3]float64{0, 0, 0}, [3]float64{1, 0, 0}, 1, mPion)
	prt.SetParameter(ParS, 0.5)
	ndf0 := prt.NDF()

	prt.SetNoDecayLength(NoField())

	assert.InDelta(t, 0.0, prt.S(), 1e-12)
	assert.Equal(t, ndf0+1, prt.NDF())
	assert.InDelta(t, 0.25, prt.Chi2(), 1e-12)
}

func TestSetProductionVertex(t *testing.T) {
	f := NoField()

	// decay at z=5 with the mother flying along z, production vertex at
	// the origin
	d1 := makeTrack(t, [3]float64{-1, 0, 4}, [3]float64{1, 0, 1}, 1, mPion)
	d2 := makeTrack(t, [3]float64{1, 0, 4}, [3]float64{-1, 0, 1}, -1, mPion)
	mother := NewParticle()
	require.NoError(t, mother.Construct(f, []*Particle{d1, d2}, nil))
	require.InDelta(t, 5.0, mother.Z(), 1e-9)
	ndf0 := mother.NDF()

	vtxParam := []float64{0, 0, 0, 0, 0, 0}
	vtxCov := make([]float64, 21)
	vtxCov[0], vtxCov[2], vtxCov[5] = 1e-6, 1e-6, 1e-6
	vtx := NewParticle()
	require.NoError(t, vtx.Initialize(vtxParam, vtxCov, 0, 0))

	mother.SetProductionVertex(f, vtx)

	assert.InDelta(t, 0.0, mother.X(), 1e-6)
	assert.InDelta(t, 0.0, mother.Y(), 1e-6)
	assert.InDelta(t, 0.0, mother.Z(), 1e-6)
	assert.Equal(t, ndf0+2, mother.NDF())
	assert.True(t, mother.AtProductionVertex())
	assert.Greater(t, mother.S(), 0.0)

	// flight distance from the origin to the decay point
	l, _, ok := mother.GetDecayLength()
	assert.True(t, ok)
	assert.InDelta(t, 5.0, l, 1e-6)
}
