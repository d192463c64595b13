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

func TestGetDistanceFromPoint(t *testing.T) {
	// line along x offset by 1 in y
	prt := makeTrack(t, [3]float64{0, 1, 0}, [3]float64{1, 0, 0}, 0, mPion)
	d := prt.GetDistanceFromPoint(NoField(), [3]float64{5, 0, 0})
	assert.InDelta(t, 1.0, d, 1e-12)
}

func TestGetDistanceFromParticle(t *testing.T) {
	d1 := makeTrack(t, [3]float64{-1, 0, 0}, [3]float64{1, 0, 0}, 0, mPion)
	d2 := makeTrack(t, [3]float64{-1, 0, 2}, [3]float64{1, 0.5, 0}, 0, mPion)
	d := d1.GetDistanceFromParticle(NoField(), d2)
	assert.InDelta(t, 2.0, d, 1e-9)
}

func TestGetDeviationFromPoint(t *testing.T) {
	prt := makeTrack(t, [3]float64{0, 1, 0}, [3]float64{1, 0, 0}, 0, mPion)

	// residual is 1 in y; the y variance stays 1e-4 because the transport
	// inflation acts along the momentum (x)
	dev := prt.GetDeviationFromPoint(NoField(), [3]float64{0, 0, 0}, [6]float64{})
	assert.InDelta(t, 100.0, dev, 1e-6)
}

func TestGetDeviationFromVertex(t *testing.T) {
	f := NoField()
	d1 := makeTrack(t, [3]float64{-1, 0, 0}, [3]float64{1, 0, 0}, 1, mPion)
	d2 := makeTrack(t, [3]float64{0, -1, 0}, [3]float64{0, 1, 0}, -1, mPion)
	vtx := NewParticle()
	require.NoError(t, vtx.Construct(f, []*Particle{d1, d2}, nil))

	// a daughter deviates weakly from its own vertex
	dev := d1.GetDeviationFromVertex(f, vtx)
	assert.False(t, math.IsNaN(dev))
	assert.Less(t, dev, 1.0)
}

func TestGetDeviationFromParticle(t *testing.T) {
	d1 := makeTrack(t, [3]float64{-1, 0, 0}, [3]float64{1, 0, 0}, 0, mPion)
	d2 := makeTrack(t, [3]float64{-1, 0, 2}, [3]float64{1, 0, 0}, 0, mPion)
	dev := d1.GetDeviationFromParticle(NoField(), d2)
	assert.False(t, math.IsNaN(dev))
	assert.Greater(t, dev, 10.0)
}

func TestGetDistanceToVertexLine(t *testing.T) {
	vtxParam := []float64{0, 0, 0, 0, 0, 0}
	vtxCov := make([]float64, 21)
	vtxCov[0], vtxCov[2], vtxCov[5] = 1e-6, 1e-6, 1e-6
	vtx := NewParticle()
	require.NoError(t, vtx.Initialize(vtxParam, vtxCov, 0, 0))

	away := makeTrack(t, [3]float64{0, 0, 10}, [3]float64{0, 0, 1}, 1, mPion)
	l, dl, fromVertex, ok := away.GetDistanceToVertexLine(vtx)
	assert.True(t, ok)
	assert.InDelta(t, 10.0, l, 1e-12)
	assert.Greater(t, dl, 0.0)
	assert.True(t, fromVertex)

	toward := makeTrack(t, [3]float64{0, 0, 10}, [3]float64{0, 0, -1}, 1, mPion)
	_, _, fromVertex, ok = toward.GetDistanceToVertexLine(vtx)
	assert.True(t, ok)
	assert.False(t, fromVertex)
}

func TestCovarianceOK(t *testing.T) {
	prt := makeTrack(t, [3]float64{0, 0, 0}, [3]float64{1, 0, 0}, 1, mPion)
	assert.True(t, prt.CovarianceOK())

	prt.SetCovariance(0, math.NaN())
	assert.False(t, prt.CovarianceOK())

	prt = makeTrack(t, [3]float64{0, 0, 0}, [3]float64{1, 0, 0}, 1, mPion)
	prt.SetCovariance(2, -1.0)
	assert.False(t, prt.CovarianceOK())
}
