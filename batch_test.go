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

func TestMask(t *testing.T) {
	assert.True(t, Mask{true, true}.All())
	assert.False(t, Mask{true, false}.All())
	assert.True(t, Mask{false, true}.Any())
	assert.False(t, Mask{false, false}.Any())
	assert.Equal(t, 2, Mask{true, false, true}.Count())
	assert.True(t, Mask{}.All())
	assert.False(t, Mask{}.Any())
}

func batchInput(n int) (param, cov [][]float64, charge, mass []float64) {
	for i := 0; i < n; i++ {
		fi := float64(i)
		param = append(param, []float64{fi, 0, 0, 1, 0.1 * fi, 0.5})
		c := make([]float64, 21)
		c[0], c[2], c[5] = 1e-4, 1e-4, 1e-4
		c[9], c[14], c[20] = 1e-6, 1e-6, 1e-6
		cov = append(cov, c)
		charge = append(charge, 1)
		mass = append(mass, mPion)
	}
	return param, cov, charge, mass
}

func TestBatchLockstepMatchesScalar(t *testing.T) {
	const n = 3
	f := UniformBz(5)

	b := NewBatch(n)
	param, cov, charge, mass := batchInput(n)
	require.NoError(t, b.Initialize(param, cov, charge, mass))

	ds := []float64{0.5, 1.0, 1.5}
	require.NoError(t, b.TransportToDS(f, ds))

	for i := 0; i < n; i++ {
		scalar := NewParticle()
		require.NoError(t, scalar.Initialize(param[i], cov[i], charge[i], mass[i]))
		scalar.TransportToDS(f, ds[i])

		if diff := cmp.Diff(scalar.Parameters(), b.Lane(i).Parameters(),
			cmpopts.EquateApprox(0, 1e-12)); diff != "" {
			t.Errorf("lane %d parameters diverge from scalar (-want +got):\n%s", i, diff)
		}
		if diff := cmp.Diff(scalar.CovarianceMatrix(), b.Lane(i).CovarianceMatrix(),
			cmpopts.EquateApprox(0, 1e-12)); diff != "" {
			t.Errorf("lane %d covariance diverges from scalar (-want +got):\n%s", i, diff)
		}
	}
}

func TestBatchWidthMismatch(t *testing.T) {
	b := NewBatch(2)
	assert.Error(t, b.TransportToDS(NoField(), []float64{1}))
	assert.Error(t, b.AddDaughter(NoField(), NewBatch(3), false))

	param, cov, charge, mass := batchInput(3)
	assert.Error(t, b.Initialize(param, cov, charge, mass))
}

func TestBatchDegenerateLaneIsConfined(t *testing.T) {
	const n = 3
	b := NewBatch(n)
	param, cov, charge, mass := batchInput(n)
	require.NoError(t, b.Initialize(param, cov, charge, mass))

	// poison one lane; the others must stay valid through an operation
	b.Lane(1).SetCovariance(0, math.NaN())
	require.NoError(t, b.TransportToDS(UniformBz(5), []float64{1, 1, 1}))

	valid := b.Valid()
	assert.True(t, valid[0])
	assert.False(t, valid[1])
	assert.True(t, valid[2])

	mass2, _, ok := b.GetMass()
	assert.True(t, ok[0])
	assert.True(t, ok[2])
	assert.InDelta(t, mPion, mass2[0], 1e-9)
	assert.InDelta(t, mPion, mass2[2], 1e-9)
}

func TestBatchGetMass(t *testing.T) {
	const n = 2
	b := NewBatch(n)
	param, cov, charge, mass := batchInput(n)
	require.NoError(t, b.Initialize(param, cov, charge, mass))

	got, sigma, ok := b.GetMass()
	assert.True(t, ok.All())
	for i := 0; i < n; i++ {
		assert.InDelta(t, mPion, got[i], 1e-12, "lane %d", i)
		assert.Greater(t, sigma[i], 0.0, "lane %d", i)
	}

	b.SetNonlinearMassConstraint(0.1)
	got, _, _ = b.GetMass()
	for i := 0; i < n; i++ {
		assert.InDelta(t, 0.1, got[i], 1e-6, "lane %d", i)
	}
}

func TestBatchApply(t *testing.T) {
	b := NewBatch(4)
	b.Apply(func(i int, prt *Particle) { prt.SetId(i * 10) })
	assert.Equal(t, 30, b.Lane(3).Id())
}
