// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.7.23
//

// Lane-parallel processing: a Batch advances N independent fits in lockstep
// through the same operation sequence. Degenerate lanes are not exceptional;
// their NaNs stay confined to the lane, and a Mask reports which lanes
// remain usable.

package gokfp

import "fmt"

// Mask marks the valid lanes of a batch.
type Mask []bool

func (m Mask) All() bool {
	for _, v := range m {
		if !v {
			return false
		}
	}
	return true
}

func (m Mask) Any() bool {
	for _, v := range m {
		if v {
			return true
		}
	}
	return false
}

func (m Mask) Count() int {
	n := 0
	for _, v := range m {
		if v {
			n++
		}
	}
	return n
}

// Batch is a fixed-width set of particle lanes.
type Batch struct {
	lanes []Particle
}

func NewBatch(n int) *Batch {
	b := &Batch{lanes: make([]Particle, n)}
	for i := range b.lanes {
		b.lanes[i].Reset()
	}
	return b
}

func (b *Batch) Width() int           { return len(b.lanes) }
func (b *Batch) Lane(i int) *Particle { return &b.lanes[i] }

// Apply runs fn on every lane.
func (b *Batch) Apply(fn func(i int, prt *Particle)) {
	for i := range b.lanes {
		fn(i, &b.lanes[i])
	}
}

// Initialize seeds every lane from its own track parameters. The slices
// index lane-major: param[i] and cov[i] belong to lane i.
func (b *Batch) Initialize(param [][]float64, cov [][]float64, charge, mass []float64) error {
	n := len(b.lanes)
	if len(param) != n || len(cov) != n || len(charge) != n || len(mass) != n {
		return fmt.Errorf("Initialize() failed, err= input width mismatch, want %d lanes", n)
	}
	for i := range b.lanes {
		if err := b.lanes[i].Initialize(param[i], cov[i], charge[i], mass[i]); err != nil {
			return fmt.Errorf("Initialize() failed, err= lane %d: %s", i, err)
		}
	}
	return nil
}

// AddDaughter fuses lane i of d into lane i of the batch, for all lanes.
func (b *Batch) AddDaughter(f Field, d *Batch, atVtxGuess bool) error {
	if len(d.lanes) != len(b.lanes) {
		return fmt.Errorf("AddDaughter() failed, err= width mismatch %d vs %d", len(d.lanes), len(b.lanes))
	}
	for i := range b.lanes {
		b.lanes[i].AddDaughter(f, &d.lanes[i], atVtxGuess)
	}
	return nil
}

// TransportToDS moves every lane by its own path parameter.
func (b *Batch) TransportToDS(f Field, ds []float64) error {
	if len(ds) != len(b.lanes) {
		return fmt.Errorf("TransportToDS() failed, err= width mismatch %d vs %d", len(ds), len(b.lanes))
	}
	for i := range b.lanes {
		b.lanes[i].TransportToDS(f, ds[i])
	}
	return nil
}

// SetNonlinearMassConstraint projects every lane onto the mass shell.
func (b *Batch) SetNonlinearMassConstraint(mass float64) {
	for i := range b.lanes {
		b.lanes[i].SetNonlinearMassConstraint(mass)
	}
}

// GetMass returns the fitted mass and its uncertainty per lane, with the
// mask reporting the lanes where the mass is defined.
func (b *Batch) GetMass() (mass, sigma []float64, ok Mask) {
	n := len(b.lanes)
	mass = make([]float64, n)
	sigma = make([]float64, n)
	ok = make(Mask, n)
	for i := range b.lanes {
		mass[i], sigma[i], ok[i] = b.lanes[i].GetMass()
	}
	return mass, sigma, ok
}

// Valid returns the per-lane covariance validity mask.
func (b *Batch) Valid() Mask {
	ok := make(Mask, len(b.lanes))
	for i := range b.lanes {
		ok[i] = b.lanes[i].CovarianceOK()
	}
	return ok
}
