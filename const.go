// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.7.18
//

package gokfp

// Units: length in cm, momentum and energy in GeV/c and GeV, magnetic field
// in kG, charge in units of e. With these units q*B*CLight is the momentum
// rotation per cm of path.
const (
	CLight = 0.000299792458 // curvature constant [GeV/c per cm per kG per e]

	PriorPosVar = 1.0e6 // position variance of an empty composite before the first fusion [cm^2]

	MinPt2   = 1.0e-4  // pt^2 below which helix solvers treat the trajectory as a line [GeV^2]
	MinP2    = 1.0e-4  // p^2 below which a trajectory has no usable direction [GeV^2]
	SmallBq  = 1.0e-8  // curvature below which a trajectory is straight [1/cm]
	SmallDet = 1.0e-12 // pivot clamp for the packed 3x3 inversion

	// Iterative solvers run a fixed number of steps. The bounds are a
	// deliberate throughput/accuracy trade-off: callers needing higher
	// fidelity call the operation again.
	DSIterSteps         = 3  // Newton steps for general-field closest approach
	MassConstraintSteps = 12 // Newton steps for the mass-shell Lagrange multiplier
	FieldSubSteps       = 4  // uniform-helix substeps per general-field transport
)
