// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.7.18
//

package gokfp

// FieldFunc evaluates the magnetic field vector [kG] at a space point [cm].
// It must be deterministic and side-effect free; the engine makes no
// assumption about how it is computed (map lookup, analytic formula).
type FieldFunc func(x, y, z float64) (bx, by, bz float64)

// FieldModel selects the trajectory model used by transport and
// closest-approach solvers. The set is closed: collider geometries use a
// uniform Bz, fixed-target geometries a uniform By, arbitrary maps the
// iterative general model, and neutral or field-free tracks a straight line.
type FieldModel int

const (
	FieldLine FieldModel = iota // no field, straight-line trajectories
	FieldBz                     // uniform field along z
	FieldBy                     // uniform field along y
	FieldMap                    // general field from a FieldFunc
)

// Field is the per-call trajectory-model selector.
// B holds the magnitude for the uniform models, Eval the map for FieldMap.
type Field struct {
	Model FieldModel
	B     float64
	Eval  FieldFunc
}

func NoField() Field {
	return Field{Model: FieldLine}
}

func UniformBz(b float64) Field {
	return Field{Model: FieldBz, B: b}
}

func UniformBy(b float64) Field {
	return Field{Model: FieldBy, B: b}
}

func MapField(eval FieldFunc) Field {
	return Field{Model: FieldMap, Eval: eval}
}

// Value evaluates the field vector at a point under the selected model.
func (f Field) Value(x, y, z float64) (bx, by, bz float64) {
	switch f.Model {
	case FieldBz:
		return 0, 0, f.B
	case FieldBy:
		return 0, f.B, 0
	case FieldMap:
		return f.Eval(x, y, z)
	}
	return 0, 0, 0
}
