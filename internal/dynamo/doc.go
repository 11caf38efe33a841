// Package dynamo provides the core types shared by movement primitive components.
//
// The package defines the state representations and the collaborator interfaces
// that the tick-level systems are written against:
//
//   - [State]: Cartesian position, velocity and acceleration
//   - [QuatState]: unit-quaternion orientation with angular velocity and acceleration
//   - [ForcingTermApproximator]: learned nonlinear forcing term
//   - [CouplingTerm]: additive acceleration and velocity corrections
//   - [DataLogger]: per-tick trajectory recording
//   - [Diagnostics]: sink for every error a component reports
//
// # Errors
//
// Every failing operation returns an error wrapping one of [ErrPrecondition],
// [ErrValidity], [ErrNumericDivergence] or [ErrCapacityExceeded]. Match them with
// errors.Is.
//
// # Thread Safety
//
// None of the systems built on these types are safe for concurrent use. A
// primitive instance belongs to the control thread that steps it.
package dynamo
