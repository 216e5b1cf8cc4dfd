// Package dispatcher drives the continuous plan/execute/react loop.
//
// The dispatcher owns the committed plan and the authoritative train set. It
// reacts to disruption reports with rapid warm-started replans, applies
// controller overrides between solves, and degrades explicitly when no
// feasible plan exists instead of committing a conflicting one: affected
// trains are held at the conflict until released. Overrides are accepted
// once a plan is executing; emergency mode keeps the solver running but
// suspends commits, so its output is advisory until deactivation.
package dispatcher
