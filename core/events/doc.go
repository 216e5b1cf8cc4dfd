// Package events defines the dispatching events emitted on the event bus.
//
// Available event types:
//   - PlanEvent: a new or revised plan was committed
//   - ConflictEvent: an unresolved occupancy conflict was detected
//   - OverrideEvent: a controller override was applied or rejected
//   - AlertEvent: an operational alert (degraded solutions, infeasibility)
//   - StateEvent: a dispatcher state transition
package events
