// Package schedule implements the constraint-based movement planner. Given
// the network, the active trains and per-train delay estimates it produces a
// plan of resource-time reservations that satisfies route order, capacity and
// headway constraints, optimizing weighted delay and throughput within a
// wall-clock budget. Re-optimization can warm-start from a prior plan,
// re-solving only the trains touched by a disruption delta.
package schedule
