// Package sim implements the disruption and what-if simulator. It plays a
// committed plan forward as a discrete-event process: time jumps between
// scheduled resource entries, exits and injected disruptions, so the cost of
// a run is proportional to the event count rather than the horizon length.
// Scenario runs are isolated; the same plan and seed always reproduce the
// same conflicts and KPI snapshot.
package sim
