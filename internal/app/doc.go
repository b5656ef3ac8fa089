// Package app wires the sheet pipeline to the live sessions.
//
// The Engine owns the two periodic use cases: Refresh (fetch, normalize,
// detect change, publish) and SweepStale (probe sessions, drop the dead ones).
// The Scheduler drives both without ever letting a job overlap itself.
package app
