// Package domain holds the value types shared by the sheet, broadcast and app
// packages: records, snapshots, wire messages, stats and the error taxonomy.
// It does no I/O.
package domain
