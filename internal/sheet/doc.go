// Package sheet turns the published spreadsheet into snapshots: it downloads the
// CSV export with bounded retries, normalizes rows into ordered records off the
// I/O path, and keeps the latest snapshot for change detection.
package sheet
