package domain

import (
	"slices"
	"time"
)

// Snapshot is one immutable capture of the full dataset. Records keep source row
// order and each record keeps source column order; both orders take part in Equal.
// The zero value is an empty snapshot captured at the zero time.
type Snapshot struct {
	records    []Record
	capturedAt time.Time
}

// NewSnapshot copies records into a new snapshot so later changes to the input
// slice cannot leak into it.
func NewSnapshot(records []Record, capturedAt time.Time) Snapshot {
	return Snapshot{
		records:    cloneRecords(records),
		capturedAt: capturedAt,
	}
}

// Records returns a copy of the snapshot's records. Never nil.
func (s Snapshot) Records() []Record {
	return cloneRecords(s.records)
}

// TotalRecords is always equal to len(Records()).
func (s Snapshot) TotalRecords() int {
	return len(s.records)
}

func (s Snapshot) CapturedAt() time.Time {
	return s.capturedAt
}

// Equal compares record counts first, then the ordered record sequences.
// The capture time is ignored.
func (s Snapshot) Equal(other Snapshot) bool {
	if len(s.records) != len(other.records) {
		return false
	}
	return slices.EqualFunc(s.records, other.records, Record.Equal)
}

func cloneRecords(records []Record) []Record {
	out := make([]Record, len(records))
	for i, r := range records {
		out[i] = slices.Clone(r)
	}
	return out
}
