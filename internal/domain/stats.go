package domain

import "time"

const StatusOperational = "operational"

// Stats is the engine summary exposed on the stats endpoint.
type Stats struct {
	LiveSessionCount  int        `json:"live_session_count"`
	CachedRecordCount int        `json:"cached_record_count"`
	LastUpdate        *time.Time `json:"last_update_timestamp"`
	Status            string     `json:"status"`
}
