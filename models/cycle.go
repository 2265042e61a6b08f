package models

// PollCycle is a persisted summary of one orchestrator cycle.
type PollCycle struct {
	ID         int64  `json:"id"          db:"id"`
	CycleID    string `json:"cycle_id"    db:"cycle_id"`
	StartedAt  string `json:"started_at"  db:"started_at"`
	DurationMS int64  `json:"duration_ms" db:"duration_ms"`
	Targets    int    `json:"targets"     db:"targets"`
	Failed     int    `json:"failed"      db:"failed"`
	NewEntries int    `json:"new_entries" db:"new_entries"`
	Batches    int    `json:"batches"     db:"batches"`
	Errors     string `json:"errors"      db:"errors"` // JSON array of "repo: error"
}
