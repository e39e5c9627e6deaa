package entities

import "time"

// ExtractionRun is an audit record of one extraction call for a session.
type ExtractionRun struct {
	ID              string    `json:"id" db:"id"`
	SessionID       string    `json:"session_id" db:"session_id"`
	Engine          string    `json:"engine" db:"engine"`
	TranscriptChars int       `json:"transcript_chars" db:"transcript_chars"`
	Medications     int       `json:"medications" db:"medications"`
	Labs            int       `json:"labs" db:"labs"`
	Dropped         int       `json:"dropped" db:"dropped"`
	DropReasons     []string  `json:"drop_reasons,omitempty" db:"drop_reasons"`
	DurationMs      int64     `json:"duration_ms" db:"duration_ms"`
	Error           string    `json:"error,omitempty" db:"error"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// DistinctDropReasons returns each drop reason once, in first-seen order.
func DistinctDropReasons(dropped []Drop) []string {
	seen := make(map[DropReason]bool, len(dropped))
	out := make([]string, 0, len(dropped))
	for _, d := range dropped {
		if seen[d.Reason] {
			continue
		}
		seen[d.Reason] = true
		out = append(out, string(d.Reason))
	}
	return out
}
