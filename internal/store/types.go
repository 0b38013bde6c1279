package store

import "time"

// Session statuses.
const (
	StatusRunning  = "running"
	StatusFinished = "finished"
	StatusAborted  = "aborted"
)

// Tasks stored in the sessions table.
const (
	TaskNBack   = "nback"
	TaskFlanker = "flanker"
	TaskStroop  = "stroop"
)

// Session is a stored session row.
type Session struct {
	ID          string
	Participant string
	Task        string
	StartedAt   time.Time
	EndedAt     time.Time
	FinalN      int
	// Protocol is the task configuration the session ran with, JSON
	// encoded.
	Protocol string
	Status   string
}

// Round is a stored round row. Stats holds the JSON encoded per-modality
// statistics.
type Round struct {
	SessionID      string
	Round          int
	N              int
	NextN          int
	Trials         int
	VisualAccuracy float64
	AudioAccuracy  float64
	Stats          string
	StartedAt      time.Time
	EndedAt        time.Time
}

// Export records a written result file.
type Export struct {
	Path      string
	SessionID string
	Kind      string
	Digest    string
	Size      int64
	CreatedAt time.Time
}
