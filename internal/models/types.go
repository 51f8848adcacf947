package models

import "time"

// TimeEntry is a single tracked interval. EndTime == nil means the entry is
// open, i.e. the user's currently running timer. DurationMinutes is a cached
// derivation of (EndTime - StartTime) and is nil exactly when EndTime is nil.
type TimeEntry struct {
	ID               int64      `db:"id" json:"id"`
	UserID           string     `db:"user_id" json:"-"`
	CategoryID       int64      `db:"category_id" json:"category_id"`
	TaskName         *string    `db:"task_name" json:"task_name"`
	StartTime        time.Time  `db:"start_time" json:"start_time"`
	EndTime          *time.Time `db:"end_time" json:"end_time"`
	ScheduledEndTime *time.Time `db:"scheduled_end_time" json:"scheduled_end_time"`
	DurationMinutes  *int64     `db:"duration_minutes" json:"duration_minutes"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
}

// Open reports whether the entry is the running timer.
func (e *TimeEntry) Open() bool {
	return e.EndTime == nil
}

// Category is owned by the categories collaborator; the core only resolves
// ids and names against it, scoped by user.
type Category struct {
	ID     int64  `db:"id" json:"id"`
	UserID string `db:"user_id" json:"-"`
	Name   string `db:"name" json:"name"`
	Color  string `db:"color" json:"color"`
}

// Sync event types carried on the push stream.
const (
	SyncTimeEntries = "time-entries"
	SyncCategories  = "categories"
	SyncAll         = "all"
)

// Sync event sources, set by the consumer side to tell a server-pushed event
// from one echoed by a sibling tab.
const (
	SourcePush       = "push"
	SourceLocalRelay = "local-relay"
)

// SyncEvent is the ephemeral change notification fanned out to live
// connections. Sequence is a process-wide monotonic counter; it orders events
// on a single connection and is not comparable across processes or transports.
type SyncEvent struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Sequence  int64     `json:"sequence,omitempty"`
	Source    string    `json:"source,omitempty"`
}
