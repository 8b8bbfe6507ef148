package model

import "time"

// JobState is the lifecycle state of a remote query execution.
type JobState string

const (
	JobPending   JobState = "PENDING"
	JobExecuting JobState = "EXECUTING"
	JobCompleted JobState = "COMPLETED"
	JobFailed    JobState = "FAILED"
	JobTimedOut  JobState = "TIMED_OUT"
)

// Terminal reports whether no further transition can happen.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobTimedOut
}

// JobExecution is the handle returned when a query execution is submitted.
type JobExecution struct {
	ID          string    `json:"execution_id"`
	QueryID     string    `json:"query_id"`
	State       JobState  `json:"state"`
	SubmittedAt time.Time `json:"submitted_at"`
	Polls       int       `json:"polls"`
}
