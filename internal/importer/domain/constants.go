package domain

// JobStatus is the lifecycle state of a bulk import job
type JobStatus string

// Job status constants
const (
	JobStatusPending             JobStatus = "PENDING"
	JobStatusRunning             JobStatus = "RUNNING"
	JobStatusCompleted           JobStatus = "COMPLETED"
	JobStatusCompletedWithErrors JobStatus = "COMPLETED_WITH_ERRORS"
	JobStatusFailed              JobStatus = "FAILED"
)

// IsTerminal reports whether no further transitions can happen
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusCompletedWithErrors, JobStatusFailed:
		return true
	}
	return false
}

// ItemStatus is the lifecycle state of one post inside a job
type ItemStatus string

// Item status constants
const (
	ItemStatusPending    ItemStatus = "PENDING"
	ItemStatusInProgress ItemStatus = "IN_PROGRESS"
	ItemStatusSucceeded  ItemStatus = "SUCCEEDED"
	ItemStatusFailed     ItemStatus = "FAILED"
)

// IsTerminal reports whether the item outcome has been recorded
func (s ItemStatus) IsTerminal() bool {
	return s == ItemStatusSucceeded || s == ItemStatusFailed
}

// Valid reports whether s is a known item status
func (s ItemStatus) Valid() bool {
	switch s {
	case ItemStatusPending, ItemStatusInProgress, ItemStatusSucceeded, ItemStatusFailed:
		return true
	}
	return false
}

// Item error codes stored alongside errorDetail
const (
	ErrorCodeParse       = "PARSE_ERROR"
	ErrorCodePersistence = "PERSISTENCE_ERROR"
	ErrorCodeFetchPrefix = "FETCH_"
)
