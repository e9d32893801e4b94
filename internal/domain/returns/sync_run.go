package returns

import (
	"time"

	"github.com/google/uuid"
)

// SyncMode selects which search endpoints a sync run pages through.
type SyncMode string

const (
	SyncModeClaims  SyncMode = "claims"
	SyncModeReturns SyncMode = "returns"
	SyncModeBoth    SyncMode = "both"
)

// IsValid checks if the mode is valid
func (m SyncMode) IsValid() bool {
	switch m {
	case SyncModeClaims, SyncModeReturns, SyncModeBoth:
		return true
	}
	return false
}

// Kinds expands the mode into the record kinds it covers, claims first.
func (m SyncMode) Kinds() []RecordKind {
	switch m {
	case SyncModeClaims:
		return []RecordKind{KindClaim}
	case SyncModeReturns:
		return []RecordKind{KindReturn}
	default:
		return []RecordKind{KindClaim, KindReturn}
	}
}

// RunStatus is the lifecycle state of a sync run.
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusPartial RunStatus = "partial"
	RunStatusFailed  RunStatus = "failed"
)

// RunTrigger records who started a run.
type RunTrigger string

const (
	TriggerAPI       RunTrigger = "api"
	TriggerScheduler RunTrigger = "scheduler"
)

// SyncRun is the audit row of one sync invocation for one account.
type SyncRun struct {
	ID              uuid.UUID
	AccountID       string
	Mode            SyncMode
	Trigger         RunTrigger
	Status          RunStatus
	DateFrom        time.Time
	DateTo          time.Time
	StartedAt       time.Time
	FinishedAt      *time.Time
	TotalProcessed  int
	TotalCreated    int
	TotalUpdated    int
	TotalDuplicates int
	TotalSkipped    int
	Truncated       bool
	DurationMs      int64
	ErrorCode       *string
	ErrorMessage    *string
}

// NewSyncRun starts a run.
func NewSyncRun(accountID string, mode SyncMode, trigger RunTrigger, from, to time.Time, now time.Time) *SyncRun {
	return &SyncRun{
		ID:        uuid.New(),
		AccountID: accountID,
		Mode:      mode,
		Trigger:   trigger,
		Status:    RunStatusRunning,
		DateFrom:  from,
		DateTo:    to,
		StartedAt: now,
	}
}

// Complete closes the run, deriving the status from its counters.
func (r *SyncRun) Complete(now time.Time) {
	r.finish(now)
	if r.TotalSkipped > 0 || r.TotalDuplicates > 0 || r.Truncated {
		r.Status = RunStatusPartial
		return
	}
	r.Status = RunStatusSuccess
}

// Fail closes the run as failed. Counters gathered before the failure are kept.
func (r *SyncRun) Fail(now time.Time, code string, err error) {
	r.finish(now)
	r.Status = RunStatusFailed
	r.ErrorCode = &code
	if err != nil {
		msg := err.Error()
		r.ErrorMessage = &msg
	}
}

func (r *SyncRun) finish(now time.Time) {
	r.FinishedAt = &now
	r.DurationMs = now.Sub(r.StartedAt).Milliseconds()
}

// IsFinished reports whether the run has completed or failed.
func (r *SyncRun) IsFinished() bool {
	return r.FinishedAt != nil
}
