package ledger

import "time"

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	// StatusReview marks runs that stopped on operator-fixable input such as a
	// missing cover or a bad flag.
	StatusReview Status = "review"
)

// Terminal reports whether no further transitions are expected.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusReview
}

// StageStatus is the outcome of one stage.
type StageStatus string

const (
	StageCompleted StageStatus = "completed"
	// StageSkipped marks stages that returned their input unchanged.
	StageSkipped StageStatus = "skipped"
	StageFailed  StageStatus = "failed"
)

// Run is one pipeline invocation.
type Run struct {
	ID         string
	Input      string
	Output     string
	Mode       string
	Status     Status
	Error      string
	Hint       string
	StartedAt  time.Time
	FinishedAt *time.Time
	Stages     []Stage
}

// Duration is the wall time of a finished run, or zero while running.
func (r Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Stage is one executed pipeline stage.
type Stage struct {
	RunID     string
	Seq       int
	Name      string
	Status    StageStatus
	Input     string
	Output    string
	Elapsed   time.Duration
	Error     string
	StartedAt time.Time
}
