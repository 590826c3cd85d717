package ledger

import (
	"time"
)

// Disposition tracks how far a request got through its lifecycle.
type Disposition string

const (
	// DispositionSubmitted is journaled at ingress, before authorization.
	DispositionSubmitted Disposition = "submitted"
	// DispositionCompleted is journaled after a successful operation.
	DispositionCompleted Disposition = "completed"
	// DispositionFailed is journaled for rejected and failed requests.
	DispositionFailed Disposition = "failed"
)

// Queue names, one ordered channel per disposition. Consumers correlate
// across channels by trace id, never by arrival order.
const (
	QueueSubmitted = "ledger_submitted"
	QueueCompleted = "ledger_completed"
	QueueFailed    = "ledger_failed"
)

// Task types carried on the queues.
const (
	TaskTraceSubmitted = "ledger:trace:submitted"
	TaskTraceCompleted = "ledger:trace:completed"
	TaskTraceFailed    = "ledger:trace:failed"
)

// Trace is the handle Begin returns; callers thread it through to
// RecordOutcome so terminal entries carry the same identifiers.
type Trace struct {
	ID          string
	Source      string
	Endpoint    string
	ActorID     *int64
	SubmittedAt time.Time
}

// Entry is the wire shape journaled onto the ledger queues.
type Entry struct {
	TraceID     string      `json:"trace_id"`
	Timestamp   time.Time   `json:"timestamp"`
	Source      string      `json:"source"`
	ActorID     *int64      `json:"actor_id"`
	Endpoint    string      `json:"endpoint"`
	Disposition Disposition `json:"disposition"`
	ErrorCode   *string     `json:"error_code"`
}
