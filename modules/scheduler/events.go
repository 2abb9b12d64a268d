package scheduler

// Event type constants for scheduler events.
// Following CloudEvents specification reverse domain notation.
const (
	EventTypeJobScheduled = "com.modkit.scheduler.job.scheduled"
	EventTypeJobStarted   = "com.modkit.scheduler.job.started"
	EventTypeJobCompleted = "com.modkit.scheduler.job.completed"
	EventTypeJobFailed    = "com.modkit.scheduler.job.failed"
	EventTypeJobRemoved   = "com.modkit.scheduler.job.removed"
)
