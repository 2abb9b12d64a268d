package eventlogger

// Event types emitted by the event logger. The logger never logs its own
// events.
const (
	EventTypeLoggerStarted = "com.modkit.eventlogger.started"
	EventTypeLoggerStopped = "com.modkit.eventlogger.stopped"
	EventTypeEventDropped  = "com.modkit.eventlogger.event.dropped"
	EventTypeOutputError   = "com.modkit.eventlogger.output.error"
)

// EventSource is the CloudEvents source of the logger's own events.
const EventSource = "modkit/eventlogger"
