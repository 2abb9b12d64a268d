package eventlogger

import (
	"errors"
	"fmt"
)

var (
	ErrLoggerNotStarted  = errors.New("event logger not started")
	ErrEventBufferFull   = errors.New("event buffer is full")
	ErrUnknownOutputType = errors.New("unknown output type")
	ErrFileNotOpen       = errors.New("file not open")
)

// OutputError wraps an error of the output at Index.
type OutputError struct {
	Index int
	Err   error
}

func (e *OutputError) Error() string {
	return fmt.Sprintf("output %d: %v", e.Index, e.Err)
}

func (e *OutputError) Unwrap() error {
	return e.Err
}
