package scheduler

import (
	"errors"
)

var (
	ErrJobAlreadyExists = errors.New("job already exists")
	ErrJobNotFound      = errors.New("job not found")
	ErrInvalidSchedule  = errors.New("invalid cron schedule")
	ErrJobFuncRequired  = errors.New("job function is required")
	ErrNotStarted       = errors.New("scheduler is not started")
	ErrQueueFull        = errors.New("job queue is full")
)
