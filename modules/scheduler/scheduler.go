package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/GoCodeAlone/modkit"
	"github.com/GoCodeAlone/modkit/health"
	"github.com/GoCodeAlone/modkit/logging"
)

// JobFunc defines a function that can be executed as a job
type JobFunc func(ctx context.Context) error

// JobStatus represents the status of a job
type JobStatus string

const (
	// JobStatusPending indicates a job is waiting for its next run
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates a job is currently executing
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the last run succeeded
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the last run failed
	JobStatusFailed JobStatus = "failed"
)

// Job represents a recurring job
type Job struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Spec       string     `json:"spec"`
	Controller string     `json:"controller,omitempty"`
	Func       JobFunc    `json:"-"`
	Status     JobStatus  `json:"status"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	LastRun    *time.Time `json:"lastRun,omitempty"`
	NextRun    *time.Time `json:"nextRun,omitempty"`
	LastError  string     `json:"lastError,omitempty"`
}

// JobExecution records details about a single execution of a job
type JobExecution struct {
	JobID     string    `json:"jobId"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Status    JobStatus `json:"status"`
	Error     string    `json:"error,omitempty"`
}

// Scheduler runs jobs on cron schedules with a bounded worker pool.
//
// On Start it also schedules every controller method carrying a Cron
// attribute. The method is dispatched through the container, so its
// parameters other than the context are resolved on each run.
type Scheduler struct {
	App    *modkit.Application `inject:""`
	Config *Config             `inject:"optional"`

	mu      sync.Mutex
	ready   bool
	cfg     Config
	parser  cron.Parser
	store   *memoryStore
	cron    *cron.Cron
	entries map[string]cron.EntryID
	queue   chan string
	cancel  context.CancelFunc
	workers *sync.WaitGroup
	started bool
}

// New creates a scheduler outside the container.
func New(cfg Config) *Scheduler {
	return &Scheduler{Config: &cfg}
}

// setup applies the configuration. Callers hold s.mu.
func (s *Scheduler) setup() {
	if s.ready {
		return
	}
	if s.Config != nil {
		s.cfg = *s.Config
	}
	s.cfg.SetDefaults()

	fields := cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor
	if s.cfg.WithSeconds {
		fields |= cron.Second
	}
	s.parser = cron.NewParser(fields)
	s.store = newMemoryStore(s.cfg.HistorySize)
	s.entries = make(map[string]cron.EntryID)
	s.ready = true
}

func (s *Scheduler) logger() modkit.Logger {
	if s.App != nil {
		return s.App.Logger()
	}
	return logging.NewNop()
}

// Start starts the workers and the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.setup()

	if err := s.registerControllerJobs(); err != nil {
		return err
	}

	s.logger().Info("Starting scheduler", "workers", s.cfg.WorkerCount, "queueSize", s.cfg.QueueSize)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.queue = make(chan string, s.cfg.QueueSize)
	s.cron = cron.New(cron.WithParser(s.parser), cron.WithLogger(cronLogger{s.logger()}))

	// Each run gets its own group so a restart does not race a draining Stop.
	s.workers = &sync.WaitGroup{}
	for i := 0; i < s.cfg.WorkerCount; i++ {
		s.workers.Add(1)
		go s.worker(runCtx, i, s.queue, s.workers)
	}

	for _, job := range s.store.list() {
		if err := s.addEntry(job); err != nil {
			cancel()
			s.workers.Wait()
			return err
		}
	}

	s.cron.Start()
	s.started = true
	return nil
}

// registerControllerJobs adds one job per Cron attribute. Jobs already
// known from a previous start are kept.
func (s *Scheduler) registerControllerJobs() error {
	if s.App == nil {
		return nil
	}

	for _, reg := range modkit.RegistrationsOf[Cron](s.App.ControllerManager()) {
		for i, attr := range modkit.AttributesOf[Cron](reg) {
			id := fmt.Sprintf("%T.%s", reg.Target, reg.MethodName)
			if i > 0 {
				id = fmt.Sprintf("%s#%d", id, i)
			}
			if _, err := s.store.get(id); err == nil {
				continue
			}

			name := attr.Name
			if name == "" {
				name = id
			}
			job := Job{
				ID:         id,
				Name:       name,
				Spec:       attr.Spec,
				Controller: fmt.Sprintf("%T.%s", reg.Target, reg.MethodName),
				Func: func(ctx context.Context) error {
					_, err := reg.Invoke(ctx)
					return err
				},
			}
			if err := s.addJob(job); err != nil {
				return fmt.Errorf("schedule %s: %w", id, err)
			}
		}
	}
	return nil
}

// Schedule adds a recurring job and returns its id.
func (s *Scheduler) Schedule(name, spec string, fn JobFunc) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setup()

	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	job := Job{ID: id.String(), Name: name, Spec: spec, Func: fn}
	if err := s.addJob(job); err != nil {
		return "", err
	}
	if s.started {
		if err := s.addEntry(job); err != nil {
			return "", err
		}
	}
	return job.ID, nil
}

// addJob validates and stores job. Callers hold s.mu.
func (s *Scheduler) addJob(job Job) error {
	if job.Func == nil {
		return ErrJobFuncRequired
	}
	schedule, err := s.parser.Parse(job.Spec)
	if err != nil {
		return fmt.Errorf("%w '%s': %w", ErrInvalidSchedule, job.Spec, err)
	}

	now := time.Now()
	next := schedule.Next(now)
	job.Status = JobStatusPending
	job.CreatedAt = now
	job.UpdatedAt = now
	job.NextRun = &next
	if err := s.store.add(job); err != nil {
		return err
	}

	s.logger().Debug("Job scheduled", "id", job.ID, "name", job.Name, "spec", job.Spec)
	s.emit(context.Background(), EventTypeJobScheduled, map[string]any{"id": job.ID, "name": job.Name, "spec": job.Spec})
	return nil
}

// addEntry registers job with the running cron loop. Callers hold s.mu.
func (s *Scheduler) addEntry(job Job) error {
	schedule, err := s.parser.Parse(job.Spec)
	if err != nil {
		return fmt.Errorf("%w '%s': %w", ErrInvalidSchedule, job.Spec, err)
	}

	queue := s.queue
	s.entries[job.ID] = s.cron.Schedule(schedule, cron.FuncJob(func() {
		s.enqueue(queue, job.ID)
	}))
	return nil
}

func (s *Scheduler) enqueue(queue chan string, id string) error {
	select {
	case queue <- id:
		return nil
	default:
		s.logger().Warn("Job queue is full, job execution delayed", "id", id)
		return fmt.Errorf("%w: %s", ErrQueueFull, id)
	}
}

// Trigger queues an immediate run of the job.
func (s *Scheduler) Trigger(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return ErrNotStarted
	}
	if _, err := s.store.get(id); err != nil {
		return err
	}
	return s.enqueue(s.queue, id)
}

// Remove deletes a job and its history.
func (s *Scheduler) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setup()

	if entry, ok := s.entries[id]; ok {
		s.cron.Remove(entry)
		delete(s.entries, id)
	}
	if err := s.store.remove(id); err != nil {
		return err
	}
	s.emit(context.Background(), EventTypeJobRemoved, map[string]any{"id": id})
	return nil
}

// Jobs returns every job in the order it was scheduled.
func (s *Scheduler) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setup()
	return s.store.list()
}

// Job returns one job.
func (s *Scheduler) Job(id string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setup()
	return s.store.get(id)
}

// History returns the recent executions of a job, oldest first.
func (s *Scheduler) History(id string) []JobExecution {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setup()
	return s.store.history(id)
}

func (s *Scheduler) worker(ctx context.Context, id int, queue chan string, workers *sync.WaitGroup) {
	defer workers.Done()

	s.logger().Debug("Starting worker", "id", id)
	for {
		select {
		case <-ctx.Done():
			s.logger().Debug("Worker stopping", "id", id)
			return
		case jobID := <-queue:
			s.execute(ctx, jobID)
		}
	}
}

// execute runs a job and records its execution
func (s *Scheduler) execute(ctx context.Context, id string) {
	job, err := s.store.update(id, func(j *Job) { j.Status = JobStatusRunning })
	if err != nil {
		s.logger().Debug("Skipping removed job", "id", id)
		return
	}

	s.emit(ctx, EventTypeJobStarted, map[string]any{"id": job.ID, "name": job.Name})
	execution := JobExecution{JobID: job.ID, StartTime: time.Now()}
	err = run(ctx, job.Func)
	execution.EndTime = time.Now()

	status := JobStatusCompleted
	eventType := EventTypeJobCompleted
	if err != nil {
		status = JobStatusFailed
		eventType = EventTypeJobFailed
		execution.Error = err.Error()
		s.logger().Error("Job execution failed", "id", job.ID, "name", job.Name, "error", err)
	} else {
		s.logger().Debug("Job execution completed", "id", job.ID, "name", job.Name)
	}
	execution.Status = status
	s.store.record(execution)

	_, _ = s.store.update(id, func(j *Job) {
		j.Status = status
		j.LastRun = &execution.StartTime
		j.LastError = execution.Error
		if schedule, perr := s.parser.Parse(j.Spec); perr == nil {
			next := schedule.Next(execution.EndTime)
			j.NextRun = &next
		}
	})

	data := map[string]any{"id": job.ID, "name": job.Name, "duration": execution.EndTime.Sub(execution.StartTime).String()}
	if err != nil {
		data["error"] = err.Error()
	}
	s.emit(ctx, eventType, data)
}

func run(ctx context.Context, fn JobFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return fn(ctx)
}

// Stop stops the cron loop and waits for running jobs. The lock is released
// before waiting, so running jobs may still call back into the scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.logger().Info("Stopping scheduler")

	cronCtx := s.cron.Stop()
	s.cancel()
	clear(s.entries)
	workers := s.workers
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		workers.Wait()
		<-cronCtx.Done()
		close(done)
	}()

	timeout := time.NewTimer(s.cfg.ShutdownTimeout)
	defer timeout.Stop()

	select {
	case <-done:
		s.logger().Info("Scheduler stopped gracefully")
		return nil
	case <-timeout.C:
		return fmt.Errorf("scheduler shutdown: %w", context.DeadlineExceeded)
	case <-ctx.Done():
		return fmt.Errorf("scheduler shutdown: %w", ctx.Err())
	}
}

// Name implements health.Checker.
func (s *Scheduler) Name() string { return "scheduler" }

// Check implements health.Checker.
func (s *Scheduler) Check(ctx context.Context) (*health.CheckResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := &health.CheckResult{Status: health.StatusHealthy, Message: "running"}
	if !s.started {
		result.Status = health.StatusWarning
		result.Message = "not started"
	}
	if s.ready {
		failed := 0
		jobs := s.store.list()
		for _, j := range jobs {
			if j.Status == JobStatusFailed {
				failed++
			}
		}
		result.Details = map[string]any{"jobs": len(jobs), "failed": failed}
	}
	return result, nil
}

func (s *Scheduler) emit(ctx context.Context, eventType string, data map[string]any) {
	if s.App == nil {
		return
	}
	if err := s.App.NotifyObservers(ctx, modkit.NewCloudEvent(eventType, "modkit/scheduler", data, nil)); err != nil {
		s.logger().Warn("Failed to emit scheduler event", "event", eventType, "error", err)
	}
}

// cronLogger routes cron's own logs to the application logger.
type cronLogger struct {
	logger modkit.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
