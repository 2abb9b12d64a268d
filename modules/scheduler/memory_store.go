package scheduler

import (
	"fmt"
	"slices"
	"sync"
	"time"
)

// memoryStore keeps jobs and a bounded execution history in memory.
type memoryStore struct {
	mu          sync.RWMutex
	jobs        map[string]Job
	order       []string
	executions  map[string][]JobExecution
	historySize int
}

func newMemoryStore(historySize int) *memoryStore {
	return &memoryStore{
		jobs:        make(map[string]Job),
		executions:  make(map[string][]JobExecution),
		historySize: historySize,
	}
}

func (s *memoryStore) add(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, job.ID)
	}
	s.jobs[job.ID] = job
	s.order = append(s.order, job.ID)
	return nil
}

// update applies fn to the stored job.
func (s *memoryStore) update(id string, fn func(*Job)) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[id]
	if !exists {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	fn(&job)
	job.UpdatedAt = time.Now()
	s.jobs[id] = job
	return job, nil
}

func (s *memoryStore) get(id string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[id]
	if !exists {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return job, nil
}

// list returns the jobs in the order they were added.
func (s *memoryStore) list() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]Job, 0, len(s.order))
	for _, id := range s.order {
		jobs = append(jobs, s.jobs[id])
	}
	return jobs
}

func (s *memoryStore) remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[id]; !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	delete(s.jobs, id)
	delete(s.executions, id)
	s.order = slices.DeleteFunc(s.order, func(v string) bool { return v == id })
	return nil
}

// record appends an execution, dropping the oldest beyond historySize.
func (s *memoryStore) record(execution JobExecution) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := append(s.executions[execution.JobID], execution)
	if s.historySize > 0 && len(history) > s.historySize {
		history = history[len(history)-s.historySize:]
	}
	s.executions[execution.JobID] = history
}

func (s *memoryStore) history(id string) []JobExecution {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.executions[id])
}
