package job

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/valscreen/internal/core"
)

// Status represents job status.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusComplete  Status = "complete"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the job can no longer change.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusCancelled || s == StatusFailed
}

// Job is one asynchronous index scan.
type Job struct {
	ID        string            `json:"id"`
	Index     string            `json:"index"`
	Limit     uint              `json:"limit"`
	Status    Status            `json:"status"`
	Completed int               `json:"completed"`
	Total     int               `json:"total"`
	Progress  float64           `json:"progress"`
	Result    *core.ResultTable `json:"result,omitempty"`
	Error     string            `json:"error,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`

	cancel context.CancelFunc
}

// SetProgress records completed/total and the derived fraction.
func (j *Job) SetProgress(completed, total int) {
	j.Completed = completed
	j.Total = total
	if total > 0 {
		j.Progress = float64(completed) / float64(total)
	}
}

// Store keeps scan jobs in memory. Finished jobs expire after ttl and the
// oldest job is evicted once maxSize is reached.
type Store struct {
	jobs    map[string]*Job
	order   []string // insertion order for eviction
	maxSize int
	ttl     time.Duration
	mu      sync.RWMutex
	now     func() time.Time
}

// NewStore creates a new job store.
func NewStore(maxSize int, ttl time.Duration) *Store {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &Store{
		jobs:    make(map[string]*Job),
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Create registers a pending scan. cancel is invoked by Cancel.
func (s *Store) Create(index string, limit uint, cancel context.CancelFunc) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.evictExpired(now)

	job := &Job{
		ID:        uuid.NewString(),
		Index:     index,
		Limit:     limit,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		cancel:    cancel,
	}

	if len(s.jobs) >= s.maxSize && len(s.order) > 0 {
		oldest := s.order[0]
		if j := s.jobs[oldest]; j != nil && j.cancel != nil && !j.Status.Terminal() {
			j.cancel()
		}
		delete(s.jobs, oldest)
		s.order = s.order[1:]
	}

	s.jobs[job.ID] = job
	s.order = append(s.order, job.ID)

	jobCopy := *job
	return &jobCopy
}

// evictExpired drops finished jobs older than ttl. Callers hold mu.
func (s *Store) evictExpired(now time.Time) {
	if s.ttl <= 0 {
		return
	}
	kept := s.order[:0]
	for _, id := range s.order {
		j := s.jobs[id]
		if j.Status.Terminal() && now.Sub(j.UpdatedAt) > s.ttl {
			delete(s.jobs, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
}

func notFound(id string) error {
	return core.WrapError(core.ErrJobNotFound, fmt.Errorf("%s", id))
}

// Get retrieves a copy of a job by ID.
func (s *Store) Get(id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok || s.expired(job) {
		return nil, notFound(id)
	}

	jobCopy := *job
	return &jobCopy, nil
}

func (s *Store) expired(j *Job) bool {
	return s.ttl > 0 && j.Status.Terminal() && s.now().Sub(j.UpdatedAt) > s.ttl
}

// Update modifies a job using an update function.
func (s *Store) Update(id string, fn func(*Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return notFound(id)
	}

	fn(job)
	job.UpdatedAt = s.now()
	return nil
}

// Cancel asks a running scan to stop. The job turns cancelled once the
// partial result is in; finished jobs are returned unchanged.
func (s *Store) Cancel(id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || s.expired(job) {
		return nil, notFound(id)
	}
	if !job.Status.Terminal() && job.cancel != nil {
		job.cancel()
		job.UpdatedAt = s.now()
	}

	jobCopy := *job
	return &jobCopy, nil
}

// List returns all live jobs, oldest first.
func (s *Store) List() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Job, 0, len(s.jobs))
	for _, id := range s.order {
		job := s.jobs[id]
		if s.expired(job) {
			continue
		}
		result = append(result, *job)
	}
	return result
}
