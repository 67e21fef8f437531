package syncjob

import (
	"sync"
	"time"

	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/model"

	"github.com/google/uuid"
)

// Registry tracks background sync jobs. The in-memory implementation is
// process-local: job visibility does not survive a restart. The interface
// exists so a shared store can replace it without touching the engine.
type Registry interface {
	Create() *model.SyncJob
	Get(id string) (*model.SyncJob, bool)
	Update(id string, mutate func(*model.SyncJob))
	CleanupOldJobs() int
}

type memoryRegistry struct {
	mu        sync.RWMutex
	jobs      map[string]*model.SyncJob
	retention time.Duration
}

func NewMemoryRegistry(retention time.Duration) Registry {
	if retention <= 0 {
		retention = time.Hour
	}
	return &memoryRegistry{
		jobs:      make(map[string]*model.SyncJob),
		retention: retention,
	}
}

func (r *memoryRegistry) Create() *model.SyncJob {
	job := &model.SyncJob{
		ID:     uuid.NewString(),
		Status: model.SyncJobStatusPending,
	}

	r.mu.Lock()
	r.jobs[job.ID] = job
	r.mu.Unlock()

	return r.snapshot(job)
}

// Get returns a copy so pollers never observe a half-applied mutation.
func (r *memoryRegistry) Get(id string) (*model.SyncJob, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, false
	}
	return r.snapshot(job), true
}

func (r *memoryRegistry) Update(id string, mutate func(*model.SyncJob)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if job, ok := r.jobs[id]; ok {
		mutate(job)
	}
}

// CleanupOldJobs drops terminal jobs whose completion time is older than the
// retention window. It returns the number of jobs removed.
func (r *memoryRegistry) CleanupOldJobs() int {
	cutoff := time.Now().Add(-r.retention)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, job := range r.jobs {
		if job.Terminal() && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(r.jobs, id)
			removed++
		}
	}
	return removed
}

func (r *memoryRegistry) snapshot(job *model.SyncJob) *model.SyncJob {
	copied := *job
	return &copied
}
