// Package memory provides an in-memory job store for tests and
// single-process development runs.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/rivalscope/research/internal/research"
)

// Store implements research.JobStore with a mutex-guarded map. It mirrors
// the Postgres store's transition guards so the two are interchangeable.
type Store struct {
	mu   sync.Mutex
	jobs map[string]research.ResearchJob
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{jobs: make(map[string]research.ResearchJob)}
}

// CreateJob records a pending job, rejecting competitors with a run
// already in flight.
func (s *Store) CreateJob(_ context.Context, job research.ResearchJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.jobs[job.CompetitorID]; ok && !existing.Status.IsTerminal() {
		return research.ErrJobInFlight
	}
	// A fresh submission resets the record; intel is only ever visible
	// on a completed row.
	job.Status = research.StatusPending
	job.ErrorText = ""
	job.Intel = nil
	job.Brand = nil
	job.RawContentMeta = nil
	job.LastResearchedAt = nil
	job.StartedAt = nil
	job.FinishedAt = nil
	s.jobs[job.CompetitorID] = job
	return nil
}

// SetProcessing transitions a pending job to processing.
func (s *Store) SetProcessing(_ context.Context, competitorID string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[competitorID]
	if !ok || job.Status != research.StatusPending {
		return research.ErrNotFound
	}
	job.Status = research.StatusProcessing
	job.StartedAt = &startedAt
	s.jobs[competitorID] = job
	return nil
}

// SetCompleted stores the finished record. Only a processing row can
// complete, so a reaped or resubmitted competitor cannot be overwritten
// by a stale worker.
func (s *Store) SetCompleted(_ context.Context, competitorID string, outcome research.JobOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[competitorID]
	if !ok || job.Status != research.StatusProcessing {
		return research.ErrNotFound
	}
	intel := outcome.Intel
	meta := outcome.Meta
	finished := outcome.FinishedAt
	job.Status = research.StatusCompleted
	job.ErrorText = ""
	job.Intel = &intel
	job.Brand = outcome.Brand
	job.RawContentMeta = &meta
	job.FinishedAt = &finished
	job.LastResearchedAt = &finished
	s.jobs[competitorID] = job
	return nil
}

// SetError marks a processing job failed. An error row never carries
// intel.
func (s *Store) SetError(_ context.Context, competitorID string, errText string, meta *research.RawContentMeta, finishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[competitorID]
	if !ok || job.Status != research.StatusProcessing {
		return research.ErrNotFound
	}
	job.Status = research.StatusError
	job.ErrorText = errText
	job.Intel = nil
	job.Brand = nil
	job.RawContentMeta = meta
	job.LastResearchedAt = nil
	job.FinishedAt = &finishedAt
	s.jobs[competitorID] = job
	return nil
}

// GetJob returns the job for one competitor.
func (s *Store) GetJob(_ context.Context, competitorID string) (research.ResearchJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[competitorID]
	if !ok {
		return research.ResearchJob{}, research.ErrNotFound
	}
	return job, nil
}

// ReapStale fails processing jobs that started before the cutoff, plus
// pending jobs submitted before it that never reached a worker.
func (s *Store) ReapStale(_ context.Context, cutoff time.Time, finishedAt time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reaped := 0
	for id, job := range s.jobs {
		stale := (job.Status == research.StatusProcessing && job.StartedAt != nil && job.StartedAt.Before(cutoff)) ||
			(job.Status == research.StatusPending && job.SubmittedAt.Before(cutoff))
		if !stale {
			continue
		}
		job.Status = research.StatusError
		job.ErrorText = "research timed out"
		finished := finishedAt
		job.FinishedAt = &finished
		s.jobs[id] = job
		reaped++
	}
	return reaped, nil
}
