package research

import (
	"context"
	"errors"
	"time"
)

// Store lookup and admission errors shared by all JobStore implementations.
var (
	// ErrNotFound is returned when no job exists for a competitor id.
	ErrNotFound = errors.New("research job not found")
	// ErrJobInFlight is returned by CreateJob while a prior job for the
	// same competitor is still pending or processing.
	ErrJobInFlight = errors.New("research job already in flight")
)

// JobStore persists the per-competitor research record. The orchestrator
// is the sole writer of status, intel and last_researched_at while a job
// is processing.
type JobStore interface {
	// CreateJob inserts a fresh pending job, overwriting a prior terminal
	// record. Returns ErrJobInFlight if the existing record is not terminal.
	CreateJob(ctx context.Context, job ResearchJob) error
	// SetProcessing transitions pending -> processing.
	SetProcessing(ctx context.Context, competitorID string, startedAt time.Time) error
	// SetCompleted atomically writes the terminal success record. Only a
	// processing row may complete.
	SetCompleted(ctx context.Context, competitorID string, outcome JobOutcome) error
	// SetError atomically writes the terminal error record. Only a
	// processing row may fail, and an error record never carries intel.
	SetError(ctx context.Context, competitorID string, errText string, meta *RawContentMeta, finishedAt time.Time) error
	GetJob(ctx context.Context, competitorID string) (ResearchJob, error)
	// ReapStale marks jobs processing or pending since before cutoff as
	// error and returns how many were swept.
	ReapStale(ctx context.Context, cutoff time.Time, finishedAt time.Time) (int, error)
}

// ContentClient is the external web content-acquisition service: a bulk
// "map" of reachable URLs and a per-URL "scrape", each independently
// fallible.
type ContentClient interface {
	MapSite(ctx context.Context, rootURL string, limit int) ([]string, error)
	Scrape(ctx context.Context, url string, opts ScrapeOptions) (ScrapeResult, error)
}

// Extractor turns an aggregated corpus into a validated Intel record or
// an extraction failure; it never returns partial intel.
type Extractor interface {
	Extract(ctx context.Context, corpus string, orgName string) (Intel, error)
}

// Queue provides enqueue/dequeue semantics for accepted jobs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Publisher pushes terminal job events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// BlobStore archives raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces request and event IDs.
type IDGenerator interface {
	NewID() (string, error)
}
