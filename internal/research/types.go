// Package research defines core types shared across subsystems.
package research

import (
	"time"
)

// JobStatus represents the lifecycle state of a research job.
type JobStatus string

// Job status values persisted in the job store. Completed and error are
// terminal; a terminal record is only overwritten by a fresh submission.
const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusError      JobStatus = "error"
)

// IsTerminal reports whether the status admits no further transitions.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

// ResearchJob is the per-competitor record the pipeline writes and the
// rest of the system reads.
type ResearchJob struct {
	CompetitorID     string          `json:"competitor_id"`
	Website          string          `json:"website"`
	DisplayName      string          `json:"display_name,omitempty"`
	Status           JobStatus       `json:"status"`
	ErrorText        string          `json:"error_text,omitempty"`
	Intel            *Intel          `json:"intel,omitempty"`
	Brand            *Brand          `json:"brand,omitempty"`
	RawContentMeta   *RawContentMeta `json:"raw_content_meta,omitempty"`
	SubmittedAt      time.Time       `json:"submitted_at"`
	StartedAt        *time.Time      `json:"started_at,omitempty"`
	FinishedAt       *time.Time      `json:"finished_at,omitempty"`
	LastResearchedAt *time.Time      `json:"last_researched_at,omitempty"`
}

// Brand carries visual-identity metadata captured opportunistically from
// the homepage scrape. Never required for a job to complete.
type Brand struct {
	LogoURL        string   `json:"logo_url,omitempty"`
	FaviconURL     string   `json:"favicon_url,omitempty"`
	PrimaryColor   string   `json:"primary_color,omitempty"`
	SecondaryColor string   `json:"secondary_color,omitempty"`
	Fonts          []string `json:"fonts,omitempty"`
}

// PageCategory classifies a candidate page by the heuristic that selected it.
type PageCategory string

// Candidate page categories.
const (
	CategoryHomepage PageCategory = "homepage"
	CategoryPricing  PageCategory = "pricing"
	CategoryFeatures PageCategory = "features"
	CategoryAbout    PageCategory = "about"
)

// PageOutcome records what happened to one candidate page during aggregation.
type PageOutcome string

// Per-page aggregation outcomes.
const (
	PageFetched PageOutcome = "fetched"
	PageSkipped PageOutcome = "skipped"
)

// PageMeta is the diagnostic record for a single candidate page.
type PageMeta struct {
	URL      string       `json:"url"`
	Category PageCategory `json:"category"`
	Outcome  PageOutcome  `json:"outcome"`
	Bytes    int          `json:"bytes"`
	Error    string       `json:"error,omitempty"`
}

// RawContentMeta summarizes which pages were acquired and how large the
// resulting corpus was. Diagnostic, not authoritative.
type RawContentMeta struct {
	Pages      []PageMeta `json:"pages"`
	TotalBytes int        `json:"total_bytes"`
	Truncated  bool       `json:"truncated"`
	CorpusURI  string     `json:"corpus_uri,omitempty"`
}

// JobOutcome carries everything the store persists when a job completes.
type JobOutcome struct {
	Intel      Intel
	Brand      *Brand
	Meta       RawContentMeta
	FinishedAt time.Time
}

// QueueItem wraps one accepted research job ready to run.
type QueueItem struct {
	CompetitorID string
	Website      string
	DisplayName  string
	Attempt      int
	Submitted    int64
}

// CandidatePage pairs a URL with the heuristic category that selected it.
type CandidatePage struct {
	URL      string
	Category PageCategory
}

// ScrapeOptions controls a single content acquisition call.
type ScrapeOptions struct {
	// IncludeBranding requests visual-identity metadata alongside the
	// page text. Only set for the homepage fetch.
	IncludeBranding bool
}

// ScrapeResult is the successful result of one content acquisition call.
type ScrapeResult struct {
	Markdown string
	Brand    *Brand
}
