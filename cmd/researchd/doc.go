// Package main hosts the competitor research service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, and research endpoints. A research request is
//     validated, normalized, persisted via the JobStore, marked processing, and enqueued before the
//     handler returns 202.
//   - Dispatcher & queue: accepted jobs flow through a bounded in-memory queue sized by
//     config.Research.QueueDepth and are fanned out to a fixed worker pool sized by
//     config.Research.Concurrency. A periodic sweep fails jobs stuck in pending or processing past the
//     configured staleness window so the API can accept resubmissions.
//   - Research pipeline: workers map the competitor site through the hosted Firecrawl-style content API,
//     scrape a small categorized set of pages, assemble a budgeted markdown corpus, and run a
//     schema-constrained Anthropic extraction that yields the structured intel record.
//   - Persistence & fanout: intel and run metadata land in the configured JobStore (memory/Postgres), the
//     raw corpus is archived to the configured BlobStore (memory/GCS), and a compact completion event is
//     published when a Pub/Sub project is configured. Jobs always reach a terminal status, even on panic.
//   - Configuration & plumbing: Viper populates config from env/files; zap provides structured logging;
//     Prometheus metrics are exported via the metrics middleware and /metrics handler.
//
// Operational notes:
//   - Concurrency model: bounded queue + fixed worker pool. Shutdown is coordinated via context
//     cancellation propagated from main through the dispatcher to workers; terminal status writes survive
//     cancellation so no job is left in processing by a clean drain.
//   - Observability: zap logs carry competitor IDs and stage timings; Prometheus counters/histograms track
//     API activity, stage durations, page outcomes, and corpus sizes.
//   - Cloud Run: the HTTP server listens on the configured port, health endpoints (/healthz, /readyz)
//     remain lightweight, and the process reacts to SIGTERM for graceful drain.
//
// Quick checklist:
//   - Configure env vars: RESEARCH_SERVER_PORT, RESEARCH_RESEARCH_CONCURRENCY, RESEARCH_FIRECRAWL_API_KEY,
//     RESEARCH_ANTHROPIC_API_KEY, plus RESEARCH_DB_DSN, RESEARCH_STORAGE_GCS_BUCKET, and
//     RESEARCH_PUBSUB_PROJECT_ID when persistence beyond memory is required.
//   - Run locally: go run ./cmd/researchd -config config.yaml (or rely solely on env overrides).
package main
