package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rivalscope/research/internal/aggregate"
	iduuid "github.com/rivalscope/research/internal/id/uuid"
	"github.com/rivalscope/research/internal/metrics"
	publishermem "github.com/rivalscope/research/internal/publisher/memory"
	"github.com/rivalscope/research/internal/research"
	storagemem "github.com/rivalscope/research/internal/storage/memory"
	storemem "github.com/rivalscope/research/internal/store/memory"
)

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

type fakeContent struct {
	markdown  string
	scrapeErr error
}

func (f *fakeContent) MapSite(context.Context, string, int) ([]string, error) {
	return nil, nil
}

func (f *fakeContent) Scrape(_ context.Context, _ string, opts research.ScrapeOptions) (research.ScrapeResult, error) {
	if f.scrapeErr != nil {
		return research.ScrapeResult{}, f.scrapeErr
	}
	res := research.ScrapeResult{Markdown: f.markdown}
	if opts.IncludeBranding {
		res.Brand = &research.Brand{LogoURL: "https://acme.io/logo.svg"}
	}
	return res, nil
}

type fakeExtractor struct {
	intel research.Intel
	err   error

	gotCorpus string
	gotOrg    string
}

func (f *fakeExtractor) Extract(_ context.Context, corpus string, orgName string) (research.Intel, error) {
	f.gotCorpus = corpus
	f.gotOrg = orgName
	return f.intel, f.err
}

type workerFixture struct {
	worker    *Worker
	jobs      *storemem.Store
	blobs     *storagemem.BlobStore
	publisher *publishermem.Publisher
	extractor *fakeExtractor
}

func newFixture(t *testing.T, content research.ContentClient, extractor *fakeExtractor) *workerFixture {
	t.Helper()
	metrics.Init()

	jobs := storemem.NewStore()
	blobs := storagemem.NewBlobStore()
	publisher := publishermem.New()
	agg := aggregate.New(content, 0, zap.NewNop())
	clk := &fixedClock{now: time.Unix(1700000000, 0).UTC()}

	w := New(nil, jobs, blobs, publisher, agg, extractor, iduuid.New(), clk, Config{}, zap.NewNop())
	return &workerFixture{worker: w, jobs: jobs, blobs: blobs, publisher: publisher, extractor: extractor}
}

// submitJob mirrors the submission boundary: the row is created and
// marked processing before the queue item reaches a worker.
func submitJob(t *testing.T, jobs *storemem.Store, competitorID string) {
	t.Helper()
	require.NoError(t, jobs.CreateJob(context.Background(), research.ResearchJob{
		CompetitorID: competitorID,
		Website:      "https://acme.io",
		SubmittedAt:  time.Unix(1699999999, 0).UTC(),
	}))
	require.NoError(t, jobs.SetProcessing(context.Background(), competitorID, time.Unix(1699999999, 30).UTC()))
}

func TestProcessJobCompletes(t *testing.T) {
	extractor := &fakeExtractor{intel: research.Intel{Overview: research.Overview{
		OrganizationName: "Acme", Description: "x", TargetMarket: "y",
	}}}
	fx := newFixture(t, &fakeContent{markdown: "# Acme"}, extractor)
	submitJob(t, fx.jobs, "comp-1")

	fx.worker.processJob(context.Background(), research.QueueItem{
		CompetitorID: "comp-1",
		Website:      "https://acme.io",
		DisplayName:  "Acme Analytics",
	})

	job, err := fx.jobs.GetJob(context.Background(), "comp-1")
	require.NoError(t, err)
	assert.Equal(t, research.StatusCompleted, job.Status)
	require.NotNil(t, job.Intel)
	assert.Equal(t, "Acme", job.Intel.Overview.OrganizationName)
	require.NotNil(t, job.Brand)
	require.NotNil(t, job.RawContentMeta)
	assert.Contains(t, job.RawContentMeta.CorpusURI, "memory://corpus/comp-1/")
	require.NotNil(t, job.LastResearchedAt)

	assert.Equal(t, "Acme Analytics", extractor.gotOrg)
	assert.Contains(t, extractor.gotCorpus, "# Acme")

	events := fx.publisher.Events()
	require.Len(t, events, 1)
	event, ok := events[0].Payload.(Event)
	require.True(t, ok)
	assert.Equal(t, "completed", event.Status)
	assert.Equal(t, "comp-1", event.CompetitorID)
}

func TestProcessJobAggregationFailure(t *testing.T) {
	extractor := &fakeExtractor{}
	fx := newFixture(t, &fakeContent{scrapeErr: errors.New("503")}, extractor)
	submitJob(t, fx.jobs, "comp-1")

	fx.worker.processJob(context.Background(), research.QueueItem{
		CompetitorID: "comp-1",
		Website:      "https://acme.io",
	})

	job, err := fx.jobs.GetJob(context.Background(), "comp-1")
	require.NoError(t, err)
	assert.Equal(t, research.StatusError, job.Status)
	assert.Contains(t, job.ErrorText, "scrape homepage")
	assert.Nil(t, job.Intel)

	// The extractor is never reached.
	assert.Empty(t, extractor.gotCorpus)

	events := fx.publisher.Events()
	require.Len(t, events, 1)
	event := events[0].Payload.(Event)
	assert.Equal(t, "error", event.Status)
	assert.Contains(t, event.Error, "scrape homepage")
}

func TestProcessJobExtractionFailure(t *testing.T) {
	extractor := &fakeExtractor{err: errors.New("overloaded")}
	fx := newFixture(t, &fakeContent{markdown: "# Acme"}, extractor)
	submitJob(t, fx.jobs, "comp-1")

	fx.worker.processJob(context.Background(), research.QueueItem{
		CompetitorID: "comp-1",
		Website:      "https://acme.io",
	})

	job, err := fx.jobs.GetJob(context.Background(), "comp-1")
	require.NoError(t, err)
	assert.Equal(t, research.StatusError, job.Status)
	assert.Equal(t, "overloaded", job.ErrorText)
	// Acquisition diagnostics survive the failed extraction.
	require.NotNil(t, job.RawContentMeta)
	require.Len(t, job.RawContentMeta.Pages, 1)
}

func TestProcessJobMissingRowDropped(t *testing.T) {
	extractor := &fakeExtractor{}
	fx := newFixture(t, &fakeContent{markdown: "# Acme"}, extractor)

	fx.worker.processJob(context.Background(), research.QueueItem{
		CompetitorID: "ghost",
		Website:      "https://acme.io",
	})

	_, err := fx.jobs.GetJob(context.Background(), "ghost")
	assert.ErrorIs(t, err, research.ErrNotFound)
	assert.Empty(t, fx.publisher.Events())
	assert.Empty(t, extractor.gotCorpus)
}

func TestProcessJobDroppedWhenNoLongerProcessing(t *testing.T) {
	extractor := &fakeExtractor{}
	fx := newFixture(t, &fakeContent{markdown: "# Acme"}, extractor)
	submitJob(t, fx.jobs, "comp-1")

	// The sweeper failed the job before a worker picked it up; the late
	// queue item must not resurrect it.
	n, err := fx.jobs.ReapStale(context.Background(), time.Unix(1700001000, 0).UTC(), time.Unix(1700001001, 0).UTC())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	fx.worker.processJob(context.Background(), research.QueueItem{
		CompetitorID: "comp-1",
		Website:      "https://acme.io",
	})

	job, err := fx.jobs.GetJob(context.Background(), "comp-1")
	require.NoError(t, err)
	assert.Equal(t, research.StatusError, job.Status)
	assert.Equal(t, "research timed out", job.ErrorText)
	assert.Empty(t, fx.publisher.Events())
	assert.Empty(t, extractor.gotCorpus)
}

// failingCompleteStore rejects completed writes to exercise the
// persistence fallback.
type failingCompleteStore struct {
	*storemem.Store
	completeErr error
}

func (f *failingCompleteStore) SetCompleted(context.Context, string, research.JobOutcome) error {
	return f.completeErr
}

func TestProcessJobPersistFailureWritesError(t *testing.T) {
	metrics.Init()

	jobs := &failingCompleteStore{Store: storemem.NewStore(), completeErr: errors.New("connection reset")}
	publisher := publishermem.New()
	extractor := &fakeExtractor{intel: research.Intel{Overview: research.Overview{
		OrganizationName: "Acme", Description: "x", TargetMarket: "y",
	}}}
	agg := aggregate.New(&fakeContent{markdown: "# Acme"}, 0, zap.NewNop())
	clk := &fixedClock{now: time.Unix(1700000000, 0).UTC()}
	w := New(nil, jobs, nil, publisher, agg, extractor, iduuid.New(), clk, Config{}, zap.NewNop())

	submitJob(t, jobs.Store, "comp-1")
	w.processJob(context.Background(), research.QueueItem{
		CompetitorID: "comp-1",
		Website:      "https://acme.io",
	})

	// Both completed writes failed, so the best-effort error write lands
	// and the record never claims success it cannot back with intel.
	job, err := jobs.GetJob(context.Background(), "comp-1")
	require.NoError(t, err)
	assert.Equal(t, research.StatusError, job.Status)
	assert.Equal(t, "failed to persist research results", job.ErrorText)
	assert.Nil(t, job.Intel)

	events := publisher.Events()
	require.Len(t, events, 1)
	event := events[0].Payload.(Event)
	assert.Equal(t, "error", event.Status)
}

func TestProcessJobPanicRecovers(t *testing.T) {
	fx := newFixture(t, &fakeContent{markdown: "# Acme"}, &fakeExtractor{})
	// A nil aggregator panics when the pipeline runs.
	fx.worker.aggregator = nil
	submitJob(t, fx.jobs, "comp-1")

	fx.worker.processJob(context.Background(), research.QueueItem{
		CompetitorID: "comp-1",
		Website:      "https://acme.io",
	})

	job, err := fx.jobs.GetJob(context.Background(), "comp-1")
	require.NoError(t, err)
	assert.Equal(t, research.StatusError, job.Status)
	assert.Contains(t, job.ErrorText, "internal error")
}
