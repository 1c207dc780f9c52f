package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivalscope/research/internal/research"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewStoreWithPool(mock)
	require.NoError(t, err)
	return store, mock
}

func TestCreateJobInserts(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec("INSERT INTO research_jobs").
		WithArgs("comp-1", "https://acme.io", "Acme", research.StatusPending, now,
			research.StatusPending, research.StatusProcessing).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.CreateJob(context.Background(), research.ResearchJob{
		CompetitorID: "comp-1",
		Website:      "https://acme.io",
		DisplayName:  "Acme",
		SubmittedAt:  now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateJobInFlight(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	// The conflict guard leaves pending/processing rows untouched.
	mock.ExpectExec("INSERT INTO research_jobs").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	err := store.CreateJob(context.Background(), research.ResearchJob{CompetitorID: "comp-1"})
	assert.ErrorIs(t, err, research.ErrJobInFlight)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetProcessing(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	started := time.Unix(1700000100, 0).UTC()

	mock.ExpectExec("UPDATE research_jobs").
		WithArgs(research.StatusProcessing, started, "comp-1", research.StatusPending).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.SetProcessing(context.Background(), "comp-1", started))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetProcessingMissingRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE research_jobs").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.SetProcessing(context.Background(), "comp-1", time.Now())
	assert.ErrorIs(t, err, research.ErrNotFound)
}

func TestSetCompleted(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	finished := time.Unix(1700000200, 0).UTC()

	mock.ExpectExec("UPDATE research_jobs").
		WithArgs(research.StatusCompleted, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), finished, "comp-1",
			research.StatusProcessing).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	outcome := research.JobOutcome{
		Intel: research.Intel{Overview: research.Overview{
			OrganizationName: "Acme", Description: "x", TargetMarket: "y",
		}},
		Brand:      &research.Brand{LogoURL: "https://acme.io/logo.svg"},
		Meta:       research.RawContentMeta{TotalBytes: 42},
		FinishedAt: finished,
	}
	require.NoError(t, store.SetCompleted(context.Background(), "comp-1", outcome))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateJobClearsPriorResults(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()

	// The conflict branch must reset intel, brand, content meta and
	// last_researched_at so a non-completed row never exposes results
	// from an earlier run.
	mock.ExpectExec(`ON CONFLICT \(competitor_id\) DO UPDATE\s+SET website = EXCLUDED\.website,\s+display_name = EXCLUDED\.display_name,\s+status = EXCLUDED\.status,\s+error_text = NULL,\s+intel = NULL,\s+brand = NULL,\s+raw_content_meta = NULL,\s+last_researched_at = NULL,`).
		WithArgs("comp-1", "https://acme.io", "Acme", research.StatusPending, now,
			research.StatusPending, research.StatusProcessing).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.CreateJob(context.Background(), research.ResearchJob{
		CompetitorID: "comp-1",
		Website:      "https://acme.io",
		DisplayName:  "Acme",
		SubmittedAt:  now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetError(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	finished := time.Unix(1700000300, 0).UTC()

	mock.ExpectExec("UPDATE research_jobs").
		WithArgs(research.StatusError, "scrape homepage: 503", pgxmock.AnyArg(), finished, "comp-1",
			research.StatusProcessing).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := store.SetError(context.Background(), "comp-1", "scrape homepage: 503",
		&research.RawContentMeta{}, finished)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetErrorClearsIntel(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	finished := time.Unix(1700000300, 0).UTC()

	// An error row never carries intel, brand or last_researched_at,
	// whatever an earlier completed run left behind.
	mock.ExpectExec(`UPDATE research_jobs\s+SET status = \$1, error_text = \$2, intel = NULL, brand = NULL,\s+raw_content_meta = \$3, finished_at = \$4, last_researched_at = NULL\s+WHERE competitor_id = \$5 AND status = \$6`).
		WithArgs(research.StatusError, "extraction failed", pgxmock.AnyArg(), finished, "comp-1",
			research.StatusProcessing).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := store.SetError(context.Background(), "comp-1", "extraction failed", nil, finished)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJob(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	submitted := time.Unix(1700000000, 0).UTC()
	finished := time.Unix(1700000200, 0).UTC()

	rows := pgxmock.NewRows([]string{
		"competitor_id", "website", "display_name", "status", "error_text",
		"intel", "brand", "raw_content_meta",
		"submitted_at", "started_at", "finished_at", "last_researched_at",
	}).AddRow(
		"comp-1", "https://acme.io", "Acme", research.StatusCompleted, (*string)(nil),
		[]byte(`{"overview":{"organization_name":"Acme","description":"x","target_market":"y"}}`),
		[]byte(`{"logo_url":"https://acme.io/logo.svg"}`),
		[]byte(`{"total_bytes":42}`),
		submitted, &submitted, &finished, &finished,
	)
	mock.ExpectQuery("SELECT (.+) FROM research_jobs").
		WithArgs("comp-1").
		WillReturnRows(rows)

	job, err := store.GetJob(context.Background(), "comp-1")
	require.NoError(t, err)
	assert.Equal(t, research.StatusCompleted, job.Status)
	require.NotNil(t, job.Intel)
	assert.Equal(t, "Acme", job.Intel.Overview.OrganizationName)
	require.NotNil(t, job.Brand)
	assert.Equal(t, "https://acme.io/logo.svg", job.Brand.LogoURL)
	require.NotNil(t, job.RawContentMeta)
	assert.Equal(t, 42, job.RawContentMeta.TotalBytes)
	require.NotNil(t, job.FinishedAt)
	assert.True(t, job.FinishedAt.Equal(finished))
}

func TestGetJobNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT (.+) FROM research_jobs").
		WithArgs("ghost").
		WillReturnRows(pgxmock.NewRows([]string{"competitor_id"}))

	_, err := store.GetJob(context.Background(), "ghost")
	assert.ErrorIs(t, err, research.ErrNotFound)
}

func TestReapStale(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	cutoff := time.Unix(1700000000, 0).UTC()
	now := cutoff.Add(10 * time.Minute)

	mock.ExpectExec("UPDATE research_jobs").
		WithArgs(research.StatusError, "research timed out", now, research.StatusProcessing, cutoff,
			research.StatusPending).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	n, err := store.ReapStale(context.Background(), cutoff, now)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, mock.ExpectationsWereMet())
}
