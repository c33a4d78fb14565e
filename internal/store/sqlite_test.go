package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Boomnana/test-agent/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testJob(id string, state model.JobState, created time.Time) model.JobStatus {
	return model.JobStatus{
		ID:        id,
		State:     state,
		Log:       []model.LogEntry{{Time: created, Message: "Job created"}},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestSQLite_SaveAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, st.SaveJob(ctx, testJob("job-1", model.JobPending, now)))

	got, err := st.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobPending, got.State)
	require.Len(t, got.Log, 1)
	assert.Equal(t, "Job created", got.Log[0].Message)
	assert.True(t, got.CreatedAt.Equal(now))
	assert.Nil(t, got.FinishedAt)
}

func TestSQLite_SaveUpserts(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	job := testJob("job-1", model.JobRunning, now)
	require.NoError(t, st.SaveJob(ctx, job))

	finished := now.Add(time.Minute)
	job.State = model.JobCompleted
	job.ResultRef = "/reports/result_job-1.json"
	job.UpdatedAt = finished
	job.FinishedAt = &finished
	job.Log = append(job.Log, model.LogEntry{Time: finished, Message: "Job completed"})
	require.NoError(t, st.SaveJob(ctx, job))

	got, err := st.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, got.State)
	assert.Equal(t, "/reports/result_job-1.json", got.ResultRef)
	assert.Len(t, got.Log, 2)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, got.FinishedAt.Equal(finished))

	all, err := st.ListJobs(ctx, JobFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSQLite_GetMissing(t *testing.T) {
	st := newTestSQLiteStore(t)
	_, err := st.GetJob(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestSQLite_ListJobs(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, st.SaveJob(ctx, testJob("a", model.JobCompleted, base)))
	require.NoError(t, st.SaveJob(ctx, testJob("b", model.JobFailed, base.Add(time.Minute))))
	require.NoError(t, st.SaveJob(ctx, testJob("c", model.JobCompleted, base.Add(2*time.Minute))))

	all, err := st.ListJobs(ctx, JobFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID)
	assert.Equal(t, "a", all[2].ID)

	done, err := st.ListJobs(ctx, JobFilter{State: model.JobCompleted})
	require.NoError(t, err)
	assert.Len(t, done, 2)

	page, err := st.ListJobs(ctx, JobFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "b", page[0].ID)
}

func TestOpen_Drivers(t *testing.T) {
	ctx := context.Background()

	st, err := Open(ctx, configFor("sqlite", filepath.Join(t.TempDir(), "open.db")))
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, st)
	require.NoError(t, st.Close())

	st, err = Open(ctx, configFor("none", ""))
	require.NoError(t, err)
	assert.IsType(t, Nop{}, st)

	_, err = Open(ctx, configFor("mongo", ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported driver "mongo"`)
}

func TestNop(t *testing.T) {
	var st Nop
	ctx := context.Background()
	require.NoError(t, st.SaveJob(ctx, model.JobStatus{ID: "x"}))
	_, err := st.GetJob(ctx, "x")
	assert.ErrorIs(t, err, ErrJobNotFound)
	jobs, err := st.ListJobs(ctx, JobFilter{})
	require.NoError(t, err)
	assert.Empty(t, jobs)
}
