package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"prodtrack/internal/domain"
	"prodtrack/internal/integrations/llm"
	"prodtrack/internal/production"
	"prodtrack/internal/storage/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var day = time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

type fakeCategorizer struct {
	asked []int64
	err   error
}

func (f *fakeCategorizer) Categorize(_ context.Context, stoppages []domain.StoppageEvent) (map[int64]string, llm.Usage, error) {
	out := make(map[int64]string)
	for _, ev := range stoppages {
		f.asked = append(f.asked, ev.ID)
		if strings.Contains(ev.Reason, "molde") {
			out[ev.ID] = "Setup"
		}
	}
	return out, llm.Usage{InputTokens: 3}, f.err
}

type fakeUploader struct {
	mu     sync.Mutex
	paths  []string
	titles []string
	err    error
}

func (f *fakeUploader) UploadReport(_ context.Context, path, title, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, path)
	f.titles = append(f.titles, title)
	return f.err
}

func newJob(t *testing.T) (*DailyReport, *production.Service) {
	t.Helper()
	db, err := sqlite.InitDB(filepath.Join(t.TempDir(), "scheduler-test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	svc := production.NewService(db, nil,
		production.WithClock(func() time.Time { return day.Add(30 * time.Hour) }),
		production.WithLocation(time.UTC),
	)

	ctx := context.Background()
	line, err := svc.CreateLine(ctx, production.SystemActor, domain.ProductionLine{Name: "Injetora 4", Sector: "Plasticos", NominalCapacity: 30})
	require.NoError(t, err)
	rec, err := svc.CreateRecord(ctx, production.SystemActor, production.RecordInput{LineID: line.ID, Date: day, Shift: domain.ShiftFirst})
	require.NoError(t, err)
	_, err = svc.SaveChildren(ctx, rec.ID, production.ChildBatch{
		Hourly: []domain.HourlyEntry{{Start: domain.NewClock(6, 0), End: domain.NewClock(7, 0), Produced: 30}},
		Stoppages: []domain.StoppageEvent{
			{Start: domain.NewClock(7, 0), End: domain.NewClock(7, 20), Reason: "troca de molde"},
			{Start: domain.NewClock(8, 0), End: domain.NewClock(8, 5), Reason: "energia", Category: "Utilidades"},
			{Start: domain.NewClock(9, 0), End: domain.NewClock(9, 5), Reason: "desconhecido"},
		},
	}, production.SystemActor)
	require.NoError(t, err)

	return &DailyReport{
		DB:        db,
		OutputDir: filepath.Join(t.TempDir(), "reports"),
		Name:      "Producao",
	}, svc
}

func TestRunCategorizesWritesAndUploads(t *testing.T) {
	job, svc := newJob(t)
	cat := &fakeCategorizer{}
	up := &fakeUploader{}
	job.Categorizer = cat
	job.Uploader = up

	res, err := job.Run(context.Background(), day)
	require.NoError(t, err)

	assert.Len(t, cat.asked, 2, "only uncategorized stoppages are sent")
	assert.Equal(t, 1, res.Categorized)
	assert.Equal(t, int64(3), res.Usage.InputTokens)
	assert.Equal(t, 1, res.Rows)

	stoppages, err := sqlite.ListStoppagesByDateRange(context.Background(), svc.DB(), day, day, true)
	require.NoError(t, err)
	require.Len(t, stoppages, 1)
	assert.Equal(t, "desconhecido", stoppages[0].Reason)

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "| Setup | 20 | 1 |")
	assert.Equal(t, "Producao_20260314.md", filepath.Base(res.Path))

	require.Len(t, up.paths, 1)
	assert.Equal(t, res.Path, up.paths[0])
	assert.Equal(t, "Producao 14/03/2026", up.titles[0])
}

func TestRunWritesReportWhenCategorizerFails(t *testing.T) {
	job, _ := newJob(t)
	job.Categorizer = &fakeCategorizer{err: errors.New("model overloaded")}

	res, err := job.Run(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Categorized, "partial decisions are still stored")
	assert.FileExists(t, res.Path)
}

func TestRunReturnsUploadError(t *testing.T) {
	job, _ := newJob(t)
	job.Uploader = &fakeUploader{err: errors.New("not_in_channel")}

	res, err := job.Run(context.Background(), day)
	require.Error(t, err)
	assert.FileExists(t, res.Path, "the file is kept even when sharing fails")
}

func TestStartRejectsBadSchedule(t *testing.T) {
	_, err := Start(context.Background(), "report", "", time.UTC, &DailyReport{}, nil)
	assert.Error(t, err)
	_, err = Start(context.Background(), "report", "every morning", time.UTC, &DailyReport{}, nil)
	assert.Error(t, err)
}

func TestStartStopsOnCancel(t *testing.T) {
	job, _ := newJob(t)
	ctx, cancel := context.WithCancel(context.Background())

	done, err := Start(ctx, "report", "@daily", time.UTC, job, nil)
	require.NoError(t, err)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}

func TestStartRunsJobOnSchedule(t *testing.T) {
	job, _ := newJob(t)
	up := &fakeUploader{}
	job.Uploader = up
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done, err := Start(ctx, "report", "@every 1s", time.UTC, job, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		up.mu.Lock()
		defer up.mu.Unlock()
		return len(up.paths) > 0
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	<-done
}

type recordingJob struct {
	mu  sync.Mutex
	ats []time.Time
}

func (r *recordingJob) RunScheduled(_ context.Context, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ats = append(r.ats, at)
}

func TestStartPassesActivationTimeInLocation(t *testing.T) {
	loc := time.FixedZone("BRT", -3*60*60)
	job := &recordingJob{}
	ctx, cancel := context.WithCancel(context.Background())

	done, err := Start(ctx, "probe", "@every 1s", loc, job, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		job.mu.Lock()
		defer job.mu.Unlock()
		return len(job.ats) > 0
	}, 5*time.Second, 20*time.Millisecond)
	cancel()
	<-done

	job.mu.Lock()
	defer job.mu.Unlock()
	assert.Equal(t, loc, job.ats[0].Location())
}

func TestRunScheduledReportsPreviousDay(t *testing.T) {
	job, _ := newJob(t)
	job.RunScheduled(context.Background(), time.Date(2026, 3, 15, 6, 0, 0, 0, time.UTC))
	assert.FileExists(t, filepath.Join(job.OutputDir, "Producao_20260314.md"))
}
