package production

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"prodtrack/internal/domain"
	"prodtrack/internal/metrics"
	"prodtrack/internal/storage/sqlite"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testNow    = time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)
	recordDate = time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
)

type recordingNotifier struct {
	mu        sync.Mutex
	finalized []int64
	reopened  []int64
	fail      bool
}

func (n *recordingNotifier) RecordFinalized(_ context.Context, rec domain.ProductionRecord, _ domain.ProductionLine, _ domain.Actor) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.finalized = append(n.finalized, rec.ID)
	if n.fail {
		return errors.New("slack unavailable")
	}
	return nil
}

func (n *recordingNotifier) RecordReopened(_ context.Context, rec domain.ProductionRecord, _ domain.ProductionLine, _ domain.Actor) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reopened = append(n.reopened, rec.ID)
	return nil
}

type fixture struct {
	svc      *Service
	metrics  *metrics.Metrics
	notifier *recordingNotifier
	line     domain.ProductionLine
	record   domain.ProductionRecord
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := sqlite.InitDB(filepath.Join(t.TempDir(), "production-test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	f := &fixture{metrics: metrics.New(), notifier: &recordingNotifier{}}
	f.svc = NewService(db, nil,
		WithClock(func() time.Time { return testNow }),
		WithLocation(time.UTC),
		WithMetrics(f.metrics),
		WithNotifier(f.notifier),
	)

	ctx := context.Background()
	f.line, err = f.svc.CreateLine(ctx, SystemActor, domain.ProductionLine{Name: "Linha 1", Sector: "Montagem", NominalCapacity: 120})
	require.NoError(t, err)
	f.record, err = f.svc.CreateRecord(ctx, SystemActor, RecordInput{LineID: f.line.ID, Date: recordDate, Shift: domain.ShiftFirst})
	require.NoError(t, err)
	return f
}

func hourly(startH, endH, produced, defective int) domain.HourlyEntry {
	return domain.HourlyEntry{
		Start:     domain.NewClock(startH, 0),
		End:       domain.NewClock(endH, 0),
		Produced:  produced,
		Defective: defective,
	}
}

func stoppage(start, end domain.Clock, reason string) domain.StoppageEvent {
	return domain.StoppageEvent{Start: start, End: end, Reason: reason}
}

func (f *fixture) storedRecord(t *testing.T) domain.ProductionRecord {
	t.Helper()
	rec, err := sqlite.GetRecord(context.Background(), f.svc.DB(), f.record.ID)
	require.NoError(t, err)
	return rec
}

func TestNewRecordStartsOpenWithZeroTotals(t *testing.T) {
	f := newFixture(t)
	rec := f.storedRecord(t)
	assert.Equal(t, domain.StateOpen, rec.State())
	assert.Nil(t, rec.FinalizedAt)
	assert.Equal(t, domain.Totals{}, rec.Totals())
}

func TestRecomputeSumsChildren(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	totals, err := f.svc.RecomputeTotals(ctx, f.record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Totals{}, totals, "no children sums to zero")

	_, err = f.svc.SaveChildren(ctx, f.record.ID, ChildBatch{
		Hourly: []domain.HourlyEntry{hourly(6, 7, 50, 2), hourly(7, 8, 60, 3), hourly(8, 9, 40, 0)},
		Stoppages: []domain.StoppageEvent{
			stoppage(domain.NewClock(9, 0), domain.NewClock(9, 45), "Troca de ferramenta"),
			stoppage(domain.NewClock(10, 0), domain.NewClock(10, 15), "Falta de material"),
		},
	}, SystemActor)
	require.NoError(t, err)

	totals, err = f.svc.RecomputeTotals(ctx, f.record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Totals{Produced: 150, Defective: 5, DowntimeMinutes: 60}, totals)
	assert.Equal(t, totals, f.storedRecord(t).Totals())
}

func TestRecomputeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _, err := f.svc.SaveHourlyEntry(ctx, f.record.ID, hourly(6, 7, 30, 1), SystemActor)
	require.NoError(t, err)

	first, err := f.svc.RecomputeTotals(ctx, f.record.ID)
	require.NoError(t, err)
	second, err := f.svc.RecomputeTotals(ctx, f.record.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestChildMutationsRecomputeEagerly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e, rec, err := f.svc.SaveHourlyEntry(ctx, f.record.ID, hourly(6, 7, 50, 5), SystemActor)
	require.NoError(t, err)
	assert.Equal(t, 50, rec.Produced)
	assert.Equal(t, 50, f.storedRecord(t).Produced)

	e.Produced = 70
	_, rec, err = f.svc.SaveHourlyEntry(ctx, f.record.ID, e, SystemActor)
	require.NoError(t, err)
	assert.Equal(t, 70, rec.Produced)

	rec, err = f.svc.DeleteHourlyEntry(ctx, f.record.ID, e.ID, SystemActor)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Produced)
	assert.Equal(t, 0, f.storedRecord(t).Defective)
}

func TestConcurrentChildSavesKeepEveryUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const writers = 40

	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entry := domain.HourlyEntry{Start: domain.NewClock(6, i), End: domain.NewClock(6, i+1), Produced: 1}
			_, _, errs[i] = f.svc.SaveHourlyEntry(ctx, f.record.ID, entry, SystemActor)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "writer %d", i)
	}
	assert.Equal(t, writers, f.storedRecord(t).Produced)

	totals, err := sqlite.SumChildren(ctx, f.svc.DB(), f.record.ID)
	require.NoError(t, err)
	assert.Equal(t, writers, totals.Produced)
}

func TestFinalizeRacingChildSavesFreezesChildSum(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const writers = 20

	errs := make([]error, writers)
	var finalizeErr error
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entry := domain.HourlyEntry{Start: domain.NewClock(6, i), End: domain.NewClock(6, i+1), Produced: 2, Defective: 1}
			_, _, errs[i] = f.svc.SaveHourlyEntry(ctx, f.record.ID, entry, SystemActor)
		}(i)
		if i == writers/2 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, finalizeErr = f.svc.Finalize(ctx, f.record.ID, SystemActor)
			}()
		}
	}
	wg.Wait()
	require.NoError(t, finalizeErr)

	saved := 0
	for i, err := range errs {
		if err == nil {
			saved++
			continue
		}
		require.ErrorIs(t, err, domain.ErrLocked, "writer %d", i)
	}

	stored := f.storedRecord(t)
	assert.True(t, stored.Finalized)
	totals, err := sqlite.SumChildren(ctx, f.svc.DB(), f.record.ID)
	require.NoError(t, err)
	assert.Equal(t, totals, stored.Totals())
	assert.Equal(t, 2*saved, stored.Produced)
}

func TestStoppageDurationDerivation(t *testing.T) {
	tests := []struct {
		name       string
		start, end domain.Clock
		want       int
		wantErr    bool
	}{
		{name: "same shift", start: domain.NewClock(9, 0), end: domain.NewClock(17, 0), want: 480},
		{name: "wraps past midnight", start: domain.NewClock(22, 0), end: domain.NewClock(2, 0), want: 240},
		{name: "equal times rejected", start: domain.NewClock(8, 0), end: domain.NewClock(8, 0), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ev := stoppage(tt.start, tt.end, "Manutenção")
			ev.DurationMinutes = 9999 // ignored

			saved, rec, err := f.svc.SaveStoppage(context.Background(), f.record.ID, ev, SystemActor)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, domain.ErrValidation)
				assert.Equal(t, 0, f.storedRecord(t).DowntimeMinutes)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, saved.DurationMinutes)
			assert.Equal(t, tt.want, rec.DowntimeMinutes)
		})
	}
}

func TestDefectiveExceedingProducedIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.SaveHourlyEntry(ctx, f.record.ID, hourly(6, 7, 5, 6), SystemActor)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)

	fields := domain.ValidationErrors(err)
	require.Len(t, fields, 1)
	assert.Equal(t, "defective", fields[0].Field)

	entries, err := sqlite.ListHourlyEntries(ctx, f.svc.DB(), f.record.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RejectionCounter("validation")))
}

func TestHourlyEqualTimesRejected(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.svc.SaveHourlyEntry(context.Background(), f.record.ID, hourly(8, 8, 10, 0), SystemActor)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestBatchIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SaveChildren(ctx, f.record.ID, ChildBatch{
		Hourly: []domain.HourlyEntry{hourly(6, 7, 50, 0), hourly(7, 8, 5, 6)},
		Stoppages: []domain.StoppageEvent{
			stoppage(domain.NewClock(9, 0), domain.NewClock(9, 0), "Setup"),
		},
	}, SystemActor)
	require.Error(t, err)

	fields := domain.ValidationErrors(err)
	require.Len(t, fields, 2, "every failure in the batch is reported")
	assert.Contains(t, err.Error(), "hourly[1]")
	assert.Contains(t, err.Error(), "stoppages[0]")

	entries, err := sqlite.ListHourlyEntries(ctx, f.svc.DB(), f.record.ID)
	require.NoError(t, err)
	assert.Empty(t, entries, "the valid entry must not be persisted either")
	assert.Equal(t, domain.Totals{}, f.storedRecord(t).Totals())
}

func TestBatchRollsBackOnUnknownChild(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SaveChildren(ctx, f.record.ID, ChildBatch{
		Hourly:       []domain.HourlyEntry{hourly(6, 7, 50, 0)},
		DeleteHourly: []int64{424242},
	}, SystemActor)
	require.ErrorIs(t, err, domain.ErrNotFound)

	entries, err := sqlite.ListHourlyEntries(ctx, f.svc.DB(), f.record.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEmptyBatchRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.SaveChildren(context.Background(), f.record.ID, ChildBatch{}, SystemActor)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestFinalizeFreezesRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.SaveHourlyEntry(ctx, f.record.ID, hourly(6, 7, 100, 4), SystemActor)
	require.NoError(t, err)

	rec, err := f.svc.Finalize(ctx, f.record.ID, SystemActor)
	require.NoError(t, err)
	assert.True(t, rec.Finalized)
	require.NotNil(t, rec.FinalizedAt)
	assert.True(t, rec.FinalizedAt.Equal(testNow))
	assert.Equal(t, 100, rec.Produced)

	_, _, err = f.svc.SaveHourlyEntry(ctx, f.record.ID, hourly(7, 8, 25, 0), SystemActor)
	require.ErrorIs(t, err, domain.ErrLocked)
	_, _, err = f.svc.SaveStoppage(ctx, f.record.ID, stoppage(domain.NewClock(9, 0), domain.NewClock(9, 30), "Falha"), SystemActor)
	require.ErrorIs(t, err, domain.ErrLocked)
	_, err = f.svc.UpdateRecord(ctx, SystemActor, f.record.ID, RecordInput{LineID: f.line.ID, Date: recordDate, Shift: domain.ShiftSecond})
	require.ErrorIs(t, err, domain.ErrLocked)
	require.ErrorIs(t, f.svc.DeleteRecord(ctx, SystemActor, f.record.ID), domain.ErrLocked)

	stored := f.storedRecord(t)
	assert.Equal(t, 100, stored.Produced)
	assert.Equal(t, domain.ShiftFirst, stored.Shift)

	totals, err := f.svc.RecomputeTotals(ctx, f.record.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, totals.Produced)

	assert.Equal(t, []int64{f.record.ID}, f.notifier.finalized)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TransitionCounter("finalize")))
	assert.Equal(t, 4.0, testutil.ToFloat64(f.metrics.RejectionCounter("locked")))
}

func TestReopenUnlocksRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.SaveHourlyEntry(ctx, f.record.ID, hourly(6, 7, 100, 0), SystemActor)
	require.NoError(t, err)
	_, err = f.svc.Finalize(ctx, f.record.ID, SystemActor)
	require.NoError(t, err)

	rec, err := f.svc.Reopen(ctx, f.record.ID, SystemActor)
	require.NoError(t, err)
	assert.False(t, rec.Finalized)
	assert.Nil(t, rec.FinalizedAt)
	assert.Equal(t, 100, rec.Produced, "reopen leaves aggregates untouched")

	_, _, err = f.svc.SaveHourlyEntry(ctx, f.record.ID, hourly(7, 8, 10, 0), SystemActor)
	require.NoError(t, err)
	totals, err := f.svc.RecomputeTotals(ctx, f.record.ID)
	require.NoError(t, err)
	assert.Equal(t, 110, totals.Produced)

	assert.Equal(t, []int64{f.record.ID}, f.notifier.reopened)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TransitionCounter("reopen")))
}

func TestFinalizeRecomputesFromChildren(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _, err := f.svc.SaveHourlyEntry(ctx, f.record.ID, hourly(6, 7, 80, 0), SystemActor)
	require.NoError(t, err)

	// Simulate drift in the stored aggregates.
	require.NoError(t, sqlite.WriteTotals(ctx, f.svc.DB(), f.record.ID, domain.Totals{Produced: 1}, testNow))

	rec, err := f.svc.Finalize(ctx, f.record.ID, SystemActor)
	require.NoError(t, err)
	assert.Equal(t, 80, rec.Produced)
	assert.Equal(t, 80, f.storedRecord(t).Produced)
}

func TestInvalidTransitionsFailWithStateError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Reopen(ctx, f.record.ID, SystemActor)
	require.ErrorIs(t, err, domain.ErrState)

	_, err = f.svc.Finalize(ctx, f.record.ID, SystemActor)
	require.NoError(t, err)
	_, err = f.svc.Finalize(ctx, f.record.ID, SystemActor)
	require.ErrorIs(t, err, domain.ErrState)

	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.RejectionCounter("state")))
	assert.Len(t, f.notifier.finalized, 1)
}

func TestNotifierFailureDoesNotUndoFinalize(t *testing.T) {
	f := newFixture(t)
	f.notifier.fail = true

	_, err := f.svc.Finalize(context.Background(), f.record.ID, SystemActor)
	require.NoError(t, err)
	assert.True(t, f.storedRecord(t).Finalized)
}

func TestDuplicateSlotRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateRecord(ctx, SystemActor, RecordInput{LineID: f.line.ID, Date: recordDate, Shift: domain.ShiftFirst})
	require.ErrorIs(t, err, domain.ErrValidation)

	other, err := f.svc.CreateRecord(ctx, SystemActor, RecordInput{LineID: f.line.ID, Date: recordDate, Shift: domain.ShiftSecond})
	require.NoError(t, err)

	_, err = f.svc.UpdateRecord(ctx, SystemActor, other.ID, RecordInput{LineID: f.line.ID, Date: recordDate, Shift: domain.ShiftFirst})
	require.ErrorIs(t, err, domain.ErrValidation)

	// Updating a record onto its own slot is not a collision.
	_, err = f.svc.UpdateRecord(ctx, SystemActor, other.ID, RecordInput{LineID: f.line.ID, Date: recordDate, Shift: domain.ShiftSecond})
	require.NoError(t, err)
}

func TestFutureDateRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateRecord(ctx, SystemActor, RecordInput{LineID: f.line.ID, Date: testNow.AddDate(0, 0, 1), Shift: domain.ShiftFirst})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.CreateRecord(ctx, SystemActor, RecordInput{LineID: f.line.ID, Date: testNow, Shift: domain.ShiftFirst})
	require.NoError(t, err, "today is allowed")
}

func TestSectorAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.svc.CreateUser(ctx, SystemActor, "operador", false)
	require.NoError(t, err)
	actor, err := f.svc.LoadActor(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, actor.Privileged)

	in := RecordInput{LineID: f.line.ID, Date: recordDate, Shift: domain.ShiftThird}
	_, err = f.svc.CreateRecord(ctx, actor, in)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	_, _, err = f.svc.SaveHourlyEntry(ctx, f.record.ID, hourly(6, 7, 10, 0), actor)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = f.svc.Finalize(ctx, f.record.ID, actor)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	require.NoError(t, f.svc.GrantSector(ctx, SystemActor, u.ID, " Montagem "))
	actor, err = f.svc.LoadActor(ctx, u.ID)
	require.NoError(t, err)

	_, err = f.svc.CreateRecord(ctx, actor, in)
	require.NoError(t, err)
	_, _, err = f.svc.SaveHourlyEntry(ctx, f.record.ID, hourly(6, 7, 10, 0), actor)
	require.NoError(t, err)

	records, err := f.svc.ListRecords(ctx, actor, RecordQuery{})
	require.NoError(t, err)
	assert.Len(t, records, 2)

	require.NoError(t, f.svc.RevokeSector(ctx, SystemActor, u.ID, "Montagem"))
	actor, err = f.svc.LoadActor(ctx, u.ID)
	require.NoError(t, err)
	records, err = f.svc.ListRecords(ctx, actor, RecordQuery{})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestLineWithoutSectorIsPrivilegedOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	line, err := f.svc.CreateLine(ctx, SystemActor, domain.ProductionLine{Name: "Linha avulsa", NominalCapacity: 10})
	require.NoError(t, err)
	actor := domain.Actor{UserID: 99, Username: "operador", Sectors: []string{"Montagem"}}

	_, err = f.svc.CreateRecord(ctx, actor, RecordInput{LineID: line.ID, Date: recordDate, Shift: domain.ShiftFirst})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestAdministrationRequiresPrivilege(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := domain.Actor{UserID: 7, Username: "operador", Sectors: []string{"Montagem"}}

	_, err := f.svc.CreateLine(ctx, actor, domain.ProductionLine{Name: "Linha 2", NominalCapacity: 60})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = f.svc.CreateUser(ctx, actor, "outro", true)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.ErrorIs(t, f.svc.GrantSector(ctx, actor, 7, "Pintura"), domain.ErrUnauthorized)
	assert.ErrorIs(t, f.svc.DeleteLine(ctx, actor, f.line.ID), domain.ErrUnauthorized)

	lines, err := f.svc.ListLines(ctx, actor)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, f.line.ID, lines[0].ID)
}

func TestLineValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateLine(context.Background(), SystemActor, domain.ProductionLine{Name: " ", NominalCapacity: 0})
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Len(t, domain.ValidationErrors(err), 2)
}

func TestDeleteLineBlockedByFinalizedRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Finalize(ctx, f.record.ID, SystemActor)
	require.NoError(t, err)
	require.ErrorIs(t, f.svc.DeleteLine(ctx, SystemActor, f.line.ID), domain.ErrValidation)

	_, err = f.svc.Reopen(ctx, f.record.ID, SystemActor)
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteLine(ctx, SystemActor, f.line.ID))

	_, err = sqlite.GetRecord(ctx, f.svc.DB(), f.record.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetRecordDetail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SaveChildren(ctx, f.record.ID, ChildBatch{
		Hourly:    []domain.HourlyEntry{hourly(7, 8, 40, 1), hourly(6, 7, 40, 1)},
		Stoppages: []domain.StoppageEvent{stoppage(domain.NewClock(8, 0), domain.NewClock(8, 20), "Setup")},
	}, SystemActor)
	require.NoError(t, err)

	d, err := f.svc.GetRecord(ctx, SystemActor, f.record.ID)
	require.NoError(t, err)
	assert.Equal(t, "1/Especial", d.ShiftLabel)
	assert.Equal(t, f.line.Name, d.Line.Name)
	assert.Equal(t, "2.5", d.DefectRatePct.String())
	require.Len(t, d.Hourly, 2)
	assert.Equal(t, domain.NewClock(6, 0), d.Hourly[0].Start, "entries are ordered by start time")
	assert.Equal(t, 20, d.Stoppages[0].DurationMinutes)

	_, err = f.svc.GetRecord(ctx, SystemActor, 9999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.svc.GetRecord(ctx, domain.Actor{UserID: 3, Username: "visitante"}, f.record.ID)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestChildMutationMetrics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.SaveChildren(ctx, f.record.ID, ChildBatch{
		Hourly: []domain.HourlyEntry{hourly(6, 7, 10, 0), hourly(7, 8, 10, 0)},
	}, SystemActor)
	require.NoError(t, err)
	_, err = f.svc.DeleteHourlyEntry(ctx, f.record.ID, res.Hourly[0].ID, SystemActor)
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.ChildMutationCounter("hourly", "create")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ChildMutationCounter("hourly", "delete")))
}
