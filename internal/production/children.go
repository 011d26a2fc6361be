package production

import (
	"context"
	"database/sql"
	"fmt"

	"prodtrack/internal/domain"
	"prodtrack/internal/storage/sqlite"

	"go.uber.org/zap"
)

// ChildBatch is a set of child mutations applied to one record as a unit.
// Entries with a zero ID are created, the others updated.
type ChildBatch struct {
	Hourly          []domain.HourlyEntry   `json:"hourly"`
	Stoppages       []domain.StoppageEvent `json:"stoppages"`
	DeleteHourly    []int64                `json:"delete_hourly"`
	DeleteStoppages []int64                `json:"delete_stoppages"`
}

func (b ChildBatch) Empty() bool {
	return len(b.Hourly) == 0 && len(b.Stoppages) == 0 && len(b.DeleteHourly) == 0 && len(b.DeleteStoppages) == 0
}

type ChildResult struct {
	Record    domain.ProductionRecord `json:"record"`
	Hourly    []domain.HourlyEntry    `json:"hourly"`
	Stoppages []domain.StoppageEvent  `json:"stoppages"`
}

type mutationCounts struct {
	created, updated, deleted map[string]int
}

// SaveChildren validates and applies every mutation in the batch, then
// recomputes the record aggregates, all in one transaction. Any validation
// failure aborts the whole batch; the returned error joins every failure.
// A finalized record rejects the batch with domain.ErrLocked.
func (s *Service) SaveChildren(ctx context.Context, recordID int64, batch ChildBatch, actor domain.Actor) (ChildResult, error) {
	var result ChildResult
	if batch.Empty() {
		return result, s.reject("save_children", actor, domain.Invalid("children", "nothing to save"))
	}
	// Work on copies so derived durations never leak into the caller's batch.
	batch.Hourly = append([]domain.HourlyEntry(nil), batch.Hourly...)
	batch.Stoppages = append([]domain.StoppageEvent(nil), batch.Stoppages...)

	counts := mutationCounts{
		created: map[string]int{},
		updated: map[string]int{},
		deleted: map[string]int{},
	}
	err := sqlite.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		rec, _, err := s.loadMutable(ctx, tx, recordID, actor)
		if err != nil {
			return err
		}
		if err := validateBatch(rec.Date, &batch); err != nil {
			return err
		}

		for _, id := range batch.DeleteHourly {
			if err := sqlite.DeleteHourlyEntry(ctx, tx, rec.ID, id); err != nil {
				return err
			}
			counts.deleted["hourly"]++
		}
		for _, id := range batch.DeleteStoppages {
			if err := sqlite.DeleteStoppage(ctx, tx, rec.ID, id); err != nil {
				return err
			}
			counts.deleted["stoppage"]++
		}
		for i := range batch.Hourly {
			e := &batch.Hourly[i]
			e.RecordID = rec.ID
			if e.ID == 0 {
				if e.ID, err = sqlite.InsertHourlyEntry(ctx, tx, *e); err != nil {
					return err
				}
				counts.created["hourly"]++
				continue
			}
			if err := sqlite.UpdateHourlyEntry(ctx, tx, *e); err != nil {
				return err
			}
			counts.updated["hourly"]++
		}
		for i := range batch.Stoppages {
			ev := &batch.Stoppages[i]
			ev.RecordID = rec.ID
			if ev.ID == 0 {
				if ev.ID, err = sqlite.InsertStoppage(ctx, tx, *ev); err != nil {
					return err
				}
				counts.created["stoppage"]++
				continue
			}
			if err := sqlite.UpdateStoppage(ctx, tx, *ev); err != nil {
				return err
			}
			counts.updated["stoppage"]++
		}

		totals, err := s.recompute(ctx, tx, rec.ID)
		if err != nil {
			return fmt.Errorf("recompute record %d: %w", rec.ID, err)
		}
		rec.Produced, rec.Defective, rec.DowntimeMinutes = totals.Produced, totals.Defective, totals.DowntimeMinutes
		result.Record = rec
		return nil
	})
	if err != nil {
		return ChildResult{}, s.reject("save_children", actor, err)
	}

	for kind, n := range counts.created {
		s.metrics.ChildMutation(kind, "create", n)
	}
	for kind, n := range counts.updated {
		s.metrics.ChildMutation(kind, "update", n)
	}
	for kind, n := range counts.deleted {
		s.metrics.ChildMutation(kind, "delete", n)
	}
	result.Hourly = batch.Hourly
	result.Stoppages = batch.Stoppages
	s.logger.Info("children saved",
		zap.Int64("record_id", recordID),
		zap.Int64("actor_id", actor.UserID),
		zap.Int("hourly", len(batch.Hourly)),
		zap.Int("stoppages", len(batch.Stoppages)),
		zap.Int("deleted", len(batch.DeleteHourly)+len(batch.DeleteStoppages)),
		zap.Int("produced", result.Record.Produced),
		zap.Int("downtime_minutes", result.Record.DowntimeMinutes),
	)
	return result, nil
}

// SaveHourlyEntry creates (ID 0) or updates a single hourly entry.
func (s *Service) SaveHourlyEntry(ctx context.Context, recordID int64, e domain.HourlyEntry, actor domain.Actor) (domain.HourlyEntry, domain.ProductionRecord, error) {
	res, err := s.SaveChildren(ctx, recordID, ChildBatch{Hourly: []domain.HourlyEntry{e}}, actor)
	if err != nil {
		return domain.HourlyEntry{}, domain.ProductionRecord{}, err
	}
	return res.Hourly[0], res.Record, nil
}

// SaveStoppage creates (ID 0) or updates a single stoppage. Its duration is
// always derived from the start and end times.
func (s *Service) SaveStoppage(ctx context.Context, recordID int64, ev domain.StoppageEvent, actor domain.Actor) (domain.StoppageEvent, domain.ProductionRecord, error) {
	res, err := s.SaveChildren(ctx, recordID, ChildBatch{Stoppages: []domain.StoppageEvent{ev}}, actor)
	if err != nil {
		return domain.StoppageEvent{}, domain.ProductionRecord{}, err
	}
	return res.Stoppages[0], res.Record, nil
}

func (s *Service) DeleteHourlyEntry(ctx context.Context, recordID, entryID int64, actor domain.Actor) (domain.ProductionRecord, error) {
	res, err := s.SaveChildren(ctx, recordID, ChildBatch{DeleteHourly: []int64{entryID}}, actor)
	return res.Record, err
}

func (s *Service) DeleteStoppage(ctx context.Context, recordID, stoppageID int64, actor domain.Actor) (domain.ProductionRecord, error) {
	res, err := s.SaveChildren(ctx, recordID, ChildBatch{DeleteStoppages: []int64{stoppageID}}, actor)
	return res.Record, err
}
