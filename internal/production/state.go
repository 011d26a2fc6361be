package production

import (
	"context"
	"database/sql"
	"fmt"

	"prodtrack/internal/domain"
	"prodtrack/internal/storage/sqlite"

	"go.uber.org/zap"
)

// Finalize recomputes the aggregates one last time, then locks the record.
// Finalizing an already finalized record fails with domain.ErrState.
func (s *Service) Finalize(ctx context.Context, recordID int64, actor domain.Actor) (domain.ProductionRecord, error) {
	var (
		rec  domain.ProductionRecord
		line domain.ProductionLine
	)
	err := sqlite.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		rec, line, err = s.loadAuthorized(ctx, tx, recordID, actor)
		if err != nil {
			return err
		}
		if rec.State() != domain.StateOpen {
			return fmt.Errorf("finalize record %d: already finalized: %w", rec.ID, domain.ErrState)
		}
		totals, err := s.recompute(ctx, tx, rec.ID)
		if err != nil {
			return err
		}
		at := s.stamp()
		if err := sqlite.SetFinalized(ctx, tx, rec.ID, &at, at); err != nil {
			return err
		}
		rec.Produced, rec.Defective, rec.DowntimeMinutes = totals.Produced, totals.Defective, totals.DowntimeMinutes
		rec.Finalized = true
		rec.FinalizedAt = &at
		rec.UpdatedAt = at
		return nil
	})
	if err != nil {
		return rec, s.reject("finalize", actor, err)
	}

	s.metrics.Transition("finalize")
	s.logger.Info("record finalized",
		zap.Int64("record_id", rec.ID),
		zap.Int64("actor_id", actor.UserID),
		zap.Int("produced", rec.Produced),
		zap.Int("defective", rec.Defective),
		zap.Int("downtime_minutes", rec.DowntimeMinutes),
	)
	if s.notifier != nil {
		if err := s.notifier.RecordFinalized(ctx, rec, line, actor); err != nil {
			s.logger.Warn("finalize notification failed", zap.Int64("record_id", rec.ID), zap.Error(err))
		}
	}
	return rec, nil
}

// Reopen unlocks a finalized record. Aggregates are left as they were; the
// next child mutation recomputes them. Reopening an open record fails with
// domain.ErrState.
func (s *Service) Reopen(ctx context.Context, recordID int64, actor domain.Actor) (domain.ProductionRecord, error) {
	var (
		rec  domain.ProductionRecord
		line domain.ProductionLine
	)
	err := sqlite.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		rec, line, err = s.loadAuthorized(ctx, tx, recordID, actor)
		if err != nil {
			return err
		}
		if rec.State() != domain.StateFinalized {
			return fmt.Errorf("reopen record %d: not finalized: %w", rec.ID, domain.ErrState)
		}
		at := s.stamp()
		if err := sqlite.SetFinalized(ctx, tx, rec.ID, nil, at); err != nil {
			return err
		}
		rec.Finalized = false
		rec.FinalizedAt = nil
		rec.UpdatedAt = at
		return nil
	})
	if err != nil {
		return rec, s.reject("reopen", actor, err)
	}

	s.metrics.Transition("reopen")
	s.logger.Info("record reopened", zap.Int64("record_id", rec.ID), zap.Int64("actor_id", actor.UserID))
	if s.notifier != nil {
		if err := s.notifier.RecordReopened(ctx, rec, line, actor); err != nil {
			s.logger.Warn("reopen notification failed", zap.Int64("record_id", rec.ID), zap.Error(err))
		}
	}
	return rec, nil
}

// loadAuthorized reads the record and its line and checks the actor may act
// on it.
func (s *Service) loadAuthorized(ctx context.Context, q sqlite.Querier, recordID int64, actor domain.Actor) (domain.ProductionRecord, domain.ProductionLine, error) {
	rec, err := sqlite.GetRecord(ctx, q, recordID)
	if err != nil {
		return rec, domain.ProductionLine{}, err
	}
	line, err := sqlite.GetLine(ctx, q, rec.LineID)
	if err != nil {
		return rec, line, err
	}
	return rec, line, Authorize(actor, line)
}

// loadMutable is loadAuthorized plus the edit lock.
func (s *Service) loadMutable(ctx context.Context, q sqlite.Querier, recordID int64, actor domain.Actor) (domain.ProductionRecord, domain.ProductionLine, error) {
	rec, line, err := s.loadAuthorized(ctx, q, recordID, actor)
	if err != nil {
		return rec, line, err
	}
	if rec.Finalized {
		return rec, line, fmt.Errorf("record %d: %w", rec.ID, domain.ErrLocked)
	}
	return rec, line, nil
}
