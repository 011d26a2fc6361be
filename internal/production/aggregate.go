package production

import (
	"context"
	"database/sql"
	"time"

	"prodtrack/internal/domain"
	"prodtrack/internal/storage/sqlite"

	"go.uber.org/zap"
)

// recompute sums the record's live children and writes the three aggregates
// back. It must run inside the transaction that mutated the children.
func (s *Service) recompute(ctx context.Context, tx *sql.Tx, recordID int64) (domain.Totals, error) {
	started := time.Now()
	totals, err := sqlite.SumChildren(ctx, tx, recordID)
	if err != nil {
		return totals, err
	}
	if err := sqlite.WriteTotals(ctx, tx, recordID, totals, s.stamp()); err != nil {
		return totals, err
	}
	s.metrics.ObserveRecompute(time.Since(started))
	return totals, nil
}

// RecomputeTotals brings the record's aggregates in line with its children
// and returns them. A finalized record's aggregates are frozen: they are
// returned as stored without a write.
func (s *Service) RecomputeTotals(ctx context.Context, recordID int64) (domain.Totals, error) {
	var totals domain.Totals
	err := sqlite.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		rec, err := sqlite.GetRecord(ctx, tx, recordID)
		if err != nil {
			return err
		}
		if rec.Finalized {
			totals = rec.Totals()
			return nil
		}
		totals, err = s.recompute(ctx, tx, recordID)
		return err
	})
	if err != nil {
		return totals, s.reject("recompute", SystemActor, err)
	}
	s.logger.Debug("totals recomputed",
		zap.Int64("record_id", recordID),
		zap.Int("produced", totals.Produced),
		zap.Int("defective", totals.Defective),
		zap.Int("downtime_minutes", totals.DowntimeMinutes),
	)
	return totals, nil
}
