package production

import (
	"context"
	"database/sql"
	"time"

	"prodtrack/internal/domain"
	"prodtrack/internal/storage/sqlite"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type RecordDetail struct {
	Record        domain.ProductionRecord `json:"record"`
	ShiftLabel    string                  `json:"shift_label"`
	Line          domain.ProductionLine   `json:"line"`
	DefectRatePct decimal.Decimal         `json:"defect_rate_pct"`
	Hourly        []domain.HourlyEntry    `json:"hourly"`
	Stoppages     []domain.StoppageEvent  `json:"stoppages"`
}

type RecordQuery struct {
	LineID    int64
	From, To  time.Time
	Finalized *bool
	Limit     int
	Offset    int
}

// CreateRecord opens a new record with zero aggregates on the given
// line/date/shift slot.
func (s *Service) CreateRecord(ctx context.Context, actor domain.Actor, in RecordInput) (domain.ProductionRecord, error) {
	if err := validateRecordInput(in, s.today()); err != nil {
		return domain.ProductionRecord{}, s.reject("create_record", actor, err)
	}
	in.Date = domain.DateOf(in.Date)

	var rec domain.ProductionRecord
	err := sqlite.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		line, err := sqlite.GetLine(ctx, tx, in.LineID)
		if err != nil {
			return err
		}
		if err := Authorize(actor, line); err != nil {
			return err
		}
		if err := checkSlotFree(ctx, tx, in, 0); err != nil {
			return err
		}
		now := s.stamp()
		rec = domain.ProductionRecord{
			LineID:    in.LineID,
			Date:      in.Date,
			Shift:     in.Shift,
			CreatedAt: now,
			UpdatedAt: now,
		}
		rec.ID, err = sqlite.InsertRecord(ctx, tx, rec)
		return err
	})
	if err != nil {
		return rec, s.reject("create_record", actor, err)
	}
	s.logger.Info("record created",
		zap.Int64("record_id", rec.ID),
		zap.Int64("line_id", rec.LineID),
		zap.String("date", rec.Date.Format(domain.DateLayout)),
		zap.String("shift", string(rec.Shift)),
		zap.Int64("actor_id", actor.UserID),
	)
	return rec, nil
}

// UpdateRecord moves an open record to another line/date/shift slot. The
// actor needs permission on both the current and the new line.
func (s *Service) UpdateRecord(ctx context.Context, actor domain.Actor, recordID int64, in RecordInput) (domain.ProductionRecord, error) {
	if err := validateRecordInput(in, s.today()); err != nil {
		return domain.ProductionRecord{}, s.reject("update_record", actor, err)
	}
	in.Date = domain.DateOf(in.Date)

	var rec domain.ProductionRecord
	err := sqlite.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		rec, _, err = s.loadMutable(ctx, tx, recordID, actor)
		if err != nil {
			return err
		}
		if in.LineID != rec.LineID {
			target, err := sqlite.GetLine(ctx, tx, in.LineID)
			if err != nil {
				return err
			}
			if err := Authorize(actor, target); err != nil {
				return err
			}
		}
		if err := checkSlotFree(ctx, tx, in, rec.ID); err != nil {
			return err
		}
		rec.LineID, rec.Date, rec.Shift = in.LineID, in.Date, in.Shift
		rec.UpdatedAt = s.stamp()
		return sqlite.UpdateRecordSlot(ctx, tx, rec)
	})
	if err != nil {
		return rec, s.reject("update_record", actor, err)
	}
	s.logger.Info("record updated", zap.Int64("record_id", rec.ID), zap.Int64("actor_id", actor.UserID))
	return rec, nil
}

// DeleteRecord removes an open record together with its children.
func (s *Service) DeleteRecord(ctx context.Context, actor domain.Actor, recordID int64) error {
	err := sqlite.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, _, err := s.loadMutable(ctx, tx, recordID, actor); err != nil {
			return err
		}
		return sqlite.DeleteRecord(ctx, tx, recordID)
	})
	if err != nil {
		return s.reject("delete_record", actor, err)
	}
	s.logger.Info("record deleted", zap.Int64("record_id", recordID), zap.Int64("actor_id", actor.UserID))
	return nil
}

func (s *Service) GetRecord(ctx context.Context, actor domain.Actor, recordID int64) (RecordDetail, error) {
	var d RecordDetail
	rec, line, err := s.loadAuthorized(ctx, s.db, recordID, actor)
	if err != nil {
		return d, s.reject("get_record", actor, err)
	}
	hourly, err := sqlite.ListHourlyEntries(ctx, s.db, recordID)
	if err != nil {
		return d, err
	}
	stoppages, err := sqlite.ListStoppages(ctx, s.db, recordID)
	if err != nil {
		return d, err
	}
	return RecordDetail{
		Record:        rec,
		ShiftLabel:    rec.Shift.Label(),
		Line:          line,
		DefectRatePct: rec.DefectRatePct(),
		Hourly:        nonNil(hourly),
		Stoppages:     nonNil(stoppages),
	}, nil
}

// ListRecords returns the records the actor may see: everything for
// privileged actors, otherwise records on lines in the actor's sectors.
func (s *Service) ListRecords(ctx context.Context, actor domain.Actor, q RecordQuery) ([]domain.ProductionRecord, error) {
	return sqlite.ListRecords(ctx, s.db, sqlite.RecordFilter{
		Sectors:   VisibleSectors(actor),
		LineID:    q.LineID,
		From:      q.From,
		To:        q.To,
		Finalized: q.Finalized,
		Limit:     q.Limit,
		Offset:    q.Offset,
	})
}

func checkSlotFree(ctx context.Context, q sqlite.Querier, in RecordInput, excludeID int64) error {
	taken, err := sqlite.RecordSlotTaken(ctx, q, in.LineID, in.Date, in.Shift, excludeID)
	if err != nil {
		return err
	}
	if taken {
		return domain.Invalid("shift", "a record for this line on %s shift %s already exists",
			in.Date.Format(domain.DateLayout), in.Shift.Label())
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
