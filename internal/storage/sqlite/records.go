package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"prodtrack/internal/domain"
)

const recordColumns = `r.id, r.line_id, r.record_date, r.shift, r.produced, r.defective,
	r.downtime_minutes, r.finalized, r.finalized_at, r.created_at, r.updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (domain.ProductionRecord, error) {
	var (
		rec         domain.ProductionRecord
		date, shift string
		finalizedAt sql.NullTime
	)
	err := s.Scan(
		&rec.ID, &rec.LineID, &date, &shift, &rec.Produced, &rec.Defective,
		&rec.DowntimeMinutes, &rec.Finalized, &finalizedAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return rec, err
	}
	rec.Date, err = time.Parse(domain.DateLayout, date)
	if err != nil {
		return rec, fmt.Errorf("record %d: bad stored date %q: %w", rec.ID, date, err)
	}
	rec.Shift = domain.Shift(shift)
	if finalizedAt.Valid {
		t := finalizedAt.Time
		rec.FinalizedAt = &t
	}
	return rec, nil
}

// InsertRecord stores a new, open record with zero aggregates.
func InsertRecord(ctx context.Context, q Querier, rec domain.ProductionRecord) (int64, error) {
	res, err := q.ExecContext(ctx,
		`INSERT INTO production_records (line_id, record_date, shift, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.LineID, dateText(rec.Date), string(rec.Shift), rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, duplicateSlot(rec)
		}
		if isForeignKeyViolation(err) {
			return 0, fmt.Errorf("production line %d: %w", rec.LineID, domain.ErrNotFound)
		}
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateRecordSlot changes the line/date/shift a record belongs to.
func UpdateRecordSlot(ctx context.Context, q Querier, rec domain.ProductionRecord) error {
	res, err := q.ExecContext(ctx,
		`UPDATE production_records SET line_id = ?, record_date = ?, shift = ?, updated_at = ? WHERE id = ?`,
		rec.LineID, dateText(rec.Date), string(rec.Shift), rec.UpdatedAt, rec.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return duplicateSlot(rec)
		}
		return err
	}
	return requireAffected(res, "production record", rec.ID)
}

func DeleteRecord(ctx context.Context, q Querier, id int64) error {
	res, err := q.ExecContext(ctx, `DELETE FROM production_records WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res, "production record", id)
}

func GetRecord(ctx context.Context, q Querier, id int64) (domain.ProductionRecord, error) {
	rec, err := scanRecord(q.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM production_records r WHERE r.id = ?`, id))
	return rec, notFound("production record", id, err)
}

// RecordSlotTaken reports whether another record (other than excludeID)
// already occupies the line/date/shift slot.
func RecordSlotTaken(ctx context.Context, q Querier, lineID int64, date time.Time, shift domain.Shift, excludeID int64) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM production_records
		 WHERE line_id = ? AND record_date = ? AND shift = ? AND id <> ?`,
		lineID, dateText(date), string(shift), excludeID,
	).Scan(&count)
	return count > 0, err
}

type RecordFilter struct {
	Sectors   []string // nil means no sector restriction
	LineID    int64
	From, To  time.Time // inclusive calendar dates; zero means unbounded
	Finalized *bool
	Limit     int
	Offset    int
}

func ListRecords(ctx context.Context, q Querier, f RecordFilter) ([]domain.ProductionRecord, error) {
	var (
		where []string
		args  []any
	)
	if f.Sectors != nil {
		if len(f.Sectors) == 0 {
			return nil, nil
		}
		where = append(where, `l.sector IN (`+placeholders(len(f.Sectors))+`)`)
		for _, s := range f.Sectors {
			args = append(args, s)
		}
	}
	if f.LineID != 0 {
		where = append(where, `r.line_id = ?`)
		args = append(args, f.LineID)
	}
	if !f.From.IsZero() {
		where = append(where, `r.record_date >= ?`)
		args = append(args, dateText(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, `r.record_date <= ?`)
		args = append(args, dateText(f.To))
	}
	if f.Finalized != nil {
		where = append(where, `r.finalized = ?`)
		args = append(args, *f.Finalized)
	}

	query := `SELECT ` + recordColumns + `
		FROM production_records r JOIN production_lines l ON l.id = r.line_id`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY r.record_date DESC, l.name, r.shift, r.id`
	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ProductionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SumChildren aggregates the record's hourly entries and stoppages. A record
// without children sums to zero, never NULL.
func SumChildren(ctx context.Context, q Querier, recordID int64) (domain.Totals, error) {
	var t domain.Totals
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(produced), 0), COALESCE(SUM(defective), 0)
		 FROM hourly_entries WHERE record_id = ?`, recordID,
	).Scan(&t.Produced, &t.Defective)
	if err != nil {
		return t, err
	}
	err = q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(duration_minutes), 0) FROM stoppage_events WHERE record_id = ?`, recordID,
	).Scan(&t.DowntimeMinutes)
	return t, err
}

func WriteTotals(ctx context.Context, q Querier, recordID int64, t domain.Totals, updatedAt time.Time) error {
	res, err := q.ExecContext(ctx,
		`UPDATE production_records
		 SET produced = ?, defective = ?, downtime_minutes = ?, updated_at = ?
		 WHERE id = ?`,
		t.Produced, t.Defective, t.DowntimeMinutes, updatedAt, recordID,
	)
	if err != nil {
		return err
	}
	return requireAffected(res, "production record", recordID)
}

// SetFinalized writes the finalized flag and timestamp. A nil finalizedAt
// reopens the record.
func SetFinalized(ctx context.Context, q Querier, recordID int64, finalizedAt *time.Time, updatedAt time.Time) error {
	var at sql.NullTime
	if finalizedAt != nil {
		at = sql.NullTime{Time: *finalizedAt, Valid: true}
	}
	res, err := q.ExecContext(ctx,
		`UPDATE production_records SET finalized = ?, finalized_at = ?, updated_at = ? WHERE id = ?`,
		finalizedAt != nil, at, updatedAt, recordID,
	)
	if err != nil {
		return err
	}
	return requireAffected(res, "production record", recordID)
}

func duplicateSlot(rec domain.ProductionRecord) error {
	return domain.Invalid("shift", "a record for line %d on %s shift %s already exists",
		rec.LineID, dateText(rec.Date), rec.Shift.Label())
}
