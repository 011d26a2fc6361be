package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"prodtrack/internal/domain"
)

// --- Hourly entries ---

func scanHourly(s scanner) (domain.HourlyEntry, error) {
	var (
		e          domain.HourlyEntry
		start, end string
	)
	if err := s.Scan(&e.ID, &e.RecordID, &start, &end, &e.Produced, &e.Defective); err != nil {
		return e, err
	}
	var err error
	if e.Start, err = domain.ParseClock(start); err != nil {
		return e, fmt.Errorf("hourly entry %d: %w", e.ID, err)
	}
	if e.End, err = domain.ParseClock(end); err != nil {
		return e, fmt.Errorf("hourly entry %d: %w", e.ID, err)
	}
	return e, nil
}

func InsertHourlyEntry(ctx context.Context, q Querier, e domain.HourlyEntry) (int64, error) {
	res, err := q.ExecContext(ctx,
		`INSERT INTO hourly_entries (record_id, start_time, end_time, produced, defective)
		 VALUES (?, ?, ?, ?, ?)`,
		e.RecordID, clockText(e.Start), clockText(e.End), e.Produced, e.Defective,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func UpdateHourlyEntry(ctx context.Context, q Querier, e domain.HourlyEntry) error {
	res, err := q.ExecContext(ctx,
		`UPDATE hourly_entries SET start_time = ?, end_time = ?, produced = ?, defective = ?
		 WHERE id = ? AND record_id = ?`,
		clockText(e.Start), clockText(e.End), e.Produced, e.Defective, e.ID, e.RecordID,
	)
	if err != nil {
		return err
	}
	return requireAffected(res, "hourly entry", e.ID)
}

func DeleteHourlyEntry(ctx context.Context, q Querier, recordID, id int64) error {
	res, err := q.ExecContext(ctx, `DELETE FROM hourly_entries WHERE id = ? AND record_id = ?`, id, recordID)
	if err != nil {
		return err
	}
	return requireAffected(res, "hourly entry", id)
}

func ListHourlyEntries(ctx context.Context, q Querier, recordID int64) ([]domain.HourlyEntry, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, record_id, start_time, end_time, produced, defective
		 FROM hourly_entries WHERE record_id = ? ORDER BY start_time, id`, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.HourlyEntry
	for rows.Next() {
		e, err := scanHourly(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- Stoppages ---

const stoppageColumns = `s.id, s.record_id, s.start_time, s.end_time, s.duration_minutes, s.reason, s.category`

func scanStoppage(s scanner) (domain.StoppageEvent, error) {
	var (
		ev         domain.StoppageEvent
		start, end string
	)
	if err := s.Scan(&ev.ID, &ev.RecordID, &start, &end, &ev.DurationMinutes, &ev.Reason, &ev.Category); err != nil {
		return ev, err
	}
	var err error
	if ev.Start, err = domain.ParseClock(start); err != nil {
		return ev, fmt.Errorf("stoppage %d: %w", ev.ID, err)
	}
	if ev.End, err = domain.ParseClock(end); err != nil {
		return ev, fmt.Errorf("stoppage %d: %w", ev.ID, err)
	}
	return ev, nil
}

func InsertStoppage(ctx context.Context, q Querier, ev domain.StoppageEvent) (int64, error) {
	res, err := q.ExecContext(ctx,
		`INSERT INTO stoppage_events (record_id, start_time, end_time, duration_minutes, reason, category)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ev.RecordID, clockText(ev.Start), clockText(ev.End), ev.DurationMinutes, ev.Reason, ev.Category,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateStoppage rewrites every stoppage column. Passing an empty category
// queues the stoppage for the next classification pass.
func UpdateStoppage(ctx context.Context, q Querier, ev domain.StoppageEvent) error {
	res, err := q.ExecContext(ctx,
		`UPDATE stoppage_events
		 SET start_time = ?, end_time = ?, duration_minutes = ?, reason = ?, category = ?
		 WHERE id = ? AND record_id = ?`,
		clockText(ev.Start), clockText(ev.End), ev.DurationMinutes, ev.Reason, ev.Category, ev.ID, ev.RecordID,
	)
	if err != nil {
		return err
	}
	return requireAffected(res, "stoppage", ev.ID)
}

func DeleteStoppage(ctx context.Context, q Querier, recordID, id int64) error {
	res, err := q.ExecContext(ctx, `DELETE FROM stoppage_events WHERE id = ? AND record_id = ?`, id, recordID)
	if err != nil {
		return err
	}
	return requireAffected(res, "stoppage", id)
}

func ListStoppages(ctx context.Context, q Querier, recordID int64) ([]domain.StoppageEvent, error) {
	return queryStoppages(ctx, q,
		`SELECT `+stoppageColumns+` FROM stoppage_events s WHERE s.record_id = ? ORDER BY s.start_time, s.id`,
		recordID)
}

// ListStoppagesByDateRange returns stoppages of records dated within
// [from, to], optionally only those not yet categorized.
func ListStoppagesByDateRange(ctx context.Context, q Querier, from, to time.Time, uncategorizedOnly bool) ([]domain.StoppageEvent, error) {
	query := `SELECT ` + stoppageColumns + `
		FROM stoppage_events s JOIN production_records r ON r.id = s.record_id
		WHERE r.record_date >= ? AND r.record_date <= ?`
	if uncategorizedOnly {
		query += ` AND s.category = ''`
	}
	query += ` ORDER BY r.record_date, s.record_id, s.start_time, s.id`
	return queryStoppages(ctx, q, query, dateText(from), dateText(to))
}

func queryStoppages(ctx context.Context, q Querier, query string, args ...any) ([]domain.StoppageEvent, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.StoppageEvent
	for rows.Next() {
		ev, err := scanStoppage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// UpdateStoppageCategories annotates stoppages with downtime categories.
// Categories never feed the record aggregates.
func UpdateStoppageCategories(db *sql.DB, categorized map[int64]string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("UPDATE stoppage_events SET category = ? WHERE id = ?")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for id, category := range categorized {
		if _, err := stmt.Exec(category, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}
