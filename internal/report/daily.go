// Package report builds the daily production summary per line and shift.
package report

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"prodtrack/internal/domain"
	"prodtrack/internal/storage/sqlite"

	"github.com/shopspring/decimal"
)

// Uncategorized labels downtime whose stoppages have not been classified.
const Uncategorized = "Sem categoria"

type Row struct {
	RecordID        int64           `json:"record_id"`
	LineID          int64           `json:"line_id"`
	LineName        string          `json:"line_name"`
	Sector          string          `json:"sector"`
	Shift           domain.Shift    `json:"shift"`
	ShiftLabel      string          `json:"shift_label"`
	Produced        int             `json:"produced"`
	Defective       int             `json:"defective"`
	DefectRatePct   decimal.Decimal `json:"defect_rate_pct"`
	DowntimeMinutes int             `json:"downtime_minutes"`
	CoveredMinutes  int             `json:"covered_minutes"`
	EfficiencyPct   decimal.Decimal `json:"efficiency_pct"` // zero when no hours were recorded
	Finalized       bool            `json:"finalized"`
}

type CategoryDowntime struct {
	Category string          `json:"category"`
	Minutes  int             `json:"minutes"`
	Events   int             `json:"events"`
	SharePct decimal.Decimal `json:"share_pct"`
}

type StaleRecord struct {
	RecordID   int64     `json:"record_id"`
	LineName   string    `json:"line_name"`
	Date       time.Time `json:"date"`
	ShiftLabel string    `json:"shift_label"`
	AgeDays    int       `json:"age_days"`
}

type Daily struct {
	Date          time.Time          `json:"date"`
	Rows          []Row              `json:"rows"`
	Totals        domain.Totals      `json:"totals"`
	DefectRatePct decimal.Decimal    `json:"defect_rate_pct"`
	Downtime      []CategoryDowntime `json:"downtime_by_category"`
	StaleOpen     []StaleRecord      `json:"stale_open_records"`
}

type Options struct {
	// OpenRecordMaxAgeDays flags open records dated at least this many days
	// before the report date. Zero disables the check.
	OpenRecordMaxAgeDays int
	// Sectors restricts the report; nil means every line.
	Sectors []string
}

// BuildDaily summarizes every record dated on date. The figures come from
// the stored aggregates, which the production service keeps in step with
// the children.
func BuildDaily(ctx context.Context, q sqlite.Querier, date time.Time, opts Options) (Daily, error) {
	date = domain.DateOf(date)
	out := Daily{Date: date, Rows: []Row{}, Downtime: []CategoryDowntime{}, StaleOpen: []StaleRecord{}}

	lines, err := sqlite.ListLines(ctx, q, opts.Sectors)
	if err != nil {
		return out, fmt.Errorf("list lines: %w", err)
	}
	lineByID := make(map[int64]domain.ProductionLine, len(lines))
	for _, l := range lines {
		lineByID[l.ID] = l
	}

	records, err := sqlite.ListRecords(ctx, q, sqlite.RecordFilter{Sectors: opts.Sectors, From: date, To: date})
	if err != nil {
		return out, fmt.Errorf("list records: %w", err)
	}
	included := make(map[int64]bool, len(records))
	for _, rec := range records {
		line := lineByID[rec.LineID]
		entries, err := sqlite.ListHourlyEntries(ctx, q, rec.ID)
		if err != nil {
			return out, fmt.Errorf("hourly entries for record %d: %w", rec.ID, err)
		}
		covered := 0
		for _, e := range entries {
			minutes, err := e.IntervalMinutes(rec.Date)
			if err != nil {
				return out, fmt.Errorf("hourly entry %d: %w", e.ID, err)
			}
			covered += minutes
		}

		out.Rows = append(out.Rows, Row{
			RecordID:        rec.ID,
			LineID:          rec.LineID,
			LineName:        line.Name,
			Sector:          line.Sector,
			Shift:           rec.Shift,
			ShiftLabel:      rec.Shift.Label(),
			Produced:        rec.Produced,
			Defective:       rec.Defective,
			DefectRatePct:   rec.DefectRatePct(),
			DowntimeMinutes: rec.DowntimeMinutes,
			CoveredMinutes:  covered,
			EfficiencyPct:   EfficiencyPct(rec.Produced, line.NominalCapacity, covered),
			Finalized:       rec.Finalized,
		})
		out.Totals.Produced += rec.Produced
		out.Totals.Defective += rec.Defective
		out.Totals.DowntimeMinutes += rec.DowntimeMinutes
		included[rec.ID] = true
	}
	slices.SortStableFunc(out.Rows, func(a, b Row) int {
		return cmp.Or(cmp.Compare(a.LineName, b.LineName), cmp.Compare(a.Shift, b.Shift))
	})
	out.DefectRatePct = domain.DefectRatePct(out.Totals.Produced, out.Totals.Defective)

	stoppages, err := sqlite.ListStoppagesByDateRange(ctx, q, date, date, false)
	if err != nil {
		return out, fmt.Errorf("list stoppages: %w", err)
	}
	out.Downtime = downtimeByCategory(stoppages, included)

	if opts.OpenRecordMaxAgeDays > 0 {
		open := false
		cutoff := date.AddDate(0, 0, -opts.OpenRecordMaxAgeDays)
		stale, err := sqlite.ListRecords(ctx, q, sqlite.RecordFilter{Sectors: opts.Sectors, To: cutoff, Finalized: &open})
		if err != nil {
			return out, fmt.Errorf("list stale records: %w", err)
		}
		for _, rec := range stale {
			out.StaleOpen = append(out.StaleOpen, StaleRecord{
				RecordID:   rec.ID,
				LineName:   lineByID[rec.LineID].Name,
				Date:       rec.Date,
				ShiftLabel: rec.Shift.Label(),
				AgeDays:    int(date.Sub(rec.Date).Hours() / 24),
			})
		}
	}
	return out, nil
}

// EfficiencyPct is output against nominal capacity over the covered time,
// as a percentage rounded to two decimals.
func EfficiencyPct(produced, capacityPerHour, coveredMinutes int) decimal.Decimal {
	if capacityPerHour <= 0 || coveredMinutes <= 0 {
		return decimal.Zero
	}
	expected := decimal.NewFromInt(int64(capacityPerHour)).
		Mul(decimal.NewFromInt(int64(coveredMinutes))).
		Div(decimal.NewFromInt(60))
	return decimal.NewFromInt(int64(produced)).
		Mul(decimal.NewFromInt(100)).
		Div(expected).
		Round(2)
}

func downtimeByCategory(stoppages []domain.StoppageEvent, included map[int64]bool) []CategoryDowntime {
	byCategory := make(map[string]*CategoryDowntime)
	total := 0
	for _, ev := range stoppages {
		if !included[ev.RecordID] {
			continue
		}
		category := ev.Category
		if category == "" {
			category = Uncategorized
		}
		c, ok := byCategory[category]
		if !ok {
			c = &CategoryDowntime{Category: category}
			byCategory[category] = c
		}
		c.Minutes += ev.DurationMinutes
		c.Events++
		total += ev.DurationMinutes
	}

	out := make([]CategoryDowntime, 0, len(byCategory))
	for _, c := range byCategory {
		if total > 0 {
			c.SharePct = decimal.NewFromInt(int64(c.Minutes)).
				Mul(decimal.NewFromInt(100)).
				Div(decimal.NewFromInt(int64(total))).
				Round(1)
		}
		out = append(out, *c)
	}
	slices.SortFunc(out, func(a, b CategoryDowntime) int {
		return cmp.Or(cmp.Compare(b.Minutes, a.Minutes), cmp.Compare(a.Category, b.Category))
	})
	return out
}
