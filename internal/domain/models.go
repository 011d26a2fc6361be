package domain

import (
	"encoding/json"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type ProductionLine struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	Sector          string `json:"sector"`           // empty when the line belongs to no sector
	NominalCapacity int    `json:"nominal_capacity"` // units per hour
}

type RecordState string

const (
	StateOpen      RecordState = "open"
	StateFinalized RecordState = "finalized"
)

type ProductionRecord struct {
	ID              int64      `json:"id"`
	LineID          int64      `json:"line_id"`
	Date            time.Time  `json:"-"` // calendar date, UTC midnight
	Shift           Shift      `json:"shift"`
	Produced        int        `json:"produced"`
	Defective       int        `json:"defective"`
	DowntimeMinutes int        `json:"downtime_minutes"`
	Finalized       bool       `json:"finalized"`
	FinalizedAt     *time.Time `json:"finalized_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (r ProductionRecord) State() RecordState {
	if r.Finalized {
		return StateFinalized
	}
	return StateOpen
}

func (r ProductionRecord) MarshalJSON() ([]byte, error) {
	type plain ProductionRecord
	return json.Marshal(struct {
		plain
		Date  string      `json:"date"`
		State RecordState `json:"state"`
	}{plain(r), r.Date.Format(DateLayout), r.State()})
}

func (r ProductionRecord) Totals() Totals {
	return Totals{Produced: r.Produced, Defective: r.Defective, DowntimeMinutes: r.DowntimeMinutes}
}

func (r ProductionRecord) DefectRatePct() decimal.Decimal {
	return DefectRatePct(r.Produced, r.Defective)
}

// HourlyEntry is one row of hour-by-hour output inside a record.
type HourlyEntry struct {
	ID        int64 `json:"id"`
	RecordID  int64 `json:"record_id"`
	Start     Clock `json:"start"`
	End       Clock `json:"end"`
	Produced  int   `json:"produced"`
	Defective int   `json:"defective"`
}

func (e HourlyEntry) DefectRatePct() decimal.Decimal {
	return DefectRatePct(e.Produced, e.Defective)
}

// IntervalMinutes is the span covered by the entry on the given record date.
func (e HourlyEntry) IntervalMinutes(date time.Time) (int, error) {
	return SpanMinutes(date, e.Start, e.End)
}

type StoppageEvent struct {
	ID              int64  `json:"id"`
	RecordID        int64  `json:"record_id"`
	Start           Clock  `json:"start"`
	End             Clock  `json:"end"`
	DurationMinutes int    `json:"duration_minutes"`
	Reason          string `json:"reason"`
	Category        string `json:"category"`
}

type SectorPermission struct {
	UserID int64  `json:"user_id"`
	Sector string `json:"sector"`
}

type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Superuser bool      `json:"superuser"`
	CreatedAt time.Time `json:"created_at"`
}

// Actor is the identity a mutation is performed on behalf of, with its
// granted sectors already resolved.
type Actor struct {
	UserID     int64
	Username   string
	Privileged bool
	Sectors    []string
}

func (a Actor) HasSector(sector string) bool {
	sector = NormalizeSector(sector)
	if sector == "" {
		return false
	}
	return slices.Contains(a.Sectors, sector)
}

type Totals struct {
	Produced        int `json:"produced"`
	Defective       int `json:"defective"`
	DowntimeMinutes int `json:"downtime_minutes"`
}

func NormalizeSector(s string) string {
	return strings.TrimSpace(s)
}

// DefectRatePct returns defective/produced as a percentage rounded to two
// decimals, or zero when nothing was produced.
func DefectRatePct(produced, defective int) decimal.Decimal {
	if produced == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(defective)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(produced))).
		Round(2)
}
