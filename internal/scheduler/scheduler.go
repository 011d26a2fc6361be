// Package scheduler runs cron-scheduled jobs such as the daily report.
package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"prodtrack/internal/config"
	"prodtrack/internal/domain"
	"prodtrack/internal/integrations/llm"
	"prodtrack/internal/report"
	"prodtrack/internal/storage/sqlite"

	"go.uber.org/zap"
)

type Uploader interface {
	UploadReport(ctx context.Context, path, title, comment string) error
}

// DailyReport categorizes the day's stoppages, writes the markdown report,
// and shares it when an uploader is configured.
type DailyReport struct {
	DB             *sql.DB
	Categorizer    llm.Categorizer // optional
	Uploader       Uploader        // optional
	OutputDir      string
	Name           string
	MaxOpenAgeDays int
	Logger         *zap.Logger
}

type RunResult struct {
	Date        time.Time
	Path        string
	Rows        int
	Categorized int
	Usage       llm.Usage
	Report      report.Daily
}

func (j *DailyReport) logger() *zap.Logger {
	if j.Logger == nil {
		return zap.NewNop()
	}
	return j.Logger
}

// Run produces the report for the given calendar date. A categorizer
// failure is logged and the report is still written.
func (j *DailyReport) Run(ctx context.Context, date time.Time) (RunResult, error) {
	date = domain.DateOf(date)
	res := RunResult{Date: date}
	log := j.logger().With(zap.String("date", date.Format(domain.DateLayout)))

	if j.Categorizer != nil {
		n, usage, err := j.categorize(ctx, date)
		res.Categorized, res.Usage = n, usage
		if err != nil {
			log.Warn("stoppage categorization failed", zap.Error(err))
		}
	}

	daily, err := report.BuildDaily(ctx, j.DB, date, report.Options{OpenRecordMaxAgeDays: j.MaxOpenAgeDays})
	if err != nil {
		return res, fmt.Errorf("build daily report: %w", err)
	}
	res.Report = daily
	res.Rows = len(daily.Rows)

	md := report.RenderMarkdown(daily, j.Name)
	res.Path, err = report.WriteReportFile(md, j.OutputDir, date, j.Name)
	if err != nil {
		return res, fmt.Errorf("write report: %w", err)
	}
	log.Info("daily report written",
		zap.String("path", res.Path),
		zap.Int("rows", res.Rows),
		zap.Int("categorized", res.Categorized),
		zap.Int64("llm_tokens", res.Usage.TotalTokens()),
	)

	if j.Uploader != nil {
		title := fmt.Sprintf("%s %s", j.Name, date.Format("02/01/2006"))
		comment := fmt.Sprintf("Relatorio diario: %d apontamentos, %d produzidos, %d min parados",
			res.Rows, daily.Totals.Produced, daily.Totals.DowntimeMinutes)
		if err := j.Uploader.UploadReport(ctx, res.Path, title, comment); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (j *DailyReport) categorize(ctx context.Context, date time.Time) (int, llm.Usage, error) {
	pending, err := sqlite.ListStoppagesByDateRange(ctx, j.DB, date, date, true)
	if err != nil || len(pending) == 0 {
		return 0, llm.Usage{}, err
	}
	decided, usage, catErr := j.Categorizer.Categorize(ctx, pending)
	if len(decided) > 0 {
		if err := sqlite.UpdateStoppageCategories(j.DB, decided); err != nil {
			return 0, usage, fmt.Errorf("store categories: %w", err)
		}
	}
	return len(decided), usage, catErr
}

// RunScheduled reports on the calendar day before at, so a morning run
// covers the night shift that just ended.
func (j *DailyReport) RunScheduled(ctx context.Context, at time.Time) {
	if _, err := j.Run(ctx, at.AddDate(0, 0, -1)); err != nil {
		j.logger().Error("daily report failed", zap.Error(err))
	}
}

// Job is anything run at each activation of a schedule. at is the
// activation time in the schedule's location.
type Job interface {
	RunScheduled(ctx context.Context, at time.Time)
}

// Start runs job at every activation of spec until ctx is cancelled. The
// returned channel is closed once the loop has exited.
func Start(ctx context.Context, name, spec string, loc *time.Location, job Job, logger *zap.Logger) (<-chan struct{}, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("empty %s schedule", name)
	}
	sched, err := config.ScheduleParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid %s schedule '%s': %w", name, spec, err)
	}
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.With(zap.String("job", name))
	log.Info("job scheduled", zap.String("cron", spec))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			now := time.Now().In(loc)
			next := sched.Next(now)
			wait := next.Sub(now)
			log.Debug("next run", zap.Time("at", next), zap.Duration("in", wait.Round(time.Second)))

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				log.Info("scheduler stopped")
				return
			case fired := <-timer.C:
				job.RunScheduled(ctx, fired.In(loc))
			}
		}
	}()
	return done, nil
}
