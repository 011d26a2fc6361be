package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"

	"prodtrack/internal/config"
	"prodtrack/internal/integrations/llm"
	slackbot "prodtrack/internal/integrations/slack"
	"prodtrack/internal/metrics"
	"prodtrack/internal/nudge"
	"prodtrack/internal/production"
	"prodtrack/internal/scheduler"
	"prodtrack/internal/storage/sqlite"

	"github.com/slack-go/slack"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// runtime carries what every subcommand needs once config is loaded.
type runtime struct {
	cfg      config.Config
	logger   *zap.Logger
	db       *sql.DB
	metrics  *metrics.Metrics
	slack    *slackbot.Notifier
	slackAPI *slack.Client
	svc      *production.Service
}

func Main() {
	if err := Run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Run executes the command line in args and releases the database and
// logger afterwards, whether or not the command failed.
func Run(ctx context.Context, args []string, stdout io.Writer) error {
	rt := &runtime{}
	defer rt.close()

	root := newRootCommand(rt)
	root.SetArgs(args)
	root.SetOut(stdout)
	return root.ExecuteContext(ctx)
}

func newRootCommand(rt *runtime) *cobra.Command {
	root := &cobra.Command{
		Use:   "prodtrack",
		Short: "Production line shift tracking",
		Long: `prodtrack records hourly output and stoppages per production line and
shift, keeps each shift record's totals in step with its entries, and locks
records once a supervisor finalizes them.

Configuration comes from CONFIG_PATH (default config.yaml) and environment
overrides such as DB_PATH and LISTEN_ADDR.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return rt.open()
		},
	}
	root.AddCommand(
		serveCmd(rt),
		migrateCmd(rt),
		recomputeCmd(rt),
		transitionCmd(rt, "finalize", "Finalize a record, locking its entries"),
		transitionCmd(rt, "reopen", "Reopen a finalized record"),
		reportCmd(rt),
		nudgeCmd(rt),
		glossaryCmd(rt),
		sectorCmd(rt, "grant", "Allow a user to record against a sector"),
		sectorCmd(rt, "revoke", "Remove a user's access to a sector"),
		userCmd(rt),
		lineCmd(rt),
	)
	return root
}

func (rt *runtime) open() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	rt.cfg = cfg

	rt.logger, err = newLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	rt.db, err = sqlite.InitDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	rt.logger.Debug("database initialized", zap.String("path", cfg.DBPath))

	rt.metrics = metrics.New()
	opts := []production.Option{
		production.WithLocation(cfg.Location),
		production.WithMetrics(rt.metrics),
	}
	if cfg.SlackConfigured() {
		rt.slackAPI = slackbot.NewClient(cfg.SlackBotToken, cfg.ExternalTimeout())
		rt.slack = slackbot.NewWithAPI(rt.slackAPI, cfg.SlackChannelID, rt.logger.Named("slack"))
		opts = append(opts, production.WithNotifier(rt.slack))
	}
	rt.svc = production.NewService(rt.db, rt.logger.Named("production"), opts...)
	return nil
}

func (rt *runtime) close() {
	if rt.db != nil {
		_ = rt.db.Close()
	}
	if rt.logger != nil {
		_ = rt.logger.Sync()
	}
}

// reportJob assembles the daily report job. The Slack upload is attached
// only when Slack is configured and upload is requested.
func (rt *runtime) reportJob(categorize, upload bool) (*scheduler.DailyReport, error) {
	job := &scheduler.DailyReport{
		DB:             rt.db,
		OutputDir:      rt.cfg.ReportOutputDir,
		Name:           rt.cfg.ReportName,
		MaxOpenAgeDays: rt.cfg.OpenRecordMaxAgeDays,
		Logger:         rt.logger.Named("report"),
	}
	if categorize {
		cat, err := llm.New(rt.cfg, rt.logger.Named("llm"))
		if err != nil {
			return nil, fmt.Errorf("stoppage categorizer: %w", err)
		}
		job.Categorizer = cat
	}
	if upload && rt.slack != nil {
		job.Uploader = rt.slack
	}
	return job, nil
}

// nudgeJob assembles the stale record reminder. It needs Slack.
func (rt *runtime) nudgeJob() (*nudge.StaleRecords, error) {
	if rt.slackAPI == nil {
		return nil, errors.New("stale record reminders need SLACK_BOT_TOKEN and SLACK_CHANNEL_ID")
	}
	return &nudge.StaleRecords{
		DB:          rt.db,
		API:         rt.slackAPI,
		ChannelID:   rt.cfg.SlackChannelID,
		Supervisors: rt.cfg.NudgeSupervisors,
		MaxAgeDays:  rt.cfg.OpenRecordMaxAgeDays,
		Logger:      rt.logger.Named("nudge"),
	}, nil
}

// newLogger builds a production JSON logger or a development console
// logger at the given level.
func newLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level '%s': %w", level, err)
	}
	var zc zap.Config
	switch format {
	case "console":
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	case "json", "":
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	default:
		return nil, fmt.Errorf("unknown log format '%s'", format)
	}
	zc.Level = lvl
	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
