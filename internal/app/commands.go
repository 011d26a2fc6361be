package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"prodtrack/internal/domain"
	"prodtrack/internal/httpapi"
	"prodtrack/internal/integrations/llm"
	"prodtrack/internal/production"
	"prodtrack/internal/scheduler"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func serveCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run the scheduled jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var jobsDone []<-chan struct{}
			if rt.cfg.ReportSchedule != "" {
				job, err := rt.reportJob(true, true)
				if err != nil {
					return err
				}
				done, err := scheduler.Start(ctx, "report", rt.cfg.ReportSchedule, rt.cfg.Location, job, rt.logger.Named("scheduler"))
				if err != nil {
					return err
				}
				jobsDone = append(jobsDone, done)
			} else {
				rt.logger.Info("daily report schedule disabled")
			}
			if rt.cfg.NudgeSchedule != "" {
				job, err := rt.nudgeJob()
				if err != nil {
					return err
				}
				done, err := scheduler.Start(ctx, "nudge", rt.cfg.NudgeSchedule, rt.cfg.Location, job, rt.logger.Named("scheduler"))
				if err != nil {
					return err
				}
				jobsDone = append(jobsDone, done)
			}

			server := httpapi.New(rt.svc, rt.metrics, rt.logger.Named("http"), httpapi.Options{
				OpenRecordMaxAgeDays: rt.cfg.OpenRecordMaxAgeDays,
				ReadTimeout:          15 * time.Second,
			})
			listenErr := make(chan error, 1)
			go func() {
				listenErr <- server.Listen(rt.cfg.ListenAddr)
			}()
			rt.logger.Info("prodtrack listening",
				zap.String("addr", rt.cfg.ListenAddr),
				zap.String("timezone", rt.cfg.Timezone),
				zap.Bool("slack", rt.cfg.SlackConfigured()),
				zap.String("llm_provider", rt.cfg.LLMProvider),
			)

			var err error
			select {
			case err = <-listenErr:
				stop()
			case <-ctx.Done():
				rt.logger.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				err = server.ShutdownWithContext(shutdownCtx)
				cancel()
			}
			for _, done := range jobsDone {
				<-done
			}
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		},
	}
}

func nudgeCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "nudge",
		Short: "Remind supervisors on Slack about records left open too long",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			job, err := rt.nudgeJob()
			if err != nil {
				return err
			}
			sent, err := job.Run(cmd.Context(), time.Now().In(rt.cfg.Location))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reminders sent: %d\n", sent)
			return nil
		},
	}
}

func migrateCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Opening the database already applied the migrations.
			fmt.Fprintf(cmd.OutOrStdout(), "database ready: %s\n", rt.cfg.DBPath)
			return nil
		},
	}
}

func recomputeCmd(rt *runtime) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "recompute [record-id]",
		Short: "Recompute record totals from their hourly entries and stoppages",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var ids []int64
			switch {
			case all && len(args) == 0:
				records, err := rt.svc.ListRecords(ctx, production.SystemActor, production.RecordQuery{})
				if err != nil {
					return err
				}
				for _, rec := range records {
					ids = append(ids, rec.ID)
				}
			case !all && len(args) == 1:
				id, err := parseID(args[0], "record id")
				if err != nil {
					return err
				}
				ids = append(ids, id)
			default:
				return errors.New("pass either a record id or --all")
			}

			for _, id := range ids {
				totals, err := rt.svc.RecomputeTotals(ctx, id)
				if err != nil {
					return fmt.Errorf("record %d: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "record %d: produced=%d defective=%d downtime=%dmin\n",
					id, totals.Produced, totals.Defective, totals.DowntimeMinutes)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Recompute every record")
	return cmd
}

func transitionCmd(rt *runtime, name, short string) *cobra.Command {
	var userID int64
	cmd := &cobra.Command{
		Use:   name + " <record-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := parseID(args[0], "record id")
			if err != nil {
				return err
			}
			actor, err := rt.actor(ctx, userID)
			if err != nil {
				return err
			}
			var rec domain.ProductionRecord
			if name == "finalize" {
				rec, err = rt.svc.Finalize(ctx, id, actor)
			} else {
				rec, err = rt.svc.Reopen(ctx, id, actor)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "record %d is %s\n", rec.ID, rec.State())
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "Act as this user id instead of the system operator")
	return cmd
}

func reportCmd(rt *runtime) *cobra.Command {
	var (
		dateFlag     string
		noUpload     bool
		noCategorize bool
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Write the daily production report",
		Long: `Writes the daily report as markdown to report_output_dir and shares it
on Slack when configured. Defaults to yesterday in the configured timezone.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			date := time.Now().In(rt.cfg.Location).AddDate(0, 0, -1)
			if dateFlag != "" {
				parsed, err := domain.ParseDate(dateFlag)
				if err != nil {
					return err
				}
				date = parsed
			}
			job, err := rt.reportJob(!noCategorize, !noUpload)
			if err != nil {
				return err
			}
			res, err := job.Run(cmd.Context(), date)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "report written: %s (%d rows, %d stoppages categorized)\n",
				res.Path, res.Rows, res.Categorized)
			return nil
		},
	}
	cmd.Flags().StringVar(&dateFlag, "date", "", "Report date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&noUpload, "no-upload", false, "Do not share the report on Slack")
	cmd.Flags().BoolVar(&noCategorize, "no-categorize", false, "Skip stoppage categorization")
	return cmd
}

func sectorCmd(rt *runtime, name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <user-id> <sector>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseID(args[0], "user id")
			if err != nil {
				return err
			}
			sector := domain.NormalizeSector(args[1])
			if name == "grant" {
				err = rt.svc.GrantSector(cmd.Context(), production.SystemActor, userID, sector)
			} else {
				err = rt.svc.RevokeSector(cmd.Context(), production.SystemActor, userID, sector)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s user %d sector %q\n", name, userID, sector)
			return nil
		},
	}
}

func userCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{Use: "user", Short: "Manage users"}

	var superuser bool
	add := &cobra.Command{
		Use:   "add <username>",
		Short: "Create a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := rt.svc.CreateUser(cmd.Context(), production.SystemActor, args[0], superuser)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %d %s\n", u.ID, u.Username)
			return nil
		},
	}
	add.Flags().BoolVar(&superuser, "superuser", false, "Grant access to every line and administration")
	cmd.AddCommand(add)
	return cmd
}

func lineCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{Use: "line", Short: "Manage production lines"}

	var (
		sector   string
		capacity int
	)
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a production line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			line, err := rt.svc.CreateLine(cmd.Context(), production.SystemActor, domain.ProductionLine{
				Name:            args[0],
				Sector:          sector,
				NominalCapacity: capacity,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "line %d %s\n", line.ID, line.Name)
			return nil
		},
	}
	add.Flags().StringVar(&sector, "sector", "", "Sector the line belongs to")
	add.Flags().IntVar(&capacity, "capacity", 0, "Nominal capacity in units per hour")

	list := &cobra.Command{
		Use:   "list",
		Short: "List production lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			lines, err := rt.svc.ListLines(cmd.Context(), production.SystemActor)
			if err != nil {
				return err
			}
			for _, l := range lines {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\t%d/h\n", l.ID, l.Name, l.Sector, l.NominalCapacity)
			}
			return nil
		},
	}
	cmd.AddCommand(add, list)
	return cmd
}

func (rt *runtime) actor(ctx context.Context, userID int64) (domain.Actor, error) {
	if userID == 0 {
		return production.SystemActor, nil
	}
	return rt.svc.LoadActor(ctx, userID)
}

func parseID(s, what string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", what, s)
	}
	return id, nil
}

func glossaryCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{Use: "glossary", Short: "Manage the downtime category glossary"}
	cmd.AddCommand(&cobra.Command{
		Use:   "add <phrase> <category>",
		Short: "Map a stoppage reason phrase to a downtime category",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := rt.cfg.DowntimeGlossaryPath
			if path == "" {
				return errors.New("no glossary configured: set DOWNTIME_GLOSSARY_PATH")
			}
			if err := llm.AppendGlossaryTerm(path, args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%q -> %q\n", args[0], args[1])
			return nil
		},
	})
	return cmd
}
