package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/AngelCh415/seo-monitor/internal/config"
	"github.com/AngelCh415/seo-monitor/internal/httpx"
	"github.com/AngelCh415/seo-monitor/internal/ingest"
	"github.com/AngelCh415/seo-monitor/internal/metrics"
	"github.com/AngelCh415/seo-monitor/internal/realtime"
	"github.com/AngelCh415/seo-monitor/internal/scheduler"
	"github.com/AngelCh415/seo-monitor/internal/store"
	"github.com/AngelCh415/seo-monitor/internal/supervisor"
)

var version = "dev"

type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *store.Store
	collector *ingest.Collector
}

func setup(ctx context.Context) (*app, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	st, err := store.Open(cfg.DataDir, store.Options{
		RetentionDays: cfg.RetentionDays,
		Keywords:      cfg.TargetKeywords,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}

	src := ingest.NewSources(ctx, cfg, logger)
	collector := ingest.NewCollector(src, st.Keywords(), logger, ingest.BreakerConfig{
		Failures: cfg.BreakerFailures,
		Cooldown: cfg.BreakerCooldown,
	})
	return &app{cfg: cfg, logger: logger, store: st, collector: collector}, nil
}

func serve(ctx context.Context, a *app) error {
	hub := realtime.NewHub(a.logger)
	sched, err := scheduler.New(a.collector, a.store, hub, scheduler.Schedules{
		Full:         a.cfg.FullCheckSchedule,
		Deep:         a.cfg.DeepCheckSchedule,
		Quick:        a.cfg.QuickCheckSchedule,
		Cleanup:      a.cfg.CleanupSchedule,
		StartupDelay: a.cfg.StartupDelay,
	}, a.logger)
	if err != nil {
		return err
	}
	hub.OnRequest(func() { sched.Trigger(scheduler.KindFull) })

	svc := metrics.NewService(a.store)
	r := httpx.NewRouter(httpx.Deps{
		Log:                a.logger,
		Service:            svc,
		Keywords:           a.store.Keywords(),
		Refresh:            func() { sched.Trigger(scheduler.KindFull) },
		Sources:            a.cfg.Sources(),
		Realtime:           realtime.NewHandler(hub, svc.Latest, a.cfg.CORSOrigins),
		StaticDir:          a.cfg.StaticDir,
		CORSOrigins:        a.cfg.CORSOrigins,
		RateLimitPerMinute: a.cfg.RateLimitPerMinute,
	})

	srv := &http.Server{
		Addr:              a.cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	tree := supervisor.NewTree(a.logger, supervisor.DefaultTreeConfig())
	tree.AddPipelineService(supervisor.Named("realtime-hub", hub))
	tree.AddPipelineService(supervisor.Named("scheduler", sched))
	tree.AddAPIService(supervisor.NewHTTPServerService(srv, 10*time.Second))

	a.logger.Info("starting server",
		slog.String("addr", a.cfg.Addr()),
		slog.String("site", a.cfg.SiteURL),
		slog.String("data_dir", a.cfg.DataDir),
		slog.String("version", version),
	)
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.logger.Info("server stopped")
	return nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "seo-monitor",
		Short:         "SEO monitor - keyword, performance and traffic tracking with a live dashboard",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			return serve(cmd.Context(), a)
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, realtime hub and HTTP API",
		RunE:  root.RunE,
	}

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Run one full check and print the snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			save, _ := cmd.Flags().GetBool("save")
			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			snap, err := a.collector.RunCheck(cmd.Context())
			if err != nil {
				return fmt.Errorf("check failed: %w", err)
			}
			if save {
				if err := a.store.Save(cmd.Context(), snap); err != nil {
					return fmt.Errorf("save snapshot: %w", err)
				}
			}
			out, err := json.MarshalIndent(snap, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	checkCmd.Flags().Bool("save", false, "Persist the snapshot and update the summary")

	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete day-files older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			n, err := a.store.Cleanup(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d day-files\n", n)
			return err
		},
	}

	root.AddCommand(serveCmd, checkCmd, cleanupCmd)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("fatal", slog.String("err", err.Error()))
		stop()
		os.Exit(1)
	}
}
