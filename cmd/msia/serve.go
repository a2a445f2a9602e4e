package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/pepeccz/msi-a-sub001/internal/alert"
	"github.com/pepeccz/msi-a-sub001/internal/api"
	"github.com/pepeccz/msi-a-sub001/internal/catalog"
	"github.com/pepeccz/msi-a-sub001/internal/chatwoot"
	"github.com/pepeccz/msi-a-sub001/internal/intake"
	"github.com/pepeccz/msi-a-sub001/internal/lockfile"
	"github.com/pepeccz/msi-a-sub001/internal/metrics"
	"github.com/pepeccz/msi-a-sub001/internal/scheduler"
	"github.com/pepeccz/msi-a-sub001/internal/settings"
	"github.com/pepeccz/msi-a-sub001/internal/store"
	"github.com/pepeccz/msi-a-sub001/internal/twiliowhatsapp"
)

// Maintenance schedules
const (
	dedupPurgeSchedule    = "30 4 * * *"
	staleReminderSchedule = "@every 30m"
)

type serveFlags struct {
	apiAddr         string
	catalogPath     string
	phoneNotify     bool
	dedupRetention  time.Duration
	staleEscalation time.Duration
}

func newServeCmd(cfg Config, root *rootFlags) *cobra.Command {
	flags := serveFlags{apiAddr: cfg.APIAddr, catalogPath: cfg.CatalogPath}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook and operator API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, root, flags)
		},
	}

	cmd.Flags().StringVar(&flags.apiAddr, "api-addr", flags.apiAddr, "API server address (overrides $API_ADDR)")
	cmd.Flags().StringVar(&flags.catalogPath, "catalog", flags.catalogPath, "path to the element catalog (overrides $MSIA_CATALOG_PATH)")
	cmd.Flags().BoolVar(&flags.phoneNotify, "phone-notify", true, "notify escalated customers through Twilio when TWILIO_* is configured")
	cmd.Flags().DurationVar(&flags.dedupRetention, "dedup-retention", intake.DefaultDedupRetention, "how long webhook delivery ids are remembered")
	cmd.Flags().DurationVar(&flags.staleEscalation, "stale-escalation-after", intake.DefaultStaleEscalation, "remind ops about escalations pending longer than this")
	return cmd
}

func runServe(ctx context.Context, cfg Config, root *rootFlags, flags serveFlags) error {
	if dsn := resolveDSN(root); dsn != MemoryDSN && store.DetectDSNType(dsn) == "sqlite3" {
		lock, err := lockfile.Acquire(dsn, flags.apiAddr)
		if err != nil {
			return err
		}
		defer lock.Release()
	}

	st, err := openStore(root)
	if err != nil {
		return err
	}
	defer st.Close()

	cat, err := catalog.Load(flags.catalogPath)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	slog.Info("Catalog loaded", "path", flags.catalogPath, "elements", len(cat.Elements))

	channel, err := chatwoot.NewClient()
	if err != nil {
		return fmt.Errorf("configure helpdesk client: %w", err)
	}

	recorder := metrics.NewPrometheusRecorder(prometheus.DefaultRegisterer)
	provider := settings.NewCachedProvider(st,
		settings.WithTTL(cfg.SettingsCacheTTL), settings.WithSize(cfg.SettingsCacheSize))

	alerts := alert.New(cfg.SlackWebhookURL)
	escOpts := []intake.EscalatorOption{
		intake.WithAlerts(alerts),
		intake.WithEscalatorMetrics(recorder),
	}
	if flags.phoneNotify {
		if phone, err := twiliowhatsapp.NewClient(); err != nil {
			slog.Info("Twilio not configured, escalation notices go through the helpdesk", "reason", err)
		} else {
			escOpts = append(escOpts, intake.WithPhoneSender(phone))
		}
	}
	escalator := intake.NewEscalator(st, channel, escOpts...)
	counter := intake.NewCounter(st, intake.WithCounterMetrics(recorder))
	gate := intake.NewGate(provider, channel, intake.ChannelReplier{API: channel}, escalator, counter,
		intake.WithGateMetrics(recorder))

	apiOpts := []api.Option{api.WithGatherer(prometheus.DefaultGatherer)}
	if flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(flags.apiAddr))
	}
	if cfg.WebhookToken != "" {
		apiOpts = append(apiOpts, api.WithWebhookToken(cfg.WebhookToken))
	}
	srv := api.NewServer(api.Deps{
		Service:   intake.NewService(st, gate),
		Escalator: escalator,
		Repo:      st,
		Settings:  provider,
		Catalog:   cat,
	}, apiOpts...)

	maint := intake.NewMaintenance(st, alerts,
		intake.WithDedupRetention(flags.dedupRetention),
		intake.WithStaleAfter(flags.staleEscalation))
	sched := scheduler.NewScheduler()
	if err := sched.AddJob("dedup-purge", dedupPurgeSchedule, maint.PurgeDedup); err != nil {
		return err
	}
	if err := sched.AddJob("stale-escalations", staleReminderSchedule, maint.RemindStaleEscalations); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	slog.Info("Bootstrapping MSI-A intake", "api_addr", flags.apiAddr, "kill_switch", settings.KillSwitchActive(ctx, provider))
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("api server: %w", err)
	}
	slog.Info("MSI-A intake exited successfully")
	return nil
}
