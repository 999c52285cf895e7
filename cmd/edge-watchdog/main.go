package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/nholik/edge-watchdog/internal/cloudflare"
	"github.com/nholik/edge-watchdog/internal/config"
	"github.com/nholik/edge-watchdog/internal/failover"
	"github.com/nholik/edge-watchdog/internal/healthcheck"
	"github.com/nholik/edge-watchdog/internal/limits"
	"github.com/nholik/edge-watchdog/internal/logging"
	"github.com/nholik/edge-watchdog/internal/metrics"
	"github.com/nholik/edge-watchdog/internal/notify"
	"github.com/nholik/edge-watchdog/internal/server"
	"github.com/nholik/edge-watchdog/internal/standup"
	"github.com/nholik/edge-watchdog/internal/state"
	"github.com/nholik/edge-watchdog/internal/usage"
	"github.com/nholik/edge-watchdog/internal/watchdog"
)

func main() {
	logger := logging.New()
	logger.Info().Msg("edge-watchdog starting")

	cfg, err := config.Load()
	if err != nil {
		logger.Error().Err(err).Msg("failed to load configuration")
		os.Exit(1)
	}

	catalog, err := config.LoadCatalog(cfg.CatalogFile, cfg.ZoneName)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load service catalog")
		os.Exit(1)
	}

	table, err := limits.NewTable(catalog.Limits)
	if err != nil {
		logger.Error().Err(err).Msg("invalid limit overrides")
		os.Exit(1)
	}

	logger.Info().
		Int("services", len(catalog.Services)).
		Int("resources", len(table)).
		Dur("poll_interval", cfg.PollInterval).
		Bool("dry_run", cfg.DryRun).
		Msg("configuration loaded")

	apiClient, err := cloudflare.New(
		logging.Component(logger, "cloudflare"),
		cfg.APIBaseURL, cfg.APIToken, cfg.ZoneID, cfg.AccountID,
	)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize platform client")
		os.Exit(1)
	}

	collector := usage.NewCollector(
		logging.Component(logger, "usage"),
		apiClient, table, apiClient.HasToken(),
		usage.WithQueryCache(cfg.PollInterval/2),
	)

	executor := failover.NewExecutor(
		logging.Component(logger, "failover"),
		apiClient, catalog, cfg.ZoneName, cfg.GCPProject,
	)

	markers := standup.NewFileMarkerStore(cfg.MarkerPath, logging.Component(logger, "standup"))
	trigger := standup.NewTrigger(logging.Component(logger, "standup"), markers, cfg.StandupURL, cfg.StandupToken)

	store := state.NewFileStore(cfg.StatePath, logging.Component(logger, "state"))

	notifier := buildNotifier(logger, cfg)

	metricsCollector := metrics.New()
	tracker := healthcheck.NewTracker()

	w := watchdog.New(
		logging.Component(logger, "watchdog"),
		cfg.PollInterval,
		collector, executor, trigger, store,
		catalog.Priority(), cfg.WarnPct, cfg.FailPct,
		watchdog.WithNotifier(notifier),
		watchdog.WithMetrics(metricsCollector),
		watchdog.WithTracker(tracker),
		watchdog.WithDryRun(cfg.DryRun),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	admin := server.NewAdminHandler(logging.Component(logger, "admin"), w, cfg.AdminToken)
	server.Start(ctx, logger, admin.Router(), cfg.PollInterval, tracker, metricsCollector,
		cfg.AdminPort, cfg.HealthPort, cfg.MetricsPort)

	if err := w.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("watchdog exited with error")
		os.Exit(1)
	}
	logger.Info().Msg("edge-watchdog stopped")
}

func buildNotifier(root zerolog.Logger, cfg config.Config) notify.Notifier {
	logger := logging.Component(root, "notify")

	notifiers := []notify.Notifier{
		notify.NewSlackNotifier(logger, cfg.SlackWebhookURL),
	}
	webhook, err := notify.NewWebhookNotifier(logger, cfg.WebhookURL, "")
	if err != nil {
		logger.Error().Err(err).Msg("webhook notifier disabled")
	} else if webhook != nil {
		notifiers = append(notifiers, webhook)
	}

	var notifier notify.Notifier = notify.NewMultiNotifier(notifiers...)
	if cfg.DryRun {
		notifier = notify.NewDryRunNotifier(logger, notifier)
	}
	return notifier
}
