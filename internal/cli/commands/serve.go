package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/socialeye/internal/alert"
	"github.com/socialeye/internal/api"
	"github.com/socialeye/internal/config"
	"github.com/socialeye/internal/database"
	"github.com/socialeye/internal/models"
	"github.com/socialeye/internal/monitor"
	"github.com/socialeye/internal/notify"
	"github.com/socialeye/internal/sampler"
	"github.com/socialeye/internal/telemetry"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the monitoring loop and admin API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts.cfg, opts.log)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	db, err := database.Open(cfg.Database.Path, log)
	if err != nil {
		return err
	}
	defer database.Close(db)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.New(reg)

	repo := alert.NewRuleRepository(db)
	rules, err := loadRules(ctx, cfg.Rules.File, repo, log)
	if err != nil {
		return err
	}

	samples := sampler.NewSQLSampler(db)
	metricSource, err := buildSampler(cfg, samples, rules, log)
	if err != nil {
		return err
	}

	svc, err := alert.NewService(alert.ServiceConfig{
		Sampler:                metricSource,
		Storage:                alert.NewGormStorage(db),
		Dispatcher:             buildDispatcher(cfg, log, metrics),
		Logger:                 log,
		Metrics:                metrics,
		Parallelism:            cfg.Monitor.Parallelism,
		AnomalyBaselineWindows: cfg.Monitor.AnomalyBaselineWindows,
		ResolvedRetention:      cfg.Monitor.ResolvedRetention,
	})
	if err != nil {
		return err
	}
	svc.ReplaceRules(rules)
	log.WithField("rules", len(rules)).Info("rules loaded")

	schedCfg := monitor.SchedulerConfig{
		Interval:    cfg.Monitor.Interval,
		TickTimeout: cfg.Monitor.TickTimeout,
	}
	if cfg.Sampler.Backend == "sql" {
		schedCfg.Pruner = samples
		schedCfg.SampleRetention = cfg.Monitor.SampleRetention
	}
	scheduler := monitor.NewScheduler(svc, schedCfg, log, metrics)

	server := api.NewServer(api.Config{
		Monitor:   svc,
		Rules:     repo,
		JWTSecret: cfg.Server.JWTSecret,
		Gatherer:  reg,
		Logger:    log,
	})

	var collector *monitor.Collector
	if cfg.Collector.Enabled {
		docker, err := monitor.NewDockerClient()
		if err != nil {
			return err
		}
		defer docker.Close()
		collector = monitor.NewCollector(docker, samples, cfg.Collector.Interval, log, metrics)
	}

	g, ctx := errgroup.WithContext(ctx)
	if collector != nil {
		g.Go(func() error { return collector.Run(ctx) })
	}
	g.Go(func() error { return scheduler.Run(ctx) })
	g.Go(func() error { return server.Start(ctx, fmt.Sprintf(":%d", cfg.Server.Port)) })

	if cfg.Rules.Watch && cfg.Rules.File != "" {
		g.Go(func() error {
			return alert.WatchRuleFile(ctx, cfg.Rules.File, log, func(fileRules []*models.AlertRule) {
				rules, err := effectiveRules(ctx, seedRules(fileRules, log), repo)
				if err != nil {
					log.WithError(err).Error("failed to read stored rules, keeping previous rules")
					return
				}
				svc.ReplaceRules(rules)
			})
		})
	}

	runErr := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Notify.DeliveryTimeout+5*time.Second)
	defer cancel()
	if err := svc.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("abandoned in-flight notifications")
	}
	log.Info("shutdown complete")
	return runErr
}

func buildSampler(cfg *config.Config, samples *sampler.SQLSampler, rules []*models.AlertRule, log logrus.FieldLogger) (sampler.Sampler, error) {
	switch cfg.Sampler.Backend {
	case "sql":
		return samples, nil
	case "prometheus":
		return sampler.NewPrometheusSampler(cfg.Sampler.Prometheus.URL, log)
	case "random":
		centres := make(map[string]float64)
		for _, r := range rules {
			if r.Condition.Kind == models.ConditionThreshold {
				centres[r.Condition.Metric] = r.Condition.Value
			}
		}
		log.Warn("using random sampler, alerts are synthetic")
		return sampler.NewRandom(time.Now().UnixNano(), 0, 100, centres), nil
	default:
		return nil, fmt.Errorf("unknown sampler backend %q", cfg.Sampler.Backend)
	}
}

func buildDispatcher(cfg *config.Config, log logrus.FieldLogger, metrics *telemetry.Metrics) *notify.Dispatcher {
	n := cfg.Notify
	client := &http.Client{Timeout: n.DeliveryTimeout}

	notifiers := []notify.Notifier{
		notify.NewWebhookNotifier(client, n.Webhook.URL),
		notify.NewSlackNotifier(notify.NewSlackAPISender(n.Slack.Token, n.Slack.WebhookURL), n.Slack.Channel),
		notify.NewSMSNotifier(notify.NewHTTPSMSSender(client, n.SMS.URL, n.SMS.AccountSID, n.SMS.AuthToken, n.SMS.From), nil),
	}
	if n.Email.SMTPHost != "" {
		sender := notify.NewGomailSender(n.Email.SMTPHost, n.Email.SMTPPort, n.Email.From, n.Email.Password)
		notifiers = append(notifiers, notify.NewEmailNotifier(sender, n.Email.ToReceivers))
	} else {
		log.Info("notify.email.smtp_host not set, email channels will fail")
	}

	return notify.NewDispatcher(log, metrics, n.DeliveryTimeout, notifiers...)
}
