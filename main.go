package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/BlackMission/authrelay/internal/audit"
	"github.com/BlackMission/authrelay/internal/config"
	"github.com/BlackMission/authrelay/internal/handler"
	"github.com/BlackMission/authrelay/internal/logger"
	"github.com/BlackMission/authrelay/internal/providers/discord"
	"github.com/BlackMission/authrelay/internal/relay"
	"github.com/BlackMission/authrelay/internal/server"
	"github.com/BlackMission/authrelay/internal/telemetry"
	"github.com/BlackMission/authrelay/internal/tenant"
)

func main() {
	if err := run(); err != nil {
		slog.Error("authrelay stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}

	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Tracing.Endpoint, cfg.Tracing.ServiceName)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("trace flush failed", "error", err)
		}
	}()

	// Tenant registry
	registry, err := tenant.Open(ctx, cfg.Registry.URI, tenant.Options{
		Seed:            cfg.Tenants,
		MongoDatabase:   cfg.Registry.MongoDatabase,
		MongoCollection: cfg.Registry.MongoCollection,
		RedisKeyPrefix:  cfg.Registry.RedisKeyPrefix,
	})
	if err != nil {
		return err
	}
	defer registry.Close()
	log.Info("tenant registry ready", "backend", tenant.Backend(cfg.Registry.URI))

	provider := discord.New(discord.Config{
		ClientID:     cfg.Discord.ClientID,
		ClientSecret: cfg.Discord.ClientSecret,
		Scopes:       cfg.Discord.Scopes,
		RedirectURI:  cfg.Discord.RedirectURI,
		APIBaseURL:   cfg.Discord.APIBaseURL,
		Timeout:      cfg.Discord.Timeout,
	})

	if cfg.Forward.InsecureSkipVerify {
		log.Warn("TLS verification of tenant destinations is disabled (FORWARD_INSECURE_SKIP_VERIFY)")
	}
	forwarder := relay.NewHTTPForwarder(registry, relay.ForwarderConfig{
		Timeout:            cfg.Forward.Timeout,
		InsecureSkipVerify: cfg.Forward.InsecureSkipVerify,
	})

	// Audit stream
	var publisher audit.Publisher = audit.NewLogPublisher(log)
	var auditPinger handler.Pinger
	if cfg.Audit.KafkaBrokers != "" {
		kp, err := audit.NewKafkaPublisher(audit.KafkaConfig{
			Brokers:         cfg.Audit.KafkaBrokers,
			Topic:           cfg.Audit.KafkaTopic,
			DeliveryTimeout: cfg.Audit.DeliveryTimeout,
			MaxBuffered:     cfg.Audit.MaxBuffered,
		}, log)
		if err != nil {
			return err
		}
		defer kp.Close()
		publisher = kp
		auditPinger = kp
		log.Info("audit events published to kafka", "topic", cfg.Audit.KafkaTopic)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	orch := relay.NewOrchestrator(relay.Deps{
		Registry:   registry,
		Authorizer: provider,
		Exchanger:  provider,
		Profiles:   provider,
		Forwarder:  forwarder,
	},
		relay.WithMetrics(relay.NewMetrics(reg)),
		relay.WithAuditPublisher(publisher),
	)

	srv := server.New(server.Config{
		Host:               cfg.Server.Host,
		Port:               cfg.Server.Port,
		ExposeErrorDetails: cfg.ExposeErrorDetails,
	}, server.Deps{
		Relay:    orch,
		Registry: registry,
		Audit:    auditPinger,
		Logger:   log,
		Metrics:  reg,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}
