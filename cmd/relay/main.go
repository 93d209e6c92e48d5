// Package main is the RC relay entry point. It bridges websocket operator
// consoles to the vehicle's UDP actuator and holds the vehicle neutral when
// driver input goes stale.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sync/errgroup"

	"github.com/yannnico/rc-car-project/internal/actuator"
	"github.com/yannnico/rc-car-project/internal/api"
	"github.com/yannnico/rc-car-project/internal/audit"
	"github.com/yannnico/rc-car-project/internal/auth"
	"github.com/yannnico/rc-car-project/internal/command"
	"github.com/yannnico/rc-car-project/internal/config"
	"github.com/yannnico/rc-car-project/internal/relay"
	"github.com/yannnico/rc-car-project/internal/session"
	"github.com/yannnico/rc-car-project/internal/telemetry"
	"github.com/yannnico/rc-car-project/internal/watchdog"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		log.WithField("err", err).Fatal("relay exited with error")
	}
	log.Info("relay shutdown complete")
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log)

	if _, err := maxprocs.Set(maxprocs.Logger(log.Debugf)); err != nil {
		log.WithField("err", err).Warn("failed to set GOMAXPROCS")
	}

	log.WithFields(log.Fields{
		"version":  api.Version,
		"listen":   cfg.Server.Addr(),
		"actuator": cfg.Actuator.Addr(),
		"authMode": cfg.Auth.Mode,
	}).Info("starting relay")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var auditLogger *audit.Logger
	if cfg.Audit.Dir != "" {
		auditLogger, err = audit.NewLogger(cfg.Audit.Dir, audit.Options{
			MaxSizeMB:  cfg.Audit.MaxSizeMB,
			MaxBackups: cfg.Audit.MaxBackups,
			MaxAgeDays: cfg.Audit.MaxAgeDays,
		})
		if err != nil {
			return err
		}
		defer auditLogger.Close()
		log.WithField("path", auditLogger.GetFilePath()).Info("audit trail enabled")
	}

	link, err := actuator.NewUDPLink(ctx, actuator.UDPConfig{
		Host: cfg.Actuator.Host,
		Port: cfg.Actuator.Port,
	})
	if err != nil {
		return err
	}
	defer link.Close()

	wd, err := watchdog.New(link, watchdog.Config{
		Tick:     cfg.Timing.WatchdogTick,
		Deadline: cfg.Timing.FailsafeDeadline,
	})
	if err != nil {
		return err
	}

	registry := session.NewRegistry()
	hub := telemetry.NewHub(registry, telemetry.Config{
		SendTimeout: cfg.Timing.DashboardSendTimeout,
	})

	var mqttSink *telemetry.MQTTSink
	if cfg.MQTT.Broker != "" {
		mqttSink, err = telemetry.NewMQTTSink(telemetry.MQTTConfig{
			BrokerURL: cfg.MQTT.Broker,
			Topic:     cfg.MQTT.Topic,
			ClientID:  cfg.MQTT.ClientID,
		})
		if err != nil {
			return err
		}
		hub.AddSink(mqttSink)
	}

	verifier, err := auth.NewVerifier(auth.VerifierConfig{
		Mode:   cfg.Auth.Mode,
		Secret: cfg.Auth.Token,
	})
	if err != nil {
		return err
	}

	orchestrator := command.NewOrchestrator(registry, link, wd, hub, verifier, command.Options{
		AutoDriver: cfg.AutoDriver,
	})
	if auditLogger != nil {
		wd.SetAuditLogger(auditLogger)
		orchestrator.SetAuditLogger(auditLogger)
	}

	handler := relay.NewHandler(orchestrator, relay.Config{
		ReadLimit:    cfg.Server.ReadLimit,
		PingInterval: cfg.Server.PingInterval,
		PongWait:     cfg.Server.PongWait,
		WriteWait:    cfg.Server.WriteWait,
		QueueSize:    cfg.Server.QueueSize,
	})
	server := api.NewServer(orchestrator, handler, auth.NewMiddleware(verifier))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return wd.Run(gctx) })
	g.Go(func() error { return hub.Run(gctx) })
	if mqttSink != nil {
		g.Go(func() error { return mqttSink.Run(gctx) })
	}
	g.Go(func() error { return server.Start(cfg.Server.Addr()) })
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Stop(shutdownCtx); err != nil {
			log.WithField("err", err).Warn("HTTP server did not stop cleanly")
		}
		if err := handler.Close(shutdownCtx); err != nil {
			log.WithField("err", err).Warn("websocket sessions did not close cleanly")
		}
		if err := wd.AssertNeutral(shutdownCtx); err != nil {
			log.WithField("err", err).Error("failed to send neutral frame on shutdown")
		}
		return nil
	})

	return g.Wait()
}

func setupLogging(cfg config.LogConfig) {
	log.SetOutput(os.Stdout)
	if strings.EqualFold(cfg.Format, "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		log.WithField("level", cfg.Level).Warn("unknown log level, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)
}
