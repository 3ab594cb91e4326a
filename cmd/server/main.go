package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/terpcall/terpcall/internal/adapters/http"
	"github.com/terpcall/terpcall/internal/app"
	"github.com/terpcall/terpcall/internal/config"
	"github.com/terpcall/terpcall/internal/history"
	"github.com/terpcall/terpcall/internal/notify"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	var recorder history.Recorder = history.Nop{}
	if cfg.HistoryDB != "" {
		rec, err := history.NewSQLiteRecorder(cfg.HistoryDB)
		if err != nil {
			log.Error().Err(err).Msg("history store unavailable, continuing without")
		} else {
			recorder = rec
			defer rec.Close()
		}
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Twilio.AccountSID != "" {
		notifier = notify.NewTwilioNotifier(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.From, cfg.Twilio.To)
	}

	clk := clock.New()
	registry := app.NewRegistry()
	sessions := app.NewSessionManager(clk, registry, recorder, cfg.GraceWindow, cfg.IdleBound)
	broker := app.NewBroker(clk, registry, sessions, notifier, cfg.ClaimWindow)
	relay := app.NewRelay(registry, sessions)

	orch := &app.Orchestrator{
		Registry: registry,
		Broker:   broker,
		Sessions: sessions,
		Relay:    relay,
	}

	quartz := cron.New()
	if _, err := quartz.AddFunc(cfg.SweepSchedule, sessions.SweepIdle); err != nil {
		log.Fatal().Err(err).Msg("bad sweep schedule")
	}
	quartz.Start()
	defer quartz.Stop()

	r := router.SetupRouter(ctx, cfg, orch)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("terpcall signaling server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
