package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Cypherspark/sms-survey/internal/app"
	"github.com/Cypherspark/sms-survey/internal/config"
	"github.com/Cypherspark/sms-survey/internal/logging"
	"github.com/Cypherspark/sms-survey/internal/metrics"
)

func main() {
	logging.Init()
	cfg := config.Load()

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(rootCtx, cfg)
	if err != nil {
		logging.WithError(err).Fatal("startup failed")
	}
	defer a.Close()

	// ---- Pool metrics ----
	metrics.MustRegister()
	stopStats := make(chan struct{})
	defer close(stopStats)
	go metrics.NewPGXPoolStats(a.DB.Pool, prometheus.DefaultRegisterer).Start(10*time.Second, stopStats)

	// ---- Scheduler ----
	sched := a.Scheduler()
	if cfg.SchedulerEnabled {
		if err := sched.Start(rootCtx); err != nil {
			logging.WithError(err).Fatal("scheduler start")
		}
		defer sched.Stop()
	} else {
		logging.Log.Info("scheduler disabled (SCHEDULER_ENABLED=false)")
	}

	// ---- HTTP server ----
	srv := a.HTTPServer()
	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      srv.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logging.WithField("addr", server.Addr).Info("HTTP listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.WithError(err).Fatal("server")
		}
	}()

	// ---- Graceful shutdown ----
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	logging.Log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	cancel()
	_ = server.Shutdown(shutdownCtx)
}
