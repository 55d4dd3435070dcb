package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Cypherspark/sms-survey/internal/app"
	"github.com/Cypherspark/sms-survey/internal/config"
	"github.com/Cypherspark/sms-survey/internal/logging"
	"github.com/Cypherspark/sms-survey/internal/metrics"
)

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// The worker runs only the daily dispatch schedule, for deployments that
// keep the HTTP replicas free of timers.
func main() {
	var exitCode int
	defer func() {
		os.Exit(exitCode)
	}()

	logging.Init()
	cfg := config.Load()

	// ---- Context / signals ----
	rootCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(rootCtx, cfg)
	if err != nil {
		logging.WithError(err).Error("startup failed")
		exitCode = 1
		return
	}
	defer a.Close()

	// ---- Healthz ----
	metrics.MustRegister()
	go serveHealthz()

	// ---- Scheduler ----
	sched := a.Scheduler()
	if err := sched.Start(rootCtx); err != nil {
		logging.WithError(err).Error("scheduler start")
		exitCode = 1
		return
	}
	<-rootCtx.Done()
	logging.Log.Info("worker stopping")
	sched.Stop()
}

func serveHealthz() {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	addr := env("HEALTH_ADDR", "0.0.0.0:9090")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logging.WithError(err).Error("healthz server")
	}
}
