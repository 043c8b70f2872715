package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"wxalarm/internal/alarm"
	"wxalarm/internal/config"
	"wxalarm/internal/logger"
	"wxalarm/internal/source"
)

func main() {
	cfgPath := flag.String("config", "alarmd.yaml", "path to config file")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger.Init(cfg.LogLevel)
	mainLog := logger.WithComponent("alarmd")

	// A configuration error disables the alarm component only; the
	// daemon stays up serving metrics so the failure is discoverable.
	svc, err := alarm.NewService(cfg.Alarms)
	if err != nil {
		mainLog.Error().Err(err).Msg("alarm service disabled, running inert")
		svc = nil
	}

	httpServer := newHTTPServer(cfg.HTTPAddr, svc)
	go func() {
		mainLog.Info().Str("addr", cfg.HTTPAddr).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			mainLog.Error().Err(err).Msg("HTTP server error")
			cancel()
		}
	}()

	var src *source.Source
	if svc != nil {
		src = source.New(cfg.Kafka, svc)
		go func() {
			if err := src.Run(ctx); err != nil {
				mainLog.Error().Err(err).Msg("record source exited")
				cancel()
			}
		}()
	}

	// wait for termination signals
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigs:
		mainLog.Info().Msg("shutting down")
		cancel()
	case <-ctx.Done():
	}

	if svc != nil {
		svc.Stop()
		svc.Wait()
	}
	if src != nil {
		if err := src.Close(); err != nil {
			mainLog.Warn().Err(err).Msg("source close error")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		mainLog.Error().Err(err).Msg("HTTP server shutdown error")
	}

	mainLog.Info().Msg("exited")
}

func newHTTPServer(addr string, svc *alarm.Service) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
	})
	if svc != nil {
		mux.HandleFunc("/alarms", svc.StatusHandler)
	}

	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
