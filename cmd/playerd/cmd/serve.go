package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"dashplayd/internal/api"
	"dashplayd/internal/config"
	"dashplayd/internal/fetch"
	"dashplayd/internal/logger"
	"dashplayd/internal/player"
	"dashplayd/internal/sink"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the playback engine daemon",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	log.Infof("Starting playerd...")

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cache := fetch.NewCache(log, cfg.CacheTTL, cfg.CacheMaxBytes)
	cache.Start()

	fetcher := fetch.NewClient(log, cfg.UserAgent).WithCache(cache)
	snk := sink.NewMemorySink(cfg.SinkQuotaBytes)
	surfaces := sink.NewMemoryRegistry(func() sink.Surface {
		return sink.NewClockSurface(runCtx, cfg.ClockInterval)
	})

	pl := player.New(log, fetcher, snk, surfaces, player.Config{
		QuotaBackoff: cfg.QuotaBackoff,
		PaceInterval: cfg.PaceInterval,
	})
	ctrl := pl.Control()

	loopDone := make(chan error, 1)
	go func() {
		loopDone <- pl.Run(runCtx)
	}()

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: api.New(ctrl, log),
	}

	go func() {
		log.Infof("Control API listening on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("Could not listen on %s: %v", cfg.ListenAddr, err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case <-quit:
		log.Infof("Shutting down...")
	case err := <-loopDone:
		if err != nil {
			log.Errorf("Player loop ended: %v", err)
		}
	}

	ctrl.Destroy()
	cancel()
	cache.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server shutdown failed: %v", err)
		return err
	}

	log.Infof("Server exited gracefully")
	return nil
}
