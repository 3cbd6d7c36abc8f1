// Command optimizer serves the deterministic GA planner over HTTP.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/elektrokombinacija/amr-fleet/internal/config"
	"github.com/elektrokombinacija/amr-fleet/internal/ga"
	"github.com/elektrokombinacija/amr-fleet/internal/optimizer"
)

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Str("service", "optimizer").Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	server := optimizer.NewServer(ga.Config{
		ServiceTimeS:   cfg.ServiceTimeS,
		PopulationSize: cfg.PopulationSize,
		Generations:    cfg.Generations,
		EliteSize:      cfg.EliteSize,
		CrossoverRate:  cfg.CrossoverRate,
		MutationRate:   cfg.MutationRate,
	}, log)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.OptimizerPort),
		Handler:      server.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("optimizer listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	<-shutdownCh

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
}
