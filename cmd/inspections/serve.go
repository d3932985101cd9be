package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"inspections-api/api"
	"inspections-api/api/middleware"
	"inspections-api/api/services"
	"inspections-api/pkg/config"
	embeddednats "inspections-api/pkg/services/embedded-nats"
	"inspections-api/pkg/services/workers"
	"inspections-api/pkg/validation"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cfg)
		},
	}
}

func initNATS(cfg *config.Config) (*embeddednats.EmbeddedNATS, error) {
	natsConfig := embeddednats.DefaultConfig()
	natsConfig.DataDir = cfg.NATSDataDir
	natsConfig.Port = cfg.NATSPort

	nats, err := embeddednats.New(natsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedded NATS: %w", err)
	}

	if err := nats.Start(); err != nil {
		return nil, fmt.Errorf("failed to start embedded NATS: %w", err)
	}

	if err := nats.CreateInspectionStreams(); err != nil {
		nats.Shutdown(context.Background())
		return nil, fmt.Errorf("failed to create inspection streams: %w", err)
	}

	log.Println("NATS JetStream initialized successfully")
	return nats, nil
}

func runServe(ctx context.Context, cfg *config.Config) error {
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	validator, err := validation.New()
	if err != nil {
		return fmt.Errorf("failed to build validator: %w", err)
	}

	// Interface values stay nil when NATS is disabled.
	var (
		events        services.EventPublisher
		natsHealth    api.HealthChecker
		nats          *embeddednats.EmbeddedNATS
		workerManager *workers.Manager
	)
	if cfg.NATSEnabled {
		nats, err = initNATS(cfg)
		if err != nil {
			return err
		}
		events = nats
		natsHealth = nats

		workerManager, err = workers.NewManager(nats)
		if err != nil {
			nats.Shutdown(context.Background())
			return fmt.Errorf("failed to create worker manager: %w", err)
		}
		if err := workerManager.Start(); err != nil {
			nats.Shutdown(context.Background())
			return fmt.Errorf("failed to start workers: %w", err)
		}
	} else {
		log.Println("NATS disabled; change events will not be published")
	}

	inspectionService := services.NewInspectionService(st, validator, events)
	queryService := services.NewQueryService(st)

	mux := http.NewServeMux()
	handlers := api.NewHandlers(inspectionService, queryService)
	handlers.RegisterRoutes(mux, natsHealth)

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      middleware.CORS(middleware.RequestLogger(mux)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("Starting Environmental Inspection API on port %s (store: %s)", cfg.Port, cfg.StoreDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Println("Shutting down server...")
	case err := <-serveErr:
		runErr = fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}

	if workerManager != nil {
		if err := workerManager.Stop(); err != nil {
			log.Printf("Failed to stop workers: %v", err)
		}
	}

	if nats != nil {
		if err := nats.Shutdown(shutdownCtx); err != nil {
			log.Printf("Failed to shutdown NATS: %v", err)
		}
	}

	log.Println("Server shutdown complete")
	return runErr
}
