package main

import (
	"context"
	"fmt"
	"log"

	"inspections-api/db"
	"inspections-api/pkg/config"
	"inspections-api/pkg/store"
	"inspections-api/pkg/store/filestore"
	"inspections-api/pkg/store/memstore"
	"inspections-api/pkg/store/postgres"
)

// openStore opens the configured driver and makes sure its schema exists.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		return openSQLite(cfg.DBPath)
	case config.DriverFile:
		return filestore.Open(cfg.FileStorePath)
	case config.DriverPostgres:
		pg, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		log.Println("Postgres store initialized")
		return pg, nil
	case config.DriverMemory:
		log.Println("Using in-memory store; records are lost on exit")
		return memstore.New(), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

func openSQLite(path string) (store.Store, error) {
	dbConfig := db.DefaultConfig()
	dbConfig.DBPath = path
	dbConfig.AutoInitialize = true

	dbService, err := db.New(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database service: %w", err)
	}

	// Verify schema is properly initialized
	if err := dbService.VerifySchema(); err != nil {
		log.Printf("Schema verification failed: %v", err)
		log.Println("Attempting to initialize schema...")
		if err := dbService.InitializeSchema(); err != nil {
			dbService.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	return db.NewInspectionStore(dbService), nil
}
