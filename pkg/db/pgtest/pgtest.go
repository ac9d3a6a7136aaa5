//go:build integration

// Package pgtest provisions a PostgreSQL database for integration tests:
// TEST_DATABASE_URL (optionally from .env.test) when set, otherwise a
// throwaway container.
package pgtest

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Start returns a DSN and a function that releases the database.
func Start(ctx context.Context, envFile string) (string, func(), error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			log.Printf("Warning: %s not found, falling back to a container", envFile)
		}
	}
	if dsn := os.Getenv("TEST_DATABASE_URL"); dsn != "" {
		return dsn, func() {}, nil
	}

	container, err := postgres.Run(ctx,
		"postgres:alpine",
		postgres.WithDatabase("cityinfo_test"),
		postgres.WithUsername("cityinfo"),
		postgres.WithPassword("cityinfo"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		return "", nil, fmt.Errorf("failed to start PostgreSQL container: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return "", nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	stop := func() {
		if err := container.Terminate(context.Background()); err != nil {
			log.Printf("Failed to terminate container: %v", err)
		}
	}
	return dsn, stop, nil
}
