// cmd/anchor — one-shot batch job that snapshots the full ledger history
// into a new Merkle anchor.
//
// Reads the storage connection string from DATABASE_URL, computes and
// persists the anchor, prints the resulting root and entry count, and exits
// 0 on success or 1 on any failure (including missing configuration).
// Schedule it with cron or a job runner; runs against an unchanged ledger
// produce duplicate anchors with identical roots, which is expected.
//
// Usage:
//
//	DATABASE_URL=postgres://... go run ./cmd/anchor
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/provenant/chainledger/internal/anchor"
	"github.com/provenant/chainledger/internal/ledger"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "anchor: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer db.Close()

	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}

	entries := ledger.NewPostgresStore(db, logger)
	anchors := anchor.NewPostgresStore(db, logger)

	svc := anchor.NewService(entries, anchors, logger)
	svc.SetMinInterval(0) // one-shot: scheduling spaces invocations, not us

	a, err := svc.Anchor(ctx)
	if err != nil {
		return fmt.Errorf("anchor ledger: %w", err)
	}

	fmt.Printf("root=%s entries=%d\n", a.RootHash, a.EntryCount)
	return nil
}
