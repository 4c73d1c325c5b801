package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/kgraph/internal/config"
	"github.com/rohankatakam/kgraph/internal/errors"
)

var wipeConfirmed bool

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Install dedup-key constraints and lookup indexes",
	Long: `Creates uniqueness constraints on the dedup key of people, organisations
and locations, plus lookup indexes. Safe to run repeatedly.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		backend, err := openBackend(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer backend.Close(context.Background())

		if err := backend.EnsureSchema(ctx); err != nil {
			return err
		}
		logger.WithField("backend", cfg.Store.Backend).Info("Schema is up to date")
		return nil
	},
}

var wipeCmd = &cobra.Command{
	Use:   "wipe",
	Short: "Delete every node and edge in the graph",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !wipeConfirmed {
			return errors.ValidationErrorf("wipe deletes the whole graph; pass --yes to confirm")
		}
		ctx := cmd.Context()

		backend, err := openBackend(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer backend.Close(context.Background())

		if err := backend.Clear(ctx); err != nil {
			return err
		}

		c := openCache(ctx, cfg.Cache)
		if c != nil {
			defer c.Close()
			invalidateCache(ctx, c)
		}

		fmt.Printf("Graph cleared (%s)\n", describeStore())
		return nil
	},
}

func init() {
	wipeCmd.Flags().BoolVar(&wipeConfirmed, "yes", false, "confirm deleting all data")
}

func describeStore() string {
	if cfg.Store.Backend == config.BackendNeo4j {
		return fmt.Sprintf("neo4j %s, database %s", cfg.Store.Neo4jURI, cfg.Store.Neo4jDatabase)
	}
	return "sqlite " + cfg.Store.SQLitePath
}
