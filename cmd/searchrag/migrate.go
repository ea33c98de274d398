package main

import (
	"github.com/spf13/cobra"

	srv "github.com/mohammad-safakhou/searchrag/internal/server"
)

func migrateCMD(load loader) *cobra.Command {
	var migDir string
	var migDirDefault = "file://migrations"
	var direction string
	var steps int

	var migrate = &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations for the postgres conversation store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			if err := cfg.Storage.Postgres.Validate(); err != nil {
				return err
			}
			if migDir == "" {
				migDir = migDirDefault
			}
			if err := srv.Migrate(migDir, cfg.Storage.Postgres.DSN(), direction, steps); err != nil {
				return err
			}
			log.Info("migrations applied")
			return nil
		},
	}
	migrate.Flags().StringVar(&migDir, "dir", migDirDefault, "migrations source (file://migrations)")
	migrate.Flags().StringVar(&direction, "direction", "up", "up or down")
	migrate.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")

	return migrate
}
