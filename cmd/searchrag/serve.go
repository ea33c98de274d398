package main

import (
	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/searchrag/config"
	srv "github.com/mohammad-safakhou/searchrag/internal/server"
)

func serveCMD(load loader) *cobra.Command {
	var serveAddr string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			if err := cfg.Validate(); err != nil {
				if !config.IsMissingCredential(err) {
					return err
				}
				// queries report missing credentials; the server still starts
				log.Warn(err.Error())
			}
			return srv.Run(cmd.Context(), cfg, log, serveAddr)
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (default server.address)")

	return serve
}
