package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	srv "github.com/mohammad-safakhou/searchrag/internal/server"
)

func askCMD(load loader) *cobra.Command {
	var sessionID string
	var ask = &cobra.Command{
		Use:   "ask <query>",
		Short: "Answer one query and print the response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			if err := cfg.Validate(); err != nil {
				return err
			}

			deps, err := srv.BuildDeps(cmd.Context(), cfg, log, nil)
			if err != nil {
				return err
			}
			defer deps.Close()

			if sessionID == "" {
				sessionID = uuid.NewString()
			}
			resp, err := deps.Pipeline.Run(cmd.Context(), sessionID, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Content)
			fmt.Fprintf(cmd.ErrOrStderr(), "session: %s\n", resp.SessionID)
			return nil
		},
	}
	ask.Flags().StringVar(&sessionID, "session", "", "session id to continue (default: new session)")

	return ask
}
