package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/searchrag/session"
)

func clearCMD(load loader) *cobra.Command {
	var sessionID string
	var clearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Delete the conversation of a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sessionID == "" {
				return errors.New("--session is required")
			}
			cfg, log, err := load()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			st, err := session.NewStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Clear(cmd.Context(), sessionID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", sessionID)
			return nil
		},
	}
	clearCmd.Flags().StringVar(&sessionID, "session", "", "session id to clear")

	return clearCmd
}
