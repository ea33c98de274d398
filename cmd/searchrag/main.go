package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/searchrag/config"
	"github.com/mohammad-safakhou/searchrag/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCMD().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCMD() *cobra.Command {
	var cfgPath string
	var root = &cobra.Command{
		Use:           "searchrag",
		Short:         "Answer questions from live web search results",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config/config.json)")

	load := func() (*config.Config, *zap.Logger, error) {
		cfg, err := config.LoadConfig(cfgPath)
		if err != nil {
			return nil, nil, err
		}
		log, err := logger.New(cfg.General)
		if err != nil {
			return nil, nil, err
		}
		return cfg, log, nil
	}

	root.AddCommand(serveCMD(load), askCMD(load), clearCMD(load), migrateCMD(load))
	return root
}

type loader func() (*config.Config, *zap.Logger, error)
