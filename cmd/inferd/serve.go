package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"inferd/internal/app"
)

func newServeCmd(opts *options) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the backend supervisor, job queue, chat transport and HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			log := newLogger(cfg.Log, os.Stderr)

			a, err := app.New(cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			log.Info().Str("version", version).Strs("models", cfg.Models.Chain()).Msg("inferd starting")
			if err := a.Run(ctx); err != nil {
				log.Error().Err(err).Msg("inferd stopped")
				return err
			}
			log.Info().Msg("inferd stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides config), e.g. :8089")
	return cmd
}
