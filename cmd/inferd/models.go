package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"inferd/internal/app"
	"inferd/internal/manager"
	"inferd/internal/ollama"
)

func newModelsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Inspect and provision backend models",
	}
	cmd.AddCommand(newModelsListCmd(opts), newModelsEnsureCmd(opts))
	return cmd
}

func newModelsListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List installed models and their place in the fallback chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			names, err := ollama.New(cfg.Backend.URL).ListModels(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tCHAIN")
			for _, e := range app.ModelEntries(names, cfg.Models.Chain(), "") {
				pos := "-"
				switch {
				case e.ChainIndex == 0:
					pos = "primary"
				case e.ChainIndex > 0:
					pos = fmt.Sprintf("fallback %d", e.ChainIndex)
				}
				fmt.Fprintf(tw, "%s\t%s\n", e.Name, pos)
			}
			return tw.Flush()
		},
	}
}

func newModelsEnsureCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "ensure",
		Short: "Pull the first available model of the fallback chain into a running backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			log := newLogger(cfg.Log, os.Stderr)
			mcfg := manager.ConfigFrom(cfg, ollama.New(cfg.Backend.URL), log)
			// The backend must already be running; never spawn from the CLI.
			mcfg.Launcher = nil
			ctx := cmd.Context()
			m := manager.New(mcfg)
			if err := m.WaitUntilReady(ctx, cfg.Backend.ReadyTimeout.D(), cfg.Backend.ReadyPollInterval.D()); err != nil {
				return err
			}
			name, err := m.EnsureModel(ctx, cfg.Models)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), name)
			return nil
		},
	}
}
