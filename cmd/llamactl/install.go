package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"llamactl/internal/notify"
	"llamactl/internal/registry"
)

func newInstallCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:     "install MODEL...",
		Short:   "Build llama.cpp and install the given models",
		Example: "  llamactl install 7B\n  llamactl install 7B 13B --home /opt/llama.cpp",
		Args:    cobra.MinimumNArgs(1),
		ValidArgs: func() []string {
			var out []string
			for _, s := range registry.Sizes() {
				out = append(out, string(s))
			}
			return out
		}(),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sink := notify.NewBroadcaster(notify.LogSink{Log: g.log}, &consoleSink{w: cmd.OutOrStdout()})
			p, err := g.newPipeline(sink, nil)
			if err != nil {
				return err
			}
			if err := p.Install(ctx, args...); err != nil {
				return err
			}
			if ctx.Err() != nil {
				return fmt.Errorf("install interrupted")
			}
			return nil
		},
	}
}

func newInstalledCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "installed",
		Short: "List models whose quantized weights are present",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := g.newPipeline(nil, nil)
			if err != nil {
				return err
			}
			models, err := p.Installed()
			if err != nil {
				return err
			}
			for _, m := range models {
				fmt.Fprintln(cmd.OutOrStdout(), m)
			}
			return nil
		},
	}
}
