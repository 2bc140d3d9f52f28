package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	root := rootCmd()
	root.AddCommand(versionCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "rscreen: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	return newRoot(&flags{})
}

func newRoot(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rscreen [host]",
		Short: "Low-latency remote screen client",
		Long: `rscreen receives a screen stream from a host over UDP and forwards
pointer and keyboard input back to it.

Frames are shown in a browser: open the viewer address printed at startup.
The host address may be given as an argument, in the config file, or via
RSCREEN_HOST; when none is set and stdin is a terminal, it is prompted for.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f, args)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	f.register(cmd)
	return cmd
}
