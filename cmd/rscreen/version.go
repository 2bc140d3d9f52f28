package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chronologos/rscreen/internal/version"
)

func versionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			if short {
				fmt.Println(version.VERSION)
				return
			}
			fmt.Println(version.String())
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Print only the version number")
	return cmd
}
