package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "failuregen",
		Short: "Random failure generators for X-Plane",
		Long: `failuregen arms operator-configured failure generators (altitude, speed,
speed decel, timer, per hour and takeoff) and activates random associated
failures in a running X-Plane 12 session through its Web API.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("config", "config.yaml", "Configuration file")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newGeneratorsCmd(),
		newFailuresCmd(),
		newMockCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "failuregen version %s\n", version)
		},
	}
}

func configPath(cmd *cobra.Command) string {
	p, _ := cmd.Flags().GetString("config")
	return p
}
