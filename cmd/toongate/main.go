package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "toongate",
		Short:         "toongate serves TOON instead of JSON to LLM clients",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to toongate config file")

	root.AddCommand(
		newProxyCmd(&configPath),
		newConvertCmd(&configPath),
		newDetectCmd(&configPath),
		newKeyCmd(),
		newStatsCmd(&configPath),
		newMCPCmd(&configPath),
	)
	return root
}
