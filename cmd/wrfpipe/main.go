package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "wrfpipe",
		Short: "wrfpipe - WRF-Chem preprocessing pipeline orchestrator",
		Long: `wrfpipe sequences the WRF-Chem preprocessing chain for a case:
geogrid, ungrib, metgrid, real, the chemistry preprocessors and the
solver itself, each verified against its log output before the next
stage starts. Outputs land in a durable per-case directory; failed
runs keep their scratch directory for inspection.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
