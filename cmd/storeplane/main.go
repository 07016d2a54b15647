package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "storeplane",
	Short: "Storeplane - Multi-tenant store provisioning control plane",
	Long: `Storeplane issues, tracks, and retires isolated workload instances
("stores") on a container orchestration platform. Each store is a templated
deployment with its own namespace and hostname; the control plane enforces
quota, survives restarts, and keeps a durable record of every transition.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Storeplane version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.AddCommand(serverCmd)
}
