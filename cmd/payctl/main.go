package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/noah-isme/backend-lms/internal/config"
)

var Version = "dev"

func main() {
	if err := newRootCmd(config.Load).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(load func() (*config.Config, error)) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "payctl",
		Short:         "Build and verify payment provider signatures",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(vnpayURLCmd(load))
	rootCmd.AddCommand(verifyVNPayCmd(load))
	rootCmd.AddCommand(verifyMoMoCmd(load))

	return rootCmd
}
