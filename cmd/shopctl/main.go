// Command shopctl is the operator CLI: it encrypts credentials, mints owner
// tokens, creates tables and drives the maintenance jobs by hand.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	_ = godotenv.Load()
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "shopctl",
		Short:         "Operate the game account shop backend",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("log-level", "warn", "Log level for service output")

	root.AddCommand(encryptCmd())
	root.AddCommand(tokenCmd())
	root.AddCommand(bootstrapCmd())
	root.AddCommand(failuresCmd())
	root.AddCommand(retryCmd())
	root.AddCommand(purgeOTPsCmd())
	return root
}
