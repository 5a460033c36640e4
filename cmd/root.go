package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "securevote",
	Short: "Biometric voting backend with ledger-backed vote recording",
	Long: `SecureVote authenticates voters by facial biometric similarity and
records each voter's single vote against a distributed ledger, falling back
to durable local recording whenever the ledger is unreachable.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
