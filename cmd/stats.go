package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/securevote/backend/internal/config"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print election progress counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()

		store, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		stats, err := store.Stats(cmd.Context())
		if err != nil {
			return fmt.Errorf("reading stats: %w", err)
		}

		fmt.Printf("Registered voters: %d\n", stats.Registered)
		fmt.Printf("Votes cast:        %d\n", stats.Voted)
		fmt.Printf("Remaining:         %d\n", stats.Remaining)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
