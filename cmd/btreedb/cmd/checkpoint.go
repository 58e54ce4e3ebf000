package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// checkpointCmd forces an immediate checkpoint.
var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Force an immediate checkpoint",
	Long: `Checkpoint writes every dirty in-memory node to the page store and
publishes a new recovery point, letting the write-ahead log be
truncated on the next open.

Example:
  btreedb checkpoint`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, ok := engineFromContext(cmd.Context())
		if !ok {
			return fmt.Errorf("database not open")
		}

		if err := db.ManualCheckpoint(); err != nil {
			return fmt.Errorf("checkpoint: %w", err)
		}

		cmd.Printf("checkpoint complete\n")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkpointCmd)
}
