package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// deleteCmd represents the delete command.
var deleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Delete a key-value pair",
	Long: `Delete a key-value pair from the btreedb store.

Example:
  btreedb delete mykey`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, ok := engineFromContext(cmd.Context())
		if !ok {
			return fmt.Errorf("database not open")
		}

		if err := db.Delete([]byte(args[0]), syncFlag); err != nil {
			return fmt.Errorf("delete: %w", err)
		}

		cmd.Printf("deleted key %q\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}
