package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ssargent/btreedb/internal/engine"
)

// getCmd represents the get command.
var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a value for a key",
	Long: `Get a value for a key from the btreedb store.

Example:
  btreedb get mykey`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, ok := engineFromContext(cmd.Context())
		if !ok {
			return fmt.Errorf("database not open")
		}

		value, err := db.Get([]byte(args[0]))
		if errors.Is(err, engine.ErrNotFound) {
			return fmt.Errorf("key not found: %s", args[0])
		}
		if err != nil {
			return fmt.Errorf("get: %w", err)
		}

		cmd.Printf("%s\n", string(value))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
}
