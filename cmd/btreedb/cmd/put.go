package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// putCmd represents the put command.
var putCmd = &cobra.Command{
	Use:   "put <key> <value>",
	Short: "Put a key-value pair",
	Long: `Put a key-value pair into the btreedb store.

Example:
  btreedb put mykey myvalue`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, ok := engineFromContext(cmd.Context())
		if !ok {
			return fmt.Errorf("database not open")
		}

		if err := db.Put([]byte(args[0]), []byte(args[1]), syncFlag); err != nil {
			return fmt.Errorf("put: %w", err)
		}

		cmd.Printf("put key %q\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(putCmd)
}
