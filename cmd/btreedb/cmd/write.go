package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ssargent/btreedb/internal/batch"
)

type writeOp struct {
	Type  string `json:"type"`
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}

// writeCmd applies a JSON-encoded list of put/delete ops as a single
// batch under one sequence number, mirroring pkg/api's /api/v1/write.
var writeCmd = &cobra.Command{
	Use:   "write <file>",
	Short: "Apply a batch of put/delete ops from a JSON file",
	Long: `Write applies a JSON array of {"type":"put"|"delete","key":...,"value":...}
ops as a single group-committed batch.

Example:
  btreedb write ops.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, ok := engineFromContext(cmd.Context())
		if !ok {
			return fmt.Errorf("database not open")
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read ops file: %w", err)
		}

		var ops []writeOp
		if err := json.Unmarshal(data, &ops); err != nil {
			return fmt.Errorf("parse ops file: %w", err)
		}

		b := batch.New()
		for _, op := range ops {
			switch op.Type {
			case "put":
				b.Put([]byte(op.Key), []byte(op.Value))
			case "delete":
				b.Delete([]byte(op.Key))
			default:
				return fmt.Errorf("op type must be put or delete, got %q", op.Type)
			}
		}

		if err := db.Write(b, syncFlag); err != nil {
			return fmt.Errorf("write: %w", err)
		}

		cmd.Printf("applied %d ops\n", b.Count())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(writeCmd)
}
