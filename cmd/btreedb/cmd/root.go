package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ssargent/btreedb/internal/engine"
	"github.com/ssargent/btreedb/pkg/di"
)

type contextKey string

const engineContextKey contextKey = "engine"

var (
	dataDir  string
	syncFlag bool

	container *di.Container
)

// SetContainer injects the dependency container built in main into this
// package, the way cmd/freyja wired its own di.Container.
func SetContainer(c *di.Container) {
	container = c
}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "btreedb",
	Short: "btreedb - embedded ordered key-value store",
	Long: `btreedb is an embedded, ordered, persistent key-value store built
around a concurrent copy-on-write B+ tree, a write-ahead log with
group-commit batching, and checkpointed pages.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// serve opens its own engine from the settings in pkg/config, and
		// init only writes a configuration file; neither needs the engine
		// opened here.
		switch cmd.Name() {
		case "serve", "init", "btreedb":
			return nil
		}

		db, err := engine.Open(dataDir, engine.Options{})
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		cmd.SetContext(context.WithValue(cmd.Context(), engineContextKey, db))
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		db, ok := engineFromContext(cmd.Context())
		if !ok {
			return nil
		}
		return db.Close()
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(); it only needs to happen
// once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", "./data", "Data directory for the store")
	rootCmd.PersistentFlags().BoolVar(&syncFlag, "sync", false, "Fsync the write-ahead log before returning")
}

func engineFromContext(ctx context.Context) (*engine.DB, bool) {
	db, ok := ctx.Value(engineContextKey).(*engine.DB)
	return db, ok
}
