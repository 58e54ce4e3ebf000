package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ssargent/btreedb/internal/engine"
	"github.com/ssargent/btreedb/pkg/api"
	"github.com/ssargent/btreedb/pkg/config"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the btreedb HTTP API server, bootstrapping a configuration
file with a generated API key on first run.

Examples:
  btreedb serve
  btreedb serve --config ./custom-config.yaml --data-dir-override ./mydata --port 9000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		port, _ := cmd.Flags().GetInt("port")
		overrideDataDir, _ := cmd.Flags().GetString("data-dir-override")

		if configPath == "" {
			configPath = config.GetDefaultConfigPath()
		}

		var cfg *config.Config
		var err error
		if config.ConfigExists(configPath) {
			cfg, err = config.LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
		} else {
			cmd.Printf("first run detected, bootstrapping configuration at %s\n", configPath)
			cfg, err = config.BootstrapConfig(configPath, overrideDataDir)
			if err != nil {
				return fmt.Errorf("bootstrap config: %w", err)
			}
			cmd.Printf("generated client API key: %s\n", cfg.Security.ClientAPIKey)
		}

		if overrideDataDir != "" {
			cfg.DataDir = overrideDataDir
		}
		if cmd.Flags().Changed("port") {
			cfg.Port = port
		}

		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}

		db, err := engine.Open(cfg.DataDir, engine.Options{
			BranchFactor:       cfg.Engine.BranchFactor,
			CheckpointInterval: time.Duration(cfg.Engine.CheckpointIntervalSeconds) * time.Second,
		})
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()

		if container == nil {
			return fmt.Errorf("dependency container not initialized")
		}

		serverFactory := container.GetServerFactory()
		serverStarter := serverFactory.CreateServerStarter()

		serverConfig := api.ServerConfig{
			Port:   cfg.Port,
			APIKey: cfg.Security.ClientAPIKey,
		}

		cmd.Printf("starting btreedb server on %s:%d (database %s)\n", cfg.Bind, cfg.Port, db.DatabaseID())
		return serverStarter.StartServer(db, serverConfig)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("config", "", "Path to config file (default: OS-specific location)")
	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("data-dir-override", "", "Override the configured data directory")
}
