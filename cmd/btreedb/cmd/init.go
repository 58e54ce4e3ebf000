package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ssargent/btreedb/pkg/config"
)

// initCmd bootstraps a configuration file with a generated client API
// key, without starting the server.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap a btreedb configuration file",
	Long: `Init creates a configuration file with a generated client API key,
the way "serve" would on first run, without starting the server.

Examples:
  btreedb init
  btreedb init --config ./custom-config.yaml --data-dir ./mydata`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		force, _ := cmd.Flags().GetBool("force")

		if configPath == "" {
			configPath = config.GetDefaultConfigPath()
		}

		if config.ConfigExists(configPath) && !force {
			cmd.Printf("configuration already exists at %s (use --force to overwrite)\n", configPath)
			return nil
		}

		cfg, err := config.BootstrapConfig(configPath, dataDir)
		if err != nil {
			return fmt.Errorf("bootstrap config: %w", err)
		}

		cmd.Printf("configuration written to %s\n", configPath)
		cmd.Printf("client API key: %s\n", cfg.Security.ClientAPIKey)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().String("config", "", "Path to config file (default: OS-specific location)")
	initCmd.Flags().Bool("force", false, "Overwrite an existing configuration file")
}
