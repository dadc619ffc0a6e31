package cmd

import (
	"os"

	"github.com/fyeo/eventmatcher/internal/app"
	"github.com/fyeo/eventmatcher/internal/config"
	"github.com/spf13/cobra"
)

// EnvConfig names the config file when --config is not given.
const EnvConfig = "MATCHER_CONFIG"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "matcher",
	Short: "matcher: asset mention detection for extracted documents",
	Long:  "Finds monitored assets and threat actors in document text and emits scored match events.",
}

// loadConfig reads the config file, falling back to defaults plus environment
// when it does not exist.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path == "" {
		path = "matcher.yaml"
	}
	return config.LoadOrDefault(path)
}

// daemonPaths loads the config and resolves runtime paths.
func daemonPaths() (*config.Config, *app.Paths, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	return cfg, app.NewPaths(cfg.DataDir), nil
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $"+EnvConfig+" or ./matcher.yaml)")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(matchCmd)
	rootCmd.AddCommand(reindexCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(configCmd)
}
