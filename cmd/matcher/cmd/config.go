package cmd

import (
	"fmt"
	"os"

	"github.com/fyeo/eventmatcher/internal/adapters/socket"
	"github.com/fyeo/eventmatcher/internal/config"
	"github.com/spf13/cobra"
)

var configWrite string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show configuration",
	Long:  "Shows the data directory, backends, socket path and daemon status. No daemon required.",
	RunE:  runConfig,
}

func init() {
	configCmd.Flags().StringVar(&configWrite, "write", "", "Write the effective config to this path")
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, paths, err := daemonPaths()
	if err != nil {
		return err
	}

	if configWrite != "" {
		if _, err := os.Stat(configWrite); err == nil {
			return fmt.Errorf("%s already exists", configWrite)
		}
		if err := config.Save(configWrite, cfg); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", configWrite)
		return nil
	}

	client := socket.NewClient(paths.Socket)
	daemonStatus := fmt.Sprintf("%snot running%s", colorYellow, colorReset)
	if client.Ping() {
		daemonStatus = fmt.Sprintf("%srunning%s", colorGreen, colorReset)
	}

	fmt.Print(formatConfig(cfg, paths.Socket, daemonStatus))
	return nil
}
