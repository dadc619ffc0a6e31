package cmd

import (
	"fmt"

	"github.com/fyeo/eventmatcher/internal/adapters/socket"
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check daemon status",
	RunE:  runHealth,
}

func runHealth(cmd *cobra.Command, args []string) error {
	_, paths, err := daemonPaths()
	if err != nil {
		return err
	}
	client := socket.NewClient(paths.Socket)

	if !client.Ping() {
		fmt.Println("matcher daemon is not running")
		return nil
	}

	health, err := client.Health()
	if err != nil {
		return err
	}

	fmt.Print(formatHealth(health))
	return nil
}
