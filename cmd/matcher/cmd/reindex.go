package cmd

import (
	"fmt"

	"github.com/fyeo/eventmatcher/internal/adapters/socket"
	"github.com/spf13/cobra"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild both indexes from the asset catalog",
	Long:  "Asks the running daemon to rebuild and republish its indexes, then save fresh snapshots.",
	RunE:  runReindex,
}

func runReindex(cmd *cobra.Command, args []string) error {
	_, paths, err := daemonPaths()
	if err != nil {
		return err
	}
	client := socket.NewClient(paths.Socket)

	if !client.Ping() {
		return fmt.Errorf("daemon not running. Start with: matcher daemon start")
	}

	result, err := client.Reindex()
	if err != nil {
		return err
	}

	fmt.Print(formatReindex(result))
	return nil
}
