package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fyeo/eventmatcher/internal/adapters/socket"
	"github.com/fyeo/eventmatcher/internal/app"
	"github.com/fyeo/eventmatcher/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var daemonLogFile bool

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the matcher daemon",
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon in the foreground",
	RunE:  runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the daemon",
	RunE:  runDaemonStop,
}

func init() {
	daemonStartCmd.Flags().BoolVar(&daemonLogFile, "log-file", false, "Write logs to <data_dir>/log/daemon.log instead of stderr")
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
}

func runDaemonStart(cmd *cobra.Command, args []string) error {
	cfg, paths, err := daemonPaths()
	if err != nil {
		return err
	}

	client := socket.NewClient(paths.Socket)
	if client.Ping() {
		fmt.Println("daemon already running")
		return nil
	}

	log, err := logger.New(cfg.Debug)
	if daemonLogFile {
		log, err = logger.NewFile(paths.DaemonLog, cfg.Debug)
	}
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	a, err := app.New(cfg, log)
	if err != nil {
		if isDBLockError(err) {
			return fmt.Errorf("%w\n%s", err, diagnoseDBLock(paths.Socket))
		}
		return fmt.Errorf("init: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		a.Stop()
		return err
	}
	fmt.Printf("%smatcher daemon started%s at %s\n", colorBold, colorReset, paths.Socket)

	select {
	case <-ctx.Done():
		log.Info("signal received")
	case <-a.ShutdownCh():
		log.Info("shutdown requested", zap.String("via", "socket"))
	}

	fmt.Println("shutting down...")
	return a.Stop()
}

func runDaemonStop(cmd *cobra.Command, args []string) error {
	_, paths, err := daemonPaths()
	if err != nil {
		return err
	}
	client := socket.NewClient(paths.Socket)

	if !client.Ping() {
		fmt.Println("daemon is not running")
		return nil
	}

	if err := client.Shutdown(); err != nil {
		return err
	}

	fmt.Println("daemon stopped")
	return nil
}
