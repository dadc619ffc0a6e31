package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/fyeo/eventmatcher/internal/adapters/socket"
)

// isDBLockError reports whether err comes from the snapshot store failing to
// take its file lock, which bbolt reports as a timeout.
func isDBLockError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "timeout")
}

// diagnoseDBLock explains who most likely holds the snapshot database lock:
// a live daemon, a crashed one, or some other process.
func diagnoseDBLock(sockPath string) string {
	client := socket.NewClient(sockPath)

	if client.Ping() {
		return "snapshot database is locked by the running daemon\n" +
			"  -> send the document to it instead:  matcher match <file>\n" +
			"  -> or stop it first:                 matcher daemon stop"
	}

	if _, err := os.Stat(sockPath); err == nil {
		return fmt.Sprintf("snapshot database is locked and the daemon socket is not responding\n"+
			"  -> a previous daemon may have crashed\n"+
			"  -> find the process:  ps aux | grep 'matcher daemon'\n"+
			"  -> kill it:           kill <PID>\n"+
			"  -> clean up socket:   rm %s", sockPath)
	}

	return "snapshot database is locked by another process\n" +
		"  -> find the process:  ps aux | grep matcher\n" +
		"  -> kill it:           kill <PID>\n" +
		"  -> then retry your command"
}
