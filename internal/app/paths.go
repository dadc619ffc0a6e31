package app

import (
	"os"
	"path/filepath"

	"github.com/fyeo/eventmatcher/internal/adapters/socket"
)

// Paths holds the resolved runtime paths under the data directory.
type Paths struct {
	Root string // <data_dir>/

	LogDir    string // <data_dir>/log/
	DaemonLog string // <data_dir>/log/daemon.log

	RunDir  string // <data_dir>/run/
	PIDFile string // <data_dir>/run/daemon.pid
	Socket  string // <data_dir>/run/matcher.sock
}

// NewPaths constructs all paths from the data directory.
func NewPaths(dataDir string) *Paths {
	return &Paths{
		Root: dataDir,

		LogDir:    filepath.Join(dataDir, "log"),
		DaemonLog: filepath.Join(dataDir, "log", "daemon.log"),

		RunDir:  filepath.Join(dataDir, "run"),
		PIDFile: filepath.Join(dataDir, "run", "daemon.pid"),
		Socket:  socket.SocketPath(filepath.Join(dataDir, "run")),
	}
}

// EnsureDirs creates all subdirectories. Idempotent.
func (p *Paths) EnsureDirs() error {
	for _, d := range []string{p.Root, p.LogDir, p.RunDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return err
		}
	}
	return nil
}

// CleanEphemeral removes runtime files left by a daemon. Called on clean
// shutdown.
func (p *Paths) CleanEphemeral() {
	os.Remove(p.PIDFile)
	os.Remove(p.Socket)
}

// inboxDirs returns the subdirectories documents are moved to after matching.
func inboxDirs(inbox string) (processed, failed string) {
	return filepath.Join(inbox, "processed"), filepath.Join(inbox, "failed")
}
