// matcher finds mentions of monitored assets in extracted documents.
// Runs as a daemon fed over a Unix socket, HTTP or an inbox directory,
// or one-shot from the command line.
package main

import (
	"os"

	"github.com/fyeo/eventmatcher/cmd/matcher/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		if code := cmd.ExitCode(err); code >= 0 {
			os.Exit(code)
		}
		os.Exit(1)
	}
}
