package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fyeo/eventmatcher/internal/adapters/socket"
	"github.com/fyeo/eventmatcher/internal/app"
	"github.com/fyeo/eventmatcher/internal/config"
	"github.com/fyeo/eventmatcher/internal/logger"
	"github.com/fyeo/eventmatcher/internal/ports"
	"github.com/spf13/cobra"
)

var (
	matchURL    string
	matchTitle  string
	matchDryRun bool
	matchJSON   bool
	matchLocal  bool
	matchQuiet  bool
)

var matchCmd = &cobra.Command{
	Use:   "match [flags] <file|->",
	Short: "Match one document",
	Long: "Matches a document against the asset and threat actor indexes. The input is either a " +
		"JSON document ({\"url\",\"text\",\"metadata\"}) or plain text. Uses the running daemon " +
		"when there is one, otherwise loads the indexes in-process.\n\n" +
		"Exit status is 0 when events were found, 1 when none, 2 on error.",
	Args:          cobra.ExactArgs(1),
	RunE:          runMatch,
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	f := matchCmd.Flags()
	f.StringVar(&matchURL, "url", "", "Document URL (plain text input, or overrides the JSON url)")
	f.StringVar(&matchTitle, "title", "", "Document title for plain text input")
	f.BoolVarP(&matchDryRun, "dry-run", "n", false, "Do not write events to the sinks")
	f.BoolVar(&matchJSON, "json", false, "Print events as JSON")
	f.BoolVar(&matchLocal, "local", false, "Match in-process even when the daemon is running")
	f.BoolVarP(&matchQuiet, "quiet", "q", false, "Exit status only")
}

func runMatch(cmd *cobra.Command, args []string) error {
	doc, err := readDocument(args[0], cmd.InOrStdin())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return matchExit{2}
	}

	result, err := matchDocument(doc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return matchExit{2}
	}

	switch {
	case matchQuiet:
	case matchJSON:
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	default:
		fmt.Fprint(cmd.OutOrStdout(), formatMatchResult(result, matchDryRun))
	}

	if result.Count == 0 {
		return matchExit{1}
	}
	return nil
}

func matchDocument(doc ports.Document) (*socket.MatchResult, error) {
	cfg, paths, err := daemonPaths()
	if err != nil {
		return nil, err
	}
	if !matchLocal {
		client := socket.NewClient(paths.Socket)
		if client.Ping() {
			return client.Match(doc, matchDryRun)
		}
	}
	return matchLocally(cfg, paths.Socket, doc)
}

// matchLocally builds the app in-process, loads the indexes and matches doc.
func matchLocally(cfg *config.Config, sockPath string, doc ports.Document) (*socket.MatchResult, error) {
	log, err := logger.New(cfg.Debug)
	if err != nil {
		return nil, err
	}
	defer log.Sync()

	a, err := app.New(cfg, log)
	if err != nil {
		if isDBLockError(err) {
			return nil, fmt.Errorf("%w\n%s", err, diagnoseDBLock(sockPath))
		}
		return nil, err
	}
	defer a.Stop()

	ctx := context.Background()
	if err := a.LoadIndexes(ctx); err != nil {
		return nil, err
	}
	result, err := a.Match(ctx, socket.MatchParams{Document: doc, DryRun: matchDryRun})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// readDocument reads path ("-" for stdin) as a JSON document, or as plain
// text when it is not a JSON object.
func readDocument(path string, stdin io.Reader) (ports.Document, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return ports.Document{}, err
	}

	var doc ports.Document
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return ports.Document{}, fmt.Errorf("decode %s: %w", path, err)
		}
	} else {
		doc.Text = string(data)
		doc.Metadata = ports.DocumentMetadata{
			Title:         matchTitle,
			ContentType:   "text/plain",
			ContentLength: len(data),
		}
	}

	if matchURL != "" {
		doc.URL = matchURL
	}
	if doc.Text == "" {
		return ports.Document{}, fmt.Errorf("%s: document has no text", path)
	}
	return doc, nil
}
