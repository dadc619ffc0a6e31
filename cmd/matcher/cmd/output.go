package cmd

import (
	"fmt"
	"strings"

	"github.com/fyeo/eventmatcher/internal/adapters/socket"
	"github.com/fyeo/eventmatcher/internal/config"
	"github.com/fyeo/eventmatcher/internal/domain/match"
)

// ANSI color codes for terminal output.
const (
	colorReset   = "\033[0m"
	colorBold    = "\033[1m"
	colorCyan    = "\033[36m"
	colorMagenta = "\033[35m"
	colorGreen   = "\033[32m"
	colorYellow  = "\033[33m"
	colorGray    = "\033[90m"
)

// snippetWidth caps how much of a cut is printed per line.
const snippetWidth = 120

// formatMatchResult formats a MatchResult for terminal display.
//
//	2 events │ 1 written │ 3.2ms
//	  A1 (case C1)  0.998  clear-net  forum.example.org
//	    [text 120-301] name.common=thomas olofsson, email=thomas@example.com
//	      ...context around the matches...
//	    threat actors: T1
func formatMatchResult(result *socket.MatchResult, dryRun bool) string {
	var sb strings.Builder
	written := fmt.Sprintf("%d written", result.Written)
	if dryRun {
		written = "dry run"
	}
	fmt.Fprintf(&sb, "%s%d events%s │ %s │ %s\n", colorBold, result.Count, colorReset, written, result.Elapsed)

	for i := range result.Events {
		ev := &result.Events[i]
		fmt.Fprintf(&sb, "  %s%s%s (case %s)  %.3f  %s%s%s",
			colorCyan, ev.AssetID, colorReset, ev.CaseID,
			ev.Probability,
			colorMagenta, ev.SourceNetwork, colorReset)
		if ev.Site != "" {
			fmt.Fprintf(&sb, "  %s", ev.Site)
		}
		sb.WriteString("\n")

		for _, cut := range ev.Cuts {
			writeSnippet(&sb, cut)
		}
		if ids := ev.ThreatActorIDs(); len(ids) > 0 {
			fmt.Fprintf(&sb, "    %sthreat actors:%s %s\n", colorYellow, colorReset, strings.Join(ids, ", "))
		}
	}
	return sb.String()
}

func writeSnippet(sb *strings.Builder, s match.Snippet) {
	kws := make([]string, 0, len(s.Matches))
	for _, m := range s.Matches {
		kws = append(kws, fmt.Sprintf("%s%s%s=%s", colorGreen, m.KeywordName, colorReset, m.MatchedText))
	}
	fmt.Fprintf(sb, "    [%s %d-%d] %s\n", s.Source, s.Start, s.End, strings.Join(kws, ", "))
	fmt.Fprintf(sb, "      %s%s%s\n", colorGray, oneLine(s.Text, snippetWidth), colorReset)
}

// oneLine collapses whitespace and truncates to width runes.
func oneLine(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-3]) + "..."
}

// formatHealth formats a HealthResult for terminal display.
func formatHealth(h *socket.HealthResult) string {
	color := colorGreen
	if !h.Ready {
		color = colorYellow
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%smatcher daemon%s\n", colorBold, colorReset)
	fmt.Fprintf(&sb, "  Status:         %s%s%s\n", color, h.Status, colorReset)
	fmt.Fprintf(&sb, "  Asset keywords: %d\n", h.AssetKeywords)
	fmt.Fprintf(&sb, "  Threat actors:  %d\n", h.ThreatActorKeywords)
	if h.SkippedKeywords > 0 {
		fmt.Fprintf(&sb, "  Skipped:        %s%d%s\n", colorYellow, h.SkippedKeywords, colorReset)
	}
	if h.IndexBuiltAt != "" {
		fmt.Fprintf(&sb, "  Index built:    %s\n", h.IndexBuiltAt)
	}
	fmt.Fprintf(&sb, "  Uptime:         %s\n", h.Uptime)
	return sb.String()
}

// formatReindex formats a ReindexResult for terminal display.
func formatReindex(r *socket.ReindexResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%sindexes rebuilt%s │ %dms\n", colorBold, colorReset, r.ElapsedMs)
	fmt.Fprintf(&sb, "  Assets:         %d (%d keywords)\n", r.Assets, r.AssetKeywords)
	fmt.Fprintf(&sb, "  Threat actors:  %d (%d keywords)\n", r.ThreatActors, r.ThreatActorKeywords)
	if r.Skipped > 0 {
		fmt.Fprintf(&sb, "  Skipped:        %s%d malformed keywords%s\n", colorYellow, r.Skipped, colorReset)
	}
	return sb.String()
}

// formatConfig formats the effective configuration for terminal display.
func formatConfig(cfg *config.Config, sockPath, daemonStatus string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%smatcher config%s\n", colorBold, colorReset)
	fmt.Fprintf(&sb, "  Data dir:   %s\n", cfg.DataDir)
	fmt.Fprintf(&sb, "  Assets:     %s\n", backendTarget(cfg.Assets.Backend, cfg.Assets.SQLitePath, cfg.Assets.MongoDatabase+"."+cfg.Assets.MongoCollection))
	fmt.Fprintf(&sb, "  Events:     %s\n", backendTarget(cfg.Events.Backend, cfg.Assets.SQLitePath, cfg.Assets.MongoDatabase+"."+cfg.Events.MongoCollection))
	if cfg.Events.AMQPURL != "" {
		fmt.Fprintf(&sb, "  Queue:      amqp (%s)\n", cfg.Events.AMQPQueue)
	}
	snap := cfg.Index.Snapshot
	fmt.Fprintf(&sb, "  Snapshots:  %s\n", backendTarget(snap.Backend, snap.Path, "s3://"+snap.Bucket+"/"+snap.Prefix))
	fmt.Fprintf(&sb, "  Max age:    %s\n", cfg.Index.MaxAge)
	fmt.Fprintf(&sb, "  Rebuild:    %s\n", cfg.Index.RebuildSchedule)
	if cfg.Inbox.Directory != "" {
		fmt.Fprintf(&sb, "  Inbox:      %s (%d workers)\n", cfg.Inbox.Directory, cfg.Inbox.Workers)
	}
	if cfg.Server.Port != 0 {
		fmt.Fprintf(&sb, "  HTTP:       http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	}
	fmt.Fprintf(&sb, "  Socket:     %s\n", sockPath)
	fmt.Fprintf(&sb, "  Daemon:     %s\n", daemonStatus)
	return sb.String()
}

func backendTarget(backend, local, remote string) string {
	switch backend {
	case "sqlite", "bbolt":
		return fmt.Sprintf("%s (%s)", backend, local)
	case "mongo", "s3":
		return fmt.Sprintf("%s (%s)", backend, remote)
	default:
		return backend
	}
}
