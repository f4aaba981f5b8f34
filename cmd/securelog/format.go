package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/al-bashkir/securelog/internal/config"
	"github.com/al-bashkir/securelog/internal/daemon"
	"github.com/al-bashkir/securelog/internal/formatter"
	"github.com/al-bashkir/securelog/internal/logsanitize"
	"github.com/al-bashkir/securelog/internal/sink"
	"github.com/al-bashkir/securelog/internal/wire"
)

var formatCmd = &cobra.Command{
	Use:   "format",
	Short: "Format JSON events from stdin",
	Long: `Read log events from stdin, one JSON event or array of events per line,
and write one secure record per event to stdout.

The configuration file is optional for this command; without it the
built-in sensitive keys (or SENSITIVE_KEYS) are used.

Lines that are not valid events are reported on stderr and skipped;
the exit code is 1 if any line was skipped.`,
	Args: cobra.NoArgs,
	RunE: runFormat,
}

// runFormat filters stdin to stdout
func runFormat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(true)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	config.SetupLogging(&cfg.Log, cfg.KeySet(), cfg.Limits())

	f := formatter.New(cfg.KeySet(), formatter.WithLimits(cfg.Limits()))
	out := sink.New(cmd.OutOrStdout())

	skipped, err := formatStream(cmd.Context(), cmd.InOrStdin(), daemon.NewPipeline(f, out), cfg.Ingest.MaxBodyBytes)
	if err != nil {
		return err
	}
	if skipped > 0 {
		slog.Warn("skipped invalid lines", "count", skipped)
		overrideExitCode = ExitError
	}
	return nil
}

// formatStream runs each line of in through p and returns the number of
// rejected lines.
func formatStream(ctx context.Context, in io.Reader, p *daemon.Pipeline, maxLine int64) (int, error) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), int(maxLine))

	skipped := 0
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		events, err := wire.ParseEvents(line)
		if err != nil {
			slog.Warn("invalid event line", "line", lineNo, "error", logsanitize.Sanitize(err.Error()))
			skipped++
			continue
		}
		if _, err := p.Handle(ctx, events); err != nil {
			return skipped, fmt.Errorf("failed to write records: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return skipped, fmt.Errorf("failed to read input: %w", err)
	}
	return skipped, nil
}
