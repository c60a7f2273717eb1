package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/regdelta/internal/audit"
	"github.com/dshills/regdelta/internal/config"
	"github.com/dshills/regdelta/internal/docdiff"
	"github.com/dshills/regdelta/internal/ingest"
	"github.com/dshills/regdelta/internal/pipeline"
	"github.com/dshills/regdelta/internal/render"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

// exitErr carries a numeric exit code through the cobra error path.
type exitErr struct {
	code int
	msg  string
}

func (e *exitErr) Error() string { return e.msg }

// codeError returns an exitErr for the given code.
func codeError(code int, format string, args ...any) error {
	return &exitErr{code: code, msg: fmt.Sprintf(format, args...)}
}

// runFlags holds the parsed flags for the run command.
type runFlags struct {
	baseline   string
	revised    string
	scenario   string
	configPath string
	outDir     string
	format     string
	out        string
}

func main() {
	root := &cobra.Command{
		Use:     "regdelta",
		Short:   "Analyze regulatory document changes against a control catalog",
		Long:    "RegDelta ingests regulatory documents, diffs revisions, extracts obligations, and maps them to internal controls with a tamper-evident audit trail.",
		Version: version,
	}

	root.AddCommand(newRunCmd(), newDiffCmd(), newVerifyCmd(), newAuditCmd())

	if err := root.Execute(); err != nil {
		var ee *exitErr
		if errors.As(err, &ee) {
			fmt.Fprintln(os.Stderr, "Error:", ee.msg)
			os.Exit(ee.code)
		}
		// cobra already printed the error
		os.Exit(1)
	}
}

func newRunCmd() *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full change-impact pipeline for a scenario",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd.Context(), flags)
		},
	}
	f := cmd.Flags()
	f.StringVar(&flags.baseline, "baseline", "", "Baseline document path (optional; diff is skipped without it)")
	f.StringVar(&flags.revised, "revised", "", "Revised document path (required)")
	f.StringVar(&flags.scenario, "scenario", "default", "Scenario name used to key run artifacts")
	f.StringVar(&flags.configPath, "config", "", "Configuration file path (defaults apply when omitted)")
	f.StringVar(&flags.outDir, "out-dir", "", "Artifact output directory (defaults to the configured data dir)")
	f.StringVar(&flags.format, "format", "json", "Report format: json or md")
	f.StringVar(&flags.out, "out", "", "Write the report to a file instead of stdout")
	cmd.MarkFlagRequired("revised") //nolint:errcheck
	return cmd
}

func runPipeline(ctx context.Context, flags runFlags) error {
	renderer, err := render.NewRenderer(flags.format)
	if err != nil {
		return codeError(3, "invalid format: %s", err)
	}

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return codeError(3, "loading config: %s", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return codeError(3, "preparing directories: %s", err)
	}
	logger := newLogger(cfg.Logging.Level)

	log, err := audit.Open(cfg.AuditFile())
	if err != nil {
		return codeError(4, "opening audit log: %s", err)
	}
	defer log.Close() //nolint:errcheck

	orch := pipeline.New(cfg, log, logger)
	if err := orch.Init(); err != nil {
		return codeError(4, "initializing pipeline: %s", err)
	}

	report, runErr := orch.RunPipeline(ctx, flags.baseline, flags.revised, flags.scenario)

	outDir := flags.outDir
	if outDir == "" {
		outDir = cfg.Storage.DataDir
	}
	if written, saveErr := orch.SaveArtifacts(outDir); saveErr != nil {
		logger.Error("saving artifacts failed", slog.String("error", saveErr.Error()))
	} else {
		for _, path := range written {
			logger.Info("artifact written", slog.String("path", path))
		}
	}

	if err := writeRendered(renderer, report, flags.out); err != nil {
		return err
	}
	if runErr != nil {
		return codeError(5, "pipeline failed: %s", runErr)
	}
	return nil
}

func newDiffCmd() *cobra.Command {
	var contextLines int
	var unified bool
	cmd := &cobra.Command{
		Use:   "diff <baseline> <revised>",
		Short: "Diff two documents at paragraph level",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(cmd.Context(), args[0], args[1], contextLines, unified)
		},
	}
	cmd.Flags().IntVar(&contextLines, "context", 0, "Include N unchanged paragraphs around each change (JSON output)")
	cmd.Flags().BoolVar(&unified, "unified", false, "Print a unified-style text diff instead of JSON")
	return cmd
}

func runDiff(ctx context.Context, baselinePath, revisedPath string, contextLines int, unified bool) error {
	chain := ingest.NewChain(newLogger("warn"))
	baseline, err := chain.Load(ctx, baselinePath)
	if err != nil {
		return codeError(3, "loading baseline: %s", err)
	}
	revised, err := chain.Load(ctx, revisedPath)
	if err != nil {
		return codeError(3, "loading revised: %s", err)
	}

	diff := docdiff.Compute(baseline.Paragraphs, revised.Paragraphs)
	if unified {
		fmt.Print(diff.Unified(baselinePath, revisedPath))
		return nil
	}

	out := struct {
		Summary docdiff.Summary  `json:"summary"`
		Ops     []docdiff.Op     `json:"operations,omitempty"`
		Changes []docdiff.Change `json:"changes,omitempty"`
	}{Summary: diff.Summary()}
	if contextLines > 0 {
		out.Changes = diff.WithContext(contextLines)
	} else {
		out.Ops = diff.Ops
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return codeError(3, "encoding diff: %s", err)
	}
	fmt.Println(string(data))
	return nil
}

func newVerifyCmd() *cobra.Command {
	var configPath, logPath string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify the audit log hash chain",
		Long:  "Verify recomputes every entry hash in the audit log. Exit code 2 means the chain is broken.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(configPath, logPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Configuration file path")
	cmd.Flags().StringVar(&logPath, "log", "", "Audit log path (overrides the configured location)")
	return cmd
}

func runVerify(configPath, logPath string) error {
	path := logPath
	if path == "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return codeError(3, "loading config: %s", err)
		}
		path = cfg.AuditFile()
	}

	log, err := audit.Open(path)
	if err != nil {
		// A log that cannot even be opened is treated as a broken chain.
		if errors.Is(err, audit.ErrCorruptLog) {
			return codeError(2, "audit log corrupt: %s", err)
		}
		return codeError(3, "opening audit log: %s", err)
	}
	defer log.Close() //nolint:errcheck

	valid, line, err := log.Verify()
	if err != nil {
		return codeError(3, "verifying audit log: %s", err)
	}
	if !valid {
		return codeError(2, "audit chain INVALID: first bad entry at line %d of %s", line, path)
	}
	fmt.Printf("audit chain OK: %s\n", path)
	return nil
}

func newAuditCmd() *cobra.Command {
	var configPath, logPath, action, actor, export string
	var limit int
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List or export audit log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(configPath, logPath, audit.Filter{Action: action, Actor: actor, Limit: limit}, export)
		},
	}
	f := cmd.Flags()
	f.StringVar(&configPath, "config", "", "Configuration file path")
	f.StringVar(&logPath, "log", "", "Audit log path (overrides the configured location)")
	f.StringVar(&action, "action", "", "Only entries with this action")
	f.StringVar(&actor, "actor", "", "Only entries from this actor")
	f.IntVar(&limit, "limit", 0, "Only the most recent N matching entries")
	f.StringVar(&export, "export", "", "Copy the full audit trail to this path instead of listing")
	return cmd
}

func runAudit(configPath, logPath string, filter audit.Filter, export string) error {
	path := logPath
	if path == "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return codeError(3, "loading config: %s", err)
		}
		path = cfg.AuditFile()
	}

	log, err := audit.Open(path)
	if err != nil {
		return codeError(3, "opening audit log: %s", err)
	}
	defer log.Close() //nolint:errcheck

	if export != "" {
		if err := log.Export(export); err != nil {
			return codeError(3, "exporting audit log: %s", err)
		}
		fmt.Printf("audit trail exported to %s\n", export)
		return nil
	}

	entries, err := log.Entries(filter)
	if err != nil {
		return codeError(3, "reading audit log: %s", err)
	}
	enc := json.NewEncoder(os.Stdout)
	for _, entry := range entries {
		if err := enc.Encode(entry); err != nil {
			return codeError(3, "encoding entry: %s", err)
		}
	}
	return nil
}

func writeRendered(renderer render.Renderer, report *pipeline.Report, out string) error {
	outputBytes, err := renderer.Render(report)
	if err != nil {
		return codeError(3, "rendering report: %s", err)
	}
	if out != "" {
		if err := os.WriteFile(out, outputBytes, 0o644); err != nil {
			return codeError(3, "writing report file: %s", err)
		}
		return nil
	}
	if _, err := os.Stdout.Write(outputBytes); err != nil {
		return codeError(3, "writing report: %s", err)
	}
	// Ensure output ends with a newline for terminal friendliness.
	if len(outputBytes) > 0 && outputBytes[len(outputBytes)-1] != '\n' {
		fmt.Fprintln(os.Stdout)
	}
	return nil
}

// newLogger builds a stderr text logger at the configured level.
func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
