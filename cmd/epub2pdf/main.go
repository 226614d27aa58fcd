package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yuanying/epub2pdf/internal/config"
	"github.com/yuanying/epub2pdf/internal/converter"
	"github.com/yuanying/epub2pdf/internal/layout"
	"github.com/yuanying/epub2pdf/internal/stage"
)

const (
	defaultLogLevel  = "info"
	defaultLogFormat = "text"
)

// cliOptions is a convert invocation after flags, config file and
// environment have been merged.
type cliOptions struct {
	converter.ConvertOptions
	NoProgress bool
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "epub2pdf",
		Short: "Convert EPUB files to print-ready PDF",
		Long: `epub2pdf converts EPUB ebooks to PDF documents sized for print.

Chapters are combined into one HTML document and printed with headless
Chrome; the cover image becomes a full-bleed first page and headings
become PDF bookmarks.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newConvertCmd(), newInspectCmd(), newPDFInfoCmd())
	return root
}

func newConvertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert <input.epub> [output.pdf]",
		Short: "Convert an EPUB file to PDF",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := readCLIOptions(cmd, args)
			if err != nil {
				return err
			}
			if !opts.NoProgress {
				opts.Progress = cmd.ErrOrStderr()
			}

			opts.Logger.Info("converting", "input", opts.InputPath, "output", opts.OutputPath)
			res, err := converter.NewPipeline(opts.ConvertOptions).Convert(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), res.Summary())
			return nil
		},
	}

	f := cmd.Flags()
	f.StringP("output", "o", "", "Output file path (default: input with .pdf extension)")
	f.String("config", "", "TOML configuration file")
	f.String("log-level", defaultLogLevel, "Log level: debug, info, warn, error")
	f.String("log-format", defaultLogFormat, "Log format: text, json")
	f.BoolP("verbose", "v", false, "Enable debug logging (overrides --log-level)")
	f.Bool("strict", false, "Fail on cover errors, skipped chapters and dangling links")
	f.Bool("keep-temp", false, "Keep the extraction directory for debugging")
	f.Bool("no-cover", false, "Do not generate a cover page")
	f.String("chrome-path", "", "Chrome or Chromium executable (default: search PATH)")
	f.Duration("timeout", 0, "Time limit for loading and printing the document (default from config)")
	f.String("page-size", "", "Page size WxH in inches, e.g. 6x9 (default from config)")
	f.Bool("no-progress", false, "Disable the progress bar")
	return cmd
}

func readCLIOptions(cmd *cobra.Command, args []string) (cliOptions, error) {
	var opts cliOptions
	f := cmd.Flags()

	opts.InputPath = args[0]
	opts.OutputPath, _ = f.GetString("output")
	if len(args) > 1 {
		if opts.OutputPath != "" && opts.OutputPath != args[1] {
			return cliOptions{}, fmt.Errorf("output given both as argument (%s) and --output (%s)", args[1], opts.OutputPath)
		}
		opts.OutputPath = args[1]
	}
	if opts.OutputPath == "" {
		opts.OutputPath = defaultOutputPath(opts.InputPath)
	}

	logLevel, _ := f.GetString("log-level")
	logFormat, _ := f.GetString("log-format")
	verbose, _ := f.GetBool("verbose")
	if _, err := parseLogLevel(logLevel); err != nil {
		return cliOptions{}, fmt.Errorf("--log-level: %w", err)
	}
	switch strings.ToLower(logFormat) {
	case "text", "json":
	default:
		return cliOptions{}, fmt.Errorf("--log-format must be text or json, got %q", logFormat)
	}
	if verbose {
		logLevel = "debug"
	}
	opts.Logger = buildLogger(cmd.ErrOrStderr(), logLevel, logFormat)

	configPath, _ := f.GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return cliOptions{}, fmt.Errorf("--config: %w", err)
	}
	if chromePath, _ := f.GetString("chrome-path"); chromePath != "" {
		cfg.Render.ChromePath = chromePath
	}
	if f.Changed("timeout") {
		timeout, _ := f.GetDuration("timeout")
		if timeout <= 0 {
			return cliOptions{}, fmt.Errorf("--timeout must be positive, got %s", timeout)
		}
		cfg.Render.Timeout = config.Duration(timeout)
	}
	if size, _ := f.GetString("page-size"); size != "" {
		w, h, err := layout.ParseSize(size)
		if err != nil {
			return cliOptions{}, fmt.Errorf("--page-size: %w", err)
		}
		cfg.Page.Width, cfg.Page.Height = w, h
	}
	if err := cfg.Validate(); err != nil {
		return cliOptions{}, fmt.Errorf("invalid configuration: %w", err)
	}
	opts.Config = cfg

	opts.Strict, _ = f.GetBool("strict")
	opts.KeepTemp, _ = f.GetBool("keep-temp")
	opts.NoCover, _ = f.GetBool("no-cover")
	opts.NoProgress, _ = f.GetBool("no-progress")
	return opts, nil
}

func parseLogLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return 0, fmt.Errorf("unknown level %q", level)
	}
	return l, nil
}

// buildLogger returns a text or JSON logger at level. Unknown levels fall
// back to info.
func buildLogger(w io.Writer, level, format string) *slog.Logger {
	l, err := parseLogLevel(level)
	if err != nil {
		l = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: l}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

func defaultOutputPath(input string) string {
	return converter.DefaultOutputPath(input)
}

// errorMessage formats a fatal error for the terminal, naming the stage
// that failed.
func errorMessage(err error) string {
	return fmt.Sprintf("epub2pdf: %s failed: %v", stage.Name(err), err)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, errorMessage(err))
		os.Exit(1)
	}
}
