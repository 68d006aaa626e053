// Command wfsync installs and updates workflow template files in a project.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/schaermu/wfsync/internal/config"
	"github.com/schaermu/wfsync/internal/display"
	"github.com/schaermu/wfsync/internal/git"
	"github.com/schaermu/wfsync/internal/sync"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string
	noColor   bool

	// Command flags
	force  bool
	dryRun bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		display.NewRenderer(os.Stderr, noColor).Error(err)
		if errors.Is(err, sync.ErrNoInstallation) {
			fmt.Fprintln(os.Stderr, "Use 'install' command for first-time installation.")
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "wfsync",
	Short: "Install workflow template files into your projects",
	Long: `wfsync installs the workflow template files (.claude/, .constitution/ and
CLAUDE.md) from a Git repository into a project directory.

Files you edited locally are detected by content and left alone unless
--force is given.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var installCmd = &cobra.Command{
	Use:   "install [target]",
	Short: "Install workflow files into a target directory",
	Long: `Install fetches the template repository and copies every file that is missing
from the target directory (default: current directory), which is created if
needed. Files that differ from the template are reported and kept unless
--force is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMode(cmd, sync.ModeInstall, args)
	},
}

var updateCmd = &cobra.Command{
	Use:   "update [target]",
	Short: "Update workflow files in an existing installation",
	Long: `Update fetches the template repository and brings an existing installation up
to date. New template files are added, files you modified are kept unless
--force is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMode(cmd, sync.ModeUpdate, args)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "wfsync %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/wfsync/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	for _, cmd := range []*cobra.Command{installCmd, updateCmd} {
		cmd.Flags().BoolVar(&force, "force", false, "overwrite modified files")
		cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be done without making changes")
	}

	// Add commands
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(versionCmd)
}

func runMode(cmd *cobra.Command, mode sync.Mode, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	// Setup logger
	logger := setupLogger(os.Stderr)

	// Load configuration
	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	target := "."
	if len(args) == 1 {
		target = args[0]
	}

	renderer := display.NewRenderer(cmd.OutOrStdout(), noColor)
	engine := sync.NewEngine(cfg, newFetcher(cfg), afero.NewOsFs(), renderer, logger)

	_, err = engine.Run(ctx, mode, sync.Options{Target: target, Force: force, DryRun: dryRun})
	if err != nil {
		logger.Error(mode.String()+" failed", "error", err)
		return err
	}
	return nil
}

// newFetcher returns the git client selected by fetch.method
func newFetcher(cfg *config.Config) git.Fetcher {
	timeout := time.Duration(cfg.Fetch.Timeout)
	if cfg.Fetch.Method == config.FetchBuiltin {
		var progress io.Writer
		if logLevel == "debug" {
			progress = os.Stderr
		}
		return git.NewGoGitClient(cfg.Auth.SSHKeyFile, cfg.Auth.HTTPSTokenFile, timeout, progress)
	}
	return git.NewShellClient(cfg.Auth.SSHKeyFile, cfg.Auth.HTTPSTokenFile, timeout)
}

func setupLogger(w io.Writer) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelWarn
	}

	// Create handler based on format
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

func loadConfig(logger *slog.Logger) (*config.Config, error) {
	cfg, path, err := config.LoadOrDefault(cfgFile)
	if err != nil {
		return nil, err
	}

	if path == "" {
		logger.Debug("no config file found, using defaults")
	} else {
		logger.Info("loaded configuration", "path", path)
	}

	logger.Debug("configuration",
		"repo", cfg.Repo.URL,
		"ref", cfg.Repo.Ref,
		"subdir", cfg.Repo.Subdir,
		"fetch_method", cfg.Fetch.Method,
		"auth", cfg.AuthMethod())

	return cfg, nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}
