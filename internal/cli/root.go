// Package cli implements the keeper command-line interface.
//
// This package uses global variables to manage CLI state, which is the standard
// pattern for Cobra-based CLI applications. The globals are initialized in
// PersistentPreRunE and cleaned up in PersistentPostRun.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level state
package cli

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/config"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/metrics"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/output"
	kkerr "github.com/keepkey/keepkey-bitcoin-only-sub000/pkg/errors"
)

// BuildInfo describes the running binary. It is set from main through
// SetBuildInfo.
type BuildInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

var (
	// Global flags
	homeDir      string
	outputFormat string
	verbose      bool

	buildInfo = BuildInfo{Version: "dev", Commit: "none", Date: "unknown"}

	// Global state initialized in PersistentPreRunE
	cfg       *config.Config
	logger    *config.Logger
	formatter *output.Formatter
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "keeper",
	Short: "Bitcoin companion for KeepKey hardware wallets",
	Long: `keeper talks to a KeepKey over a registered transport, caches its
public keys and addresses in a local database, and builds and signs
Bitcoin transactions with fee safety limits.

Example:
  keeper frontload
  keeper balances show
  keeper tx build --to bc1q...=0.001 --fee-rate 10 --percentage 50 --sign`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := initGlobals(); err != nil {
			return err
		}
		SetCmdContext(cmd, &CommandContext{
			Cfg:     cfg,
			Log:     logger,
			Fmt:     formatter,
			Metrics: metrics.Global,
			Opener:  registeredOpener(),
		})
		return nil
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		cleanup()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cc := GetCmdContext(cmd)
		if cc.Fmt.IsJSON() {
			return cc.Fmt.Print(buildInfo)
		}
		outln(cmd.OutOrStdout(), formatVersion(buildInfo))
		return nil
	},
}

// SetBuildInfo records version metadata injected at link time.
func SetBuildInfo(version, commit, date string) {
	if version != "" {
		buildInfo.Version = version
	}
	if commit != "" {
		buildInfo.Commit = commit
	}
	if date != "" {
		buildInfo.Date = date
	}
}

func formatVersion(b BuildInfo) string {
	return fmt.Sprintf("keeper %s (commit %s, built %s, %s/%s)",
		b.Version, b.Commit, b.Date, runtime.GOOS, runtime.GOARCH)
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		format := output.FormatText
		if formatter != nil {
			format = formatter.Format()
		}
		_ = output.FormatError(os.Stderr, err, format)
		return err
	}
	return nil
}

// ExitCode returns the appropriate exit code for an error.
func ExitCode(err error) int {
	return kkerr.ExitCode(err)
}

// initGlobals initializes global configuration, logger, and formatter.
func initGlobals() error {
	home := homeDir
	if home == "" {
		home = os.Getenv(config.EnvHome)
	}
	if home == "" {
		home = config.DefaultHome()
	}

	var err error
	cfg, err = config.Load(config.Path(home))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		cfg = config.Defaults()
		cfg.Home = home
		cfg.Database.Path = ""
	}

	config.ApplyEnvironment(cfg)

	if homeDir != "" {
		cfg.Home = homeDir
		cfg.Database.Path = ""
	}
	if verbose {
		cfg.Output.Verbose = true
		cfg.Logging.Level = "debug"
	}
	if outputFormat != "" && outputFormat != "auto" {
		cfg.Output.DefaultFormat = outputFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err = config.NewLogger(config.ParseLogLevel(cfg.GetLoggingLevel()), cfg.GetLoggingFile())
	if err != nil {
		// A log file we cannot open never blocks a command.
		logger = config.NullLogger()
	}

	explicit := output.ParseFormat(cfg.GetOutputFormat())
	formatter = output.NewFormatter(output.DetectFormat(os.Stdout, explicit), os.Stdout)
	return nil
}

// cleanup releases resources.
func cleanup() {
	if logger != nil {
		_ = logger.Close()
	}
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for flag registration
func init() {
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "keeper data directory (default: ~/.keeper)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "auto", "output format: text, json, auto")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(versionCmd)
}
