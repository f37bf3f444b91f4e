package cli

import (
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/roach88/folio/internal/config"
)

// RootOptions holds global flags for all commands, plus the configuration
// and logger resolved before any subcommand runs.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	NoColor    bool

	Config *config.Config
	Log    zerolog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the folio CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{Log: zerolog.Nop()}

	cmd := &cobra.Command{
		Use:   "folio",
		Short: "folio - local-first portfolio admin",
		Long: `folio keeps a local mirror of a portfolio backend and captures admin
form submissions while the backend is unreachable. Captured submissions
wait in a durable outbox and are replayed in order once the backend is
back.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return opts.load(cmd)
		},
	}

	// Global flags
	pf := cmd.PersistentFlags()
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	pf.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	pf.StringVar(&opts.ConfigPath, "config", "", "config file (default: folio.yaml, .folio.yaml or ~/.config/folio/config.yaml)")
	pf.BoolVar(&opts.NoColor, "no-color", false, "disable colored output")

	// Overrides for config keys. Unset flags leave file and environment values alone.
	def := config.DefaultConfig()
	pf.String("db-path", def.DBPath, "local database file")
	pf.String("backend-url", def.BackendURL, "backend base URL")
	pf.String("log-level", def.LogLevel, "log level (debug|info|warn|error)")
	pf.Duration("request-timeout", def.RequestTimeout, "timeout for backend requests")
	pf.String("catalog-path", "", "directory of CUE form declarations (default: built-in catalog)")

	// Add subcommands
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewOutboxCommand(opts))
	cmd.AddCommand(NewSnapshotCommand(opts))
	cmd.AddCommand(NewSubmitCommand(opts))
	cmd.AddCommand(NewBackendCommand(opts))
	cmd.AddCommand(NewCatalogCommand(opts))
	cmd.AddCommand(NewScenarioCommand(opts))

	return cmd
}

// load resolves the configuration and builds the logger.
func (o *RootOptions) load(cmd *cobra.Command) error {
	loader := config.NewLoader(o.ConfigPath)
	if err := loader.BindFlags(cmd.Flags()); err != nil {
		return WrapExitError(ExitCommandError, "failed to bind flags", err)
	}
	cfg, err := loader.Load()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if o.Verbose {
		cfg.Debug = true
	}
	o.Config = cfg
	o.Log = NewLogger(cmd.ErrOrStderr(), cfg)

	if used := loader.Used(); used != "" {
		o.Log.Debug().Str("file", used).Msg("config loaded")
	}
	return nil
}

// formatter returns an output formatter writing to the command's streams.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	out := cmd.OutOrStdout()
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    out,
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
		Palette:   NewPalette(!o.NoColor && colorEnabled(out)),
	}
}

// NewLogger builds the process logger: pretty console output with caller
// information when debugging, JSON lines with timestamps otherwise.
func NewLogger(w io.Writer, cfg *config.Config) zerolog.Logger {
	if cfg.Debug {
		return zerolog.New(zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
			NoColor:    !colorEnabled(w),
		}).Level(cfg.Level()).With().Timestamp().Caller().Logger()
	}
	return zerolog.New(w).Level(cfg.Level()).With().Timestamp().Logger()
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
