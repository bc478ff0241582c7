package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/probectl/internal/config"
	"github.com/roach88/probectl/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// LogWriter receives structured logs. Defaults to stderr.
	LogWriter io.Writer
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the probectl CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "probectl",
		Short: "probectl - market intel tasking for probe fleets",
		Long: `Plan which probe refreshes which market.

Markets are ranked by travel distance and how long their price data has been
idle, then matched to available probes. Reachability over supply relations can
narrow planning to the markets feeding a production good.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			setupLogging(opts)
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewReachCommand(opts))
	cmd.AddCommand(NewPlanCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewCompleteCommand(opts))
	cmd.AddCommand(NewReleaseCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// setupLogging installs the default slog logger: text on stderr, debug with --verbose.
func setupLogging(opts *RootOptions) {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	w := opts.LogWriter
	if w == nil {
		w = os.Stderr
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
}

func openStore(path string) (*store.Store, error) {
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

func closeStore(st *store.Store) {
	if err := st.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

// ConfigFlags are the config file and the flags that override it.
type ConfigFlags struct {
	Path       string
	System     string
	Controller string
	Priority   int
}

func (f *ConfigFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.Path, "config", "", "path to YAML config (defaults apply when omitted)")
	cmd.Flags().StringVar(&f.System, "system", "", "plan only this system (overrides config)")
	cmd.Flags().StringVar(&f.Controller, "controller", "", "lock owner for assigned probes (overrides config)")
	cmd.Flags().IntVar(&f.Priority, "priority", 0, "controller priority (overrides config)")
}

// load reads the config file, applies changed flags and validates the result.
func (f *ConfigFlags) load(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if f.Path != "" {
		var err error
		cfg, err = config.Load(f.Path)
		if err != nil {
			return config.Config{}, err
		}
	}
	return f.apply(cmd, cfg)
}

func (f *ConfigFlags) apply(cmd *cobra.Command, cfg config.Config) (config.Config, error) {
	if cmd.Flags().Changed("system") {
		cfg.System = f.System
	}
	if cmd.Flags().Changed("controller") {
		cfg.Controller = f.Controller
	}
	if cmd.Flags().Changed("priority") {
		cfg.Priority = f.Priority
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
