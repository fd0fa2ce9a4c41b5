package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string

	// Rules is the default rules path, from the config file or
	// RAPTURE_RULES.
	Rules string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// ConfigName is the config file looked up in the working directory when
// --config is not given.
const ConfigName = ".rapture"

// EnvPrefix prefixes environment overrides, e.g. RAPTURE_FORMAT.
const EnvPrefix = "RAPTURE"

// NewRootCommand creates the root command for the rapture CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "rapture",
		Short: "Reactive document validation",
		Long: `Rapture applies rules written in CUE to YAML and JSON documents.

Rules are evaluated reactively: values registered by one part of a
document feed checks elsewhere, and every change re-runs only the
checks that depend on it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.loadConfig(cmd); err != nil {
				return WrapExitError(ExitCommandError, "failed to read config", err)
			}
			setupLogging(cmd.ErrOrStderr(), opts.Verbose)

			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "config file (default is ./"+ConfigName+".yaml)")

	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))

	return cmd
}

// loadConfig reads the config file and RAPTURE_* variables. Flags given on
// the command line win over both.
func (o *RootOptions) loadConfig(cmd *cobra.Command) error {
	v := viper.New()
	v.SetDefault("format", "text")
	v.SetDefault("rules", "")

	if o.Config != "" {
		v.SetConfigFile(o.Config)
	} else {
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(ConfigName)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if err := v.BindPFlag("format", cmd.Flag("format")); err != nil {
		return err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if o.Config != "" || !errors.As(err, &notFound) {
			return err
		}
	} else {
		slog.Debug("using config file", "file", v.ConfigFileUsed())
	}

	o.Format = v.GetString("format")
	o.Rules = v.GetString("rules")
	return nil
}

func setupLogging(w io.Writer, verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	if w == nil {
		w = os.Stderr
	}

	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// Execute runs the root command and returns the process exit code.
func Execute(args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return GetExitCode(err)
	}
	return ExitSuccess
}
