package cli

import (
	"fmt"
	"io"
	"log"
	"slices"

	"github.com/spf13/cobra"

	"github.com/BrandonDHaskell/abacus/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigFile string
	Backend    string
	DBPath     string
	RemoteAddr string
	Format     string // "text" | "json"
	Verbose    bool

	root *cobra.Command
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the abacus CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "abacus",
		Short: "Calculator with a durable, shared history log",
		Long: `abacus evaluates keypad input and records every completed calculation
in a history log kept in SQLite, in memory, or in a shared collection served
by another abacus process over gRPC.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}
	opts.root = cmd

	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Backend, "backend", "", "history backend (sqlite|memory|remote)")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "SQLite database path")
	cmd.PersistentFlags().StringVar(&opts.RemoteAddr, "remote", "", "collection service address for the remote backend")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log to stderr")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewReplCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))

	return cmd
}

// LoadConfig resolves configuration with the global flags that were set on
// the command line taking precedence.
func (o *RootOptions) LoadConfig() (config.Config, error) {
	overrides := map[string]any{}
	flags := o.root.PersistentFlags()
	if flags.Changed("backend") {
		overrides[config.KeyBackend] = o.Backend
	}
	if flags.Changed("db") {
		overrides[config.KeyDBPath] = o.DBPath
	}
	if flags.Changed("remote") {
		overrides[config.KeyRemoteAddr] = o.RemoteAddr
	}

	cfg, err := config.Load(config.Options{ConfigFile: o.ConfigFile, Overrides: overrides})
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	return cfg, nil
}

// Logger writes to errOut when --verbose is set and nowhere otherwise.
func (o *RootOptions) Logger(errOut io.Writer) *log.Logger {
	if !o.Verbose {
		return log.New(io.Discard, "", 0)
	}
	return log.New(errOut, "abacus ", log.LstdFlags|log.LUTC)
}
