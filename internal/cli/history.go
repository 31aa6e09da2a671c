package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/BrandonDHaskell/abacus/internal/abacus/service"
	"github.com/BrandonDHaskell/abacus/internal/abacus/store"
	"github.com/BrandonDHaskell/abacus/internal/abacus/types"
)

// NewHistoryCommand creates the history command and its subcommands.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect or clear the calculation log",
	}

	cmd.AddCommand(newHistoryListCommand(rootOpts))
	cmd.AddCommand(newHistoryWatchCommand(rootOpts))
	cmd.AddCommand(newHistoryClearCommand(rootOpts))
	cmd.AddCommand(newHistoryExportCommand(rootOpts))

	return cmd
}

// withHistory opens the configured backend for the duration of fn.
func withHistory(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, svc *service.HistoryService) error) error {
	cfg, err := opts.LoadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	logger := opts.Logger(cmd.ErrOrStderr())

	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	return fn(ctx, service.NewHistoryService(b.Store, logger))
}

// ── list ─────────────────────────────────────────────────────────────────────

func newHistoryListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the history, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd, rootOpts, func(ctx context.Context, svc *service.HistoryService) error {
				recs, err := svc.List(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "read history", err)
				}
				return printSnapshot(cmd.OutOrStdout(), rootOpts.Format, recs, false)
			})
		},
	}
}

func printSnapshot(w io.Writer, format string, recs []store.Record, header bool) error {
	if format == "json" {
		return json.NewEncoder(w).Encode(historyJSON(recs))
	}
	if header {
		fmt.Fprintf(w, "-- %d records --\n", len(recs))
	}
	if len(recs) == 0 && !header {
		fmt.Fprintln(w, "(no history)")
		return nil
	}
	for _, r := range recs {
		fmt.Fprintf(w, "%s  %s\n", r.CreatedAt.UTC().Format(time.DateTime), formatEntry(r))
	}
	return nil
}

func historyJSON(recs []store.Record) types.HistoryResponse {
	out := types.HistoryResponse{Records: make([]types.HistoryRecord, len(recs))}
	for i, r := range recs {
		out.Records[i] = types.HistoryRecord{
			ID:         r.ID,
			Expression: r.Expression,
			Result:     r.Result,
			CreatedAt:  r.CreatedAt.UTC().Format(time.RFC3339Nano),
			Seq:        r.Seq,
		}
	}
	return out
}

// ── watch ────────────────────────────────────────────────────────────────────

func newHistoryWatchCommand(rootOpts *RootOptions) *cobra.Command {
	var poll time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print the full history every time it changes",
		Long: `Print the full history on start and again after every change, until
interrupted. Each block replaces the previous one.

The sqlite backend cannot push changes, so it is re-read every --poll.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd, rootOpts, func(ctx context.Context, svc *service.HistoryService) error {
				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()
				return watchHistory(ctx, svc, cmd.OutOrStdout(), cmd.ErrOrStderr(), rootOpts.Format, poll)
			})
		},
	}

	cmd.Flags().DurationVar(&poll, "poll", time.Second, "refresh interval for polling backends")
	return cmd
}

func watchHistory(ctx context.Context, svc *service.HistoryService, out, errOut io.Writer, format string, poll time.Duration) error {
	snapshots := make(chan []store.Record, 1)
	failures := make(chan error, 1)

	unsubscribe, err := svc.Subscribe(ctx,
		func(recs []store.Record) {
			select {
			case <-snapshots:
			default:
			}
			snapshots <- recs
		},
		func(err error) {
			select {
			case failures <- err:
			default:
			}
		},
	)
	if err != nil {
		return WrapExitError(ExitFailure, "watch history", err)
	}
	defer unsubscribe()

	var tick <-chan time.Time
	if poll > 0 {
		ticker := time.NewTicker(poll)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case recs := <-snapshots:
			if err := printSnapshot(out, format, recs, true); err != nil {
				return err
			}
		case err := <-failures:
			// The last printed block stays valid; say it may be stale.
			fmt.Fprintf(errOut, "! history unavailable, showing last known state: %v\n", err)
		case <-tick:
			svc.Refresh(ctx)
		}
	}
}

// ── clear ────────────────────────────────────────────────────────────────────

func newHistoryClearCommand(rootOpts *RootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every history record",
		Long: `Delete every history record. Asks for confirmation unless --yes is given.

Examples:
  abacus history clear
  abacus history clear --yes --backend remote --remote calc.internal:9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd, rootOpts, func(ctx context.Context, svc *service.HistoryService) error {
				confirmed := yes
				if !confirmed {
					confirmed = confirm(cmd.InOrStdin(), cmd.OutOrStdout(), "Delete all history? [y/N]: ")
				}

				err := svc.Clear(ctx, confirmed)
				switch {
				case errors.Is(err, service.ErrClearNotConfirmed):
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted, history kept.")
					return nil
				case err != nil:
					return WrapExitError(ExitFailure, "clear history", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "History cleared.")
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprint(out, prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(out)
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

// ── export ───────────────────────────────────────────────────────────────────

type exportRecord struct {
	ID         string    `json:"id" yaml:"id"`
	Expression string    `json:"expression" yaml:"expression"`
	Result     string    `json:"result" yaml:"result"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
}

type exportDocument struct {
	ExportedAt time.Time      `json:"exported_at" yaml:"exported_at"`
	Count      int            `json:"count" yaml:"count"`
	Records    []exportRecord `json:"records" yaml:"records"`
}

var exportFormats = []string{"json", "yaml"}

func newHistoryExportCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the history as JSON or YAML",
		Long: `Write the whole history, newest first, as a JSON or YAML document.

Examples:
  abacus history export --format yaml
  abacus history export --format json --out history.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "json" && format != "yaml" {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid export format %q: must be one of %v", format, exportFormats))
			}
			return withHistory(cmd, rootOpts, func(ctx context.Context, svc *service.HistoryService) error {
				recs, err := svc.List(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "read history", err)
				}

				w := cmd.OutOrStdout()
				if output != "" && output != "-" {
					f, err := os.Create(output)
					if err != nil {
						return WrapExitError(ExitCommandError, "create "+output, err)
					}
					defer f.Close()
					w = f
				}
				return writeExport(w, format, recs, time.Now().UTC())
			})
		},
	}

	// Shadows the global --format: export has its own set of formats.
	cmd.Flags().StringVar(&format, "format", "json", "document format (json|yaml)")
	cmd.Flags().StringVarP(&output, "out", "o", "", "write to file instead of stdout")
	return cmd
}

func writeExport(w io.Writer, format string, recs []store.Record, at time.Time) error {
	doc := exportDocument{ExportedAt: at, Count: len(recs), Records: make([]exportRecord, len(recs))}
	for i, r := range recs {
		doc.Records[i] = exportRecord{
			ID:         r.ID,
			Expression: r.Expression,
			Result:     r.Result,
			CreatedAt:  r.CreatedAt.UTC(),
		}
	}

	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return WrapExitError(ExitFailure, "encode yaml", err)
		}
		return enc.Close()
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return WrapExitError(ExitFailure, "encode json", err)
	}
	return nil
}
