package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/BrandonDHaskell/abacus/internal/abacus/calc"
	"github.com/BrandonDHaskell/abacus/internal/abacus/service"
	"github.com/BrandonDHaskell/abacus/internal/abacus/store"
)

// NewReplCommand creates the repl command.
func NewReplCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Type keys, see the display",
		Long: `Read keypad input line by line and print the display after each line.

Keys: 0-9 . + - * / × ÷ = C. Whitespace is optional, so "12+3=" works.
Every "=" that produces a result is saved to history; failed saves are
reported as lines starting with "!".

Commands: :history lists the log, :quit exits.

Examples:
  abacus repl
  echo "5*5+2=" | abacus repl --backend memory`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepl(cmd, rootOpts)
		},
	}
}

func runRepl(cmd *cobra.Command, opts *RootOptions) error {
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

	sessions := service.NewSessionRegistry(b.Store, service.SessionConfig{
		Precision:      cfg.Precision,
		RecorderBuffer: cfg.RecorderBuffer,
	}, logger)
	defer sessions.Close()

	sess, err := sessions.Create()
	if err != nil {
		return WrapExitError(ExitFailure, "start session", err)
	}

	r := &repl{
		in:          cmd.InOrStdin(),
		out:         cmd.OutOrStdout(),
		session:     sess,
		history:     service.NewHistoryService(b.Store, logger),
		interactive: isTerminal(cmd.InOrStdin()),
	}
	return r.run(ctx)
}

type repl struct {
	in          io.Reader
	out         io.Writer
	session     *service.Session
	history     *service.HistoryService
	interactive bool
}

func (r *repl) run(ctx context.Context) error {
	if r.interactive {
		fmt.Fprintln(r.out, "abacus: type keys such as 12+3=, :history or :quit")
	}

	scanner := bufio.NewScanner(r.in)
	for {
		if r.interactive {
			fmt.Fprint(r.out, "> ")
		}
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == ":quit" || line == ":q" || line == ":exit":
			return r.session.Flush(ctx)
		case line == ":history":
			r.printHistory(ctx)
		case strings.HasPrefix(line, ":"):
			fmt.Fprintf(r.out, "unknown command %s\n", line)
		default:
			r.press(ctx, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return WrapExitError(ExitFailure, "read input", err)
	}
	return r.session.Flush(ctx)
}

func (r *repl) press(ctx context.Context, line string) {
	res := r.session.Press(calc.ParseKeys(line))

	// Wait for the saves so their failures print next to the line that
	// caused them.
	if len(res.Commits) > 0 {
		_ = r.session.Flush(ctx)
	}

	display := res.Snapshot.Display
	if res.Snapshot.Pending != calc.OpNone {
		display += " " + res.Snapshot.Pending.String()
	}
	fmt.Fprintln(r.out, display)

	for _, n := range r.session.DrainNotices() {
		fmt.Fprintf(r.out, "! %s\n", n.Message())
	}
}

func (r *repl) printHistory(ctx context.Context) {
	recs, err := r.history.List(ctx)
	if err != nil {
		fmt.Fprintf(r.out, "! history unavailable: %v\n", err)
		return
	}
	if len(recs) == 0 {
		fmt.Fprintln(r.out, "(no history)")
		return
	}
	for _, rec := range recs {
		fmt.Fprintln(r.out, formatEntry(rec))
	}
}

func formatEntry(r store.Record) string {
	return r.Expression + " = " + r.Result
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
