// Package watchcmder provides the watch command, which submits an encoded
// transaction and waits for its terminal status.
package watchcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/substream/pkg/cliui"
	"github.com/papercomputeco/substream/pkg/config"
	"github.com/papercomputeco/substream/pkg/fuel"
	"github.com/papercomputeco/substream/pkg/logger"
	"github.com/papercomputeco/substream/pkg/storage/sqlite"
	"github.com/papercomputeco/substream/pkg/utils"
	"github.com/papercomputeco/substream/pkg/watcher"
	"github.com/papercomputeco/substream/pkg/worker"
)

type watchCommander struct {
	url            string
	timeout        time.Duration
	sqlitePath     string
	readBufferSize uint
	debug          bool

	out    io.Writer
	errOut io.Writer
	logger *slog.Logger
}

const watchLongDesc string = `Submit an encoded transaction and wait for its status.

The transaction is sent through the submitAndAwaitStatus subscription.
Intermediate statuses are printed to stderr as they arrive, and the ones
seen are summarised with the result. The command exits once
the node reports SuccessStatus (exit 0) or FailureStatus (exit 1), the
stream ends, or the timeout expires.

When a SQLite path is configured, the result is recorded in the watch
history (see "substream history").

Examples:
  substream watch 0x02000000...
  substream watch --url https://testnet.fuel.network/v1/graphql-sub 0x02...
  substream watch --timeout 30s --sqlite ./watches.db 0x02...`

const watchShortDesc string = "Submit a transaction and await its status"

var watchFlags = []string{
	config.FlagURL,
	config.FlagTimeout,
	config.FlagSQLite,
	config.FlagReadBufferSize,
}

func NewWatchCmd() *cobra.Command {
	cmder := &watchCommander{}

	var (
		timeout    string
		sqlitePath string
	)

	cmd := &cobra.Command{
		Use:   "watch <encoded-tx>",
		Short: watchShortDesc,
		Long:  watchLongDesc,
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, watchFlags)

			cmder.url = v.GetString("subscription.url")
			cmder.readBufferSize = v.GetUint("subscription.read_buffer_size")
			cmder.sqlitePath = v.GetString("storage.sqlite_path")
			cmder.timeout, err = config.ParseTimeout(v.GetString("watch.timeout"))
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			cmder.out = cmd.OutOrStdout()
			cmder.errOut = cmd.ErrOrStderr()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return cmder.run(ctx, args[0])
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagURL, &cmder.url)
	config.AddStringFlag(cmd, config.Flags, config.FlagTimeout, &timeout)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &sqlitePath)
	config.AddUintFlag(cmd, config.Flags, config.FlagReadBufferSize, &cmder.readBufferSize)

	return cmd
}

func (c *watchCommander) run(ctx context.Context, encodedTx string) error {
	c.logger = logger.New(
		logger.WithDebug(c.debug),
		logger.WithPretty(true),
		logger.WithWriter(c.errOut),
	)

	tx, err := fuel.NormalizeTransaction(encodedTx)
	if err != nil {
		return err
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	// Spinner frames would interleave with debug logs on the same writer.
	progress := c.errOut
	if c.debug {
		progress = cliui.Plain(progress)
	}

	c.logger.Debug("submitting transaction",
		"url", c.url,
		"transaction", utils.Truncate(tx, 18),
		"timeout", c.timeout,
	)

	var outcome *watcher.Outcome
	started := time.Now().UTC()
	watchErr := cliui.StepWithUpdates(progress, "Awaiting transaction status", func(update func(string)) error {
		client := fuel.NewClient(c.url,
			fuel.WithLogger(c.logger),
			fuel.WithReadBufferSize(int(c.readBufferSize)),
			fuel.WithStatusHook(update),
		)

		var err error
		outcome, err = client.AwaitTransactionStatus(ctx, tx)
		return err
	})

	result := worker.Result{
		URL:         c.url,
		Transaction: tx,
		StartedAt:   started,
		CompletedAt: time.Now().UTC(),
		Outcome:     outcome,
		Err:         watchErr,
	}
	c.report(result)

	if err := c.record(result); err != nil {
		c.logger.Warn("recording watch", "error", err)
	}

	return describe(watchErr, c.timeout)
}

// report prints the settled status.
func (c *watchCommander) report(r worker.Result) {
	fmt.Fprintln(c.out)

	var failure *watcher.FailureError
	switch {
	case r.Outcome != nil:
		cliui.KeyValue(c.out, "status", r.Outcome.Kind)
		if status, err := fuel.DecodeStatus(r.Outcome.Payload); err == nil {
			if status.Block != nil {
				cliui.KeyValue(c.out, "block", status.Block.ID)
			}
			cliui.KeyValue(c.out, "time", status.Time)
			cliui.KeyValue(c.out, "fee", status.TotalFee)
			cliui.KeyValue(c.out, "gas", status.TotalGas)
		}
		cliui.KeyValue(c.out, "observed", strings.Join(r.Outcome.Observed, ", "))
		cliui.KeyValue(c.out, "elapsed", cliui.FormatDuration(r.Outcome.Elapsed))

	case errors.As(r.Err, &failure):
		cliui.KeyValue(c.out, "status", failure.Kind)
		cliui.KeyValue(c.out, "reason", failure.Reason)

	default:
		return
	}

	fmt.Fprintln(c.out)
}

// record stores the result in the SQLite history when one is configured.
func (c *watchCommander) record(r worker.Result) error {
	if c.sqlitePath == "" {
		return nil
	}

	// The watch context may already be done.
	ctx := context.Background()

	driver, err := sqlite.NewSQLiteDriver(ctx, c.sqlitePath)
	if err != nil {
		return fmt.Errorf("opening history: %w", err)
	}
	defer driver.Close()

	rec := worker.NewRecord(r)
	if _, err := driver.Put(ctx, rec); err != nil {
		return fmt.Errorf("storing watch: %w", err)
	}

	c.logger.Debug("watch recorded", "path", c.sqlitePath, "id", rec.ID.String())
	return nil
}

// describe turns the watch error into the message the CLI exits with.
func describe(err error, timeout time.Duration) error {
	var failure *watcher.FailureError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &failure):
		return fmt.Errorf("transaction failed: %s", failure.Reason)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("no terminal status within %s", timeout)
	case errors.Is(err, context.Canceled):
		return errors.New("interrupted before a terminal status")
	default:
		return err
	}
}
