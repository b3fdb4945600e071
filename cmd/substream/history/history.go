// Package historycmder provides the history command, which lists watches
// recorded in the local SQLite history.
package historycmder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/substream/cmd/substream/sqlitepath"
	"github.com/papercomputeco/substream/pkg/cliui"
	"github.com/papercomputeco/substream/pkg/config"
	"github.com/papercomputeco/substream/pkg/storage"
	"github.com/papercomputeco/substream/pkg/storage/sqlite"
	"github.com/papercomputeco/substream/pkg/utils"
)

type historyCommander struct {
	sqlitePath string
	configDir  string
	limit      int
	asJSON     bool
}

const historyLongDesc string = `List recorded transaction watches, most recent first.

The history is read from the SQLite database given by --sqlite, the
storage.sqlite_path config value, $SUBSTREAM_SQLITE, or substream.db in
the .substream/ directory, in that order.

Examples:
  substream history
  substream history --limit 5
  substream history --json`

const historyShortDesc string = "List recorded watches"

func NewHistoryCmd() *cobra.Command {
	cmder := &historyCommander{}

	cmd := &cobra.Command{
		Use:   "history",
		Short: historyShortDesc,
		Long:  historyLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, []string{config.FlagSQLite})

			cmder.sqlitePath = v.GetString("storage.sqlite_path")
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context(), cmd.OutOrStdout())
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.sqlitePath)
	cmd.Flags().IntVarP(&cmder.limit, "limit", "n", 20, "Maximum number of watches to show (0 for all)")
	cmd.Flags().BoolVar(&cmder.asJSON, "json", false, "Print records as JSON")

	return cmd
}

func (c *historyCommander) run(ctx context.Context, w io.Writer) error {
	path, err := sqlitepath.ResolveSQLitePath(c.sqlitePath, c.configDir)
	if err != nil {
		return err
	}

	records, err := load(ctx, path)
	if err != nil {
		return err
	}

	if c.limit > 0 && len(records) > c.limit {
		records = records[:c.limit]
	}

	if c.asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if records == nil {
			records = []*storage.Record{}
		}
		return enc.Encode(records)
	}

	if len(records) == 0 {
		fmt.Fprintf(w, "  %s No watches recorded yet.\n", cliui.DimStyle.Render("●"))
		return nil
	}

	for _, rec := range records {
		printRecord(w, rec)
	}
	return nil
}

// load returns every recorded watch. A missing database holds none.
func load(ctx context.Context, path string) ([]*storage.Record, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	driver, err := sqlite.NewSQLiteDriver(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("opening history: %w", err)
	}
	defer driver.Close()

	records, err := driver.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing watches: %w", err)
	}
	return records, nil
}

func printRecord(w io.Writer, rec *storage.Record) {
	mark := cliui.SuccessMark
	if rec.Result != storage.ResultSuccess {
		mark = cliui.FailMark
	}

	status := rec.Status
	if status == "" {
		status = rec.Result
	}

	fmt.Fprintf(w, "  %s %s %s %s\n",
		mark,
		cliui.DimStyle.Render(rec.CompletedAt.Local().Format("2006-01-02 15:04:05")),
		cliui.ValueStyle.Render(status),
		cliui.StepStyle.Render(fmt.Sprintf("(%s)", cliui.FormatDuration(rec.Duration()))),
	)
	cliui.KeyValue(w, "id", rec.ID.String())
	cliui.KeyValue(w, "tx", utils.Truncate(rec.Transaction, 42))
	cliui.KeyValue(w, "reason", utils.Truncate(rec.Reason, 72))
}
