// Package subscribecmder provides the subscribe command, which streams the
// events of an arbitrary GraphQL subscription as JSON lines.
package subscribecmder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/substream/pkg/config"
	"github.com/papercomputeco/substream/pkg/logger"
	"github.com/papercomputeco/substream/pkg/subscription"
)

type subscribeCommander struct {
	url            string
	queryFile      string
	variables      string
	rawPath        string
	readBufferSize uint
	debug          bool

	out    io.Writer
	logger *slog.Logger
}

const subscribeLongDesc string = `Open a GraphQL subscription and print every event.

The subscription document is read from --query-file and posted with the
JSON object given in --variables. Each event's data is printed as one JSON
line until the server ends the stream or the command is interrupted.

With --raw, the undecoded byte stream is also written to the given file.

Examples:
  substream subscribe --query-file status.graphql --variables '{"id":"0x01"}'
  substream subscribe --query-file blocks.graphql --raw stream.log`

const subscribeShortDesc string = "Stream a subscription as JSON lines"

var subscribeFlags = []string{
	config.FlagURL,
	config.FlagReadBufferSize,
}

func NewSubscribeCmd() *cobra.Command {
	cmder := &subscribeCommander{}

	cmd := &cobra.Command{
		Use:   "subscribe",
		Short: subscribeShortDesc,
		Long:  subscribeLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, subscribeFlags)

			cmder.url = v.GetString("subscription.url")
			cmder.readBufferSize = v.GetUint("subscription.read_buffer_size")
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			cmder.out = cmd.OutOrStdout()
			cmder.logger = logger.New(
				logger.WithDebug(cmder.debug),
				logger.WithPretty(true),
				logger.WithWriter(cmd.ErrOrStderr()),
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return cmder.run(ctx)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagURL, &cmder.url)
	config.AddUintFlag(cmd, config.Flags, config.FlagReadBufferSize, &cmder.readBufferSize)
	cmd.Flags().StringVarP(&cmder.queryFile, "query-file", "q", "", "File holding the subscription document")
	cmd.Flags().StringVar(&cmder.variables, "variables", "", "Operation variables as a JSON object")
	cmd.Flags().StringVar(&cmder.rawPath, "raw", "", "Also write the raw stream to this file")
	_ = cmd.MarkFlagRequired("query-file")

	return cmd
}

func (c *subscribeCommander) run(ctx context.Context) error {
	query, err := os.ReadFile(c.queryFile)
	if err != nil {
		return fmt.Errorf("reading query file: %w", err)
	}

	var variables map[string]any
	if c.variables != "" {
		if err := json.Unmarshal([]byte(c.variables), &variables); err != nil {
			return fmt.Errorf("parsing --variables: %w", err)
		}
	}

	cfg := &subscription.Config{
		URL:            c.url,
		Query:          string(query),
		Variables:      variables,
		Logger:         c.logger,
		ReadBufferSize: int(c.readBufferSize),
	}

	if c.rawPath != "" {
		raw, err := os.Create(c.rawPath)
		if err != nil {
			return fmt.Errorf("creating raw output: %w", err)
		}
		defer raw.Close()
		cfg.RawWriter = raw
	}

	src, err := subscription.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer src.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = src.Close()
	})
	defer stop()

	count := 0
	for {
		ev, err := src.Next()
		if errors.Is(err, io.EOF) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			c.logger.Debug("subscription ended", "events", count)
			return nil
		}
		if err != nil {
			return err
		}

		count++
		if _, err := fmt.Fprintf(c.out, "%s\n", compact(ev.Data)); err != nil {
			return err
		}
	}
}

// compact renders data on one line. The payload is already valid JSON.
func compact(data json.RawMessage) []byte {
	if len(data) == 0 {
		return []byte("null")
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return data
	}
	return buf.Bytes()
}
