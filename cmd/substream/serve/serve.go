// Package servecmder provides the serve command, which runs the watch API
// server with its storage, event stream and metrics.
package servecmder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/substream/api"
	apimcp "github.com/papercomputeco/substream/api/mcp"
	"github.com/papercomputeco/substream/pkg/config"
	"github.com/papercomputeco/substream/pkg/eventstream"
	"github.com/papercomputeco/substream/pkg/eventstream/kafka"
	"github.com/papercomputeco/substream/pkg/eventstream/nop"
	"github.com/papercomputeco/substream/pkg/fuel"
	"github.com/papercomputeco/substream/pkg/logger"
	"github.com/papercomputeco/substream/pkg/metrics"
	"github.com/papercomputeco/substream/pkg/storage"
	"github.com/papercomputeco/substream/pkg/storage/inmemory"
	"github.com/papercomputeco/substream/pkg/storage/postgres"
	"github.com/papercomputeco/substream/pkg/storage/sqlite"
	"github.com/papercomputeco/substream/pkg/worker"
)

type serveCommander struct {
	listen         string
	url            string
	timeout        time.Duration
	readBufferSize uint
	sqlitePath     string
	postgresDSN    string
	kafkaBrokers   []string
	kafkaTopic     string
	logJSON        bool
	logFile        string
	debug          bool

	errOut io.Writer
	logOut *os.File
	logger *slog.Logger
}

const serveLongDesc string = `Run the substream API server.

Endpoints:
  GET  /ping               Health check
  POST /v1/watches         Submit {"transaction": "0x..."} and await its status
  GET  /v1/watches         List recorded watches
  GET  /v1/watches/:id     Get one recorded watch
  GET  /metrics            Prometheus metrics
  POST /mcp                MCP tools: list_watches, get_watch,
                           await_transaction_status

Watches are stored in PostgreSQL when --postgres is set, in SQLite when
--sqlite is set, and in memory otherwise. When Kafka brokers are set, a
status event is published for every recorded watch.`

const serveShortDesc string = "Run the substream API server"

var serveFlags = []string{
	config.FlagListen,
	config.FlagURL,
	config.FlagTimeout,
	config.FlagReadBufferSize,
	config.FlagSQLite,
	config.FlagPostgres,
	config.FlagKafkaBrokers,
	config.FlagKafkaTopic,
}

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	var timeout string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, serveFlags)

			cmder.listen = v.GetString("api.listen")
			cmder.url = v.GetString("subscription.url")
			cmder.readBufferSize = v.GetUint("subscription.read_buffer_size")
			cmder.sqlitePath = v.GetString("storage.sqlite_path")
			cmder.postgresDSN = v.GetString("storage.postgres_dsn")
			cmder.kafkaBrokers = config.SplitList(v.GetStringSlice("eventstream.kafka_brokers"))
			cmder.kafkaTopic = v.GetString("eventstream.kafka_topic")
			cmder.logJSON = v.GetBool("log.json")
			cmder.timeout, err = config.ParseTimeout(v.GetString("watch.timeout"))
			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			cmder.errOut = cmd.ErrOrStderr()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return cmder.run(ctx)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagListen, &cmder.listen)
	config.AddStringFlag(cmd, config.Flags, config.FlagURL, &cmder.url)
	config.AddStringFlag(cmd, config.Flags, config.FlagTimeout, &timeout)
	config.AddUintFlag(cmd, config.Flags, config.FlagReadBufferSize, &cmder.readBufferSize)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgres, &cmder.postgresDSN)
	config.AddStringSliceFlag(cmd, config.Flags, config.FlagKafkaBrokers, &cmder.kafkaBrokers)
	config.AddStringFlag(cmd, config.Flags, config.FlagKafkaTopic, &cmder.kafkaTopic)
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also write JSON logs to this file")

	return cmd
}

func (c *serveCommander) run(ctx context.Context) error {
	var err error
	c.logger, err = c.newLogger()
	if err != nil {
		return err
	}
	if c.logOut != nil {
		defer c.logOut.Close()
	}

	driver, err := c.newStorageDriver(ctx)
	if err != nil {
		return err
	}
	defer driver.Close()

	publisher, err := c.newPublisher()
	if err != nil {
		return err
	}
	defer publisher.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector, err := metrics.New(registry)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	pool, err := worker.NewPool(&worker.Config{
		Driver:    driver,
		Publisher: publisher,
		Logger:    c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating worker pool: %w", err)
	}
	defer pool.Close()

	client := fuel.NewClient(c.url,
		fuel.WithLogger(c.logger),
		fuel.WithMetrics(collector),
		fuel.WithReadBufferSize(int(c.readBufferSize)),
	)

	mcpServer, err := apimcp.NewServer(apimcp.Config{
		Driver:       driver,
		Awaiter:      client,
		Recorder:     pool,
		WatchTimeout: c.timeout,
		Logger:       c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	server := api.NewServer(api.Config{
		ListenAddr:   c.listen,
		WatchTimeout: c.timeout,
	}, driver, c.logger,
		api.WithAwaiter(client),
		api.WithRecorder(pool),
		api.WithGatherer(registry),
		api.WithMCP(mcpServer.Handler()),
	)

	c.logger.Info("starting substream server",
		"listen", c.listen,
		"subscription_url", c.url,
		"watch_timeout", c.timeout,
	)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		c.logger.Info("received signal, shutting down")
		// Stop accepting requests before the deferred pool.Close drains.
		return server.Shutdown()
	}
}

func (c *serveCommander) newLogger() (*slog.Logger, error) {
	console := logger.New(
		logger.WithDebug(c.debug),
		logger.WithJSON(c.logJSON),
		logger.WithPretty(!c.logJSON),
		logger.WithWriter(c.errOut),
	)
	if c.logFile == "" {
		return console, nil
	}

	f, err := os.OpenFile(c.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	c.logOut = f

	file := logger.New(
		logger.WithDebug(c.debug),
		logger.WithJSON(true),
		logger.WithWriter(f),
	)
	return logger.Multi(console, file), nil
}

func (c *serveCommander) newStorageDriver(ctx context.Context) (storage.Driver, error) {
	switch {
	case c.postgresDSN != "":
		driver, err := postgres.NewDriver(ctx, c.postgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL driver: %w", err)
		}
		c.logger.Info("using PostgreSQL storage")
		return driver, nil

	case c.sqlitePath != "":
		driver, err := sqlite.NewSQLiteDriver(ctx, c.sqlitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite driver: %w", err)
		}
		c.logger.Info("using SQLite storage", "path", c.sqlitePath)
		return driver, nil

	default:
		c.logger.Info("using in-memory storage")
		return inmemory.NewDriver(), nil
	}
}

func (c *serveCommander) newPublisher() (eventstream.Publisher, error) {
	if len(c.kafkaBrokers) == 0 {
		return nop.NewPublisher(), nil
	}

	publisher, err := kafka.NewPublisher(kafka.Config{
		Brokers: c.kafkaBrokers,
		Topic:   c.kafkaTopic,
		Logger:  c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating kafka publisher: %w", err)
	}

	c.logger.Info("publishing status events to kafka",
		"brokers", c.kafkaBrokers,
		"topic", c.kafkaTopic,
	)
	return publisher, nil
}
