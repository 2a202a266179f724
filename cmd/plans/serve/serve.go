// Package servecmder provides the serve command with subcommands for running services.
package servecmder

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/plans/api"
	"github.com/papercomputeco/plans/api/mcp"
	"github.com/papercomputeco/plans/cmd/plans/components"
	apicmder "github.com/papercomputeco/plans/cmd/plans/serve/api"
	projectorcmder "github.com/papercomputeco/plans/cmd/plans/serve/projector"
	"github.com/papercomputeco/plans/pkg/config"
	"github.com/papercomputeco/plans/pkg/projector"
)

const shutdownTimeout = 10 * time.Second

type ServeCommander struct {
	flags config.FlagSet
	debug bool

	listen         string
	storageDriver  string
	sqlitePath     string
	postgresDSN    string
	broker         string
	kafkaBrokers   string
	groupID        string
	topicPrefix    string
	maxAttempts    int
	searchProvider string
	searchTarget   string
	logLevel       string
	logJSON        bool
	logFile        string
}

var serveFlags = []string{
	config.FlagListen,
	config.FlagStorageDriver,
	config.FlagSQLite,
	config.FlagPostgresDSN,
	config.FlagBroker,
	config.FlagKafkaBrokers,
	config.FlagGroupID,
	config.FlagTopicPrefix,
	config.FlagMaxAttempts,
	config.FlagSearchProvider,
	config.FlagSearchTarget,
	config.FlagLogLevel,
	config.FlagLogJSON,
	config.FlagLogFile,
}

const serveLongDesc string = `Run plans services.

Use subcommands to run individual services or all services together:
  plans serve              Run the API server and projector together
  plans serve api          Run just the API server
  plans serve projector    Run just the projector

Together the services can share the in-memory broker and search index, which
is enough for local development. Separate processes need Kafka.`

const serveShortDesc string = "Run plans services"

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{flags: config.PlansFlags}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			cfg, err := components.LoadConfig(cmd, serveFlags)
			if err != nil {
				return err
			}
			return cmder.run(cmd.Context(), cfg)
		},
	}

	config.AddStringFlag(cmd, cmder.flags, config.FlagListen, &cmder.listen)
	config.AddStringFlag(cmd, cmder.flags, config.FlagStorageDriver, &cmder.storageDriver)
	config.AddStringFlag(cmd, cmder.flags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, cmder.flags, config.FlagPostgresDSN, &cmder.postgresDSN)
	config.AddStringFlag(cmd, cmder.flags, config.FlagBroker, &cmder.broker)
	config.AddStringFlag(cmd, cmder.flags, config.FlagKafkaBrokers, &cmder.kafkaBrokers)
	config.AddStringFlag(cmd, cmder.flags, config.FlagGroupID, &cmder.groupID)
	config.AddStringFlag(cmd, cmder.flags, config.FlagTopicPrefix, &cmder.topicPrefix)
	config.AddIntFlag(cmd, cmder.flags, config.FlagMaxAttempts, &cmder.maxAttempts)
	config.AddStringFlag(cmd, cmder.flags, config.FlagSearchProvider, &cmder.searchProvider)
	config.AddStringFlag(cmd, cmder.flags, config.FlagSearchTarget, &cmder.searchTarget)
	config.AddStringFlag(cmd, cmder.flags, config.FlagLogLevel, &cmder.logLevel)
	config.AddBoolFlag(cmd, cmder.flags, config.FlagLogJSON, &cmder.logJSON)
	config.AddStringFlag(cmd, cmder.flags, config.FlagLogFile, &cmder.logFile)

	cmd.AddCommand(apicmder.NewAPICmd())
	cmd.AddCommand(projectorcmder.NewProjectorCmd())

	return cmd
}

func (c *ServeCommander) run(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger, closeLog, err := components.NewLogger(cfg, c.debug, "plans")
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	reg, m := components.NewRegistry()

	// Create shared store, index and stream
	store, err := components.NewStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	index, err := components.NewIndex(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer index.Close()

	stream, err := components.NewStream(cfg, m, logger, true, true)
	if err != nil {
		return err
	}
	defer stream.Close()

	svc, err := components.NewPlanService(store, stream, m, logger)
	if err != nil {
		return err
	}

	proj, err := projector.New(&projector.Config{Index: index, Metrics: m, Logger: logger})
	if err != nil {
		return err
	}

	verifier, err := components.NewVerifier(cfg)
	if err != nil {
		return err
	}

	mcpServer, err := mcp.NewServer(mcp.Config{Plans: svc, Index: index, Logger: logger})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	server, err := api.NewServer(api.Config{
		ListenAddr: cfg.API.Listen,
		Index:      index,
		Verifier:   verifier,
		MCP:        mcpServer,
		Gatherer:   reg,
	}, svc, logger)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	ctx, stop := components.SignalContext(ctx)
	defer stop()

	// Channel to capture errors from goroutines
	errChan := make(chan error, 2)

	go func() {
		if err := proj.Run(ctx, stream.Subscriber, stream.Topics); err != nil {
			errChan <- fmt.Errorf("projector error: %w", err)
		}
	}()

	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	werr := components.Wait(ctx, logger, errChan)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("API server shutdown failed", "error", err)
	}
	return werr
}
