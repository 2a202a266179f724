// Package apicmder provides the plans API server cobra command.
package apicmder

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/plans/api"
	"github.com/papercomputeco/plans/api/mcp"
	"github.com/papercomputeco/plans/cmd/plans/components"
	"github.com/papercomputeco/plans/pkg/config"
)

const shutdownTimeout = 10 * time.Second

type apiCommander struct {
	flags config.FlagSet
	debug bool

	listen         string
	storageDriver  string
	sqlitePath     string
	postgresDSN    string
	broker         string
	kafkaBrokers   string
	topicPrefix    string
	searchProvider string
	searchTarget   string
}

var apiFlags = []string{
	config.FlagListen,
	config.FlagStorageDriver,
	config.FlagSQLite,
	config.FlagPostgresDSN,
	config.FlagBroker,
	config.FlagKafkaBrokers,
	config.FlagTopicPrefix,
	config.FlagSearchProvider,
	config.FlagSearchTarget,
}

const apiLongDesc string = `Run the plans API server.

The server stores plan documents, serves them with ETags and publishes a
change event after every committed write. Without a Kafka broker the events
are dropped; run "plans serve" to keep the projector in the same process.`

const apiShortDesc string = "Run the plans API server"

func NewAPICmd() *cobra.Command {
	cmder := &apiCommander{flags: config.PlansFlags}

	cmd := &cobra.Command{
		Use:   "api",
		Short: apiShortDesc,
		Long:  apiLongDesc,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			cfg, err := components.LoadConfig(cmd, apiFlags)
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
	config.AddStringFlag(cmd, cmder.flags, config.FlagTopicPrefix, &cmder.topicPrefix)
	config.AddStringFlag(cmd, cmder.flags, config.FlagSearchProvider, &cmder.searchProvider)
	config.AddStringFlag(cmd, cmder.flags, config.FlagSearchTarget, &cmder.searchTarget)

	return cmd
}

func (c *apiCommander) run(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger, closeLog, err := components.NewLogger(cfg, c.debug, "api")
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	reg, m := components.NewRegistry()

	store, err := components.NewStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	// Search reads go to the index the projector writes.
	index, err := components.NewIndex(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer index.Close()

	stream, err := components.NewStream(cfg, m, logger, true, false)
	if err != nil {
		return err
	}
	defer stream.Close()

	svc, err := components.NewPlanService(store, stream, m, logger)
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

	errChan := make(chan error, 1)
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
