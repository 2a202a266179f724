// Package projectorcmder provides the cobra command that runs the search
// index projector on its own.
package projectorcmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/plans/cmd/plans/components"
	"github.com/papercomputeco/plans/pkg/config"
	"github.com/papercomputeco/plans/pkg/projector"
)

type projectorCommander struct {
	flags config.FlagSet
	debug bool

	metricsListen  string
	broker         string
	kafkaBrokers   string
	groupID        string
	topicPrefix    string
	maxAttempts    int
	searchProvider string
	searchTarget   string
}

var projectorFlags = []string{
	config.FlagBroker,
	config.FlagKafkaBrokers,
	config.FlagGroupID,
	config.FlagTopicPrefix,
	config.FlagMaxAttempts,
	config.FlagSearchProvider,
	config.FlagSearchTarget,
}

const projectorLongDesc string = `Run the plans search projector.

The projector consumes change events from Kafka and applies them to the
search index. Several projectors may share one consumer group; events for the
same plan are delivered to one of them in order.`

const projectorShortDesc string = "Run the plans search projector"

func NewProjectorCmd() *cobra.Command {
	cmder := &projectorCommander{flags: config.PlansFlags}

	cmd := &cobra.Command{
		Use:   "projector",
		Short: projectorShortDesc,
		Long:  projectorLongDesc,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			cfg, err := components.LoadConfig(cmd, projectorFlags)
			if err != nil {
				return err
			}
			return cmder.run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&cmder.metricsListen, "metrics-listen", "", "Address to serve /metrics on (disabled when empty)")
	config.AddStringFlag(cmd, cmder.flags, config.FlagBroker, &cmder.broker)
	config.AddStringFlag(cmd, cmder.flags, config.FlagKafkaBrokers, &cmder.kafkaBrokers)
	config.AddStringFlag(cmd, cmder.flags, config.FlagGroupID, &cmder.groupID)
	config.AddStringFlag(cmd, cmder.flags, config.FlagTopicPrefix, &cmder.topicPrefix)
	config.AddIntFlag(cmd, cmder.flags, config.FlagMaxAttempts, &cmder.maxAttempts)
	config.AddStringFlag(cmd, cmder.flags, config.FlagSearchProvider, &cmder.searchProvider)
	config.AddStringFlag(cmd, cmder.flags, config.FlagSearchTarget, &cmder.searchTarget)

	return cmd
}

func (c *projectorCommander) run(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger, closeLog, err := components.NewLogger(cfg, c.debug, "projector")
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	reg, m := components.NewRegistry()

	stream, err := components.NewStream(cfg, m, logger, false, true)
	if err != nil {
		return err
	}
	defer stream.Close()

	index, err := components.NewIndex(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer index.Close()

	proj, err := projector.New(&projector.Config{Index: index, Metrics: m, Logger: logger})
	if err != nil {
		return err
	}

	ctx, stop := components.SignalContext(ctx)
	defer stop()

	errChan := make(chan error, 2)
	if c.metricsListen != "" {
		app := components.NewMetricsApp(reg)
		defer app.Shutdown()
		go func() {
			logger.Info("serving metrics", "listen", c.metricsListen)
			if err := app.Listen(c.metricsListen); err != nil {
				errChan <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	go func() {
		if err := proj.Run(ctx, stream.Subscriber, stream.Topics); err != nil {
			errChan <- fmt.Errorf("projector error: %w", err)
		}
	}()

	return components.Wait(ctx, logger, errChan)
}
