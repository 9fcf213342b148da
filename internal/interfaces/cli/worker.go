package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/turtacn/MetaNet-Generalizer/internal/application/generalize"
	"github.com/turtacn/MetaNet-Generalizer/internal/config"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/monitoring/logging"
	httpserver "github.com/turtacn/MetaNet-Generalizer/internal/interfaces/http"
	"github.com/turtacn/MetaNet-Generalizer/internal/interfaces/http/handlers"
	"github.com/turtacn/MetaNet-Generalizer/pkg/errors"
)

const defaultWorkerHealthPort = 8081

func newWorkerCmd() *cobra.Command {
	var (
		ontologyPath string
		healthPort   int
	)

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume generalization requests from Kafka",
		Long: "worker reads generalization requests from kafka.request_topic, runs them\n" +
			"with persistence enabled and dead-letters requests that keep failing.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWorker(ctx, cliCtx.Config, ontologyPath, healthPort, cliCtx.Logger)
		},
	}

	cmd.Flags().StringVar(&ontologyPath, "ontology", "", "OBO ontology file (default: engine.ontology_path)")
	cmd.Flags().IntVar(&healthPort, "health-port", defaultWorkerHealthPort, "port of the health and metrics endpoints, 0 disables them")
	return cmd
}

func runWorker(ctx context.Context, cfg *config.Config, ontologyPath string, healthPort int, logger logging.Logger) error {
	if !cfg.Kafka.Enabled {
		return errors.New(errors.ErrCodeFeatureDisabled, "worker requires kafka.enabled")
	}

	st, err := NewStack(ctx, cfg, logger, StackOptions{
		OntologyPath:   ontologyPath,
		WithService:    true,
		RuntimeMetrics: true,
	})
	if err != nil {
		return err
	}
	defer st.Close()

	consumer, err := kafka.NewConsumer(kafka.ConsumerConfigFrom(cfg.Kafka), st.Producer, logger)
	if err != nil {
		return err
	}
	defer consumer.Close()
	consumer.Subscribe(cfg.Kafka.RequestTopic, NewRequestHandler(st.Service, logger))

	if healthPort > 0 {
		health := httpserver.NewServer(config.ServerConfig{Port: healthPort, ShutdownTimeout: cfg.Server.ShutdownTimeout},
			httpserver.NewRouter(httpserver.RouterConfig{
				HealthHandler:    handlers.NewHealthHandler(Version, st.Checkers...),
				Logger:           logger,
				MetricsCollector: st.Collector,
			}), logger)
		go func() {
			if err := health.Start(); err != nil {
				logger.Error("Health server failed", logging.Err(err))
			}
		}()
		defer func() {
			if err := health.Shutdown(context.Background()); err != nil {
				logger.Warn("Health server shutdown failed", logging.Err(err))
			}
		}()
	}

	stopHealth := startGRPCHealth(config.ServerConfig{
		GRPCHealthPort:  cfg.Server.GRPCHealthPort,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, st.Checkers, logger)
	defer stopHealth()

	if err := consumer.Start(ctx); err != nil {
		return err
	}
	logger.Info("Worker started",
		logging.String("topic", cfg.Kafka.RequestTopic),
		logging.String("group", cfg.Kafka.GroupID),
		logging.String("dead_letter_topic", cfg.Kafka.DeadLetterTopic))

	<-ctx.Done()
	logger.Info("Worker stopping")
	return nil
}

// NewRequestHandler runs one generalization per request message. Malformed
// requests fail with a permanent error and go straight to the dead letter
// topic.
func NewRequestHandler(svc generalize.Service, logger logging.Logger) kafka.MessageHandler {
	return func(ctx context.Context, msg *kafka.Message) error {
		req, net, err := kafka.DecodeRequest(msg.Value)
		if err != nil {
			return err
		}
		out, err := svc.Generalize(ctx, &generalize.GeneralizeInput{Network: net, Persist: true})
		if err != nil {
			return fmt.Errorf("request %s: %w", req.RequestID, err)
		}
		logger.Info("Request processed",
			logging.String("request_id", req.RequestID),
			logging.String("run_id", out.Run.ID),
			logging.String("source", string(out.Run.Source)),
			logging.Int64("offset", msg.Offset))
		return nil
	}
}
