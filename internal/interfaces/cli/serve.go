package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/turtacn/MetaNet-Generalizer/internal/config"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/monitoring/logging"
	httpserver "github.com/turtacn/MetaNet-Generalizer/internal/interfaces/http"
	"github.com/turtacn/MetaNet-Generalizer/internal/interfaces/http/handlers"
	"github.com/turtacn/MetaNet-Generalizer/internal/interfaces/http/middleware"
)

func newServeCmd() *cobra.Command {
	var (
		ontologyPath string
		port         int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the generalization REST API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			cfg := *cliCtx.Config
			if port > 0 {
				cfg.Server.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, &cfg, cliCtx.ConfigPath, ontologyPath, cliCtx.Logger)
		},
	}

	cmd.Flags().StringVar(&ontologyPath, "ontology", "", "OBO ontology file (default: engine.ontology_path)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (default: server.port)")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, configPath, ontologyPath string, logger logging.Logger) error {
	st, err := NewStack(ctx, cfg, logger, StackOptions{
		OntologyPath:   ontologyPath,
		WithService:    true,
		RuntimeMetrics: true,
		WithAuth:       true,
	})
	if err != nil {
		return err
	}
	defer st.Close()

	if configPath != "" {
		watchConfig(configPath, logger)
	}

	routerCfg := httpserver.RouterConfig{
		Server:                cfg.Server,
		GeneralizationHandler: handlers.NewGeneralizationHandler(st.Service, cfg.Server.MaxBodySize, logger),
		HealthHandler:         handlers.NewHealthHandler(Version, st.Checkers...),
		Logger:                logger,
		Metrics:               st.Metrics,
		MetricsCollector:      st.Collector,
	}
	if st.Auth != nil {
		routerCfg.Auth = middleware.Auth(st.Auth, middleware.AuthConfig{RequiredRole: cfg.Auth.RequiredRole}, logger)
	}
	router := httpserver.NewRouter(routerCfg)
	srv := httpserver.NewServer(cfg.Server, router, logger)

	logger.Info("Starting API server",
		logging.String("version", Version),
		logging.String("addr", srv.Addr()),
		logging.String("ontology_version", st.OntologyHeader.DataVersion),
		logging.Bool("auth", st.Auth != nil))

	stopHealth := startGRPCHealth(cfg.Server, st.Checkers, logger)
	defer stopHealth()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	if err := srv.Shutdown(context.Background()); err != nil {
		return err
	}
	logger.Info("API server stopped")
	return nil
}

// watchConfig logs configuration edits. Adapters are built once, so changes
// only take effect after a restart.
func watchConfig(path string, logger logging.Logger) {
	err := config.Watch(path, func(*config.Config) {
		logger.Warn("Configuration file changed, restart to apply", logging.String("path", path))
	}, func(err error) {
		logger.Error("Configuration file changed to an invalid revision", logging.String("path", path), logging.Err(err))
	})
	if err != nil {
		logger.Warn("Configuration watch unavailable", logging.String("path", path), logging.Err(err))
	}
}
