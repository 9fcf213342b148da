package cli

import (
	"context"

	"github.com/turtacn/MetaNet-Generalizer/internal/config"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/monitoring/logging"
	grpchealth "github.com/turtacn/MetaNet-Generalizer/internal/interfaces/grpc"
	"github.com/turtacn/MetaNet-Generalizer/internal/interfaces/http/handlers"
)

// startGRPCHealth serves grpc.health.v1 on server.grpc_health_port and
// returns its stop function. It is a no-op when the port is zero.
func startGRPCHealth(cfg config.ServerConfig, checkers []handlers.HealthChecker, logger logging.Logger) func() {
	if cfg.GRPCHealthPort == 0 {
		return func() {}
	}
	checks := make([]grpchealth.HealthChecker, len(checkers))
	for i, c := range checkers {
		checks[i] = c
	}
	srv := grpchealth.NewServer(grpchealth.Config{
		Port:            cfg.GRPCHealthPort,
		Reflection:      cfg.Mode == "debug",
		GracefulTimeout: cfg.ShutdownTimeout,
	}, checks, logger)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("gRPC health server failed", logging.Err(err))
		}
	}()
	return func() { srv.Stop(context.Background()) }
}
