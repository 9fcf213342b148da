// Package grpc serves the standard gRPC health protocol
// (grpc.health.v1.Health) from the same dependency checks as /readyz, for
// orchestrators that check health over gRPC.
package grpc

import (
	"context"
	"fmt"
	"net"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/monitoring/logging"
)

const (
	defaultPollInterval    = 10 * time.Second
	defaultGracefulTimeout = 10 * time.Second
	checkTimeout           = 5 * time.Second
)

var defaultKeepaliveParams = keepalive.ServerParameters{
	MaxConnectionIdle:     15 * time.Minute,
	MaxConnectionAge:      30 * time.Minute,
	MaxConnectionAgeGrace: 5 * time.Second,
	Time:                  5 * time.Minute,
	Timeout:               1 * time.Second,
}

var defaultKeepalivePolicy = keepalive.EnforcementPolicy{
	MinTime:             5 * time.Second,
	PermitWithoutStream: true,
}

// HealthChecker is one dependency check. Each checker is also published as
// its own health service name.
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) error
}

// Config configures the server.
type Config struct {
	Port int
	// PollInterval is how often the checkers are re-run.
	PollInterval time.Duration
	// Reflection registers the reflection service.
	Reflection      bool
	GracefulTimeout time.Duration
}

// Server publishes SERVING for the overall service ("") while every checker
// passes and NOT_SERVING otherwise.
type Server struct {
	cfg          Config
	grpcServer   *grpc.Server
	healthServer *health.Server
	checkers     []HealthChecker
	logger       logging.Logger

	mu       sync.Mutex
	listener net.Listener
	stop     chan struct{}
	stopOnce sync.Once
}

func NewServer(cfg Config, checkers []HealthChecker, logger logging.Logger) *Server {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = defaultGracefulTimeout
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	logger = logger.Named("grpc")

	gs := grpc.NewServer(
		grpc.KeepaliveParams(defaultKeepaliveParams),
		grpc.KeepaliveEnforcementPolicy(defaultKeepalivePolicy),
		grpc.ChainUnaryInterceptor(recoveryUnaryInterceptor(logger), loggingUnaryInterceptor(logger)),
		grpc.ChainStreamInterceptor(recoveryStreamInterceptor(logger)),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	if cfg.Reflection {
		reflection.Register(gs)
	}

	return &Server{
		cfg:          cfg,
		grpcServer:   gs,
		healthServer: hs,
		checkers:     checkers,
		logger:       logger,
		stop:         make(chan struct{}),
	}
}

// Addr returns the bound address once serving, else the configured port.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return fmt.Sprintf(":%d", s.cfg.Port)
}

// Start listens on the configured port and serves until Stop.
func (s *Server) Start() error {
	l, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	return s.Serve(l)
}

// Serve runs the checkers once, then serves on l while re-running them every
// PollInterval.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()

	s.Refresh(context.Background())
	go s.pollLoop()

	s.logger.Info("gRPC health server listening", logging.String("addr", l.Addr().String()))
	if err := s.grpcServer.Serve(l); err != nil && err != grpc.ErrServerStopped {
		return err
	}
	return nil
}

func (s *Server) pollLoop() {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.Refresh(context.Background())
		}
	}
}

// Refresh runs every checker and updates the published statuses.
func (s *Server) Refresh(ctx context.Context) {
	overall := healthpb.HealthCheckResponse_SERVING
	for _, c := range s.checkers {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := c.Check(cctx)
		cancel()

		st := healthpb.HealthCheckResponse_SERVING
		if err != nil {
			st = healthpb.HealthCheckResponse_NOT_SERVING
			overall = st
			s.logger.Warn("Dependency unhealthy", logging.String("component", c.Name()), logging.Err(err))
		}
		s.healthServer.SetServingStatus(c.Name(), st)
	}
	s.healthServer.SetServingStatus("", overall)
}

// Stop reports NOT_SERVING, then drains in-flight calls until ctx or the
// graceful timeout expires.
func (s *Server) Stop(ctx context.Context) {
	s.stopOnce.Do(func() { close(s.stop) })
	s.healthServer.Shutdown()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.GracefulTimeout)
	defer cancel()
	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
		s.logger.Info("gRPC health server stopped")
	case <-ctx.Done():
		s.logger.Warn("gRPC graceful stop timed out, forcing stop")
		s.grpcServer.Stop()
	}
}

func recoveryUnaryInterceptor(logger logging.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("gRPC panic recovered",
					logging.String("method", info.FullMethod),
					logging.Any("panic", r),
					logging.String("stack", string(debug.Stack())))
				err = status.Errorf(codes.Internal, "internal server error")
			}
		}()
		return handler(ctx, req)
	}
}

func recoveryStreamInterceptor(logger logging.Logger) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("gRPC stream panic recovered",
					logging.String("method", info.FullMethod),
					logging.Any("panic", r),
					logging.String("stack", string(debug.Stack())))
				err = status.Errorf(codes.Internal, "internal server error")
			}
		}()
		return handler(srv, ss)
	}
}

func isHealthCheck(method string) bool {
	return strings.HasPrefix(method, "/grpc.health.v1.Health/")
}

// loggingUnaryInterceptor logs every call except health checks.
func loggingUnaryInterceptor(logger logging.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if isHealthCheck(info.FullMethod) {
			return handler(ctx, req)
		}
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("gRPC request",
			logging.String("method", info.FullMethod),
			logging.Duration("duration", time.Since(start)),
			logging.String("code", status.Code(err).String()))
		return resp, err
	}
}
