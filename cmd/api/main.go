package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/PaulBabatuyi/collab-chat/internal/auth"
	"github.com/PaulBabatuyi/collab-chat/internal/chat"
	"github.com/PaulBabatuyi/collab-chat/internal/config"
	"github.com/PaulBabatuyi/collab-chat/internal/controller"
	"github.com/PaulBabatuyi/collab-chat/internal/data"
	"github.com/PaulBabatuyi/collab-chat/internal/data/memory"
	"github.com/PaulBabatuyi/collab-chat/internal/db"
	"github.com/PaulBabatuyi/collab-chat/internal/middleware"
	"github.com/PaulBabatuyi/collab-chat/internal/registry"
	"github.com/PaulBabatuyi/collab-chat/internal/team"

	sdkgrpc "github.com/mama165/sdk-go/grpc"
	"github.com/mama165/sdk-go/logs"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// gateway is everything the services and the controller need from storage.
type gateway interface {
	chat.Store
	team.Store
	controller.Provisioner
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logs.GetLoggerFromString(cfg.LogLevel)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	jwtMgr, err := newJWTManager(cfg)
	if err != nil {
		return err
	}

	reg := registry.New(logger)
	chats := chat.New(store, reg, logger, chat.WithMembershipCheck(cfg.EnforceMembership))
	teams := team.New(store, reg, logger, team.WithMembershipCheck(cfg.EnforceMembership))
	var ctlOpts []controller.Option
	if cfg.AutoProvisionUsers {
		ctlOpts = append(ctlOpts, controller.WithProvisioning(store))
	}
	ctl := controller.New(reg, chats, teams, logger, ctlOpts...)

	// small burst so a client can retry a couple of times quickly
	limiterStore := middleware.NewLimiterStore(cfg.RateLimitRPM, 3, time.Minute)
	defer limiterStore.Stop()

	grpcServer, err := newGRPCServer(cfg, logger, jwtMgr, limiterStore)
	if err != nil {
		return err
	}
	registerServices(grpcServer, newServer(ctl, teams, logger))
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           newRouter(reg, newWSGateway(ctl, jwtMgr, cfg.Origins(), logger), cfg.Origins(), limiterStore),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("gRPC server listening", "addr", lis.Addr().String(), "tls", cfg.TLSEnabled())
		errCh <- grpcServer.Serve(lis)
	}()
	go func() {
		logger.Info("HTTP gateway listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", "error", err)
		}
	}

	logger.Info("shutting down")
	healthSrv.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown", "error", err)
	}

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		grpcServer.Stop()
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (gateway, func(), error) {
	if cfg.StoreDriver == config.DriverMemory {
		logger.Warn("using the in-memory store; data is lost on exit")
		return memory.New(), func() {}, nil
	}

	client, err := db.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to DB: %w", err)
	}
	closeFn := func() {
		if err := client.Close(context.Background()); err != nil {
			logger.Warn("close DB", "error", err)
		}
	}
	if err := client.CreateIndexes(ctx); err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("create indexes: %w", err)
	}
	return data.NewGateway(client), closeFn, nil
}

func newJWTManager(cfg *config.Config) (*auth.JWTManager, error) {
	if cfg.JWTKeys == "" {
		return auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL), nil
	}
	keys, err := cfg.SigningKeys()
	if err != nil {
		return nil, err
	}
	return auth.NewJWTManagerFromKeys(keys, cfg.JWTActiveKid, cfg.TokenTTL), nil
}

func newGRPCServer(cfg *config.Config, logger *slog.Logger, jwtMgr *auth.JWTManager, limiter *middleware.LimiterStore) (*grpc.Server, error) {
	var serverOpts []grpc.ServerOption

	if cfg.TLSEnabled() {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			return nil, fmt.Errorf("load TLS certs: %w", err)
		}
		serverOpts = append(serverOpts, grpc.Creds(creds))
	}

	limited := map[string]bool{
		createTeamMethod: true,
		joinTeamMethod:   true,
		listTeamsMethod:  true,
	}
	// logging -> auth -> rate limit; the limiter keys on the verified caller
	serverOpts = append(serverOpts,
		grpc.ChainUnaryInterceptor(
			sdkgrpc.UnaryLoggingInterceptor(logger),
			authUnaryInterceptor(jwtMgr),
			middleware.RateLimitUnaryInterceptor(limiter, limited),
		),
		grpc.ChainStreamInterceptor(authStreamInterceptor(jwtMgr)),
	)
	return grpc.NewServer(serverOpts...), nil
}
