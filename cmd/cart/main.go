package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/dwikikusuma/shoping-cart/internal/auth"
	"github.com/dwikikusuma/shoping-cart/internal/cart/app"
	cartgrpc "github.com/dwikikusuma/shoping-cart/internal/cart/grpc"
	"github.com/dwikikusuma/shoping-cart/internal/cart/httpapi"
	"github.com/dwikikusuma/shoping-cart/internal/cart/infra/kafka"
	cartpg "github.com/dwikikusuma/shoping-cart/internal/cart/infra/postgres"
	catalogapp "github.com/dwikikusuma/shoping-cart/internal/catalog/app"
	cpg "github.com/dwikikusuma/shoping-cart/internal/catalog/infra/postgres"
	"github.com/dwikikusuma/shoping-cart/pkg/config"
	"github.com/dwikikusuma/shoping-cart/pkg/discovery"
	"github.com/dwikikusuma/shoping-cart/pkg/logger"
	"github.com/dwikikusuma/shoping-cart/pkg/postgres"
	"github.com/dwikikusuma/shoping-cart/pkg/shutdown"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	cfg := config.Load()
	log := logger.New(logger.Options{
		Service:   cfg.ServiceName,
		Env:       cfg.AppEnv,
		Level:     cfg.LogLevel,
		Format:    cfg.LogFormat,
		AddSource: true,
	})

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	pool := mustDB(ctx, log, cfg)
	defer pool.Close()

	if cfg.MigrateOnStart {
		if err := postgres.Migrate(ctx, pool, cartpg.Migrations()); err != nil {
			log.Error("migrations failed", slog.Any("err", err))
			os.Exit(1)
		}
		log.Info("migrations applied")
	}

	keys, err := auth.NewKeys(cfg.JWTSecret)
	if err != nil {
		log.Error("auth setup failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Catalog
	catalogSvc := catalogapp.NewService(cpg.NewProductRepo(pool))

	// Cart
	opts := []app.Option{app.WithLogger(log)}
	if len(cfg.KafkaBrokers) > 0 {
		pub, err := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			log.Error("kafka setup failed", slog.Any("err", err))
			os.Exit(1)
		}
		defer pub.Close()
		opts = append(opts, app.WithEvents(pub))
		log.Info("cart events enabled", slog.String("topic", cfg.KafkaTopic))
	}

	cartRepo := cartpg.NewCartRepo(pool)
	cartSvc := app.NewService(cartRepo, opts...)
	resolver := app.NewResolver(cartSvc, cartRepo, app.RandomTokens{Length: app.TokenLength}, cfg.TokenLifetime)

	if cfg.AppEnv != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := httpapi.NewRouter(httpapi.Deps{
		Service:  cartSvc,
		Resolver: resolver,
		Products: catalogSvc,
		Verifier: keys,
		Cookie:   cfg.Cookie,
		Ready:    pool,
		Log:      log,
	})

	httpAddr := fmt.Sprintf(":%d", cfg.HTTPPort)
	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	grpcAddr := fmt.Sprintf(":%d", cfg.GRPCPort)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		log.Error("listen failed", slog.Any("err", err), slog.String("addr", grpcAddr))
		os.Exit(1)
	}

	grpcServer := grpc.NewServer()
	cartgrpc.RegisterCartServiceServer(grpcServer, cartgrpc.NewServer(cartSvc, log))
	healthSrv := health.NewServer()
	healthSrv.SetServingStatus(cartgrpc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthSrv)

	deregister := register(log, cfg)
	defer deregister()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http starting", slog.String("addr", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info("grpc starting", slog.String("addr", grpcAddr))
		if err := grpcServer.Serve(lis); err != nil {
			return fmt.Errorf("grpc serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown requested")
		healthSrv.Shutdown()

		_ = shutdown.Graceful(10*time.Second, log,
			shutdown.Step{Name: "http", Stop: httpServer.Shutdown, Force: func() { _ = httpServer.Close() }},
			shutdown.Step{
				Name: "grpc",
				Stop: func(context.Context) error {
					grpcServer.GracefulStop()
					return nil
				},
				Force: grpcServer.Stop,
			},
		)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", slog.Any("err", err))
	}
	log.Info("bye")
}

func mustDB(ctx context.Context, log *slog.Logger, cfg config.Config) *pgxpool.Pool {
	pool, err := postgres.Open(ctx, postgres.Config{
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		User:     cfg.Postgres.User,
		Pass:     cfg.Postgres.Pass,
		DB:       cfg.Postgres.DB,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: int32(cfg.Postgres.MaxConns),
	})
	if err != nil {
		log.Error("db open failed", slog.Any("err", err))
		os.Exit(1)
	}
	return pool
}

// register announces the HTTP endpoint to Consul when an agent is configured
// and returns the matching deregistration.
func register(log *slog.Logger, cfg config.Config) func() {
	if cfg.ConsulAddr == "" {
		return func() {}
	}

	client, err := discovery.NewClient(cfg.ConsulAddr)
	if err != nil {
		log.Warn("consul unavailable, skipping registration", slog.Any("err", err))
		return func() {}
	}

	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	reg := discovery.Registration{
		Name:      cfg.ServiceName,
		Host:      host,
		Port:      cfg.HTTPPort,
		HealthURL: fmt.Sprintf("http://%s:%d/healthz", host, cfg.HTTPPort),
	}
	if err := client.Register(reg); err != nil {
		log.Warn("consul registration failed", slog.Any("err", err))
		return func() {}
	}
	log.Info("registered with consul", slog.String("id", reg.ID()))

	return func() {
		if err := client.Deregister(reg); err != nil {
			log.Warn("consul deregistration failed", slog.Any("err", err))
		}
	}
}
