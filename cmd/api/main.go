package main

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-vendor-orders/internal/auth"
	"github.com/ariefcatur/go-vendor-orders/internal/config"
	"github.com/ariefcatur/go-vendor-orders/internal/httpx"
	kafkax "github.com/ariefcatur/go-vendor-orders/internal/kafka"
	"github.com/ariefcatur/go-vendor-orders/internal/logx"
	"github.com/ariefcatur/go-vendor-orders/internal/orders"
	"github.com/ariefcatur/go-vendor-orders/internal/postgres"
	"github.com/ariefcatur/go-vendor-orders/internal/redisx"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	app := &cli.App{
		Name:  "api",
		Usage: "vendor orders HTTP API",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "env-file", Value: cli.NewStringSlice(".env"), Usage: "dotenv files to preload"},
			&cli.BoolFlag{Name: "ensure-schema", Usage: "create tables if missing before serving"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.StringSlice("env-file")...)
	if err != nil {
		return err
	}
	logger, err := logx.New(cfg.Env, cfg.ServiceName)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, postgres.Options{
		MaxConns:    cfg.PostgresMaxConns,
		LockTimeout: cfg.LockTimeout,
	})
	if err != nil {
		return err
	}
	defer db.Close()
	if c.Bool("ensure-schema") {
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			return err
		}
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	popular := &redisx.PopularCache{Redis: rdb, TTL: cfg.PopularTTL}

	// Kafka producer runs on its own context so it can flush after the HTTP server stops.
	prodCtx, cancelProd := context.WithCancel(context.Background())
	defer cancelProd()
	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.Topic(cfg.NotificationTopic), cfg.ProducerBuffer, logger)
	prod.Start(prodCtx)

	svc := &orders.Service{
		Store: &orders.Repo{DB: db, TxTimeout: cfg.PlacementTimeout},
		Queue: &orders.EventQueue{Producer: prod, Service: cfg.ServiceName},
		Cache: popular,
		Log:   logger,
	}
	catalog := &orders.Catalog{Store: &orders.ProductRepo{DB: db}, Cache: popular, Log: logger}

	router := httpx.NewRouter(logger)
	authn := auth.Authenticate(&auth.UserRepo{DB: db}, logger)
	(&httpx.OrdersHandler{Orders: svc, Authn: authn, Log: logger}).Register(router)
	(&httpx.ProductsHandler{Catalog: catalog, Authn: authn, Log: logger}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	err = g.Wait()

	// in-flight placements have returned; flush queued notifications
	prod.Close()
	prod.WaitClosed()
	return err
}
