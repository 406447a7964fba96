package main

import (
	"github.com/ariefcatur/go-vendor-orders/internal/config"
	kafkax "github.com/ariefcatur/go-vendor-orders/internal/kafka"
	"github.com/ariefcatur/go-vendor-orders/internal/logx"
	"github.com/ariefcatur/go-vendor-orders/internal/notify"
	"github.com/ariefcatur/go-vendor-orders/internal/orders"
	"github.com/ariefcatur/go-vendor-orders/internal/postgres"
	"github.com/ariefcatur/go-vendor-orders/internal/redisx"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"log"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	app := &cli.App{
		Name:  "notifier",
		Usage: "deliver vendor notifications for placed orders",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "env-file", Value: cli.NewStringSlice(".env"), Usage: "dotenv files to preload"},
			&cli.IntFlag{Name: "workers", Usage: "handler goroutines (default NOTIFIER_WORKERS)"},
			&cli.StringFlag{Name: "group", Usage: "consumer group (default NOTIFIER_GROUP)"},
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
	if c.IsSet("workers") {
		cfg.NotifierWorkers = c.Int("workers")
	}
	if c.IsSet("group") {
		cfg.NotifierGroup = c.String("group")
	}

	logger, err := logx.New(cfg.Env, cfg.ServiceName+"-notifier")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, postgres.Options{MaxConns: cfg.PostgresMaxConns})
	if err != nil {
		return err
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &notify.Service{
		Orders:        &orders.Repo{DB: db},
		Dedup:         &redisx.Dedup{Redis: rdb, Service: "notifier"},
		Mailer:        &notify.LogMailer{Log: logger},
		From:          cfg.MailFrom,
		FallbackEmail: cfg.VendorFallbackEmail,
		Log:           logger,
	}

	topic := orders.Topic(cfg.NotificationTopic)
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.NotifierGroup, topic, cfg.NotifierWorkers, logger)
	logger.Info("notifier consumer started",
		zap.String("group", cfg.NotifierGroup),
		zap.String("topic", topic),
		zap.Int("workers", cfg.NotifierWorkers),
	)
	err = cons.Start(ctx, svc.HandleOrderPlaced)
	logger.Info("notifier stopped")
	return err
}
