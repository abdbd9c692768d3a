package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"crossbuy/internal/config"
	"crossbuy/internal/http/handlers"
	"crossbuy/internal/kafka"
	"crossbuy/internal/notify"
	"crossbuy/internal/redisx"
	"crossbuy/internal/repos"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	// Optional file logging
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			log.Printf("[warn] could not open log file %s: %v", cfg.LogFile, err)
		} else {
			log.SetOutput(io.MultiWriter(os.Stdout, f))
		}
	}

	db, err := repos.OpenDB(cfg.DBDSN, cfg.SeedDemo)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	sink, closeSink := notifySink(cfg)
	defer closeSink()
	dispatcher := notify.NewAsync(sink, cfg.NotifyBuffer)

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler,
		BodyLimit:    1 << 20, // 1 MiB
	})

	// ---------- Middlewares ----------
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(logger.New())
	app.Use(helmet.New())
	app.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/healthz"
		},
	}))

	deps := handlers.NewDeps(db, cfg, dispatcher)
	deps.Mount(app)
	app.Use(handlers.NotFound)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("[http] listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Printf("[http] shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("[http] shutdown: %v", err)
	}
	// Pending notifications are flushed before the sink goes away.
	dispatcher.Close()
}

// notifySink picks where order events go. The returned func releases the sink's connections.
func notifySink(cfg config.Config) (notify.Sink, func()) {
	switch cfg.NotifySink {
	case "kafka":
		p := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		log.Printf("[notify] kafka brokers=%v topic=%s", cfg.KafkaBrokers, cfg.KafkaTopic)
		return kafka.NewSink(p), func() { _ = p.Close() }
	case "redis":
		rdb := redisx.New(cfg.RedisAddr)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := redisx.Ping(ctx, rdb); err != nil {
			log.Fatalf("redis %s: %v", cfg.RedisAddr, err)
		}
		log.Printf("[notify] redis addr=%s stream=%s", cfg.RedisAddr, cfg.RedisStream)
		return redisx.NewStreamSink(rdb, cfg.RedisStream), func() { _ = rdb.Close() }
	}
	log.Printf("[notify] log sink")
	return notify.LogSink{}, func() {}
}
