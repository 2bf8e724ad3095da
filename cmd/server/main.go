package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"limit-orderbook/pkg/api"
	"limit-orderbook/pkg/config"
	"limit-orderbook/pkg/engine"
	"limit-orderbook/pkg/handlers"
	"limit-orderbook/pkg/journal"
	"limit-orderbook/pkg/obs"
	"limit-orderbook/pkg/publisher"
	"limit-orderbook/pkg/registry"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	port := flag.Int("port", 0, "port for the HTTP server (overrides config)")
	flag.IntVar(port, "p", 0, "shorthand for --port")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		panic(err)
	}
	cfg := config.MustLoad(*configPath)
	if *port != 0 {
		cfg.Server.Port = *port
	}

	obs, err := obs.New(cfg.Log.Production, cfg.Log.Level)
	if err != nil {
		panic("failed to build logger: " + err.Error())
	}
	defer obs.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var engineOpts []engine.Option
	var events *journal.Journal
	if cfg.Journal.Enabled {
		events, err = journal.Open(journal.Options{Dir: cfg.Journal.Dir, Sync: cfg.Journal.Sync})
		if err != nil {
			obs.LogAlert(ctx, "journal open failed: dir=%s err=%v", cfg.Journal.Dir, err)
			os.Exit(1)
		}
		engineOpts = append(engineOpts, engine.WithSink(events))

		pending := 0
		err = events.Replay(events.Acked()+1, func(journal.Record) error {
			pending++
			return nil
		})
		var gap *journal.SequenceGapError
		switch {
		case errors.As(err, &gap):
			obs.LogAlert(ctx, "journal has a hole: expected=%d got=%d", gap.Expected, gap.Received)
		case err != nil:
			obs.LogAlert(ctx, "journal replay failed: %v", err)
			os.Exit(1)
		}
		obs.LogNotice(ctx, "journal opened: dir=%s last_seq=%d acked=%d pending=%d", cfg.Journal.Dir, events.LastSeq(), events.Acked(), pending)
	}

	reg, err := registry.New(registry.Config{
		AutoCreate: cfg.Engine.AutoCreate,
		Symbols:    cfg.Engine.Symbols,
	}, obs, engineOpts...)
	if err != nil {
		obs.LogAlert(ctx, "registry startup failed: %v", err)
		os.Exit(1)
	}
	obs.LogNotice(ctx, "engine startup: symbols=%v auto_create=%t", reg.Symbols(), cfg.Engine.AutoCreate)
	if len(cfg.Engine.Symbols) == 0 && !cfg.Engine.AutoCreate {
		obs.LogAlert(ctx, "no symbols configured and auto_create is off; every order will be rejected")
	}

	var pub *publisher.Publisher
	var pubDone sync.WaitGroup
	pubCtx, stopPublisher := context.WithCancel(ctx)
	defer stopPublisher()
	if cfg.Kafka.Enabled {
		pub = publisher.New(
			events,
			publisher.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic),
			publisher.Config{FlushInterval: cfg.Kafka.FlushInterval, BatchSize: cfg.Kafka.BatchSize},
			obs,
		)
		pubDone.Add(1)
		go func() {
			defer pubDone.Done()
			pub.Run(pubCtx)
		}()
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError

			if strings.Contains(err.Error(), "panic") {
				return c.Status(code).SendString("Internal Server Error")
			}

			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}

			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

			return c.Status(code).SendString(err.Error())
		},
		EnableTrustedProxyCheck: true,
	})
	app.Use(cors.New())

	handler := handlers.New(obs, reg, handlers.Limits{
		DefaultDepth: cfg.Engine.DefaultDepth,
		MaxDepth:     cfg.Engine.MaxDepth,
	})

	var router fiber.Router = app

	api.New(router, handler)

	fmt.Printf("Server is live on %s. Starting to listen.\n", addr)

	sigterm := make(chan os.Signal, 1)
	var wg sync.WaitGroup
	signal.Notify(sigterm, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigterm
		obs.LogNotice(ctx, "Received SIGTERM, shutting down gracefully")

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := app.ShutdownWithTimeout(cfg.Server.ShutdownTimeout); err != nil {
				obs.LogAlert(ctx, "Error shutting down gracefully: %v", err)
			}
		}()
		cancel()
	}()

	go func() {
		if err := app.Listen(addr); err != nil {
			obs.LogAlert(ctx, "Error starting server: %v", err)
			cancel()
		}
	}()

	<-ctx.Done()
	// Wait for the server to shut down cleanly
	wg.Wait()

	// no more writes can reach the journal after this
	reg.Close()

	stopPublisher()
	pubDone.Wait()
	if pub != nil {
		// one last drain of whatever the final requests produced
		drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		n, err := pub.Drain(drainCtx)
		if err != nil {
			obs.LogErr(drainCtx, "final publish failed after %d records: %v", n, err)
		}
		drainCancel()
		if err := pub.Close(); err != nil {
			obs.LogErr(ctx, "kafka writer close failed: %v", err)
		}
	}
	if events != nil {
		if err := events.Close(); err != nil {
			obs.LogErr(ctx, "journal close failed: %v", err)
		}
	}

	obs.LogNotice(ctx, "Server shut down")
}
