package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/talkincode/chatgate/config"
	"github.com/talkincode/chatgate/internal/adminapi"
	"github.com/talkincode/chatgate/internal/app"
	"github.com/talkincode/chatgate/internal/automation"
	"github.com/talkincode/chatgate/internal/bus"
	"github.com/talkincode/chatgate/internal/dedupe"
	"github.com/talkincode/chatgate/internal/pipeline"
	"github.com/talkincode/chatgate/internal/provider"
	"github.com/talkincode/chatgate/internal/session"
	"github.com/talkincode/chatgate/internal/webserver"
)

var (
	cfile   = flag.String("c", "/etc/chatgate.yml", "config file")
	initdb  = flag.Bool("x", false, "drop and rebuild the database schema, then exit")
	showver = flag.Bool("v", false, "print version and exit")
)

var version = "dev"

func main() {
	flag.Parse()

	if *showver {
		fmt.Println("chatgate", version)
		return
	}

	cfg := config.LoadConfig(*cfile)
	application := app.NewApplication(cfg)
	application.Init(cfg)
	defer application.Release()

	if *initdb {
		application.InitDb()
		zap.L().Info("database initialized")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eventBus := bus.New()
	defer eventBus.Close()

	var deduper pipeline.Deduper
	if cfg.Provider.Dedupe {
		ttl := time.Duration(application.GetInt64Value("webhook.dedupe_ttl_hours", 24)) * time.Hour
		cache, err := dedupe.Open(cfg.System.Workdir, ttl)
		if err != nil {
			zap.L().Error("dedupe store unavailable, duplicate suppression disabled", zap.Error(err))
		} else {
			defer cache.Close()
			deduper = cache
		}
	}

	sessionRepo := session.NewGormRepository(application.DB())
	messageRepo := pipeline.NewGormMessageRepository(application.DB())
	contactRepo := pipeline.NewGormContactRepository(application.DB())

	gateway := provider.NewClient(cfg.Provider.BaseURL, cfg.Provider.ApiKey, cfg.Provider.Timeout)
	manager := session.NewManager(sessionRepo, gateway, application)
	manager.StartReconcileLoop(ctx,
		time.Duration(application.GetInt64Value("provider.reconcile_interval_min", 5))*time.Minute)

	pipe := pipeline.New(messageRepo, contactRepo, sessionRepo, eventBus, deduper)

	dispatcher, err := automation.NewDispatcher(cfg.Automation.Endpoint, cfg.Automation.Timeout, cfg.Automation.Workers)
	if err != nil {
		zap.L().Fatal("automation dispatcher init failed", zap.Error(err))
	}
	defer dispatcher.Release()

	server := webserver.Init(cfg)
	adminapi.Init(manager, pipe, eventBus, dispatcher, sessionRepo, contactRepo, messageRepo)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx)
	})

	if err := g.Wait(); err != nil {
		zap.L().Error("chatgate exited with error", zap.Error(err))
		os.Exit(1)
	}
	zap.L().Info("chatgate stopped")
}
