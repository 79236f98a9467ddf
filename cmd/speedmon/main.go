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

	"github.com/lanwatch/speedmon/config"
	"github.com/lanwatch/speedmon/internal/app"
	"github.com/lanwatch/speedmon/internal/dashboard"
	"github.com/lanwatch/speedmon/internal/exporter"
	"github.com/lanwatch/speedmon/internal/speedtest"
	"github.com/lanwatch/speedmon/internal/webserver"
)

var (
	configFile = flag.String("c", "", "config file path (yaml)")
	showVer    = flag.Bool("v", false, "print version and exit")
)

var version = "dev"

func main() {
	flag.Parse()
	if *showVer {
		fmt.Println("speedmon", version)
		return
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	application := app.NewApplication(cfg)
	application.Init(cfg)
	defer application.Release()

	for _, msg := range cfg.Validate() {
		zap.S().Errorf("config validation error: %s", msg)
	}

	runner := speedtest.NewRunner(application.Repository(), speedtest.NewSpeedtestProber())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched := speedtest.NewScheduler(cfg.Schedule.Cron, func() {
		if result := runner.RunAndStore(ctx); result != nil {
			application.Bus().Publish(exporter.TopicResultStored)
		}
	})

	ws := webserver.New(cfg.Dashboard.Port)
	dashboard.NewHandler(application.Repository(), cfg.Dashboard.AutoRefreshSeconds).
		Register(ws.Echo(), cfg.Dashboard.URLPrefix)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sched.Run()
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sched.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return ws.Shutdown(shutdownCtx)
	})
	g.Go(ws.Start)

	if cfg.Export.Enabled {
		sink, err := buildSink(cfg)
		if err != nil {
			zap.L().Error("export sink init failed, export disabled", zap.Error(err))
		} else {
			svc := exporter.NewService(
				exporter.New(application.Repository(), sink),
				application.Bus(),
				time.Duration(cfg.Export.PollSeconds)*time.Second,
				time.Duration(cfg.Export.RetrySeconds)*time.Second,
			)
			g.Go(func() error {
				if err := svc.Run(gctx); err != context.Canceled {
					return err
				}
				return nil
			})
		}
	} else {
		zap.L().Info("export is disabled")
	}

	if err := g.Wait(); err != nil {
		zap.L().Error("service exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func buildSink(cfg *config.AppConfig) (exporter.Sink, error) {
	switch cfg.Export.Sink {
	case "excel":
		return exporter.NewExcelSink(cfg.Export.OutputPath), nil
	case "csv":
		return exporter.NewCSVSink(cfg.Export.OutputPath), nil
	default:
		return exporter.NewGoogleSheetsSink(cfg.Export.CredentialsJSON, cfg.Export.SpreadsheetID)
	}
}
