package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"mcpanel/internal/api"
	"mcpanel/internal/config"
	"mcpanel/internal/console"
	"mcpanel/internal/service"
	"mcpanel/web"
)

func newLogger(level string, dev bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	if dev {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func loadSupervisorConfig(log *zap.SugaredLogger, path string) (*config.SupervisorConfig, error) {
	cfg, err := config.LoadProcessConfig(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Warnf("no config file at %s, using defaults", path)
		return config.DefaultSupervisorConfig(), nil
	}
	return cfg, err
}

func serve(ctx *cli.Context) error {
	logger, err := newLogger(ctx.String("log-level"), ctx.Bool("dev"))
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Sugar()

	supCfg, err := loadSupervisorConfig(log, ctx.String("config"))
	if err != nil {
		return fmt.Errorf("loading supervisor config: %w", err)
	}

	queue := console.NewQueue(supCfg.Console.MaxLines)
	sv, err := service.NewSupervisor(supCfg, queue, service.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("building supervisor: %w", err)
	}

	router, err := api.NewRouter(sv, queue, web.TemplatesFS(), web.StaticFS(), logger)
	if err != nil {
		return fmt.Errorf("building router: %w", err)
	}

	addr := ctx.String("listen-addr")
	// no WriteTimeout: stop and restart requests block for the grace period
	srv := &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infow("starting control panel", "Addr", addr, "Command", supCfg.Process.Argv())
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving: %w", err)
		}
		return nil
	case sig := <-quit:
		log.Infow("shutting down", "Signal", sig.String())
	}

	if err := sv.Shutdown(); err != nil {
		log.Errorf("stopping server: %s", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down HTTP server: %w", err)
	}

	log.Info("control panel exited gracefully")
	return nil
}

func main() {
	defaultAddr := config.LoadConfig().Server.Address

	app := &cli.App{
		Name:  "mcpanel",
		Usage: "web control panel for a single Minecraft server process",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to the supervisor configuration file.",
				Value: "mcpanel.yaml",
			},
			&cli.StringFlag{
				Name:  "listen-addr",
				Usage: "The address for the HTTP server to listen on.",
				Value: defaultAddr,
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "One of [debug,info,warn,error].",
				Value: "info",
			},
			&cli.BoolFlag{
				Name:  "dev",
				Usage: "Use human-readable development logging.",
			},
		},
		Action:   serve,
		Commands: []*cli.Command{ctlCommand()},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
