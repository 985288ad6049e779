// Package server initializes and runs the vault backend: it wires storage,
// services and transports, starts the REST API and the gRPC health
// endpoint, and shuts both down on SIGINT/SIGTERM.
package server

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/privylock/internal/logging"
	"github.com/dmitrijs2005/privylock/internal/server/config"
	"github.com/dmitrijs2005/privylock/internal/server/httpapi"

	gs "github.com/dmitrijs2005/privylock/internal/server/grpc"
)

type App struct {
	config *config.Config
	logger logging.Logger
	deps   *Deps
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSON(os.Stdout, c.LogLevel)

	deps, err := Build(ctx, c, logger)
	if err != nil {
		return nil, err
	}

	if err := deps.Migrate(ctx); err != nil {
		_ = deps.Close()
		return nil, err
	}

	return &App{config: c, logger: logger, deps: deps}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	d := app.deps
	s := httpapi.NewServer(app.config, httpapi.Services{
		Users:         d.Users,
		Devices:       d.Devices,
		Categories:    d.Categories,
		Folders:       d.Folders,
		Documents:     d.Documents,
		Notifications: d.Notifications,
		DB:            d.DB,
	}, app.logger)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.deps.DB, app.logger)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.deps.Close(); err != nil {
		app.logger.Error(ctx, "close error", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
