package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rocketscienceinc/bingo-backend/internal/broadcast"
	"github.com/rocketscienceinc/bingo-backend/internal/config"
	"github.com/rocketscienceinc/bingo-backend/internal/repository"
	"github.com/rocketscienceinc/bingo-backend/internal/repository/storage"
	"github.com/rocketscienceinc/bingo-backend/internal/usecase"
	"github.com/rocketscienceinc/bingo-backend/transport/rest"
	"github.com/rocketscienceinc/bingo-backend/transport/websocket"
)

var ErrAddrNotFound = errors.New("redis address string is empty")

// RunApp - runs the application.
func RunApp(logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Info("Received signal, shutting down", "signal", sig)
		cancel()
	}()

	redisAddrString := conf.Redis.GetRedisAddr()
	if redisAddrString == "" {
		return ErrAddrNotFound
	}

	redisStorage, err := storage.New(ctx, redisAddrString)
	if err != nil {
		return fmt.Errorf("could not connect to redis storage: %w", err)
	}

	defer func() {
		if err = redisStorage.Close(); err != nil {
			log.Error("could not close redis storage", "error", err)
		}
	}()

	templateRepo := repository.NewBoardTemplateRepository(redisStorage.Connection)
	snapshotTTL := time.Duration(conf.Engine.SnapshotTTLSeconds) * time.Second
	snapshotRepo := repository.NewSessionSnapshotRepository(redisStorage.Connection, snapshotTTL)

	if err = repository.SeedDefaultTemplates(ctx, templateRepo); err != nil {
		return fmt.Errorf("could not seed board templates: %w", err)
	}

	broadcaster := broadcast.New(logger, conf.Engine.ReplayRetention)
	engine := usecase.NewEngine(logger, templateRepo, snapshotRepo, broadcaster, nil)

	// run HTTP server
	httpErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "port", conf.HTTPPort)
		if httpErr := rest.Start(conf.HTTPPort, engine); httpErr != nil {
			log.Error("HTTP server error", "error", httpErr)
			httpErrCh <- httpErr
		}
	}()

	// run Websocket server
	wsErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting WebSocket server", "port", conf.SocketPort)
		wsServer := websocket.New(logger, engine, broadcaster)
		if wsErr := wsServer.Start(ctx, conf.SocketPort); wsErr != nil {
			log.Error("WebSocket server error", "error", wsErr)
			wsErrCh <- wsErr
		}
	}()

	select {
	case err = <-httpErrCh:
		return fmt.Errorf("HTTP server error: %w", err)
	case err = <-wsErrCh:
		return fmt.Errorf("WebSocket server error: %w", err)
	case <-ctx.Done():
		log.Info("Application context canceled, shutting down")
		return nil
	}
}
