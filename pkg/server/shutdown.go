// Package server runs the HTTP listener and tears the process down in order
// when a termination signal arrives.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/LerianStudio/beneficiary-pay/pkg/log"
	"github.com/gofiber/fiber/v2"
)

// ErrNoServersConfigured indicates no server was configured for the manager.
var ErrNoServersConfigured = errors.New("no servers configured: use WithHTTPServer()")

// Closer releases a resource during shutdown, after the listener stopped.
type Closer struct {
	Name  string
	Close func(ctx context.Context) error
}

// ServerManager handles the graceful shutdown of the HTTP server and the
// resources it depends on.
type ServerManager struct {
	httpServer         *fiber.App
	logger             log.Logger
	httpAddress        string
	closers            []Closer
	serversStarted     chan struct{}
	serversStartedOnce sync.Once
	shutdownChan       <-chan struct{}
	shutdownOnce       sync.Once
	shutdownTimeout    time.Duration
	startupErrors      chan error
}

// NewServerManager creates a ServerManager. A nil logger becomes a no-op logger.
func NewServerManager(logger log.Logger) *ServerManager {
	if logger == nil {
		logger = log.NewNop()
	}

	return &ServerManager{
		logger:          logger,
		serversStarted:  make(chan struct{}),
		shutdownTimeout: 30 * time.Second,
		startupErrors:   make(chan error, 1),
	}
}

func (sm *ServerManager) WithHTTPServer(app *fiber.App, address string) *ServerManager {
	sm.httpServer = app
	sm.httpAddress = address

	return sm
}

// WithCloser registers a resource to release on shutdown. Closers run in
// registration order.
func (sm *ServerManager) WithCloser(name string, fn func(ctx context.Context) error) *ServerManager {
	if fn != nil {
		sm.closers = append(sm.closers, Closer{Name: name, Close: fn})
	}

	return sm
}

// WithShutdownChannel replaces OS signal handling with ch. Used by tests.
func (sm *ServerManager) WithShutdownChannel(ch <-chan struct{}) *ServerManager {
	sm.shutdownChan = ch

	return sm
}

// WithShutdownTimeout bounds how long in-flight requests may drain. Defaults to 30 seconds.
func (sm *ServerManager) WithShutdownTimeout(d time.Duration) *ServerManager {
	sm.shutdownTimeout = d

	return sm
}

// ServersStarted is closed once the listener goroutine has been launched.
// It does not mean the socket is bound.
func (sm *ServerManager) ServersStarted() <-chan struct{} {
	return sm.serversStarted
}

// StartWithGracefulShutdownWithError starts the server and blocks until a
// shutdown signal, a closed shutdown channel or a startup error. It returns
// the startup error, if any, after shutting down.
func (sm *ServerManager) StartWithGracefulShutdownWithError() error {
	if sm.httpServer == nil {
		return ErrNoServersConfigured
	}

	sm.startServers()

	return sm.handleShutdown()
}

func (sm *ServerManager) startServers() {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				sm.pushStartupError(fmt.Errorf("HTTP server panic: %v", r))
			}
		}()

		sm.logInfof("Starting HTTP server on %s", sm.httpAddress)

		if err := sm.httpServer.Listen(sm.httpAddress); err != nil {
			sm.logErrorf("HTTP server error: %v", err)
			sm.pushStartupError(fmt.Errorf("HTTP server: %w", err))
		}
	}()

	sm.serversStartedOnce.Do(func() {
		close(sm.serversStarted)
	})
}

func (sm *ServerManager) pushStartupError(err error) {
	select {
	case sm.startupErrors <- err:
	default:
	}
}

func (sm *ServerManager) handleShutdown() error {
	var startupErr error

	if sm.shutdownChan != nil {
		select {
		case <-sm.shutdownChan:
		case startupErr = <-sm.startupErrors:
		}
	} else {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)

		select {
		case <-c:
		case startupErr = <-sm.startupErrors:
		}

		signal.Stop(c)
	}

	if startupErr != nil {
		sm.logErrorf("Server startup failed: %v", startupErr)
	}

	sm.logInfo("Gracefully shutting down...")

	sm.executeShutdown()

	return startupErr
}

// executeShutdown is idempotent: only the first call runs the sequence.
func (sm *ServerManager) executeShutdown() {
	sm.shutdownOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), sm.shutdownTimeout)
		defer cancel()

		if sm.httpServer != nil {
			sm.logInfo("Shutting down HTTP server...")

			if err := sm.httpServer.ShutdownWithContext(ctx); err != nil {
				sm.logErrorf("Error during HTTP server shutdown: %v", err)
			}
		}

		for _, c := range sm.closers {
			sm.logInfof("Closing %s...", c.Name)

			if err := c.Close(ctx); err != nil {
				sm.logErrorf("Failed to close %s: %v", c.Name, err)
			}
		}

		if err := sm.logger.Sync(context.Background()); err != nil {
			sm.logErrorf("Failed to sync logger: %v", err)
		}

		sm.logInfo("Graceful shutdown completed")
	})
}

func (sm *ServerManager) logInfo(msg string) {
	sm.logger.Log(context.Background(), log.LevelInfo, msg)
}

func (sm *ServerManager) logInfof(format string, args ...any) {
	sm.logger.Log(context.Background(), log.LevelInfo, fmt.Sprintf(format, args...))
}

func (sm *ServerManager) logErrorf(format string, args ...any) {
	sm.logger.Log(context.Background(), log.LevelError, fmt.Sprintf(format, args...))
}
