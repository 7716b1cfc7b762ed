//go:build unit

package server_test

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/LerianStudio/beneficiary-pay/pkg/log"
	"github.com/LerianStudio/beneficiary-pay/pkg/server"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	mu       sync.Mutex
	messages []string
	syncErr  error
}

func (l *recordingLogger) Log(_ context.Context, _ log.Level, msg string, _ ...log.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.messages = append(l.messages, msg)
}

func (l *recordingLogger) With(_ ...log.Field) log.Logger { return l }
func (l *recordingLogger) WithGroup(_ string) log.Logger  { return l }
func (l *recordingLogger) Enabled(_ log.Level) bool       { return true }
func (l *recordingLogger) Sync(_ context.Context) error   { return l.syncErr }
func (l *recordingLogger) getMessages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	cp := make([]string, len(l.messages))
	copy(cp, l.messages)

	return cp
}

func newApp() *fiber.App {
	return fiber.New(fiber.Config{DisableStartupMessage: true})
}

func runUntilShutdown(t *testing.T, sm *server.ServerManager, shutdown chan struct{}) error {
	t.Helper()

	done := make(chan error, 1)

	go func() {
		done <- sm.StartWithGracefulShutdownWithError()
	}()

	select {
	case <-sm.ServersStarted():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for server start")
	}

	if shutdown != nil {
		close(shutdown)
	}

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for shutdown")
	}

	return nil
}

func TestServerManagerChaining(t *testing.T) {
	t.Parallel()

	sm1 := server.NewServerManager(nil).WithHTTPServer(newApp(), ":8080")
	sm2 := sm1.WithShutdownTimeout(time.Second).WithCloser("noop", func(context.Context) error { return nil })

	assert.Same(t, sm1, sm2)
}

func TestStartWithGracefulShutdownWithError_NoServers(t *testing.T) {
	t.Parallel()

	err := server.NewServerManager(nil).StartWithGracefulShutdownWithError()
	assert.True(t, errors.Is(err, server.ErrNoServersConfigured))
}

func TestStartWithGracefulShutdownWithError_RunsClosersInOrder(t *testing.T) {
	t.Parallel()

	logger := &recordingLogger{}
	shutdown := make(chan struct{})

	var (
		mu    sync.Mutex
		order []string
	)

	record := func(name string, err error) func(context.Context) error {
		return func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()

			order = append(order, name)

			return err
		}
	}

	sm := server.NewServerManager(logger).
		WithHTTPServer(newApp(), "127.0.0.1:0").
		WithShutdownChannel(shutdown).
		WithCloser("ledger", record("ledger", nil)).
		WithCloser("redis", record("redis", errors.New("boom"))).
		WithCloser("nil", nil)

	require.NoError(t, runUntilShutdown(t, sm, shutdown))

	mu.Lock()
	assert.Equal(t, []string{"ledger", "redis"}, order)
	mu.Unlock()

	msgs := logger.getMessages()
	assert.Contains(t, msgs, "Failed to close redis: boom")
	assert.Contains(t, msgs, "Graceful shutdown completed")
}

func TestStartWithGracefulShutdownWithError_StartupFailure(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	logger := &recordingLogger{}

	sm := server.NewServerManager(logger).
		WithHTTPServer(newApp(), ln.Addr().String()).
		WithShutdownChannel(make(chan struct{}))

	err = runUntilShutdown(t, sm, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP server")
}

func TestStartWithGracefulShutdownWithError_LoggerSyncError(t *testing.T) {
	t.Parallel()

	logger := &recordingLogger{syncErr: errors.New("sync failed")}
	shutdown := make(chan struct{})

	sm := server.NewServerManager(logger).
		WithHTTPServer(newApp(), "127.0.0.1:0").
		WithShutdownChannel(shutdown)

	require.NoError(t, runUntilShutdown(t, sm, shutdown))
	assert.Contains(t, logger.getMessages(), "Failed to sync logger: sync failed")
}
