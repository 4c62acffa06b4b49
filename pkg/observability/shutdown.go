package observability

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// ShutdownFunc is a function to call during shutdown
type ShutdownFunc func(context.Context) error

type namedShutdown struct {
	name string
	fn   ShutdownFunc
}

// ShutdownManager handles graceful shutdown of the gateway.
//
// Hooks run in reverse registration order: the HTTP server stops first so
// no new work arrives, then registered hooks unwind the dependency stack
// (session registry before stores, stores before exporters).
type ShutdownManager struct {
	logger          *Logger
	server          *http.Server
	hooks           []namedShutdown
	shutdownTimeout time.Duration
	mu              sync.Mutex
}

// NewShutdownManager creates a new shutdown manager
func NewShutdownManager(logger *Logger, server *http.Server, timeout time.Duration) *ShutdownManager {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ShutdownManager{
		logger:          logger,
		server:          server,
		shutdownTimeout: timeout,
	}
}

// Register adds a named hook to call during shutdown
func (sm *ShutdownManager) Register(name string, fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.hooks = append(sm.hooks, namedShutdown{name: name, fn: fn})
}

// WaitForShutdown blocks until SIGINT/SIGTERM, then unwinds
func (sm *ShutdownManager) WaitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	sm.logger.Infof("Received signal %s, starting graceful shutdown", sig)

	ctx, cancel := context.WithTimeout(context.Background(), sm.shutdownTimeout)
	defer cancel()

	return sm.Shutdown(ctx)
}

// Shutdown stops the server and runs hooks in LIFO order
func (sm *ShutdownManager) Shutdown(ctx context.Context) error {
	if sm.server != nil {
		sm.logger.Info("Shutting down HTTP server")
		if err := sm.server.Shutdown(ctx); err != nil {
			sm.logger.WithError(err).Error("HTTP server shutdown error")
		} else {
			sm.logger.Info("HTTP server shutdown complete")
		}
	}

	sm.mu.Lock()
	hooks := make([]namedShutdown, len(sm.hooks))
	copy(hooks, sm.hooks)
	sm.mu.Unlock()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		hook := hooks[i]
		if ctx.Err() != nil {
			sm.logger.Warnf("Shutdown timeout reached, skipping %q", hook.name)
			errs = append(errs, fmt.Errorf("%s: %w", hook.name, ctx.Err()))
			continue
		}
		if err := hook.fn(ctx); err != nil {
			sm.logger.WithError(err).Errorf("Shutdown hook %q failed", hook.name)
			errs = append(errs, fmt.Errorf("%s: %w", hook.name, err))
		} else {
			sm.logger.Infof("Shutdown hook %q complete", hook.name)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown completed with %d errors", len(errs))
	}
	sm.logger.Info("Graceful shutdown complete")
	return nil
}
