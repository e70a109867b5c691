package tts

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"go.uber.org/multierr"
)

// LifecycleComponent represents a component that needs cleanup on shutdown
type LifecycleComponent interface {
	// Name returns the component name for logging
	Name() string

	// Shutdown performs graceful shutdown
	Shutdown(ctx context.Context) error

	// ForceStop performs immediate termination if graceful shutdown fails
	ForceStop() error
}

// LifecycleManager coordinates shutdown of registered components. The same
// idempotent Shutdown runs on SIGINT/SIGTERM and from a deferred call in
// main, so cleanup happens exactly once whichever comes first.
type LifecycleManager struct {
	mu               sync.Mutex
	components       []LifecycleComponent
	shutdownCh       chan struct{}
	done             chan struct{}
	wg               sync.WaitGroup
	isShutdown       bool
	forceKillTimeout time.Duration
	logger           *log.Logger

	// OnSignal runs after a signal-triggered shutdown completes.
	OnSignal func(os.Signal)
}

// NewLifecycleManager creates a new lifecycle manager
func NewLifecycleManager(logger *log.Logger) *LifecycleManager {
	if logger == nil {
		logger = log.Default()
	}
	return &LifecycleManager{
		components:       make([]LifecycleComponent, 0),
		shutdownCh:       make(chan struct{}),
		done:             make(chan struct{}),
		forceKillTimeout: 5 * time.Second,
		logger:           logger,
	}
}

// Register adds a component to lifecycle management
func (lm *LifecycleManager) Register(component LifecycleComponent) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if lm.isShutdown {
		lm.logger.Warn("Cannot register component during shutdown", "component", component.Name())
		return
	}

	lm.components = append(lm.components, component)
	lm.logger.Debug("Registered lifecycle component", "name", component.Name())
}

// Start begins monitoring for shutdown signals
func (lm *LifecycleManager) Start() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	lm.wg.Add(1)
	go lm.monitorSignals(sigCh)
}

// monitorSignals watches for system signals
func (lm *LifecycleManager) monitorSignals(sigCh chan os.Signal) {
	defer lm.wg.Done()
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		lm.logger.Info("Received shutdown signal", "signal", sig)
		_ = lm.shutdown()
		if lm.OnSignal != nil {
			lm.OnSignal(sig)
		}
	case <-lm.shutdownCh:
		lm.logger.Debug("Shutdown initiated programmatically")
	}
}

// Stopping is closed as soon as shutdown begins.
func (lm *LifecycleManager) Stopping() <-chan struct{} {
	return lm.shutdownCh
}

// Shutdown stops every component in reverse order of registration. Only the
// first call does any work; later calls wait for it to finish.
func (lm *LifecycleManager) Shutdown() error {
	err := lm.shutdown()

	// Let the signal watcher exit before returning.
	done := make(chan struct{})
	go func() {
		lm.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		lm.logger.Warn("Timeout waiting for goroutines to finish")
	}
	return err
}

func (lm *LifecycleManager) shutdown() error {
	lm.mu.Lock()
	if lm.isShutdown {
		lm.mu.Unlock()
		<-lm.done
		return nil
	}
	lm.isShutdown = true
	components := lm.components
	lm.mu.Unlock()

	defer close(lm.done)

	lm.logger.Debug("Starting graceful shutdown")
	close(lm.shutdownCh)

	// Create context with timeout for graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), lm.forceKillTimeout)
	defer cancel()

	var errs error
	for i := len(components) - 1; i >= 0; i-- {
		component := components[i]
		lm.logger.Debug("Shutting down component", "name", component.Name())

		// Try graceful shutdown
		if err := component.Shutdown(ctx); err != nil {
			lm.logger.Warn("Component graceful shutdown failed",
				"name", component.Name(),
				"error", err)

			// Force stop if graceful shutdown failed
			if forceErr := component.ForceStop(); forceErr != nil {
				lm.logger.Error("Component force stop failed",
					"name", component.Name(),
					"error", forceErr)
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", component.Name(), forceErr))
			}
		}
	}

	lm.logger.Debug("Graceful shutdown complete")
	return errs
}

// Wait blocks until shutdown is complete
func (lm *LifecycleManager) Wait() {
	<-lm.done
}
