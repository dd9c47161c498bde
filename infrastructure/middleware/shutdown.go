// Package middleware provides HTTP middleware for the service.
package middleware

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/skyport-ops/soc-backend/pkg/logger"
)

// shutdownTask is a named background worker drained during shutdown: the
// consumer manager, the SLA sweep, or anything else main.go registers.
// The name is logged so a panicking or slow drain is attributable.
type shutdownTask struct {
	name string
	fn   func()
}

// GracefulShutdown coordinates an orderly stop of the HTTP server plus
// whatever background workers (the consumer manager, the SLA sweep)
// main.go registers via OnShutdown.
type GracefulShutdown struct {
	mu           sync.Mutex
	server       *http.Server
	timeout      time.Duration
	log          *logger.Logger
	shutdownChan chan struct{}
	tasks        []shutdownTask
}

func NewGracefulShutdown(server *http.Server, timeout time.Duration, log *logger.Logger) *GracefulShutdown {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = logger.NewDefault("shutdown")
	}
	return &GracefulShutdown{
		server:       server,
		timeout:      timeout,
		log:          log,
		shutdownChan: make(chan struct{}),
	}
}

// OnShutdown registers a named callback run during shutdown, in
// registration order, before the HTTP server itself stops accepting
// drains. name identifies the worker being drained (e.g.
// "consumer-manager", "sla-sweep") in the shutdown log lines.
func (g *GracefulShutdown) OnShutdown(name string, callback func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tasks = append(g.tasks, shutdownTask{name: name, fn: callback})
}

func (g *GracefulShutdown) ListenForSignals() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		sig := <-sigChan
		g.log.WithField("signal", sig.String()).Info("received shutdown signal")
		g.Shutdown()
	}()
}

func (g *GracefulShutdown) Shutdown() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, task := range g.tasks {
		func() {
			taskLog := g.log.WithField("task", task.name)
			defer func() {
				if r := recover(); r != nil {
					taskLog.Errorf("panic draining shutdown task: %v", r)
				}
			}()
			taskLog.Info("draining shutdown task")
			task.fn()
		}()
	}

	if g.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
		defer cancel()
		if err := g.server.Shutdown(ctx); err != nil {
			g.log.WithError(err).Error("error shutting down http server")
		}
	}

	close(g.shutdownChan)
}

func (g *GracefulShutdown) Wait() {
	<-g.shutdownChan
}
