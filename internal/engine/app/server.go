// Package app wires the engine's stores, pipeline, and HTTP surface into a
// runnable server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	engineapi "github.com/louisbranch/torchbearer.quest/internal/engine/api/http"
	"github.com/louisbranch/torchbearer.quest/internal/engine/broadcast"
	redisbroadcast "github.com/louisbranch/torchbearer.quest/internal/engine/broadcast/redis"
	"github.com/louisbranch/torchbearer.quest/internal/engine/narrative"
	"github.com/louisbranch/torchbearer.quest/internal/engine/pipeline"
	"github.com/louisbranch/torchbearer.quest/internal/engine/service"
	"github.com/louisbranch/torchbearer.quest/internal/engine/storage/sqlite"
	"github.com/louisbranch/torchbearer.quest/internal/platform/telemetry/metrics"
	"github.com/louisbranch/torchbearer.quest/internal/platform/timeouts"
	"github.com/louisbranch/torchbearer.quest/internal/random"
)

// Options configures the engine server.
type Options struct {
	// Addr is the HTTP listen address, e.g. ":8084".
	Addr string
	// DatabasePath locates the sqlite file; defaults under the data dir.
	DatabasePath string
	// TokenSecret verifies gateway-issued bearer tokens.
	TokenSecret []byte
	// RedisAddr enables the Redis broadcaster when set; without it
	// notifications stay in-process, which suits single-node setups.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// Generator overrides the built-in scripted narrator.
	Generator narrative.Generator
}

// Server hosts the engine service.
type Server struct {
	listener    net.Listener
	httpServer  *http.Server
	store       *sqlite.Store
	worker      *pipeline.Worker
	broadcaster broadcast.Broadcaster
	redis       *redisbroadcast.Publisher
}

// New creates a configured engine server listening on opts.Addr.
func New(opts Options) (*Server, error) {
	if len(opts.TokenSecret) == 0 {
		return nil, errors.New("token secret is required")
	}

	listener, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", opts.Addr, err)
	}

	store, err := openStore(opts.DatabasePath)
	if err != nil {
		_ = listener.Close()
		return nil, err
	}

	var (
		broadcaster broadcast.Broadcaster
		redisPub    *redisbroadcast.Publisher
	)
	if strings.TrimSpace(opts.RedisAddr) != "" {
		redisPub = redisbroadcast.New(opts.RedisAddr, opts.RedisPassword, opts.RedisDB)
		broadcaster = redisPub
	} else {
		broadcaster = broadcast.NewMemory()
	}

	registry := prometheus.NewRegistry()
	collectors := metrics.New(registry)

	svc := service.New(service.Deps{
		Store:       store,
		Broadcaster: broadcaster,
		Metrics:     collectors,
	})

	generator := opts.Generator
	if generator == nil {
		generator = narrative.NewScripted(random.MustSeed())
	}
	worker := pipeline.New(pipeline.Deps{
		Store:       store,
		Generator:   generator,
		Broadcaster: broadcaster,
		Service:     svc,
		Metrics:     collectors,
	})

	handler := engineapi.NewRouter(svc, engineapi.NewTokenVerifier(opts.TokenSecret), registry)
	httpServer := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: timeouts.ReadHeader,
	}

	return &Server{
		listener:    listener,
		httpServer:  httpServer,
		store:       store,
		worker:      worker,
		broadcaster: broadcaster,
		redis:       redisPub,
	}, nil
}

// Addr returns the listener address.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run creates and serves an engine server until the context ends.
func Run(ctx context.Context, opts Options) error {
	srv, err := New(opts)
	if err != nil {
		return err
	}
	return srv.Serve(ctx)
}

// Serve starts the server and blocks until it stops or the context ends.
func (s *Server) Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	serverCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.close()

	s.worker.Start(serverCtx)

	log.Printf("engine listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(s.listener)
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), timeouts.Shutdown)
	defer cancelShutdown()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http: %w", err)
	}
	cancel()
	s.worker.Wait()
	return nil
}

func (s *Server) close() {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			log.Printf("close redis publisher: %v", err)
		}
	}
	if err := s.store.Close(); err != nil {
		log.Printf("close store: %v", err)
	}
}

// openStore resolves the sqlite path and opens the store, creating the
// data directory when missing.
func openStore(path string) (*sqlite.Store, error) {
	if strings.TrimSpace(path) == "" {
		path = filepath.Join("data", "engine.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir %s: %w", dir, err)
		}
	}
	return sqlite.Open(path)
}
