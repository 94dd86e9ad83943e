// Package server runs a process's HTTP and gRPC servers and shuts them down gracefully.
package server

import (
	"context"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/enset/storefront/common/logger"
)

// ErrShutdownTimeout is returned when servers or hooks did not finish within the
// shutdown timeout.
var ErrShutdownTimeout = errors.New("shutdown timed out")

// ErrNoServers is returned by Run when no server was configured.
var ErrNoServers = errors.New("no servers configured")

type httpEntry struct {
	cfg    HTTPConfig
	server *http.Server
}

type grpcEntry struct {
	cfg    GRPCConfig
	server *grpc.Server
}

// Server owns a set of listeners. Create it with NewServer and block in Run.
type Server struct {
	httpServers     []*httpEntry
	grpcServers     []*grpcEntry
	hooks           ShutdownHooks
	shutdownTimeout time.Duration
	log             *logger.Logger

	mu        sync.Mutex
	addrs     map[string]net.Addr
	listening chan struct{}
}

// Option configures a Server.
type Option func(*Server) error

// WithHTTPServer adds an HTTP server.
func WithHTTPServer(name, address string, handler http.Handler, opts ...HTTPConfigOption) Option {
	return func(s *Server) error {
		if handler == nil {
			return errors.Newf("http server %q: handler is required", name)
		}
		cfg := newHTTPConfig(name, address, handler, opts...)
		s.httpServers = append(s.httpServers, &httpEntry{cfg: cfg, server: cfg.server()})
		return nil
	}
}

// WithGRPCServer adds a gRPC server. When grpcServer is nil one is created without
// interceptors; setup registers the services.
func WithGRPCServer(name, address string, grpcServer *grpc.Server, setup func(*grpc.Server)) Option {
	return func(s *Server) error {
		if setup == nil {
			return errors.Newf("grpc server %q: setup function is required", name)
		}
		if grpcServer == nil {
			grpcServer = NewServerWithCustomInterceptorChain(nil, nil)
		}
		setup(grpcServer)
		s.grpcServers = append(s.grpcServers, &grpcEntry{
			cfg:    GRPCConfig{Name: name, Address: address},
			server: grpcServer,
		})
		return nil
	}
}

// WithShutdownTimeout bounds the whole graceful shutdown, hooks included.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(s *Server) error {
		s.shutdownTimeout = timeout
		return nil
	}
}

// WithShutdownHook adds a hook run after the servers stopped, in priority order.
func WithShutdownHook(hook ShutdownHook) Option {
	return func(s *Server) error {
		if hook.Hook == nil {
			return errors.Newf("shutdown hook %q: function is required", hook.Name)
		}
		s.hooks = append(s.hooks, hook)
		return nil
	}
}

// WithLogger sets the logger used for lifecycle events.
func WithLogger(log *logger.Logger) Option {
	return func(s *Server) error {
		s.log = log
		return nil
	}
}

// NewServer validates the options. Server names and fixed addresses must be unique.
func NewServer(opts ...Option) (*Server, error) {
	s := &Server{
		shutdownTimeout: DefaultShutdownTimeout,
		log:             logger.Default(),
		addrs:           make(map[string]net.Addr),
		listening:       make(chan struct{}),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	names := make(map[string]struct{})
	addresses := make(map[string]struct{})
	check := func(name, address string) error {
		if _, dup := names[name]; dup {
			return errors.Newf("duplicate server name %q", name)
		}
		names[name] = struct{}{}
		if _, port, err := net.SplitHostPort(address); err == nil && port == "0" {
			return nil
		}
		if _, dup := addresses[address]; dup {
			return errors.Newf("duplicate server address %q", address)
		}
		addresses[address] = struct{}{}
		return nil
	}
	for _, h := range s.httpServers {
		if err := check(h.cfg.Name, h.cfg.Address); err != nil {
			return nil, err
		}
	}
	for _, g := range s.grpcServers {
		if err := check(g.cfg.Name, g.cfg.Address); err != nil {
			return nil, err
		}
	}
	sort.Stable(s.hooks)
	return s, nil
}

// Run listens on every address and serves until ctx is done, then shuts down gracefully.
// A server failing to listen or serve stops the others. Run must be called once.
func (s *Server) Run(ctx context.Context) error {
	if len(s.httpServers) == 0 && len(s.grpcServers) == 0 {
		return ErrNoServers
	}

	var lc net.ListenConfig
	listeners := make(map[string]net.Listener)
	listen := func(name, address string) error {
		lis, err := lc.Listen(ctx, "tcp", address)
		if err != nil {
			for _, l := range listeners {
				_ = l.Close()
			}
			return errors.Wrapf(err, "listening for %s on %s", name, address)
		}
		listeners[name] = lis
		s.mu.Lock()
		s.addrs[name] = lis.Addr()
		s.mu.Unlock()
		return nil
	}
	for _, h := range s.httpServers {
		if err := listen(h.cfg.Name, h.cfg.Address); err != nil {
			return err
		}
	}
	for _, g := range s.grpcServers {
		if err := listen(g.cfg.Name, g.cfg.Address); err != nil {
			return err
		}
	}
	close(s.listening)

	g, gctx := errgroup.WithContext(ctx)
	for _, h := range s.httpServers {
		g.Go(func() error {
			s.log.Info("serving http", logger.String("server", h.cfg.Name), logger.String("address", listeners[h.cfg.Name].Addr().String()))
			if err := h.server.Serve(listeners[h.cfg.Name]); !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrapf(err, "http server %s", h.cfg.Name)
			}
			return nil
		})
	}
	for _, e := range s.grpcServers {
		g.Go(func() error {
			s.log.Info("serving grpc", logger.String("server", e.cfg.Name), logger.String("address", listeners[e.cfg.Name].Addr().String()))
			if err := e.server.Serve(listeners[e.cfg.Name]); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return errors.Wrapf(err, "grpc server %s", e.cfg.Name)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		s.log.Info("shutting down")
		return s.GracefulShutdown(context.WithoutCancel(ctx))
	})
	return g.Wait()
}

// Addr returns the bound address of the named server once Run is listening.
func (s *Server) Addr(name string) net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addrs[name]
}

// Listening is closed once every server is bound.
func (s *Server) Listening() <-chan struct{} { return s.listening }

// GracefulShutdown stops the servers, letting in-flight requests finish, then runs the
// shutdown hooks. Everything shares the shutdown timeout; ErrShutdownTimeout reports
// that it was exceeded.
func (s *Server) GracefulShutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, len(s.httpServers))
	for _, h := range s.httpServers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := h.server.Shutdown(ctx); err != nil {
				errs <- errors.Wrapf(err, "stopping http server %s", h.cfg.Name)
			}
		}()
	}
	for _, e := range s.grpcServers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stopped := make(chan struct{})
			go func() {
				e.server.GracefulStop()
				close(stopped)
			}()
			select {
			case <-stopped:
			case <-ctx.Done():
				e.server.Stop()
			}
		}()
	}
	wg.Wait()
	close(errs)

	var err error
	for e := range errs {
		err = errors.CombineErrors(err, e)
	}
	if hookErr := s.ExecuteShutdownHooks(ctx); hookErr != nil {
		err = errors.CombineErrors(err, hookErr)
	}
	if ctx.Err() != nil {
		err = errors.CombineErrors(errors.Mark(errors.Wrap(ctx.Err(), "graceful shutdown"), ErrShutdownTimeout), err)
	}
	return err
}

// ExecuteShutdownHooks runs the hooks in priority order. A failing hook does not stop
// the following ones; the remaining hooks are skipped once ctx is done.
func (s *Server) ExecuteShutdownHooks(ctx context.Context) error {
	var err error
	for _, hook := range s.hooks {
		if ctx.Err() != nil {
			return errors.CombineErrors(errors.Mark(errors.Wrapf(ctx.Err(), "skipping shutdown hook %q", hook.Name), ErrShutdownTimeout), err)
		}
		if hookErr := hook.run(ctx); hookErr != nil {
			s.log.Error("shutdown hook failed", logger.String("hook", hook.Name), logger.Error(hookErr))
			err = errors.CombineErrors(err, hookErr)
		}
	}
	return err
}
