package server

import (
	"context"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// Hook order. Lower values run first.
const (
	OrderServer  = 10
	OrderTracing = 80
	OrderCache   = 90
)

// Hook releases one resource while the process stops.
type Hook struct {
	Name  string
	Order int
	Fn    func(ctx context.Context) error
}

// ServerHook stops an HTTP server before anything it reports on.
func ServerHook(name string, fn func(ctx context.Context) error) Hook {
	return Hook{Name: name, Order: OrderServer, Fn: fn}
}

// TracingHook flushes pending spans.
func TracingHook(fn func(ctx context.Context) error) Hook {
	return Hook{Name: "tracing", Order: OrderTracing, Fn: fn}
}

// CacheHook closes the loader cache store last.
func CacheHook(closeFn func() error) Hook {
	return Hook{Name: "cache", Order: OrderCache, Fn: func(context.Context) error { return closeFn() }}
}

// StopConfig configures a Stopper. A zero Timeout means no deadline for the
// hooks and no Signals means only Stop ends the process.
type StopConfig struct {
	Timeout time.Duration
	Signals []os.Signal
	Logger  zerolog.Logger
}

// DefaultStopConfig stops on SIGINT or SIGTERM and gives the hooks ten
// seconds.
func DefaultStopConfig() StopConfig {
	return StopConfig{
		Timeout: 10 * time.Second,
		Signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
		Logger:  zerolog.Nop(),
	}
}

// Stopper runs its hooks exactly once, when a signal arrives or Stop is
// called after Listen.
type Stopper struct {
	cfg StopConfig

	mu        sync.Mutex
	hooks     []Hook
	listening bool

	trigger  chan struct{}
	stopping chan struct{}
	done     chan struct{}
	once     sync.Once
}

func NewStopper(cfg StopConfig) *Stopper {
	return &Stopper{
		cfg:      cfg,
		trigger:  make(chan struct{}),
		stopping: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// OnStop registers h. Hooks with equal Order run in registration order.
func (s *Stopper) OnStop(h Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, h)
	sort.SliceStable(s.hooks, func(i, j int) bool { return s.hooks[i].Order < s.hooks[j].Order })
}

// Listen starts waiting for a signal or Stop. Calling it again is a no-op.
func (s *Stopper) Listen() {
	s.mu.Lock()
	if s.listening {
		s.mu.Unlock()
		return
	}
	s.listening = true
	s.mu.Unlock()

	sigs := make(chan os.Signal, 1)
	if len(s.cfg.Signals) > 0 {
		signal.Notify(sigs, s.cfg.Signals...)
	}
	go func() {
		defer signal.Stop(sigs)
		select {
		case sig := <-sigs:
			s.cfg.Logger.Info().Str("signal", sig.String()).Msg("stopping")
		case <-s.trigger:
		}
		s.run()
	}()
}

// Stop asks a listening Stopper to run its hooks. Before Listen it does
// nothing.
func (s *Stopper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.listening {
		return
	}
	s.once.Do(func() { close(s.trigger) })
}

// Stopping is closed when the hooks start running.
func (s *Stopper) Stopping() <-chan struct{} { return s.stopping }

// Done is closed once every hook has returned.
func (s *Stopper) Done() <-chan struct{} { return s.done }

// Wait blocks until the hooks finished or ctx ends.
func (s *Stopper) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Context derives a context from parent that is cancelled when stopping
// begins.
func (s *Stopper) Context(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		defer cancel()
		select {
		case <-s.stopping:
		case <-ctx.Done():
		}
	}()
	return ctx
}

func (s *Stopper) run() {
	close(s.stopping)
	defer close(s.done)

	ctx := context.Background()
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	s.mu.Lock()
	hooks := append([]Hook(nil), s.hooks...)
	s.mu.Unlock()

	for _, h := range hooks {
		start := time.Now()
		if err := h.Fn(ctx); err != nil {
			s.cfg.Logger.Warn().Err(err).Str("hook", h.Name).Msg("stop hook failed")
			continue
		}
		s.cfg.Logger.Debug().Str("hook", h.Name).Dur("took", time.Since(start)).Msg("stop hook done")
	}
}

// Endpoint is the watch mode sidecar: the health server plus the Stopper
// that takes it down.
type Endpoint struct {
	Health *Server
	Stop   *Stopper
}

// NewEndpoint wires the health server into stop: it stops being ready as
// soon as stopping begins and is shut down before the other hooks.
func NewEndpoint(version string, cfg StopConfig) *Endpoint {
	e := &Endpoint{Health: NewServer(version), Stop: NewStopper(cfg)}
	e.Stop.OnStop(ServerHook("health-server", e.Health.Shutdown))
	go func() {
		<-e.Stop.Stopping()
		e.Health.SetReady(false)
	}()
	return e
}

// Start listens for signals and, when addr is set, serves the health
// endpoints on it. It returns the bound address.
func (e *Endpoint) Start(addr string) (string, error) {
	e.Stop.Listen()
	if addr == "" {
		return "", nil
	}
	bound, err := e.Health.Listen(addr)
	if err != nil {
		return "", err
	}
	e.Health.SetReady(true)
	return bound, nil
}

// Close runs the hooks, if no signal did already, and waits for them.
func (e *Endpoint) Close() {
	e.Stop.Listen()
	e.Stop.Stop()
	<-e.Stop.Done()
}
