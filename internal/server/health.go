// Package server serves the health and metrics endpoints of a long running
// build, such as watch mode, and shuts it down gracefully.
package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status is the health of one check or of the whole process.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// severity orders statuses so the worst check decides the overall status.
func (s Status) severity() int {
	switch s {
	case StatusUnhealthy:
		return 2
	case StatusDegraded:
		return 1
	default:
		return 0
	}
}

// CheckResult is the outcome of one check.
type CheckResult struct {
	Name    string            `json:"name"`
	Status  Status            `json:"status"`
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// Check inspects one dependency of the process.
type Check func(ctx context.Context) CheckResult

// Report is the body of every health endpoint.
type Report struct {
	Status    Status        `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Version   string        `json:"version,omitempty"`
	Checks    []CheckResult `json:"checks,omitempty"`
}

// CheckTimeout bounds a /health request.
const CheckTimeout = 5 * time.Second

// Server exposes /health, /ready and /live (and their Kubernetes style
// "z" aliases) plus handlers mounted with Handle.
type Server struct {
	version string
	ready   atomic.Bool
	live    atomic.Bool

	mu     sync.RWMutex
	checks map[string]Check
	mounts map[string]http.Handler
	http   *http.Server
}

// NewServer returns a live server that is not ready yet.
func NewServer(version string) *Server {
	s := &Server{
		version: version,
		checks:  make(map[string]Check),
		mounts:  make(map[string]http.Handler),
	}
	s.live.Store(true)
	return s
}

// AddCheck registers check under name, replacing an earlier one.
func (s *Server) AddCheck(name string, check Check) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = check
}

// Handle mounts h at pattern next to the health endpoints.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mounts[pattern] = h
}

func (s *Server) SetReady(ready bool) { s.ready.Store(ready) }

func (s *Server) SetLive(live bool) { s.live.Store(live) }

// Handler routes the health endpoints and every mounted handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	routes := map[string]http.HandlerFunc{
		"/health": s.serveHealth,
		"/ready":  s.flagHandler(&s.ready),
		"/live":   s.flagHandler(&s.live),
	}
	for path, h := range routes {
		mux.HandleFunc(path, h)
		mux.HandleFunc(path+"z", h)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for pattern, h := range s.mounts {
		mux.Handle(pattern, h)
	}
	return mux
}

// Evaluate runs every check concurrently. Results are ordered by name and
// the worst status wins.
func (s *Server) Evaluate(ctx context.Context) Report {
	s.mu.RLock()
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	checks := make([]Check, len(names))
	for i, name := range names {
		checks[i] = s.checks[name]
	}
	s.mu.RUnlock()

	results := make([]CheckResult, len(checks))
	var g errgroup.Group
	for i := range checks {
		g.Go(func() error {
			r := checks[i](ctx)
			r.Name = names[i]
			results[i] = r
			return nil
		})
	}
	g.Wait()

	report := Report{Status: StatusHealthy, Timestamp: time.Now().UTC(), Version: s.version, Checks: results}
	for _, r := range results {
		if r.Status.severity() > report.Status.severity() {
			report.Status = r.Status
		}
	}
	return report
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), CheckTimeout)
	defer cancel()

	report := s.Evaluate(ctx)
	code := http.StatusOK
	if report.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, report)
}

func (s *Server) flagHandler(set *atomic.Bool) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		report := Report{Status: StatusHealthy, Timestamp: time.Now().UTC()}
		code := http.StatusOK
		if !set.Load() {
			report.Status = StatusUnhealthy
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, report)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// Listen binds addr and serves in the background. It returns the bound
// address, so ":0" picks a free port.
func (s *Server) Listen(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      CheckTimeout + time.Second,
	}
	s.mu.Lock()
	s.http = srv
	s.mu.Unlock()

	go srv.Serve(ln)
	return ln.Addr().String(), nil
}

// Shutdown stops a server started with Listen.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.http
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// PingCheck reports what as unhealthy when ping fails, e.g. the redis
// loader cache.
func PingCheck(what string, ping func(ctx context.Context) error) Check {
	return func(ctx context.Context) CheckResult {
		if err := ping(ctx); err != nil {
			return CheckResult{Status: StatusUnhealthy, Message: what + " unreachable: " + err.Error()}
		}
		return CheckResult{Status: StatusHealthy, Message: what + " OK"}
	}
}

// BuildStatus remembers the outcome of the latest build.
type BuildStatus struct {
	mu     sync.Mutex
	builds int
	at     time.Time
	err    error
}

// Record stores the outcome of a finished build.
func (b *BuildStatus) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.builds++
	b.at = time.Now().UTC()
	b.err = err
}

// Check reports a failed build as degraded: the watcher keeps running and
// the next change may fix it.
func (b *BuildStatus) Check(context.Context) CheckResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.builds == 0 {
		return CheckResult{Status: StatusDegraded, Message: "no build finished yet"}
	}
	details := map[string]string{
		"builds":      strconv.Itoa(b.builds),
		"finished_at": b.at.Format(time.RFC3339),
	}
	if b.err != nil {
		return CheckResult{Status: StatusDegraded, Message: "last build failed: " + b.err.Error(), Details: details}
	}
	return CheckResult{Status: StatusHealthy, Message: "last build succeeded", Details: details}
}
