package store

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"routemaster/internal/api"
	"routemaster/internal/auth"
	"routemaster/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// fakeBackend counts requests per "METHOD path?query" and serves registered
// handlers keyed by "METHOD path".
type fakeBackend struct {
	mu       sync.Mutex
	hits     map[string]int
	bodies   map[string][]string
	handlers map[string]http.HandlerFunc
	srv      *httptest.Server
}

func newFakeBackend(t *testing.T) *fakeBackend {
	b := &fakeBackend{
		hits:     map[string]int{},
		bodies:   map[string][]string{},
		handlers: map[string]http.HandlerFunc{},
	}
	b.srv = httptest.NewServer(http.HandlerFunc(b.serve))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBackend) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	route := r.Method + " " + r.URL.Path
	full := route
	if r.URL.RawQuery != "" {
		full += "?" + r.URL.RawQuery
	}

	b.mu.Lock()
	b.hits[full]++
	b.hits[route+" *"]++
	b.bodies[route] = append(b.bodies[route], string(body))
	h := b.handlers[route]
	b.mu.Unlock()

	if h == nil {
		http.NotFound(w, r)
		return
	}
	h(w, r)
}

func (b *fakeBackend) handle(method, path string, h http.HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[method+" "+path] = h
}

func (b *fakeBackend) reply(method, path string, status int, payload any) {
	b.handle(method, path, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, status, payload)
	})
}

// count returns the hits of an exact "METHOD path?query".
func (b *fakeBackend) count(request string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[request]
}

// countAny returns the hits of "METHOD path" with any query.
func (b *fakeBackend) countAny(method, path string) int {
	return b.count(method + " " + path + " *")
}

func (b *fakeBackend) lastBody(method, path string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	bodies := b.bodies[method+" "+path]
	if len(bodies) == 0 {
		return ""
	}
	return bodies[len(bodies)-1]
}

func (b *fakeBackend) client() *api.Client {
	return api.NewClient(b.srv.URL, 2*time.Second, auth.NewStaticSession("test-token", nil), zap.NewNop())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
	levels   []Severity
}

func (n *recordingNotifier) Notify(severity Severity, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	n.levels = append(n.levels, severity)
}

func (n *recordingNotifier) errors() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for i, m := range n.messages {
		if n.levels[i] == SeverityError {
			out = append(out, m)
		}
	}
	return out
}

func testOptions() (Options, *recordingNotifier, *metrics.Metrics) {
	notifier := &recordingNotifier{}
	m := metrics.New(prometheus.NewRegistry())
	return Options{Notifier: notifier, Logger: zap.NewNop(), Metrics: m}, notifier, m
}

func strPtr(s string) *string { return &s }

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)
