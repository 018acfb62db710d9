package health

import (
	"net/http"
	"sync"

	json "github.com/goccy/go-json"
)

// Status represents the health state of a component.
type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// Component names registered by the sync pipeline.
const (
	ComponentSource     = "source"
	ComponentSink       = "sink"
	ComponentCheckpoint = "checkpoint"
)

// Checker tracks the health of registered components plus the current
// pipeline state.
type Checker struct {
	mu         sync.RWMutex
	components map[string]Status
	state      string
	ready      bool
}

// NewChecker creates a Checker with no registered components.
func NewChecker() *Checker {
	return &Checker{
		components: make(map[string]Status),
	}
}

// Register adds a component with an initial status of down.
func (c *Checker) Register(names ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range names {
		c.components[name] = StatusDown
	}
}

// SetStatus updates the health status of a named component.
func (c *Checker) SetStatus(name string, status Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.components[name] = status
}

// SetState records the pipeline state. The checker reports ready only while
// streaming is true.
func (c *Checker) SetState(state string, streaming bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
	c.ready = streaming
}

type response struct {
	Status     Status            `json:"status"`
	State      string            `json:"state,omitempty"`
	Components map[string]Status `json:"components"`
}

// ServeHTTP responds with the aggregated health status.
// Returns 200 when all components are up, 503 when any is down.
func (c *Checker) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	c.mu.RLock()
	overall := StatusUp
	comps := make(map[string]Status, len(c.components))
	for name, status := range c.components {
		comps[name] = status
		switch status {
		case StatusDown:
			overall = StatusDown
		case StatusDegraded:
			if overall == StatusUp {
				overall = StatusDegraded
			}
		}
	}
	state := c.state
	c.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if overall == StatusDown {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(response{
		Status:     overall,
		State:      state,
		Components: comps,
	})
}

// ServeReady responds 200 while the pipeline is streaming, 503 otherwise.
func (c *Checker) ServeReady(w http.ResponseWriter, _ *http.Request) {
	c.mu.RLock()
	ready, state := c.ready, c.state
	c.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"ready": ready, "state": state})
}
