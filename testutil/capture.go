package testutil

import (
	"bytes"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
)

// LineCapture is an io.Writer that collects newline-terminated output, such
// as the stdout sink's JSON documents, for tests to read back in order.
// Nothing written is dropped.
type LineCapture struct {
	mu      sync.Mutex
	partial []byte
	lines   []string
	read    int
	grew    chan struct{} // closed when a line arrives, then replaced
}

func NewLineCapture() *LineCapture {
	return &LineCapture{grew: make(chan struct{})}
}

func (c *LineCapture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.partial = append(c.partial, p...)
	added := false
	for {
		i := bytes.IndexByte(c.partial, '\n')
		if i < 0 {
			break
		}
		if line := string(bytes.TrimRight(c.partial[:i], "\r")); line != "" {
			c.lines = append(c.lines, line)
			added = true
		}
		c.partial = c.partial[i+1:]
	}
	if added {
		close(c.grew)
		c.grew = make(chan struct{})
	}
	return len(p), nil
}

// WaitLine returns the next unread line, waiting up to timeout for one to be
// written. It fails the test on timeout.
func (c *LineCapture) WaitLine(t testing.TB, timeout time.Duration) string {
	t.Helper()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		c.mu.Lock()
		if c.read < len(c.lines) {
			line := c.lines[c.read]
			c.read++
			c.mu.Unlock()
			return line
		}
		grew := c.grew
		c.mu.Unlock()

		select {
		case <-grew:
		case <-deadline.C:
			t.Fatalf("no output line within %s (%d read)", timeout, c.readCount())
			return ""
		}
	}
}

// WaitJSON decodes the next unread line into v.
func (c *LineCapture) WaitJSON(t testing.TB, timeout time.Duration, v any) {
	t.Helper()
	line := c.WaitLine(t, timeout)
	if err := json.Unmarshal([]byte(line), v); err != nil {
		t.Fatalf("decode %q: %v", line, err)
	}
}

// Lines returns every complete line written so far, read or not.
func (c *LineCapture) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

func (c *LineCapture) readCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.read
}
