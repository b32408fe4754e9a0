// Package testutil holds in-memory transports for tests.
package testutil

import (
	"encoding/json"
	"sync"

	"github.com/dkeye/Chat/internal/core"
)

// Conn records every frame it accepts. Fail makes TrySend return the given error.
type Conn struct {
	mu     sync.Mutex
	frames []core.Frame
	closed bool
	fail   error
}

func NewConn() *Conn { return &Conn{} }

func (c *Conn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrConnectionClosed
	}
	if c.fail != nil {
		return c.fail
	}
	c.frames = append(c.frames, append(core.Frame(nil), f...))
	return nil
}

func (c *Conn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *Conn) Fail(err error) {
	c.mu.Lock()
	c.fail = err
	c.mu.Unlock()
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Events decodes every recorded frame.
func (c *Conn) Events() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.frames))
	for _, f := range c.frames {
		var m map[string]any
		if err := json.Unmarshal(f, &m); err == nil {
			out = append(out, m)
		}
	}
	return out
}

// Values returns the string value of key across recorded events that carry it.
func (c *Conn) Values(key string) []string {
	var out []string
	for _, e := range c.Events() {
		if v, ok := e[key].(string); ok {
			out = append(out, v)
		}
	}
	return out
}

// Last returns the last recorded event carrying key.
func (c *Conn) Last(key string) (map[string]any, bool) {
	events := c.Events()
	for i := len(events) - 1; i >= 0; i-- {
		if _, ok := events[i][key]; ok {
			return events[i], true
		}
	}
	return nil, false
}

// Reset forgets recorded frames.
func (c *Conn) Reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}
