// Package errorsonexit collects non-fatal errors during a run and reports them
// once at the end. A run with a non-empty collector exits non-zero.
package errorsonexit

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// ErrRunFailed is returned by Report when errors were collected.
var ErrRunFailed = errors.New("errors occurred during the run")

// Collector is an append-only list of error messages. It is safe for
// concurrent use.
type Collector struct {
	mu       sync.Mutex
	messages []string
}

// New returns an empty collector.
func New() *Collector {
	return &Collector{}
}

// Add records msg.
func (c *Collector) Add(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
}

// Addf records a formatted message.
func (c *Collector) Addf(format string, args ...any) {
	c.Add(fmt.Sprintf(format, args...))
}

// Errors returns a copy of the recorded messages in insertion order.
func (c *Collector) Errors() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of recorded messages.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

// Report logs every recorded message and returns ErrRunFailed when there was
// at least one.
func (c *Collector) Report(logger zerolog.Logger) error {
	msgs := c.Errors()
	if len(msgs) == 0 {
		return nil
	}
	for _, msg := range msgs {
		logger.Error().Msg(msg)
	}
	return fmt.Errorf("%w (%d):\n%s", ErrRunFailed, len(msgs), strings.Join(msgs, "\n"))
}
