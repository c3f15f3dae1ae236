package notifier

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/guardian-safety/alert-engine/internal/domain/alert"
)

// ConsoleChannel writes messages to an io.Writer. It backs the engine
// simulator and doubles as a last-resort local fallback, sending to it
// always succeeds.
type ConsoleChannel struct {
	// mu serializes writes from parallel fan-out goroutines.
	mu sync.Mutex
	// out receives the rendered messages.
	out io.Writer
}

// NewConsoleChannel creates a console channel writing to out.
func NewConsoleChannel(out io.Writer) *ConsoleChannel {
	return &ConsoleChannel{
		out: out,
	}
}

// Name identifies the channel in attempt logs.
func (c *ConsoleChannel) Name() string {
	return "console"
}

// Send writes the message addressed to the contact.
func (c *ConsoleChannel) Send(_ context.Context, contact alert.ContactRef, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := fmt.Fprintf(c.out, "-> %s <%s>: %s\n",
		contact.DisplayName, contact.ChannelAddress, message); err != nil {
		return fmt.Errorf("write message: %w", err)
	}

	return nil
}
