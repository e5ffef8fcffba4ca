// Package channel provides the Channel implementations: terminal, webhook,
// and push (Telegram-style).
package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Sentinel-Gate/acp-gate/internal/domain/action"
	"github.com/Sentinel-Gate/acp-gate/internal/domain/channel"
)

// Terminal is the Channel variant that prompts an operator at the controlling
// terminal: it writes a formatted prompt and reads one line from stdin.
// `y`/`Y` approves; anything else denies.
type Terminal struct {
	in     *bufio.Reader
	out    io.Writer
	mu     sync.Mutex
	logger *slog.Logger
}

// NewTerminal creates a Terminal channel reading from in and writing to out.
func NewTerminal(in io.Reader, out io.Writer, logger *slog.Logger) *Terminal {
	return &Terminal{in: bufio.NewReader(in), out: out, logger: logger}
}

// Ask writes the prompt and waits for a line of stdin until timeout elapses
// or ctx is done; either of those yields a "Timed out" denial. The pending
// read itself is not cancelled.
func (t *Terminal) Ask(ctx context.Context, a action.Action, timeout time.Duration) (channel.Answer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprintf(t.out, "\nConsent requested: %s\nApprove? [y/N]: ", channel.Summary(a))

	type result struct {
		line string
		err  error
	}
	lineCh := make(chan result, 1)
	go func() {
		line, err := t.in.ReadString('\n')
		lineCh <- result{line, err}
	}()

	deadline := time.After(timeout)
	select {
	case <-ctx.Done():
		return channel.Answer{Approved: false, Reason: "Timed out"}, nil
	case <-deadline:
		return channel.Answer{Approved: false, Reason: "Timed out"}, nil
	case r := <-lineCh:
		if r.err != nil {
			t.logger.Error("terminal channel: read error", "error", r.err)
			return channel.Answer{Approved: false, Reason: fmt.Sprintf("Channel error: %v", r.err)}, nil
		}
		line := strings.TrimSpace(r.line)
		approved := line == "y" || line == "Y"
		if approved {
			return channel.Answer{Approved: true}, nil
		}
		return channel.Answer{Approved: false, Reason: "Denied by operator"}, nil
	}
}

var _ channel.Channel = (*Terminal)(nil)
