package ui

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/vietddude/finality/internal/core/domain"
	"github.com/vietddude/finality/internal/notifier"
)

// DefaultTick is how often the console reports a running countdown.
const DefaultTick = 10 * time.Second

// Console renders prompts as log lines. Countdowns are reported every tick
// until the deadline passes or the prompt closes.
type Console struct {
	clock clockwork.Clock
	log   *slog.Logger
	tick  time.Duration

	mu   sync.Mutex
	open map[*consoleHandle]struct{}
}

// ConsoleOption configures a Console.
type ConsoleOption func(*Console)

// WithConsoleClock sets the clock driving countdown ticks.
func WithConsoleClock(c clockwork.Clock) ConsoleOption {
	return func(con *Console) { con.clock = c }
}

// WithConsoleLogger sets the logger prompts are written to.
func WithConsoleLogger(l *slog.Logger) ConsoleOption {
	return func(c *Console) { c.log = l }
}

// WithTick sets the countdown reporting interval.
func WithTick(d time.Duration) ConsoleOption {
	return func(c *Console) {
		if d > 0 {
			c.tick = d
		}
	}
}

// NewConsole creates a Console surface.
func NewConsole(opts ...ConsoleOption) *Console {
	c := &Console{
		clock: clockwork.NewRealClock(),
		log:   slog.Default(),
		tick:  DefaultTick,
		open:  make(map[*consoleHandle]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Prompt implements notifier.PromptSurface.
func (c *Console) Prompt(ctx context.Context, spec domain.PromptSpec) (notifier.PromptHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h := &consoleHandle{
		console:   c,
		closed:    make(chan struct{}),
		dismissed: make(chan struct{}),
	}
	c.mu.Lock()
	c.open[h] = struct{}{}
	c.mu.Unlock()

	c.log.Info(spec.Title, "message", spec.Body)

	if deadline, ok := spec.Countdown(); ok {
		go c.countdown(h, deadline)
	}
	return h, nil
}

// Dismiss dismisses every open prompt, as a user closing the console would.
func (c *Console) Dismiss() int {
	c.mu.Lock()
	handles := make([]*consoleHandle, 0, len(c.open))
	for h := range c.open {
		handles = append(handles, h)
	}
	c.mu.Unlock()

	for _, h := range handles {
		h.dismiss()
	}
	return len(handles)
}

func (c *Console) countdown(h *consoleHandle, deadline time.Time) {
	ticker := c.clock.NewTicker(c.tick)
	defer ticker.Stop()

	for {
		select {
		case <-h.closed:
			return
		case <-h.dismissed:
			return
		case <-ticker.Chan():
			remaining := deadline.Sub(c.clock.Now())
			if remaining <= 0 {
				c.log.Info("Countdown finished, checking finality")
				return
			}
			c.log.Info("Waiting before finality check", "remaining", remaining.Round(time.Second))
		}
	}
}

func (c *Console) remove(h *consoleHandle) {
	c.mu.Lock()
	delete(c.open, h)
	c.mu.Unlock()
}

type consoleHandle struct {
	console     *Console
	closeOnce   sync.Once
	dismissed   chan struct{}
	closed      chan struct{}
	dismissOnce sync.Once
}

func (h *consoleHandle) Cancel() {
	h.closeOnce.Do(func() {
		close(h.closed)
		h.console.remove(h)
	})
}

func (h *consoleHandle) Dismissed() <-chan struct{} { return h.dismissed }

func (h *consoleHandle) dismiss() {
	h.dismissOnce.Do(func() {
		close(h.dismissed)
		h.console.remove(h)
	})
}
