// Package ui provides prompt surfaces for the notifier.
package ui

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/vietddude/finality/internal/core/domain"
	"github.com/vietddude/finality/internal/notifier"
)

// ErrPromptNotFound is returned for unknown or already closed prompts.
var ErrPromptNotFound = errors.New("prompt not found")

// Prompt is an open prompt held by the Inbox.
type Prompt struct {
	ID        string            `json:"id"`
	Spec      domain.PromptSpec `json:"spec"`
	CreatedAt time.Time         `json:"created_at"`
}

// Inbox keeps open prompts in memory until they are canceled or dismissed.
type Inbox struct {
	clock clockwork.Clock
	log   *slog.Logger

	mu      sync.RWMutex
	prompts map[string]*inboxEntry
}

type inboxEntry struct {
	prompt    Prompt
	dismissed chan struct{}
}

// InboxOption configures an Inbox.
type InboxOption func(*Inbox)

// WithInboxClock sets the clock used for timestamps.
func WithInboxClock(c clockwork.Clock) InboxOption {
	return func(b *Inbox) { b.clock = c }
}

// WithInboxLogger sets the logger.
func WithInboxLogger(l *slog.Logger) InboxOption {
	return func(b *Inbox) { b.log = l }
}

// NewInbox creates an empty Inbox.
func NewInbox(opts ...InboxOption) *Inbox {
	b := &Inbox{
		clock:   clockwork.NewRealClock(),
		log:     slog.Default(),
		prompts: make(map[string]*inboxEntry),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Prompt implements notifier.PromptSurface.
func (b *Inbox) Prompt(ctx context.Context, spec domain.PromptSpec) (notifier.PromptHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e := &inboxEntry{
		prompt: Prompt{
			ID:        uuid.NewString(),
			Spec:      spec,
			CreatedAt: b.clock.Now(),
		},
		dismissed: make(chan struct{}),
	}

	b.mu.Lock()
	b.prompts[e.prompt.ID] = e
	b.mu.Unlock()

	b.log.Debug("Prompt opened", "prompt", e.prompt.ID, "title", spec.Title)
	return &inboxHandle{inbox: b, entry: e}, nil
}

// Dismiss closes a prompt on behalf of the user.
func (b *Inbox) Dismiss(id string) error {
	b.mu.Lock()
	e, ok := b.prompts[id]
	if ok {
		delete(b.prompts, id)
	}
	b.mu.Unlock()

	if !ok {
		return ErrPromptNotFound
	}
	close(e.dismissed)
	b.log.Debug("Prompt dismissed", "prompt", id)
	return nil
}

// Get returns an open prompt.
func (b *Inbox) Get(id string) (Prompt, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.prompts[id]
	if !ok {
		return Prompt{}, false
	}
	return e.prompt, true
}

// List returns open prompts, oldest first.
func (b *Inbox) List() []Prompt {
	b.mu.RLock()
	out := make([]Prompt, 0, len(b.prompts))
	for _, e := range b.prompts {
		out = append(out, e.prompt)
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Len returns the number of open prompts.
func (b *Inbox) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.prompts)
}

func (b *Inbox) cancel(e *inboxEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cur, ok := b.prompts[e.prompt.ID]; ok && cur == e {
		delete(b.prompts, e.prompt.ID)
	}
}

type inboxHandle struct {
	inbox *Inbox
	entry *inboxEntry
}

// Cancel withdraws the prompt without signalling a dismissal.
func (h *inboxHandle) Cancel() { h.inbox.cancel(h.entry) }

func (h *inboxHandle) Dismissed() <-chan struct{} { return h.entry.dismissed }
