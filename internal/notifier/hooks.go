package notifier

import (
	"context"
	"errors"
	"sync"

	"github.com/vietddude/finality/internal/core/domain"
	"github.com/vietddude/finality/internal/finality"
)

// HookType names a host extension point.
type HookType string

const HookAfterBroadcast HookType = "after_broadcast"

// BroadcastRequest describes a transaction the host has just broadcast.
type BroadcastRequest struct {
	Ref domain.TransactionRef
}

// HookContext bundles the collaborators a hook may use for one broadcast.
type HookContext struct {
	Query   finality.StatusQuery
	Surface PromptSurface
}

// HookFunc is invoked by the host once per broadcast transaction.
type HookFunc func(ctx context.Context, req BroadcastRequest, hctx HookContext) error

// HookRegistrar is the host side of hook registration.
type HookRegistrar interface {
	AddHook(t HookType, fn HookFunc)
}

// Hooks is an in-process HookRegistrar that fires hooks in registration order.
type Hooks struct {
	mu    sync.RWMutex
	hooks map[HookType][]HookFunc
}

func NewHooks() *Hooks {
	return &Hooks{hooks: make(map[HookType][]HookFunc)}
}

// AddHook registers fn for t.
func (h *Hooks) AddHook(t HookType, fn HookFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks[t] = append(h.hooks[t], fn)
}

// Count returns the number of hooks registered for t.
func (h *Hooks) Count(t HookType) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.hooks[t])
}

// Fire runs every hook registered for t. All hooks run; their errors are joined.
func (h *Hooks) Fire(ctx context.Context, t HookType, req BroadcastRequest, hctx HookContext) error {
	h.mu.RLock()
	fns := append([]HookFunc(nil), h.hooks[t]...)
	h.mu.RUnlock()

	var errs []error
	for _, fn := range fns {
		if err := fn(ctx, req, hctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
