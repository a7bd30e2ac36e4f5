package notifier

import (
	"context"

	"github.com/vietddude/finality/internal/core/domain"
)

// PromptSurface shows prompts to the user.
type PromptSurface interface {
	Prompt(ctx context.Context, spec domain.PromptSpec) (PromptHandle, error)
}

// PromptHandle controls a shown prompt.
type PromptHandle interface {
	// Cancel withdraws the prompt.
	Cancel()

	// Dismissed is closed when the user closes the prompt. It may be nil
	// for surfaces without a dismiss affordance.
	Dismissed() <-chan struct{}
}
