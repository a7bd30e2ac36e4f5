package notifier

import (
	"fmt"
	"time"

	"github.com/vietddude/finality/internal/core/domain"
)

const (
	promptPending   = "pending"
	promptConfirmed = "confirmed"
	promptFailed    = "failed"
)

func pendingPrompt(deadline time.Time) domain.PromptSpec {
	return domain.PromptSpec{
		Title: "Transaction Broadcasted",
		Body:  "Your transaction has been broadcast to the network, but is not yet irreversible.",
		Elements: []domain.PromptElement{
			domain.CountdownElement(deadline),
			domain.CloseElement(),
		},
	}
}

func confirmedPrompt() domain.PromptSpec {
	return domain.PromptSpec{
		Title:    "Transaction Irreversible",
		Body:     "Your transaction is now irreversible.",
		Elements: []domain.PromptElement{domain.CloseElement()},
	}
}

func failedPrompt(err error) domain.PromptSpec {
	return domain.PromptSpec{
		Title:    "Finality Check Failed",
		Body:     fmt.Sprintf("The finality of your transaction could not be confirmed: %v", err),
		Elements: []domain.PromptElement{domain.CloseElement()},
	}
}
