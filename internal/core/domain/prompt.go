package domain

import "time"

// PromptSpec describes a user-facing prompt.
type PromptSpec struct {
	Title    string          `json:"title"`
	Body     string          `json:"body"`
	Elements []PromptElement `json:"elements"`
}

// PromptElement is a single display element of a prompt.
type PromptElement struct {
	Type ElementType `json:"type"`
	Data string      `json:"data,omitempty"`
}

type ElementType string

const (
	ElementCountdown ElementType = "countdown"
	ElementClose     ElementType = "close"
)

// CountdownElement renders deadline as an ISO-8601 UTC timestamp.
func CountdownElement(deadline time.Time) PromptElement {
	return PromptElement{
		Type: ElementCountdown,
		Data: deadline.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
}

// CloseElement lets the user dismiss the prompt.
func CloseElement() PromptElement {
	return PromptElement{Type: ElementClose}
}

// Countdown returns the deadline of the first countdown element, if any.
func (p PromptSpec) Countdown() (time.Time, bool) {
	for _, el := range p.Elements {
		if el.Type != ElementCountdown {
			continue
		}
		t, err := time.Parse(time.RFC3339Nano, el.Data)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}
