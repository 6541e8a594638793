// Package ui defines the human-interaction boundary: blocking questions
// (ask) and progressive output (say).
package ui

import (
	"context"
)

// Ask responses. An empty-text yes is an accepting response; anything else
// carries user content back to the caller.
const (
	ResponseYes     = "yesButtonClicked"
	ResponseNo      = "noButtonClicked"
	ResponseMessage = "messageResponse"
)

// AskResponse is the human's reply to a blocking question.
type AskResponse struct {
	Response string
	Text     string
	Images   []string
	Files    []string
}

// SayOptions carries optional say payload.
type SayOptions struct {
	Images []string
	Files  []string
	// Partial marks a progressive fragment of a logical event. The final
	// call for that event must pass Partial=false.
	Partial bool
}

// Interactor is the narrow capability components receive for talking to
// the human. Ask blocks until an answer arrives or ctx is cancelled; there
// is no timeout on the system side.
type Interactor interface {
	Ask(ctx context.Context, kind, text string) (AskResponse, error)
	Say(ctx context.Context, kind, text string, opts SayOptions) error
}
