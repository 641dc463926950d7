// Package post implements the post life cycle: drafting, sanitization,
// session storage and the transitions a draft can take before it reaches
// the channel (publish, regenerate, edit, cancel).
package post

import (
	"context"
	"time"
)

// State is the life-cycle state of a session. Published and cancelled are
// terminal: no further mutation is permitted.
type State string

const (
	StateDraft     State = "draft"
	StatePublished State = "published"
	StateCancelled State = "cancelled"
)

func (s State) Terminal() bool {
	return s == StatePublished || s == StateCancelled
}

// Kind selects the post format the generator produces.
type Kind string

const (
	KindFull     Kind = "full"
	KindQuick    Kind = "quick"
	KindCompare  Kind = "compare"
	KindTrending Kind = "trending"
)

// Session is one post under construction or finalization. Text is always
// stored post-sanitization. ImageURL is set at creation and never changes
// afterwards.
type Session struct {
	ID          string    `json:"id"`
	Topic       string    `json:"topic"`
	Kind        Kind      `json:"kind"`
	Text        string    `json:"text"`
	ImageURL    string    `json:"image_url,omitempty"`
	State       State     `json:"state"`
	PendingEdit string    `json:"pending_edit,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Draft is what the generator returns for a topic.
type Draft struct {
	Text     string
	ImageURL string
	Research string
}

// Generator turns a topic or an edit instruction into post text. Calls are
// network-bound and may run for several seconds.
type Generator interface {
	Generate(ctx context.Context, topic string, kind Kind, withImage bool) (Draft, error)
	EditGenerate(ctx context.Context, current, instruction string) (string, error)
}

// Deliverer sends finalized content to the broadcast destination.
type Deliverer interface {
	Deliver(ctx context.Context, text, imageURL string) error
}
