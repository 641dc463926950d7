package post

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

const (
	// DefaultMaxPostLength matches the channel message limit with headroom
	// for the status prefix around the post.
	DefaultMaxPostLength = 4000

	truncationMarker = "\n\n… (truncated)"
)

// Config tunes the lifecycle service.
type Config struct {
	MaxPostLength int
}

// Service governs post sessions: it creates drafts from generated text,
// validates life-cycle transitions and hands finished posts to the
// deliverer. All session mutations go through the store's per-session
// locking, so concurrent transition requests for the same id serialize and
// at most one of them finalizes the session.
type Service struct {
	store  Store
	gen    Generator
	del    Deliverer
	logger *slog.Logger
	maxLen int
}

func NewService(store Store, gen Generator, del Deliverer, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	maxLen := cfg.MaxPostLength
	if maxLen <= 0 {
		maxLen = DefaultMaxPostLength
	}
	return &Service{store: store, gen: gen, del: del, logger: logger, maxLen: maxLen}
}

// HandleCreate generates a draft for topic and registers it under id. When
// the id is already taken a fresh random id is used instead, so callers can
// pass the originating message id without worrying about collisions.
func (svc *Service) HandleCreate(ctx context.Context, id, topic string, kind Kind, withImage bool) (Session, error) {
	draft, err := svc.gen.Generate(ctx, topic, kind, withImage)
	if err != nil {
		return Session{}, fmt.Errorf("generate: %w", err)
	}

	s := Session{
		ID:       id,
		Topic:    topic,
		Kind:     kind,
		Text:     svc.clean(draft.Text),
		ImageURL: draft.ImageURL,
		State:    StateDraft,
	}
	if err := svc.store.Create(ctx, s); err != nil {
		if err != ErrDuplicateSession {
			return Session{}, err
		}
		s.ID = uuid.NewString()
		if err := svc.store.Create(ctx, s); err != nil {
			return Session{}, err
		}
		svc.logger.Debug("session_id_collision", "requested_id", id, "assigned_id", s.ID)
	}
	svc.logger.Info("session_created", "session_id", s.ID, "kind", string(kind), "has_image", s.ImageURL != "", "text_len", len(s.Text))
	return s, nil
}

// Get returns a snapshot of the session.
func (svc *Service) Get(ctx context.Context, id string) (Session, error) {
	return svc.store.Get(ctx, id)
}

// HandlePublish delivers the session's text to the channel and marks the
// session published. The per-session lock is held across delivery, so a
// concurrent cancel either runs before (publish then fails with
// ErrInvalidState) or blocks until the outcome is decided. A failed
// delivery leaves the session in draft with its text unchanged; publishing
// is not retried.
func (svc *Service) HandlePublish(ctx context.Context, id string) error {
	err := svc.store.Update(ctx, id, func(s *Session) error {
		if s.State.Terminal() {
			return ErrInvalidState
		}
		if err := svc.del.Deliver(ctx, s.Text, s.ImageURL); err != nil {
			return fmt.Errorf("deliver: %w", err)
		}
		s.State = StatePublished
		s.PendingEdit = ""
		return nil
	})
	if err != nil {
		return err
	}
	svc.logger.Info("session_published", "session_id", id)
	return nil
}

// HandleRegenerate replaces the draft text with a freshly generated one for
// the same topic. The image reference never changes on regeneration. The
// generator runs outside the session lock; if the session was cancelled or
// published in the meantime the result is discarded.
func (svc *Service) HandleRegenerate(ctx context.Context, id string) (string, error) {
	snap, err := svc.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if snap.State.Terminal() {
		return "", ErrInvalidState
	}

	draft, err := svc.gen.Generate(ctx, snap.Topic, snap.Kind, false)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	text := svc.clean(draft.Text)

	err = svc.store.Update(ctx, id, func(s *Session) error {
		if s.State.Terminal() {
			return ErrInvalidState
		}
		s.Text = text
		return nil
	})
	if err != nil {
		svc.logger.Info("regenerate_discarded", "session_id", id, "error", err.Error())
		return "", err
	}
	svc.logger.Info("session_regenerated", "session_id", id, "text_len", len(text))
	return text, nil
}

// HandleEdit rewrites the draft per the free-text instruction and replaces
// the text in place, staying in draft. The pending instruction is recorded
// on the session while the rewrite is outstanding.
func (svc *Service) HandleEdit(ctx context.Context, id, instruction string) (string, error) {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return "", fmt.Errorf("post: empty edit instruction")
	}

	var current string
	err := svc.store.Update(ctx, id, func(s *Session) error {
		if s.State.Terminal() {
			return ErrInvalidState
		}
		s.PendingEdit = instruction
		current = s.Text
		return nil
	})
	if err != nil {
		return "", err
	}

	edited, genErr := svc.gen.EditGenerate(ctx, current, instruction)
	if genErr != nil {
		// Best effort: drop the pending marker so the session is not stuck
		// looking mid-edit.
		_ = svc.store.Update(ctx, id, func(s *Session) error {
			if s.State.Terminal() {
				return ErrInvalidState
			}
			s.PendingEdit = ""
			return nil
		})
		return "", fmt.Errorf("generate: %w", genErr)
	}
	text := svc.clean(edited)

	err = svc.store.Update(ctx, id, func(s *Session) error {
		if s.State.Terminal() {
			return ErrInvalidState
		}
		s.Text = text
		s.PendingEdit = ""
		return nil
	})
	if err != nil {
		svc.logger.Info("edit_discarded", "session_id", id, "error", err.Error())
		return "", err
	}
	svc.logger.Info("session_edited", "session_id", id, "text_len", len(text))
	return text, nil
}

// HandleCancel finalizes the session as cancelled and removes it from the
// store. Cancelling an absent id is a no-op; cancelling a published session
// fails with ErrInvalidState.
func (svc *Service) HandleCancel(ctx context.Context, id string) error {
	if _, err := svc.store.Get(ctx, id); err == ErrNotFound {
		return nil
	}
	err := svc.store.Update(ctx, id, func(s *Session) error {
		if s.State.Terminal() {
			return ErrInvalidState
		}
		s.State = StateCancelled
		return nil
	})
	if err == ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	if err := svc.store.Remove(ctx, id); err != nil {
		return err
	}
	svc.logger.Info("session_cancelled", "session_id", id)
	return nil
}

// clean truncates over-long text and balances its markup. Truncation runs
// first so a cut-off closing tag is repaired rather than stored broken.
func (svc *Service) clean(text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) > svc.maxLen {
		text = string(runes[:svc.maxLen]) + truncationMarker
	} else {
		text = string(runes)
	}
	return SanitizeHTML(text)
}
