// Package channel adapts the bot transport into the post.Deliverer used by
// the publish flow.
package channel

import (
	"context"
	"errors"
	"fmt"
)

// Telegram caps photo captions well below message length.
const captionLimit = 1024

// DeliveryAdapter sends finished posts to a channel. The function fields are
// wired to the transport at startup so the publish flow never imports it.
type DeliveryAdapter struct {
	// SendText posts an HTML-formatted message to the channel.
	SendText func(ctx context.Context, text string) error
	// SendPhoto posts a photo by URL with an HTML caption.
	SendPhoto func(ctx context.Context, photoURL, caption string) error
}

// Deliver sends the post, as a photo with caption when an image is attached
// and the text fits the caption limit, otherwise as plain messages.
func (a *DeliveryAdapter) Deliver(ctx context.Context, text, imageURL string) error {
	if a == nil || a.SendText == nil {
		return errors.New("channel: delivery adapter not wired")
	}
	if imageURL == "" {
		return a.SendText(ctx, text)
	}
	if a.SendPhoto == nil {
		return errors.New("channel: photo delivery not wired")
	}
	if len([]rune(text)) <= captionLimit {
		return a.SendPhoto(ctx, imageURL, text)
	}
	// Long post: the photo goes first without caption, text follows whole.
	if err := a.SendPhoto(ctx, imageURL, ""); err != nil {
		return fmt.Errorf("channel photo: %w", err)
	}
	return a.SendText(ctx, text)
}
