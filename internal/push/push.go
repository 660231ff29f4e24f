// Package push delivers notifications to devices through a push provider.
package push

import (
	"context"
	"errors"

	"recruit-notifier/internal/models"
)

var (
	// ErrInvalidToken means the provider permanently rejected the device
	// token. Callers should forget the token.
	ErrInvalidToken  = errors.New("INVALID_DELIVERY_TOKEN")
	ErrInvalidTarget = errors.New("INVALID_TARGET")
)

// Message is one push addressed to a topic or a single device token.
type Message struct {
	Target models.Target
	Title  string
	Body   string
	Data   map[string]string
}

// Provider is the push service used by the dispatcher and the subscription
// manager.
type Provider interface {
	// Send delivers msg and returns the provider's message identifier.
	Send(ctx context.Context, msg Message) (string, error)
	SubscribeToTopic(ctx context.Context, token, topic string) error
}

// IsInvalidToken reports whether err marks the delivery token as unusable.
func IsInvalidToken(err error) bool {
	return errors.Is(err, ErrInvalidToken)
}
