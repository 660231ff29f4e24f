// internal/models/dispatch.go
package models

import "time"

// DispatchStatus is the externally visible health signal of a DispatchRequest.
type DispatchStatus string

const (
	DispatchPending DispatchStatus = "pending"
	DispatchSent    DispatchStatus = "sent"
	DispatchError   DispatchStatus = "error"
)

// Terminal reports whether the dispatcher has already acted on the request.
func (s DispatchStatus) Terminal() bool {
	return s == DispatchSent || s == DispatchError
}

// Target addresses either a broadcast topic or a single device token. Exactly one
// field is set.
type Target struct {
	Topic string `json:"topic,omitempty"`
	Token string `json:"token,omitempty"`
}

func (t Target) Valid() bool {
	return (t.Topic == "") != (t.Token == "")
}

// Type is "topic" or "token", used as a metric label.
func (t Target) Type() string {
	if t.Token != "" {
		return "token"
	}
	return "topic"
}

func (t Target) String() string {
	if t.Token != "" {
		return "token:" + t.Token
	}
	return "topic:" + t.Topic
}

// DispatchRequest is one durable "send this message" intent in fcm_send_requests.
type DispatchRequest struct {
	ID               string            `json:"id"`
	Target           Target            `json:"target"`
	Title            string            `json:"title"`
	Body             string            `json:"body"`
	Data             map[string]string `json:"data,omitempty"`
	Status           DispatchStatus    `json:"status"`
	CreatedAt        time.Time         `json:"createdAt"`
	ProcessedAt      *time.Time        `json:"processedAt,omitempty"`
	ProviderResponse string            `json:"providerResponse,omitempty"`
	ErrorDetail      string            `json:"errorDetail,omitempty"`
}

// SubscriptionEdge links a device token to a topic it was subscribed to.
type SubscriptionEdge struct {
	DeliveryToken string    `json:"deliveryToken"`
	Topic         string    `json:"topic"`
	RecipientID   string    `json:"recipientId"`
	CreatedAt     time.Time `json:"createdAt"`
}
