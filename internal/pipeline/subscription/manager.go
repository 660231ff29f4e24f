// Package subscription keeps device tokens subscribed to the broadcast
// topics implied by a recipient's role and preferences.
package subscription

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"recruit-notifier/internal/common/auth"
	"recruit-notifier/internal/common/errors"
	"recruit-notifier/internal/common/logger"
	"recruit-notifier/internal/common/metrics"
	"recruit-notifier/internal/docstore"
	"recruit-notifier/internal/models"
)

// TokenValidator introspects a caller access token.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*auth.TokenInfo, error)
}

// TopicSubscriber is the provider's per-topic subscription call.
type TopicSubscriber interface {
	SubscribeToTopic(ctx context.Context, token, topic string) error
}

type Store interface {
	Create(ctx context.Context, collection, id string, value interface{}) (bool, error)
	DeleteWhere(ctx context.Context, collection string, cond docstore.Match) (int64, error)
	List(ctx context.Context, collection string, q docstore.Query) ([]json.RawMessage, error)
}

// Caller is whoever registers the token.
type Caller struct {
	AccessToken string
}

type Preferences struct {
	Universities []string
}

type Result struct {
	Subscribed []string          `json:"subscribed"`
	Failed     map[string]string `json:"failed,omitempty"` // topic -> reason
}

type Manager struct {
	validator TokenValidator
	provider  TopicSubscriber
	store     Store
	now       func() time.Time
	logger    logger.Logger
}

func NewManager(validator TokenValidator, provider TopicSubscriber, store Store, log logger.Logger) *Manager {
	return &Manager{
		validator: validator,
		provider:  provider,
		store:     store,
		now:       time.Now,
		logger:    logger.Component(log, "subscription-manager"),
	}
}

// TopicsFor maps a role and preferences to the topics a token belongs in.
// Roles other than applicant have no broadcast topics.
func TopicsFor(role string, prefs Preferences) []string {
	if role != models.RoleApplicant {
		return nil
	}

	topics := models.ApplicantBaseTopics()
	seen := map[string]bool{}
	for _, t := range topics {
		seen[t] = true
	}
	for _, id := range prefs.Universities {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		t := models.UniversityTopic(id)
		if seen[t] {
			continue
		}
		seen[t] = true
		topics = append(topics, t)
	}
	return topics
}

// Subscribe authenticates caller, then subscribes token to every topic of
// role/prefs. One topic failing does not stop the others. The error is
// non-nil only when the request is rejected before any provider call.
func (m *Manager) Subscribe(ctx context.Context, caller Caller, token, role string, prefs Preferences) (Result, error) {
	if strings.TrimSpace(caller.AccessToken) == "" {
		return Result{}, errors.NewUnauthenticatedError("no access token supplied")
	}
	if strings.TrimSpace(token) == "" {
		return Result{}, errors.NewMissingDeliveryTokenError()
	}

	info, err := m.validator.ValidateToken(ctx, caller.AccessToken)
	if err != nil {
		// an unverifiable caller is treated as unauthenticated
		m.logger.Warn("caller rejected", map[string]interface{}{"error": err})
		return Result{}, errors.NewUnauthenticatedError(err.Error())
	}

	log := m.logger.WithFields(map[string]interface{}{"recipientId": info.Sub, "role": role})
	res := Result{Subscribed: []string{}}

	for _, topic := range TopicsFor(role, prefs) {
		if err := m.provider.SubscribeToTopic(ctx, token, topic); err != nil {
			metrics.TopicSubscriptions.WithLabelValues("failed").Inc()
			log.Warn("topic subscription failed", map[string]interface{}{"topic": topic, "error": err})
			if res.Failed == nil {
				res.Failed = map[string]string{}
			}
			res.Failed[topic] = err.Error()
			continue
		}
		metrics.TopicSubscriptions.WithLabelValues("subscribed").Inc()
		res.Subscribed = append(res.Subscribed, topic)

		edge := models.SubscriptionEdge{
			DeliveryToken: token,
			Topic:         topic,
			RecipientID:   info.Sub,
			CreatedAt:     m.now().UTC(),
		}
		if _, err := m.store.Create(ctx, models.CollectionTopicSubscriptions, models.DeterministicID(token, topic), edge); err != nil {
			log.Warn("subscription edge not recorded", map[string]interface{}{"topic": topic, "error": err})
		}
	}

	log.Info("token registered", map[string]interface{}{
		"subscribed": len(res.Subscribed),
		"failed":     len(res.Failed),
	})
	return res, nil
}

// RemoveToken drops every subscription edge of a token the provider rejected.
func (m *Manager) RemoveToken(ctx context.Context, token string) (int64, error) {
	n, err := m.store.DeleteWhere(ctx, models.CollectionTopicSubscriptions,
		docstore.Match{Field: "deliveryToken", Value: token})
	if err != nil {
		return 0, errors.NewStoreUnavailableError(err)
	}
	return n, nil
}

// TokensFor returns the distinct device tokens registered by recipientID.
func (m *Manager) TokensFor(ctx context.Context, recipientID string) ([]string, error) {
	docs, err := m.store.List(ctx, models.CollectionTopicSubscriptions, docstore.Query{
		Where: &docstore.Match{Field: "recipientId", Value: recipientID},
	})
	if err != nil {
		return nil, errors.NewStoreUnavailableError(err)
	}

	seen := map[string]bool{}
	var tokens []string
	for _, doc := range docs {
		var edge models.SubscriptionEdge
		if err := json.Unmarshal(doc, &edge); err != nil || edge.DeliveryToken == "" {
			continue
		}
		if seen[edge.DeliveryToken] {
			continue
		}
		seen[edge.DeliveryToken] = true
		tokens = append(tokens, edge.DeliveryToken)
	}
	return tokens, nil
}
