package subscription

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recruit-notifier/internal/common/auth"
	"recruit-notifier/internal/common/errors"
	"recruit-notifier/internal/common/logger"
	"recruit-notifier/internal/docstore"
	"recruit-notifier/internal/models"
)

// ==========================
// Mocks
// ==========================

type MockValidator struct {
	ValidateTokenFunc func(ctx context.Context, token string) (*auth.TokenInfo, error)
	calls             int
}

func (m *MockValidator) ValidateToken(ctx context.Context, token string) (*auth.TokenInfo, error) {
	m.calls++
	if m.ValidateTokenFunc != nil {
		return m.ValidateTokenFunc(ctx, token)
	}
	return &auth.TokenInfo{Active: true, Sub: "user-1"}, nil
}

type MockSubscriber struct {
	SubscribeFunc func(ctx context.Context, token, topic string) error
	topics        []string
}

func (m *MockSubscriber) SubscribeToTopic(ctx context.Context, token, topic string) error {
	m.topics = append(m.topics, topic)
	if m.SubscribeFunc != nil {
		return m.SubscribeFunc(ctx, token, topic)
	}
	return nil
}

type memStore struct {
	docs map[string]models.SubscriptionEdge
}

func newMemStore() *memStore {
	return &memStore{docs: map[string]models.SubscriptionEdge{}}
}

func (s *memStore) Create(_ context.Context, _ string, id string, value interface{}) (bool, error) {
	if _, ok := s.docs[id]; ok {
		return false, nil
	}
	s.docs[id] = value.(models.SubscriptionEdge)
	return true, nil
}

func (s *memStore) DeleteWhere(_ context.Context, _ string, cond docstore.Match) (int64, error) {
	var n int64
	for id, edge := range s.docs {
		if cond.Field == "deliveryToken" && edge.DeliveryToken == cond.Value {
			delete(s.docs, id)
			n++
		}
	}
	return n, nil
}

func (s *memStore) List(_ context.Context, _ string, q docstore.Query) ([]json.RawMessage, error) {
	var out []json.RawMessage
	for _, edge := range s.docs {
		if q.Where != nil && q.Where.Field == "recipientId" && edge.RecipientID != q.Where.Value {
			continue
		}
		raw, _ := json.Marshal(edge)
		out = append(out, raw)
	}
	return out, nil
}

func newTestManager(t *testing.T, v *MockValidator, p *MockSubscriber, s *memStore) *Manager {
	t.Helper()
	m := NewManager(v, p, s, logger.NewTestLogger(t))
	m.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }
	return m
}

// ==========================
// TopicsFor
// ==========================

func TestTopicsFor(t *testing.T) {
	tests := []struct {
		name  string
		role  string
		prefs Preferences
		want  []string
	}{
		{
			name: "applicant without preferences",
			role: models.RoleApplicant,
			want: []string{"job_seekers", "all_applicants"},
		},
		{
			name:  "applicant with universities",
			role:  models.RoleApplicant,
			prefs: Preferences{Universities: []string{"u1", " ", "u2", "u1"}},
			want:  []string{"job_seekers", "all_applicants", "university_u1_applicants", "university_u2_applicants"},
		},
		{
			name:  "recruiter",
			role:  "recruiter",
			prefs: Preferences{Universities: []string{"u1"}},
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TopicsFor(tt.role, tt.prefs))
		})
	}
}

// ==========================
// Subscribe
// ==========================

func TestSubscribe_IsolatesFailures(t *testing.T) {
	provider := &MockSubscriber{SubscribeFunc: func(_ context.Context, _, topic string) error {
		if topic == "university_u2_applicants" {
			return stderrors.New("topic quota exceeded")
		}
		return nil
	}}
	store := newMemStore()
	m := newTestManager(t, &MockValidator{}, provider, store)

	res, err := m.Subscribe(context.Background(), Caller{AccessToken: "jwt"}, "device-1", models.RoleApplicant,
		Preferences{Universities: []string{"u1", "u2"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"job_seekers", "all_applicants", "university_u1_applicants"}, res.Subscribed)
	assert.Contains(t, res.Failed, "university_u2_applicants")
	assert.Len(t, provider.topics, 4)

	assert.Len(t, store.docs, 3)
	edge := store.docs[models.DeterministicID("device-1", "job_seekers")]
	assert.Equal(t, "user-1", edge.RecipientID)
	assert.Equal(t, "device-1", edge.DeliveryToken)
}

func TestSubscribe_RejectsBeforeProviderCall(t *testing.T) {
	tests := []struct {
		name      string
		caller    Caller
		token     string
		validator *MockValidator
		wantCode  errors.ErrorCode
	}{
		{
			name:      "no access token",
			caller:    Caller{},
			token:     "device-1",
			validator: &MockValidator{},
			wantCode:  errors.ErrCodeUnauthenticated,
		},
		{
			name:   "inactive access token",
			caller: Caller{AccessToken: "expired"},
			token:  "device-1",
			validator: &MockValidator{ValidateTokenFunc: func(context.Context, string) (*auth.TokenInfo, error) {
				return nil, auth.ErrTokenInactive
			}},
			wantCode: errors.ErrCodeUnauthenticated,
		},
		{
			name:      "no delivery token",
			caller:    Caller{AccessToken: "jwt"},
			token:     "  ",
			validator: &MockValidator{},
			wantCode:  errors.ErrCodeMissingDeliveryToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &MockSubscriber{}
			store := newMemStore()
			m := newTestManager(t, tt.validator, provider, store)

			_, err := m.Subscribe(context.Background(), tt.caller, tt.token, models.RoleApplicant, Preferences{})
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, tt.wantCode))
			assert.Empty(t, provider.topics)
			assert.Empty(t, store.docs)
		})
	}
}

func TestRemoveTokenAndTokensFor(t *testing.T) {
	store := newMemStore()
	m := newTestManager(t, &MockValidator{}, &MockSubscriber{}, store)
	ctx := context.Background()

	_, err := m.Subscribe(ctx, Caller{AccessToken: "jwt"}, "device-1", models.RoleApplicant, Preferences{})
	require.NoError(t, err)
	_, err = m.Subscribe(ctx, Caller{AccessToken: "jwt"}, "device-2", models.RoleApplicant, Preferences{})
	require.NoError(t, err)

	tokens, err := m.TokensFor(ctx, "user-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"device-1", "device-2"}, tokens)

	n, err := m.RemoveToken(ctx, "device-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	tokens, err = m.TokensFor(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"device-2"}, tokens)

	tokens, err = m.TokensFor(ctx, "someone-else")
	require.NoError(t, err)
	assert.Empty(t, tokens)
}
