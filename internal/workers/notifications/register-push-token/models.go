// internal/workers/notifications/register-push-token/models.go
package registerpushtoken

type Input struct {
	AccessToken   string   `json:"accessToken"`
	DeliveryToken string   `json:"deliveryToken"`
	Role          string   `json:"role,omitempty"`
	Universities  []string `json:"universities,omitempty"`
}

type Output struct {
	Subscribed   []string          `json:"subscribedTopics"`
	Failed       map[string]string `json:"failedTopics,omitempty"`
	RegisteredAt string            `json:"registeredAt"` // ISO 8601
}
