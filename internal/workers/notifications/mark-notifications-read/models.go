// internal/workers/notifications/mark-notifications-read/models.go
package marknotificationsread

type Input struct {
	RecipientID string `json:"recipientId"`
}

type Output struct {
	Updated  int64  `json:"updated"`
	MarkedAt string `json:"markedAt"` // ISO 8601
}
