// internal/models/notification.go
package models

import (
	"fmt"
	"time"
)

// Collection names are shared with the console UI and must not change.
const (
	CollectionGeneralNotifications = "applicants_general_notifications"
	CollectionNotifications        = "notifications"
	CollectionSendRequests         = "fcm_send_requests"
	CollectionTopicSubscriptions   = "fcm_topic_subscriptions"
)

// UserNotificationsCollection is the per-recipient list, users/{id}/notifications.
func UserNotificationsCollection(userID string) string {
	return fmt.Sprintf("users/%s/notifications", userID)
}

// NotificationRecord is the canonical message written once per event.
type NotificationRecord struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Message     string            `json:"message"`
	Kind        EventKind         `json:"kind"`
	SubjectRefs map[string]string `json:"subjectRefs,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	Read        bool              `json:"read"`
}

// Broadcast reports whether the record targets a whole audience rather than one user.
func (r NotificationRecord) Broadcast() bool {
	return r.Kind == EventJobPosted
}

// Collection is where the canonical copy lives.
func (r NotificationRecord) Collection() string {
	if r.Broadcast() {
		return CollectionGeneralNotifications
	}
	return CollectionNotifications
}

// RecipientNotification is the denormalized copy filed under one recipient. Its
// document id equals NotificationRecordID, so a recipient holds at most one copy.
type RecipientNotification struct {
	RecipientID          string            `json:"recipientId"`
	NotificationRecordID string            `json:"notificationRecordId"`
	Title                string            `json:"title"`
	Message              string            `json:"message"`
	Kind                 EventKind         `json:"kind"`
	SubjectRefs          map[string]string `json:"subjectRefs,omitempty"`
	CreatedAt            time.Time         `json:"createdAt"`
	Read                 bool              `json:"read"`
}

// CopyFor builds the recipient's denormalized copy of r.
func (r NotificationRecord) CopyFor(recipientID string) RecipientNotification {
	return RecipientNotification{
		RecipientID:          recipientID,
		NotificationRecordID: r.ID,
		Title:                r.Title,
		Message:              r.Message,
		Kind:                 r.Kind,
		SubjectRefs:          r.SubjectRefs,
		CreatedAt:            r.CreatedAt,
	}
}
