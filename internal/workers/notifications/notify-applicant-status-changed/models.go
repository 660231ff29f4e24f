// internal/workers/notifications/notify-applicant-status-changed/models.go
package notifystatuschanged

import (
	"recruit-notifier/internal/models"
	"recruit-notifier/internal/pipeline"
)

type Input struct {
	EventID     string `json:"eventId,omitempty"`
	ApplicantID string `json:"applicantId"`
	UserID      string `json:"userId"`
	JobID       string `json:"jobId"`
	FromStatus  string `json:"fromStatus"`
	ToStatus    string `json:"toStatus"`
}

type Output struct {
	Notification pipeline.Outcome `json:"notification"`
}

func (in *Input) Event(eventID string) models.Event {
	return models.Event{
		Kind: models.EventApplicantStatusChanged,
		ID:   eventID,
		Payload: models.ApplicantStatusChangedPayload{
			ApplicantID: in.ApplicantID,
			UserID:      in.UserID,
			JobID:       in.JobID,
			FromStatus:  in.FromStatus,
			ToStatus:    in.ToStatus,
		},
	}
}
