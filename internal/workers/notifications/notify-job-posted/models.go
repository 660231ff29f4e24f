// internal/workers/notifications/notify-job-posted/models.go
package notifyjobposted

import (
	"recruit-notifier/internal/models"
	"recruit-notifier/internal/pipeline"
)

type Input struct {
	EventID      string `json:"eventId,omitempty"`
	JobID        string `json:"jobId"`
	UniversityID string `json:"universityId,omitempty"`
	Title        string `json:"title"`
}

type Output struct {
	Notification pipeline.Outcome `json:"notification"`
}

func (in *Input) Event(eventID string) models.Event {
	return models.Event{
		Kind: models.EventJobPosted,
		ID:   eventID,
		Payload: models.JobPostedPayload{
			JobID:        in.JobID,
			UniversityID: in.UniversityID,
			Title:        in.Title,
		},
	}
}
