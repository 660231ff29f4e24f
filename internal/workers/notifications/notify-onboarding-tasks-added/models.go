// internal/workers/notifications/notify-onboarding-tasks-added/models.go
package notifyonboardingtasks

import (
	"recruit-notifier/internal/models"
	"recruit-notifier/internal/pipeline"
)

// Input carries the task list before and after the change, so the worker
// can tell growth from reordering or removal.
type Input struct {
	EventID        string   `json:"eventId,omitempty"`
	OnboardingID   string   `json:"onboardingId"`
	EmployeeUserID string   `json:"employeeUserId"`
	BeforeTasks    []string `json:"beforeTasks"`
	AfterTasks     []string `json:"afterTasks"`
}

type Output struct {
	Notification pipeline.Outcome `json:"notification"`
}

func (in *Input) Event(eventID string) models.Event {
	return models.Event{
		Kind: models.EventOnboardingTasksAdded,
		ID:   eventID,
		Payload: models.OnboardingTasksAddedPayload{
			OnboardingID:   in.OnboardingID,
			EmployeeUserID: in.EmployeeUserID,
			BeforeTasks:    in.BeforeTasks,
			AfterTasks:     in.AfterTasks,
		},
	}
}
