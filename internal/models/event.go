// internal/models/event.go
package models

import (
	"fmt"
	"time"
)

// EventKind identifies which domain write-path produced an Event.
type EventKind string

const (
	EventJobPosted              EventKind = "JobPosted"
	EventApplicantStatusChanged EventKind = "ApplicantStatusChanged"
	EventOnboardingTasksAdded   EventKind = "OnboardingTasksAdded"
)

// Applicant statuses the pipeline cares about. Any other value is treated as
// "not yet processed".
const (
	StatusHired        = "Hired"
	StatusInOnboarding = "InOnboarding"
)

// Roles known to the user directory.
const (
	RoleApplicant = "applicant"
	RoleEmployee  = "employee"
)

// Event is the transient input handed to the pipeline by an event trigger. It is
// never persisted.
type Event struct {
	Kind       EventKind   `json:"kind"`
	ID         string      `json:"id"` // delivery key, stable across redeliveries
	OccurredAt time.Time   `json:"occurredAt"`
	Payload    interface{} `json:"payload"`
}

type JobPostedPayload struct {
	JobID        string `json:"jobId"`
	UniversityID string `json:"universityId,omitempty"`
	Title        string `json:"title"`
}

type ApplicantStatusChangedPayload struct {
	ApplicantID string `json:"applicantId"`
	UserID      string `json:"userId"`
	JobID       string `json:"jobId"`
	FromStatus  string `json:"fromStatus"`
	ToStatus    string `json:"toStatus"`
}

type OnboardingTasksAddedPayload struct {
	OnboardingID   string   `json:"onboardingId"`
	EmployeeUserID string   `json:"employeeUserId"`
	BeforeTasks    []string `json:"beforeTasks"`
	AfterTasks     []string `json:"afterTasks"`
}

// AddedCount is the growth of the task list. Zero or negative means nothing was added.
func (p OnboardingTasksAddedPayload) AddedCount() int {
	return len(p.AfterTasks) - len(p.BeforeTasks)
}

// SubjectRefs returns the identifiers the event is about, keyed by subject type.
// They are copied onto the NotificationRecord and used as log context.
func (e Event) SubjectRefs() map[string]string {
	refs := map[string]string{}
	switch p := e.Payload.(type) {
	case JobPostedPayload:
		refs["jobId"] = p.JobID
		if p.UniversityID != "" {
			refs["universityId"] = p.UniversityID
		}
	case ApplicantStatusChangedPayload:
		refs["applicantId"] = p.ApplicantID
		refs["userId"] = p.UserID
		refs["jobId"] = p.JobID
	case OnboardingTasksAddedPayload:
		refs["onboardingId"] = p.OnboardingID
		refs["userId"] = p.EmployeeUserID
	}
	return refs
}

// Validate checks that the payload type matches the kind.
func (e Event) Validate() error {
	var ok bool
	switch e.Kind {
	case EventJobPosted:
		_, ok = e.Payload.(JobPostedPayload)
	case EventApplicantStatusChanged:
		_, ok = e.Payload.(ApplicantStatusChangedPayload)
	case EventOnboardingTasksAdded:
		_, ok = e.Payload.(OnboardingTasksAddedPayload)
	default:
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	if !ok {
		return fmt.Errorf("payload %T does not match event kind %s", e.Payload, e.Kind)
	}
	return nil
}

// LogFields is the context every log line about this event carries.
func (e Event) LogFields() map[string]interface{} {
	fields := map[string]interface{}{
		"eventKind": string(e.Kind),
		"eventId":   e.ID,
	}
	for k, v := range e.SubjectRefs() {
		fields[k] = v
	}
	return fields
}
