// Package audience decides who hears about a domain event.
package audience

import (
	"context"
	"fmt"

	"recruit-notifier/internal/common/logger"
	"recruit-notifier/internal/models"
)

// Directory is the user directory the resolver consults.
type Directory interface {
	UserIDsByRole(ctx context.Context, role string) ([]string, error)
	UserExists(ctx context.Context, userID string) (bool, error)
	UniversityName(ctx context.Context, universityID string) (string, error)
}

// Skip reasons reported when an event does not fire.
const (
	SkipNotATransition = "status change is not an entry into the hired set"
	SkipNoTasksAdded   = "no onboarding tasks were added"
	SkipUserUnknown    = "recipient could not be resolved"
	SkipInvalidEvent   = "event payload does not match its kind"
)

// Audience is the resolved set of recipients and broadcast topics.
type Audience struct {
	Fire       bool
	Recipients []string
	Topics     []string
	// UniversityName is set when a JobPosted event names a known university.
	UniversityName string
	SkipReason     string
}

func skip(reason string) Audience {
	return Audience{SkipReason: reason}
}

// Resolver never returns an error: failed lookups shrink the audience.
type Resolver struct {
	directory Directory
	logger    logger.Logger
}

func NewResolver(directory Directory, log logger.Logger) *Resolver {
	return &Resolver{
		directory: directory,
		logger:    logger.Component(log, "audience"),
	}
}

func (r *Resolver) Resolve(ctx context.Context, event models.Event) Audience {
	log := r.logger.WithFields(event.LogFields())

	switch p := event.Payload.(type) {
	case models.JobPostedPayload:
		return r.jobPosted(ctx, log, p)
	case models.ApplicantStatusChangedPayload:
		if !EntersHiredSet(p.FromStatus, p.ToStatus) {
			return skip(SkipNotATransition)
		}
		return r.single(ctx, log, p.UserID)
	case models.OnboardingTasksAddedPayload:
		if p.AddedCount() <= 0 {
			return skip(SkipNoTasksAdded)
		}
		return r.single(ctx, log, p.EmployeeUserID)
	default:
		log.Warn("unresolvable event payload", map[string]interface{}{
			"payloadType": typeName(event.Payload),
		})
		return skip(SkipInvalidEvent)
	}
}

func (r *Resolver) jobPosted(ctx context.Context, log logger.Logger, p models.JobPostedPayload) Audience {
	aud := Audience{
		Fire:   true,
		Topics: models.ApplicantBaseTopics(),
	}

	recipients, err := r.directory.UserIDsByRole(ctx, models.RoleApplicant)
	if err != nil {
		log.Warn("applicant lookup failed, notifying topics only", map[string]interface{}{
			"error": err,
		})
	} else {
		aud.Recipients = recipients
	}

	if p.UniversityID == "" {
		return aud
	}

	name, err := r.directory.UniversityName(ctx, p.UniversityID)
	if err != nil {
		log.Warn("university lookup failed, dropping university topic", map[string]interface{}{
			"error": err,
		})
		return aud
	}
	aud.UniversityName = name
	aud.Topics = append(aud.Topics, models.UniversityTopic(p.UniversityID))
	return aud
}

func (r *Resolver) single(ctx context.Context, log logger.Logger, userID string) Audience {
	if userID == "" {
		log.Warn("event carries no recipient", nil)
		return skip(SkipUserUnknown)
	}

	exists, err := r.directory.UserExists(ctx, userID)
	if err != nil {
		log.Warn("recipient lookup failed", map[string]interface{}{"error": err})
		return skip(SkipUserUnknown)
	}
	if !exists {
		log.Info("recipient not found in directory", nil)
		return skip(SkipUserUnknown)
	}

	return Audience{Fire: true, Recipients: []string{userID}}
}

// EntersHiredSet reports whether a status change moves an applicant into
// {Hired, InOnboarding} from outside it.
func EntersHiredSet(from, to string) bool {
	return inHiredSet(to) && !inHiredSet(from)
}

func inHiredSet(status string) bool {
	return status == models.StatusHired || status == models.StatusInOnboarding
}

func typeName(v interface{}) string {
	if v == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", v)
}
