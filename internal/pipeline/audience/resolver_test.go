package audience

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"recruit-notifier/internal/common/logger"
	"recruit-notifier/internal/models"
)

type fakeDirectory struct {
	applicants   []string
	roleErr      error
	users        map[string]bool
	userErr      error
	universities map[string]string
}

func (f *fakeDirectory) UserIDsByRole(ctx context.Context, role string) ([]string, error) {
	if f.roleErr != nil {
		return nil, f.roleErr
	}
	if role != models.RoleApplicant {
		return nil, nil
	}
	return f.applicants, nil
}

func (f *fakeDirectory) UserExists(ctx context.Context, userID string) (bool, error) {
	if f.userErr != nil {
		return false, f.userErr
	}
	return f.users[userID], nil
}

func (f *fakeDirectory) UniversityName(ctx context.Context, universityID string) (string, error) {
	name, ok := f.universities[universityID]
	if !ok {
		return "", errors.New("university not found")
	}
	return name, nil
}

func newDirectory() *fakeDirectory {
	return &fakeDirectory{
		applicants:   []string{"a1", "a2"},
		users:        map[string]bool{"u1": true},
		universities: map[string]string{"U1": "State University"},
	}
}

func jobPosted(universityID string) models.Event {
	return models.Event{
		Kind:    models.EventJobPosted,
		ID:      "evt-1",
		Payload: models.JobPostedPayload{JobID: "job-1", UniversityID: universityID, Title: "Backend Engineer"},
	}
}

func statusChanged(from, to string) models.Event {
	return models.Event{
		Kind: models.EventApplicantStatusChanged,
		ID:   "evt-2",
		Payload: models.ApplicantStatusChangedPayload{
			ApplicantID: "app-1", UserID: "u1", JobID: "job-1", FromStatus: from, ToStatus: to,
		},
	}
}

func tasksAdded(userID string, before, after []string) models.Event {
	return models.Event{
		Kind: models.EventOnboardingTasksAdded,
		ID:   "evt-3",
		Payload: models.OnboardingTasksAddedPayload{
			OnboardingID: "onb-1", EmployeeUserID: userID, BeforeTasks: before, AfterTasks: after,
		},
	}
}

// ==========================
// JobPosted topics
// ==========================

func TestResolve_JobPostedTopics(t *testing.T) {
	tests := []struct {
		name         string
		universityID string
		wantTopics   []string
		wantName     string
	}{
		{
			name:         "known university adds scoped topic",
			universityID: "U1",
			wantTopics:   []string{"job_seekers", "all_applicants", "university_U1_applicants"},
			wantName:     "State University",
		},
		{
			name:         "no university",
			universityID: "",
			wantTopics:   []string{"job_seekers", "all_applicants"},
		},
		{
			name:         "unknown university drops scoped topic",
			universityID: "U404",
			wantTopics:   []string{"job_seekers", "all_applicants"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(newDirectory(), logger.NewTestLogger(t))
			aud := r.Resolve(context.Background(), jobPosted(tt.universityID))

			assert.True(t, aud.Fire)
			assert.ElementsMatch(t, tt.wantTopics, aud.Topics)
			assert.Len(t, aud.Topics, len(tt.wantTopics))
			assert.Equal(t, []string{"a1", "a2"}, aud.Recipients)
			assert.Equal(t, tt.wantName, aud.UniversityName)
		})
	}
}

func TestResolve_JobPosted_RoleLookupFails(t *testing.T) {
	dir := newDirectory()
	dir.roleErr = errors.New("directory unavailable")
	r := NewResolver(dir, logger.NewTestLogger(t))

	aud := r.Resolve(context.Background(), jobPosted("U1"))

	assert.Empty(t, aud.Recipients)
	assert.True(t, aud.Fire)
	assert.Contains(t, aud.Topics, "job_seekers")
}

// ==========================
// ApplicantStatusChanged
// ==========================

func TestResolve_StatusChangeEdges(t *testing.T) {
	tests := []struct {
		name           string
		from, to       string
		wantRecipients int
	}{
		{name: "pending to hired fires", from: "Pending", to: "Hired", wantRecipients: 1},
		{name: "interview to onboarding fires", from: "Interview", to: "InOnboarding", wantRecipients: 1},
		{name: "hired to onboarding does not fire", from: "Hired", to: "InOnboarding", wantRecipients: 0},
		{name: "onboarding to hired does not fire", from: "InOnboarding", to: "Hired", wantRecipients: 0},
		{name: "pending to rejected does not fire", from: "Pending", to: "Rejected", wantRecipients: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(newDirectory(), logger.NewTestLogger(t))
			aud := r.Resolve(context.Background(), statusChanged(tt.from, tt.to))

			assert.Len(t, aud.Recipients, tt.wantRecipients)
			assert.Equal(t, tt.wantRecipients > 0, aud.Fire)
			assert.Empty(t, aud.Topics)
		})
	}
}

func TestResolve_StatusChange_UserLookup(t *testing.T) {
	dir := newDirectory()
	dir.userErr = errors.New("timeout")
	r := NewResolver(dir, logger.NewTestLogger(t))

	aud := r.Resolve(context.Background(), statusChanged("Pending", "Hired"))
	assert.False(t, aud.Fire)
	assert.Equal(t, SkipUserUnknown, aud.SkipReason)

	dir.userErr = nil
	dir.users = map[string]bool{}
	aud = r.Resolve(context.Background(), statusChanged("Pending", "Hired"))
	assert.False(t, aud.Fire)
	assert.Empty(t, aud.Recipients)
}

// ==========================
// OnboardingTasksAdded
// ==========================

func TestResolve_TaskCountGuard(t *testing.T) {
	tests := []struct {
		name     string
		before   []string
		after    []string
		wantFire bool
	}{
		{name: "no growth", before: []string{"t1", "t2"}, after: []string{"t1", "t2"}, wantFire: false},
		{name: "shrink", before: []string{"t1", "t2"}, after: []string{"t1"}, wantFire: false},
		{name: "two added", before: []string{"t1"}, after: []string{"t1", "t2", "t3"}, wantFire: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(newDirectory(), logger.NewTestLogger(t))
			aud := r.Resolve(context.Background(), tasksAdded("u1", tt.before, tt.after))

			assert.Equal(t, tt.wantFire, aud.Fire)
			if tt.wantFire {
				assert.Equal(t, []string{"u1"}, aud.Recipients)
			} else {
				assert.Equal(t, SkipNoTasksAdded, aud.SkipReason)
			}
		})
	}
}

func TestResolve_MismatchedPayload(t *testing.T) {
	r := NewResolver(newDirectory(), logger.NewTestLogger(t))
	aud := r.Resolve(context.Background(), models.Event{Kind: models.EventJobPosted, Payload: "garbage"})

	assert.False(t, aud.Fire)
	assert.Equal(t, SkipInvalidEvent, aud.SkipReason)
}
