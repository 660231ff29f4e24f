package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recruit-notifier/pkg/registry"
)

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	reg, err := registry.Default()
	require.NoError(t, err)
	v, err := NewValidator(reg)
	require.NoError(t, err)
	return v
}

func TestValidateJSON(t *testing.T) {
	v := newTestValidator(t)

	tests := []struct {
		name      string
		taskType  string
		vars      string
		wantValid bool
		wantField string
	}{
		{
			name:      "valid job posted",
			taskType:  "notify-job-posted",
			vars:      `{"jobId":"j1","title":"Analyst","processVar":42}`,
			wantValid: true,
		},
		{
			name:      "missing title",
			taskType:  "notify-job-posted",
			vars:      `{"jobId":"j1"}`,
			wantField: "title",
		},
		{
			name:      "tasks must be an array",
			taskType:  "notify-onboarding-tasks-added",
			vars:      `{"onboardingId":"o1","employeeUserId":"e1","afterTasks":"t1"}`,
			wantField: "afterTasks",
		},
		{
			name:      "unknown role",
			taskType:  "register-push-token",
			vars:      `{"role":"superuser"}`,
			wantField: "role",
		},
		{
			name:      "unregistered task type",
			taskType:  "something-else",
			vars:      `{}`,
			wantValid: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.ValidateJSON(tt.taskType, tt.vars)
			assert.Equal(t, tt.wantValid, res.Valid)
			if !tt.wantValid {
				require.NotEmpty(t, res.Errors)
				assert.Contains(t, res.Error(), tt.wantField)
			}
		})
	}
}

func TestValidateJSON_Malformed(t *testing.T) {
	res := newTestValidator(t).ValidateJSON("mark-notifications-read", `{not json`)
	assert.False(t, res.Valid)
	assert.Equal(t, "MALFORMED_INPUT", res.Errors[0].Code)
}
