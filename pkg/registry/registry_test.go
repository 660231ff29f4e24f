package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)
	assert.Len(t, reg.Activities, 5)

	act, ok := reg.Find("register-push-token")
	require.True(t, ok)
	assert.Contains(t, act.ErrorCodes, "MISSING_DELIVERY_TOKEN")
	assert.NotEmpty(t, act.InputSchema)

	_, ok = reg.Find("send-notification")
	assert.False(t, ok)
}

func TestLoadRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":"2","activities":[{"id":"a","taskType":"a"}]}`), 0o600))

	reg, err := LoadRegistry(path)
	require.NoError(t, err)
	assert.Equal(t, "2", reg.Version)

	require.NoError(t, os.WriteFile(path, []byte(`{`), 0o600))
	_, err = LoadRegistry(path)
	assert.Error(t, err)
}
