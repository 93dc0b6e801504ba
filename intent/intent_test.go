package intent_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cos-systems/cos/intent"
)

func TestLifecycleNeverSkipsExecuting(t *testing.T) {
	now := time.Unix(0, 0)
	i := intent.New("intent-1", "send a report", "notify stakeholders", now)

	err := i.Transition(intent.StatusCompleted, now)
	require.Error(t, err, "Active cannot go directly to Completed")

	require.NoError(t, i.Transition(intent.StatusExecuting, now))
	require.NoError(t, i.Transition(intent.StatusCompleted, now))
	assert.Equal(t, intent.StatusCompleted, i.Status)
}

func TestSuspendedCanResumeOrFail(t *testing.T) {
	now := time.Unix(0, 0)
	i := intent.New("intent-2", "req", "goal", now)
	require.NoError(t, i.Transition(intent.StatusSuspended, now))
	require.NoError(t, i.Transition(intent.StatusExecuting, now))
	require.NoError(t, i.Transition(intent.StatusCompleted, now))
}
