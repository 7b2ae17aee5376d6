package graph

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/timeline/pkg/schema"
)

var t0 = time.UnixMilli(1_700_000_000_000)

func newTestAction(t *testing.T, id string, duration int64) *Action {
	t.Helper()
	a, err := NewAction(ActionSpec{ID: id, Name: id, Duration: duration})
	require.NoError(t, err)
	return a
}

func TestNewAction_Defaults(t *testing.T) {
	a := newTestAction(t, "a1", 1000)
	assert.Equal(t, schema.ActionStatusPending, a.Status)
	assert.NotNil(t, a.Connections)
	assert.Empty(t, a.Connections)
	assert.Empty(t, a.ExecutionHistory)
	assert.Nil(t, a.StartTime)
	assert.Nil(t, a.ActualDuration)
}

func TestNewAction_RejectsBadInput(t *testing.T) {
	for _, d := range []int64{0, -1} {
		_, err := NewAction(ActionSpec{ID: "a", Name: "a", Duration: d})
		require.Error(t, err)
		assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
	}
	_, err := NewAction(ActionSpec{Name: "missing id", Duration: 10})
	require.Error(t, err)
}

func TestAction_Lifecycle(t *testing.T) {
	a := newTestAction(t, "a1", 200)

	a.Start(t0)
	require.NotNil(t, a.StartTime)
	assert.Equal(t, schema.ActionStatusRunning, a.Status)
	assert.Equal(t, t0.UnixMilli()+200, *a.EndTime)

	assert.False(t, a.UpdateProgress(t0.Add(100*time.Millisecond), true))
	assert.InDelta(t, 50, a.Progress, 0.001)
	assert.Equal(t, int64(100), a.Remaining(t0.Add(100*time.Millisecond)))

	assert.True(t, a.UpdateProgress(t0.Add(200*time.Millisecond), true))
	assert.Equal(t, schema.ActionStatusCompleted, a.Status)
	assert.Equal(t, float64(100), a.Progress)
	require.NotNil(t, a.ActualDuration)
	assert.Equal(t, int64(200), *a.ActualDuration)
	require.Len(t, a.ExecutionHistory, 1)
	assert.Equal(t, int64(200), a.ExecutionHistory[0].Duration)
}

func TestAction_UpdateProgressWithoutAutoComplete(t *testing.T) {
	a := newTestAction(t, "a1", 200)
	a.Start(t0)

	assert.False(t, a.UpdateProgress(t0.Add(time.Second), false))
	assert.Equal(t, float64(100), a.Progress)
	assert.Equal(t, schema.ActionStatusRunning, a.Status)
	assert.Empty(t, a.ExecutionHistory)
}

func TestAction_PauseResumePreservesElapsed(t *testing.T) {
	a := newTestAction(t, "a1", 1000)
	a.Start(t0)
	a.UpdateProgress(t0.Add(400*time.Millisecond), true)

	a.Pause(t0.Add(400 * time.Millisecond))
	assert.Equal(t, schema.ActionStatusPaused, a.Status)
	assert.NotNil(t, a.StartTime, "pause keeps the start time")
	assert.Equal(t, int64(400), a.PausedElapsed)

	// Progress does not move while paused.
	assert.False(t, a.UpdateProgress(t0.Add(5*time.Second), true))
	assert.InDelta(t, 40, a.Progress, 0.001)

	a.Resume(t0.Add(10 * time.Second))
	assert.Equal(t, schema.ActionStatusRunning, a.Status)
	a.UpdateProgress(t0.Add(10*time.Second+100*time.Millisecond), true)
	assert.InDelta(t, 50, a.Progress, 0.001)
}

func TestAction_ResetClearsRuntimeState(t *testing.T) {
	a := newTestAction(t, "a1", 100)
	a.Connections = []string{"b"}
	a.Start(t0)
	a.Complete(t0.Add(150*time.Millisecond), "sess-1")
	require.Equal(t, "sess-1", a.ExecutionHistory[0].SessionID)

	a.Reset()
	assert.Equal(t, schema.ActionStatusPending, a.Status)
	assert.Nil(t, a.StartTime)
	assert.Nil(t, a.EndTime)
	assert.Nil(t, a.ActualDuration)
	assert.Zero(t, a.Progress)
	assert.Empty(t, a.ExecutionHistory)
	assert.Equal(t, []string{"b"}, a.Connections)
}

func TestAction_UnmarshalAppliesDefaults(t *testing.T) {
	var a Action
	require.NoError(t, json.Unmarshal([]byte(`{"id":"a1","name":"Old","duration":5000}`), &a))
	assert.Equal(t, schema.ActionStatusPending, a.Status)
	assert.NotNil(t, a.Connections)
	assert.NotNil(t, a.ExecutionHistory)

	out, err := json.Marshal(&a)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"connections":[]`)
	assert.Contains(t, string(out), `"startTime":null`)
}

func TestAction_CloneIsDeep(t *testing.T) {
	a := newTestAction(t, "a1", 100)
	a.Connections = []string{"b"}
	a.Start(t0)

	c := a.Clone()
	c.Connections[0] = "z"
	*c.StartTime = 1
	assert.Equal(t, "b", a.Connections[0])
	assert.Equal(t, t0.UnixMilli(), *a.StartTime)
}
