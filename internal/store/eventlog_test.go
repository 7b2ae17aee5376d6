package store

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/timeline/pkg/schema"
)

func newTestEventLog(t *testing.T) (*EventLog, *SQLStore) {
	t.Helper()
	s := newTestStore(t, DriverSQLite)
	return NewEventLog(s), s
}

func appendAll(t *testing.T, el *EventLog, events ...*Event) {
	t.Helper()
	for _, e := range events {
		require.NoError(t, el.AppendEvent(context.Background(), e))
	}
}

func TestEventLog_AppendEvent_MonotonicSequence(t *testing.T) {
	el, s := newTestEventLog(t)
	tl := seedTimeline(t, s)

	for i := 0; i < 5; i++ {
		e := &Event{TimelineID: tl.ID, NodeID: "a", Type: schema.EventActionStarted}
		require.NoError(t, el.AppendEvent(context.Background(), e))
		assert.Equal(t, int64(i+1), e.Sequence, "sequence should be monotonic")
	}
}

func TestEventLog_ReplayEvents_FullLifecycle(t *testing.T) {
	el, s := newTestEventLog(t)
	tl := seedTimeline(t, s)

	done, _ := json.Marshal(NodePayload{ActualDuration: 1500})
	picked, _ := json.Marshal(NodePayload{SelectedOption: "b"})
	appendAll(t, el,
		&Event{TimelineID: tl.ID, Type: schema.EventTimelineStarted},
		&Event{TimelineID: tl.ID, NodeID: "a", Type: schema.EventActionStarted},
		&Event{TimelineID: tl.ID, NodeID: "a", Type: schema.EventActionPaused},
		&Event{TimelineID: tl.ID, NodeID: "a", Type: schema.EventActionResumed},
		&Event{TimelineID: tl.ID, NodeID: "a", Type: schema.EventActionCompleted, Payload: done},
		&Event{TimelineID: tl.ID, NodeID: "d", Type: schema.EventDecisionActivated},
		&Event{TimelineID: tl.ID, NodeID: "d", Type: schema.EventDecisionResolved, Payload: picked},
		&Event{TimelineID: tl.ID, NodeID: "b", Type: schema.EventActionStarted},
	)

	states, err := el.ReplayEvents(context.Background(), tl.ID)
	require.NoError(t, err)
	require.Len(t, states, 3)

	a := states["a"]
	assert.Equal(t, "completed", a.Status)
	assert.Equal(t, 1, a.Runs)
	assert.Equal(t, int64(1500), a.LastDurationMs)
	assert.NotNil(t, a.LastCompletedAt)

	d := states["d"]
	assert.Equal(t, "completed", d.Status)
	assert.Equal(t, "b", d.Selected)

	assert.Equal(t, "running", states["b"].Status)
}

func TestEventLog_ReplayEvents_ResetClears(t *testing.T) {
	el, s := newTestEventLog(t)
	tl := seedTimeline(t, s)

	appendAll(t, el,
		&Event{TimelineID: tl.ID, NodeID: "a", Type: schema.EventActionStarted},
		&Event{TimelineID: tl.ID, Type: schema.EventTimelineReset},
		&Event{TimelineID: tl.ID, NodeID: "b", Type: schema.EventActionStarted},
	)

	states, err := el.ReplayEvents(context.Background(), tl.ID)
	require.NoError(t, err)
	assert.NotContains(t, states, "a")
	assert.Contains(t, states, "b")
}

func TestEventLog_ReplayEvents_EmptyTimeline(t *testing.T) {
	el, _ := newTestEventLog(t)
	states, err := el.ReplayEvents(context.Background(), "nothing")
	require.NoError(t, err)
	assert.Empty(t, states)
}

func TestReplay_SequenceGap(t *testing.T) {
	events := []*Event{
		{TimelineID: "t", NodeID: "a", Type: schema.EventActionStarted, Sequence: 1, Timestamp: time.Now()},
		{TimelineID: "t", NodeID: "a", Type: schema.EventActionCompleted, Sequence: 3, Timestamp: time.Now()},
	}
	_, err := Replay("t", events)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sequence gap")
	assert.Equal(t, schema.ErrCodeStore, schema.CodeOf(err))
}

func TestEventLog_ConcurrentAppend_DifferentTimelines(t *testing.T) {
	el, s := newTestEventLog(t)
	ctx := context.Background()

	var timelines []*Timeline
	for i := 0; i < 5; i++ {
		timelines = append(timelines, seedTimeline(t, s))
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 50)
	for _, tl := range timelines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if err := el.AppendEvent(ctx, &Event{TimelineID: tl.ID, NodeID: "a", Type: schema.EventActionStarted}); err != nil {
					errCh <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Errorf("concurrent append error: %v", err)
	}

	for _, tl := range timelines {
		events, err := el.GetEvents(ctx, tl.ID, 0)
		require.NoError(t, err)
		assert.Len(t, events, 10)
		for i, e := range events {
			assert.Equal(t, int64(i+1), e.Sequence)
		}
	}
}

func TestEventLog_TimelineScopedSequences(t *testing.T) {
	el, s := newTestEventLog(t)
	tl1 := seedTimeline(t, s)
	tl2 := seedTimeline(t, s)

	appendAll(t, el,
		&Event{TimelineID: tl1.ID, NodeID: "a", Type: schema.EventActionStarted},
		&Event{TimelineID: tl1.ID, NodeID: "a", Type: schema.EventActionCompleted},
	)

	e := &Event{TimelineID: tl2.ID, NodeID: "a", Type: schema.EventActionStarted}
	require.NoError(t, el.AppendEvent(context.Background(), e))
	assert.Equal(t, int64(1), e.Sequence, "second timeline has its own sequence")

	filtered, err := el.QueryEvents(context.Background(), EventFilter{TimelineID: tl1.ID})
	require.NoError(t, err)
	assert.Len(t, filtered, 2)
}
