package engine

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

type memorySaver struct {
	mu    sync.Mutex
	saved map[string]json.RawMessage
	calls int
	fail  int
	err   error
}

func (m *memorySaver) SaveSnapshot(_ context.Context, id string, snapshot json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.fail > 0 {
		m.fail--
		return m.err
	}
	if m.saved == nil {
		m.saved = make(map[string]json.RawMessage)
	}
	m.saved[id] = snapshot
	return nil
}

func (m *memorySaver) get(id string) json.RawMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved[id]
}

func (m *memorySaver) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func TestAutoSaver_Debounces(t *testing.T) {
	e, _, _ := newTestEngine(t)
	saver := &memorySaver{}
	as := NewAutoSaver(e, saver, 20*time.Millisecond, discardLogger())
	t.Cleanup(as.Close)

	addAction(t, e, "A", 100)
	addAction(t, e, "B", 100)
	require.NoError(t, e.Connect("A", "B"))

	require.Eventually(t, func() bool { return as.Saves() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, saver.callCount())

	snap, err := ParseSnapshot(saver.get("tl-1"))
	require.NoError(t, err)
	require.Len(t, snap.Actions, 2)
	assert.Equal(t, []string{"B"}, snap.Actions[0].Connections)
}

func TestAutoSaver_FlushAndClose(t *testing.T) {
	e, _, _ := newTestEngine(t)
	saver := &memorySaver{}
	as := NewAutoSaver(e, saver, time.Hour, discardLogger())

	addAction(t, e, "A", 100)
	require.NoError(t, as.Flush(context.Background()))
	assert.Equal(t, 1, as.Saves())
	assert.NotEmpty(t, saver.get("tl-1"))

	as.Close()
	addAction(t, e, "B", 100)
	assert.Equal(t, 1, saver.callCount())
	as.mu.Lock()
	assert.Nil(t, as.timer)
	as.mu.Unlock()
}

func TestAutoSaver_RetriesRetryableErrors(t *testing.T) {
	e, _, _ := newTestEngine(t)
	saver := &memorySaver{fail: 2, err: schema.NewError(schema.ErrCodeStore, "database is locked")}
	as := NewAutoSaver(e, saver, time.Hour, discardLogger())
	t.Cleanup(as.Close)
	as.SetRetryPolicy(RetryPolicy{Max: 3, Backoff: "constant", Delay: "1ms"})

	require.NoError(t, as.Flush(context.Background()))
	assert.Equal(t, 3, saver.callCount())
	assert.Equal(t, 1, as.Saves())
}

func TestAutoSaver_GivesUpOnPermanentErrors(t *testing.T) {
	e, _, _ := newTestEngine(t)
	saver := &memorySaver{fail: 5, err: schema.NewError(schema.ErrCodeNotFound, "timeline gone")}
	as := NewAutoSaver(e, saver, time.Hour, discardLogger())
	t.Cleanup(as.Close)

	err := as.Flush(context.Background())
	assert.True(t, schema.IsNotFound(err))
	assert.Equal(t, 1, saver.callCount())
	assert.Equal(t, 0, as.Saves())
}
