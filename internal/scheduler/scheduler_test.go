package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/timeline/internal/engine"
	"github.com/rendis/timeline/internal/graph"
	"github.com/rendis/timeline/internal/store"
	"github.com/rendis/timeline/pkg/schema"
)

// mockSchedulerStore satisfies store.Store for scheduler tests.
type mockSchedulerStore struct {
	store.Store
	mu        sync.Mutex
	schedules map[string]*store.Schedule
	timelines map[string]bool
}

func newMockSchedulerStore() *mockSchedulerStore {
	return &mockSchedulerStore{
		schedules: make(map[string]*store.Schedule),
		timelines: map[string]bool{"tl-1": true},
	}
}

func (m *mockSchedulerStore) GetTimeline(_ context.Context, id string) (*store.Timeline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.timelines[id] {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "timeline %q not found", id)
	}
	return &store.Timeline{ID: id}, nil
}

func (m *mockSchedulerStore) CreateSchedule(_ context.Context, sched *store.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *sched
	m.schedules[sched.ID] = &cp
	return nil
}

func (m *mockSchedulerStore) GetSchedule(_ context.Context, id string) (*store.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "schedule %q not found", id)
	}
	cp := *s
	return &cp, nil
}

func (m *mockSchedulerStore) UpdateSchedule(_ context.Context, id string, update store.ScheduleUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[id]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "schedule %q not found", id)
	}
	if update.Enabled != nil {
		s.Enabled = *update.Enabled
	}
	if update.LastRunAt != nil {
		s.LastRunAt = update.LastRunAt
	}
	if update.NextRunAt != nil {
		s.NextRunAt = update.NextRunAt
	}
	if update.LastRunStatus != "" {
		s.LastRunStatus = update.LastRunStatus
	}
	return nil
}

func (m *mockSchedulerStore) ListSchedules(_ context.Context, filter store.ScheduleFilter) ([]*store.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*store.Schedule
	for _, s := range m.schedules {
		if filter.Enabled != nil && s.Enabled != *filter.Enabled {
			continue
		}
		if filter.TimelineID != "" && s.TimelineID != filter.TimelineID {
			continue
		}
		cp := *s
		result = append(result, &cp)
	}
	return result, nil
}

func (m *mockSchedulerStore) DeleteSchedule(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.schedules, id)
	return nil
}

func (m *mockSchedulerStore) get(id string) *store.Schedule {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.schedules[id]
	return &cp
}

// mockStarter records StartTimeline calls.
type mockStarter struct {
	mu    sync.Mutex
	calls []startCall
	err   error
}

type startCall struct {
	TimelineID string
	NodeID     string
	Manual     bool
}

func (r *mockStarter) StartTimeline(_ context.Context, timelineID, nodeID string, manual bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, startCall{TimelineID: timelineID, NodeID: nodeID, Manual: manual})
	return r.err
}

func (r *mockStarter) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

var testNow = time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

func newTestScheduler(s store.Store, starter TimelineStarter) *Scheduler {
	return NewScheduler(s, starter, slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithNow(func() time.Time { return testNow }))
}

func addDue(t *testing.T, ms *mockSchedulerStore, id string, next *time.Time) {
	t.Helper()
	require.NoError(t, ms.CreateSchedule(context.Background(), &store.Schedule{
		ID:             id,
		TimelineID:     "tl-1",
		StartNodeID:    "A",
		CronExpression: "0 * * * *",
		Enabled:        true,
		NextRunAt:      next,
	}))
}

func ptr(t time.Time) *time.Time { return &t }

// --- Tests ---

func TestCalculateNextRun(t *testing.T) {
	sched := newTestScheduler(newMockSchedulerStore(), &mockStarter{})

	tests := []struct {
		expr string
		want time.Time
	}{
		{"0 * * * *", time.Date(2026, 2, 10, 13, 0, 0, 0, time.UTC)},
		{"*/15 * * * *", time.Date(2026, 2, 10, 12, 15, 0, 0, time.UTC)},
		{"0 0 * * *", time.Date(2026, 2, 11, 0, 0, 0, 0, time.UTC)},
		{"30 7 * * 1-5", time.Date(2026, 2, 11, 7, 30, 0, 0, time.UTC)},
		{"@hourly", time.Date(2026, 2, 10, 13, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			next, err := sched.CalculateNextRun(tt.expr, testNow)
			require.NoError(t, err)
			assert.Equal(t, tt.want, next)
		})
	}

	_, err := sched.CalculateNextRun("invalid cron", testNow)
	require.Error(t, err)
}

func TestAdd(t *testing.T) {
	ms := newMockSchedulerStore()
	sched := newTestScheduler(ms, &mockStarter{})
	ctx := context.Background()

	s, err := sched.Add(ctx, "tl-1", "A", "30 7 * * *", true)
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.True(t, s.Enabled)
	assert.True(t, s.Manual)
	assert.Equal(t, time.Date(2026, 2, 11, 7, 30, 0, 0, time.UTC), *s.NextRunAt)
	assert.Equal(t, "30 7 * * *", ms.get(s.ID).CronExpression)

	_, err = sched.Add(ctx, "tl-1", "A", "every day", false)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))

	_, err = sched.Add(ctx, "missing", "A", "@daily", false)
	assert.True(t, schema.IsNotFound(err))

	_, err = sched.Add(ctx, "tl-1", "", "@daily", false)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
}

func TestTickStartsDueSchedules(t *testing.T) {
	ms := newMockSchedulerStore()
	starter := &mockStarter{}
	sched := newTestScheduler(ms, starter)
	ctx := context.Background()

	addDue(t, ms, "due", ptr(testNow.Add(-time.Hour)))
	addDue(t, ms, "exact", ptr(testNow))
	addDue(t, ms, "future", ptr(testNow.Add(time.Hour)))
	addDue(t, ms, "never-run", nil)

	sched.tick(ctx)
	assert.Equal(t, 3, starter.callCount())

	got := ms.get("due")
	require.NotNil(t, got.LastRunAt)
	assert.Equal(t, testNow, *got.LastRunAt)
	assert.Equal(t, time.Date(2026, 2, 10, 13, 0, 0, 0, time.UTC), *got.NextRunAt)
	assert.Equal(t, StatusSuccess, got.LastRunStatus)

	assert.Nil(t, ms.get("future").LastRunAt)
	assert.Equal(t, startCall{TimelineID: "tl-1", NodeID: "A"}, starter.calls[0])
}

func TestTickSkipsDisabled(t *testing.T) {
	ms := newMockSchedulerStore()
	starter := &mockStarter{}
	sched := newTestScheduler(ms, starter)
	ctx := context.Background()

	addDue(t, ms, "off", ptr(testNow.Add(-time.Hour)))
	require.NoError(t, sched.SetEnabled(ctx, "off", false))

	sched.tick(ctx)
	assert.Equal(t, 0, starter.callCount())

	// Re-enabling pushes the next run into the future.
	require.NoError(t, sched.SetEnabled(ctx, "off", true))
	assert.Equal(t, time.Date(2026, 2, 10, 13, 0, 0, 0, time.UTC), *ms.get("off").NextRunAt)
	sched.tick(ctx)
	assert.Equal(t, 0, starter.callCount())

	assert.True(t, schema.IsNotFound(sched.SetEnabled(ctx, "nope", true)))
}

func TestStartFailureRecorded(t *testing.T) {
	ms := newMockSchedulerStore()
	starter := &mockStarter{err: errors.New("engine busy")}
	sched := newTestScheduler(ms, starter)

	addDue(t, ms, "s1", ptr(testNow.Add(-time.Minute)))
	sched.tick(context.Background())

	got := ms.get("s1")
	assert.Equal(t, StatusError, got.LastRunStatus)
	assert.True(t, got.NextRunAt.After(testNow), "a failed start still advances the schedule")
}

func TestBrokenCronDisablesSchedule(t *testing.T) {
	ms := newMockSchedulerStore()
	sched := newTestScheduler(ms, &mockStarter{})
	require.NoError(t, ms.CreateSchedule(context.Background(), &store.Schedule{
		ID: "bad", TimelineID: "tl-1", StartNodeID: "A", CronExpression: "61 * * * *", Enabled: true,
	}))

	sched.tick(context.Background())
	got := ms.get("bad")
	assert.False(t, got.Enabled)
	assert.Equal(t, StatusError, got.LastRunStatus)
}

func TestDedupPreventsDoubleStart(t *testing.T) {
	ms := newMockSchedulerStore()
	starter := &mockStarter{}
	sched := newTestScheduler(ms, starter)
	ctx := context.Background()

	addDue(t, ms, "s1", ptr(testNow.Add(-time.Hour)))

	assert.True(t, sched.tryAcquire("s1"))
	sched.tick(ctx)
	assert.Equal(t, 0, starter.callCount())

	sched.release("s1")
	sched.tick(ctx)
	assert.Equal(t, 1, starter.callCount())
}

func TestRecoverMissed(t *testing.T) {
	ms := newMockSchedulerStore()
	starter := &mockStarter{}
	sched := newTestScheduler(ms, starter)

	addDue(t, ms, "missed", ptr(testNow.Add(-3*time.Hour)))
	addDue(t, ms, "upcoming", ptr(testNow.Add(time.Minute)))

	n, err := sched.RecoverMissed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, starter.callCount())
	assert.Equal(t, time.Date(2026, 2, 10, 13, 0, 0, 0, time.UTC), *ms.get("missed").NextRunAt)
}

func TestStartStop(t *testing.T) {
	sched := NewScheduler(newMockSchedulerStore(), &mockStarter{}, nil, WithInterval(time.Millisecond))
	ctx := context.Background()

	require.NoError(t, sched.Start(ctx))
	err := sched.Start(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already started")

	require.NoError(t, sched.Stop())
	require.NoError(t, sched.Stop())
}

func TestScheduler_StartsManagedTimeline(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "timeline.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(ctx))
	t.Cleanup(func() { _ = st.Close() })

	m := engine.NewManager(st,
		engine.WithManagerLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		engine.WithEngineOptions(engine.WithTickInterval(time.Hour)),
	)
	t.Cleanup(func() { _ = m.Close(ctx) })

	a, err := graph.NewAction(graph.ActionSpec{ID: "A", Name: "Stretch", Duration: 60000})
	require.NoError(t, err)
	tl, err := m.Create(ctx, "morning", "", &engine.Snapshot{Actions: []*graph.Action{a}})
	require.NoError(t, err)

	sched := newTestScheduler(st, m)
	s, err := sched.Add(ctx, tl.ID, "A", "@hourly", false)
	require.NoError(t, err)

	// Force it due.
	past := testNow.Add(-time.Minute)
	require.NoError(t, st.UpdateSchedule(ctx, s.ID, store.ScheduleUpdate{NextRunAt: &past}))
	sched.tick(ctx)

	e, err := m.Get(ctx, tl.ID)
	require.NoError(t, err)
	assert.Equal(t, "A", e.CurrentNodeID())
	assert.Equal(t, schema.EngineStateExecutingAction, e.State())

	got, err := st.GetSchedule(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, got.LastRunStatus)
}
