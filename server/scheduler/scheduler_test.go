package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/villagevault/villagevault/server/delivery"
	"github.com/villagevault/villagevault/server/models"
	"github.com/villagevault/villagevault/server/store/memstore"
	"github.com/villagevault/villagevault/server/work"
)

type scheduledJob struct {
	at  time.Time
	job work.JobParams
}

type fakeQueue struct {
	mu        sync.Mutex
	handlers  map[string]work.Handler
	performed []work.JobParams
	scheduled []scheduledJob
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{handlers: map[string]work.Handler{}}
}

func (q *fakeQueue) Register(name string, handler work.Handler) error {
	q.handlers[name] = handler
	return nil
}

func (q *fakeQueue) Perform(ctx context.Context, job work.JobParams) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.performed = append(q.performed, job)
	return nil
}

func (q *fakeQueue) PerformAt(ctx context.Context, at time.Time, job work.JobParams) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.scheduled = append(q.scheduled, scheduledJob{at: at, job: job})
	return nil
}

type fakeDispatcher struct {
	dispatched []string
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, alertID string) (*delivery.Report, error) {
	d.dispatched = append(d.dispatched, alertID)
	return &delivery.Report{AlertID: alertID}, nil
}

func newTestScheduler(t *testing.T) (*AlertScheduler, *memstore.MemStore, *fakeQueue, *fakeDispatcher) {
	t.Helper()

	s := memstore.New()
	queue := newFakeQueue()
	dispatcher := &fakeDispatcher{}

	scheduler, err := NewAlertScheduler(s, queue, dispatcher)
	require.NoError(t, err)
	require.Contains(t, queue.handlers, SEND_ALERT_HANDLER)

	return scheduler, s, queue, dispatcher
}

func TestScheduleImmediateAlert(t *testing.T) {
	ctx := context.Background()
	scheduler, s, queue, _ := newTestScheduler(t)

	alert := &models.Alert{Title: "t", VillageID: "v1"}
	require.NoError(t, s.CreateAlert(ctx, alert))
	require.NoError(t, scheduler.Schedule(ctx, alert))

	require.Len(t, queue.performed, 1)
	assert.Equal(t, "sendAlert:"+alert.ID, queue.performed[0].Name)
	assert.True(t, queue.performed[0].Unique)
	assert.Empty(t, queue.scheduled)
}

func TestScheduleFutureAndPastAlerts(t *testing.T) {
	ctx := context.Background()
	scheduler, s, queue, _ := newTestScheduler(t)

	future := time.Now().Add(2 * time.Hour)
	alert := &models.Alert{Title: "later", VillageID: "v1", IsScheduled: true, ScheduledAt: &future}
	require.NoError(t, s.CreateAlert(ctx, alert))
	require.NoError(t, scheduler.Schedule(ctx, alert))

	require.Len(t, queue.scheduled, 1)
	assert.True(t, queue.scheduled[0].at.Equal(future))

	stored, err := s.GetAlert(ctx, alert.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.NextRunAt)
	assert.True(t, stored.NextRunAt.Equal(future))

	past := time.Now().Add(-time.Hour)
	late := &models.Alert{Title: "late", VillageID: "v1", IsScheduled: true, ScheduledAt: &past}
	require.NoError(t, s.CreateAlert(ctx, late))
	require.NoError(t, scheduler.Schedule(ctx, late))

	require.Len(t, queue.performed, 1, "an alert scheduled in the past is sent right away")
}

func TestSendAlertRepeats(t *testing.T) {
	ctx := context.Background()
	scheduler, s, queue, dispatcher := newTestScheduler(t)

	now := time.Date(2024, 1, 31, 9, 0, 0, 0, time.UTC)
	scheduler.now = func() time.Time { return now }

	testCases := []struct {
		interval string
		expected time.Time
	}{
		{models.DAILY_REPEAT, time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)},
		{models.WEEKLY_REPEAT, time.Date(2024, 2, 7, 9, 0, 0, 0, time.UTC)},
		{models.MONTHLY_REPEAT, time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)},
	}

	for _, tc := range testCases {
		t.Run(tc.interval, func(t *testing.T) {
			queue.scheduled = nil

			alert := &models.Alert{Title: "t", VillageID: "v1", IsRepeated: true, RepeatInterval: tc.interval}
			require.NoError(t, s.CreateAlert(ctx, alert))

			err := queue.handlers[SEND_ALERT_HANDLER](ctx, map[string]interface{}{ALERT_ID_ARG: alert.ID})
			require.NoError(t, err)

			assert.Contains(t, dispatcher.dispatched, alert.ID)
			require.Len(t, queue.scheduled, 1)
			assert.True(t, queue.scheduled[0].at.Equal(tc.expected), "got %v", queue.scheduled[0].at)

			stored, err := s.GetAlert(ctx, alert.ID)
			require.NoError(t, err)
			assert.True(t, stored.NextRunAt.Equal(tc.expected))
		})
	}
}

func TestSendAlertStopsForDeletedOrInactiveAlerts(t *testing.T) {
	ctx := context.Background()
	_, s, queue, dispatcher := newTestScheduler(t)
	handler := queue.handlers[SEND_ALERT_HANDLER]

	archived := &models.Alert{Title: "t", VillageID: "v1", IsRepeated: true, Status: models.ARCHIVED_ALERT}
	require.NoError(t, s.CreateAlert(ctx, archived))

	require.NoError(t, handler(ctx, map[string]interface{}{ALERT_ID_ARG: archived.ID}))
	require.NoError(t, handler(ctx, map[string]interface{}{ALERT_ID_ARG: "deleted"}))
	assert.ErrorIs(t, handler(ctx, map[string]interface{}{}), ErrMissingAlertID)

	assert.Empty(t, dispatcher.dispatched)
	assert.Empty(t, queue.scheduled)
}

func TestScheduleThroughWorkQueue(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()

	village := &models.Village{Name: "Test Village", PinCode: "522508"}
	require.NoError(t, s.CreateVillage(ctx, village))
	require.NoError(t, s.CreateUser(ctx, &models.User{Name: "Gayathri", PhoneNumber: "9849119427", VillageID: village.ID, IsVerified: true}))

	var pushed int32
	emitter := emitterFunc(func(room, event string, data interface{}) { atomic.AddInt32(&pushed, 1) })
	engine := delivery.NewEngine(s, map[string]delivery.Sender{
		models.IN_APP_CHANNEL: delivery.NewInAppSender(emitter),
	}, delivery.Config{})

	queue := work.NewWorkerAdapter(s, work.AdapterConfig{
		TimeZone:      "UTC",
		SleepBackoffs: []time.Duration{10 * time.Millisecond},
		ScheduledPoll: 10 * time.Millisecond,
	})
	scheduler, err := NewAlertScheduler(s, queue, engine)
	require.NoError(t, err)

	require.NoError(t, queue.Start())
	defer queue.Stop()

	alert := &models.Alert{Title: "t", Message: "m", VillageID: village.ID, Channels: []string{models.IN_APP_CHANNEL}}
	require.NoError(t, s.CreateAlert(ctx, alert))
	require.NoError(t, scheduler.Schedule(ctx, alert))

	assert.Eventually(t, func() bool {
		deliveries, _ := s.ListDeliveries(ctx, alert.ID)
		return len(deliveries) == 1 && deliveries[0].Status == models.DELIVERED_DELIVERY
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&pushed))
}

type emitterFunc func(room, event string, data interface{})

func (f emitterFunc) EmitToRoom(room, event string, data interface{}) {
	f(room, event, data)
}
