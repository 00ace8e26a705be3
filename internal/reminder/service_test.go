package reminder

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pereryv/internal/events"
	"pereryv/internal/settings"
)

// mockPresenter records show/focus calls.
type mockPresenter struct {
	mu     sync.Mutex
	shown  []Popup
	focused int
}

func (m *mockPresenter) Show(_ context.Context, p Popup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shown = append(m.shown, p)
	return nil
}

func (m *mockPresenter) Focus(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.focused++
	return nil
}

func (m *mockPresenter) counts() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.shown), m.focused
}

// mockSettingsStore records saved settings.
type mockSettingsStore struct {
	saved []settings.Settings
}

func (m *mockSettingsStore) Save(s settings.Settings) error {
	m.saved = append(m.saved, s)
	return nil
}

// mockLastFireStore is an in-memory LastFireStore.
type mockLastFireStore struct {
	t  time.Time
	ok bool
}

func (m *mockLastFireStore) LastFire(context.Context) (time.Time, bool) { return m.t, m.ok }
func (m *mockLastFireStore) SetLastFire(_ context.Context, t time.Time) error {
	m.t, m.ok = t, true
	return nil
}

func testSettings(t *testing.T) settings.Settings {
	t.Helper()
	s := settings.Defaults()
	s.ActiveHours = "" // always active unless a test overrides
	require.NoError(t, s.Validate())
	return s
}

func newTestService(t *testing.T, s settings.Settings, at time.Time) (*Service, *mockPresenter) {
	t.Helper()
	p := &mockPresenter{}
	svc := New(DefaultConfig(), s, p, nil, nil, nil, nil, zerolog.Nop())
	svc.now = func() time.Time { return at }
	return svc, p
}

func TestTickShowsPopupWhenDue(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	svc, p := newTestService(t, testSettings(t), now)

	svc.restoreSchedule(ctx, now)

	// Not due yet: nothing happens.
	svc.tick(ctx)
	shown, _ := p.counts()
	assert.Equal(t, 0, shown)

	// Jump past the fire time.
	now = svc.Status().NextFireAt.Add(time.Second)
	svc.now = func() time.Time { return now }
	svc.tick(ctx)

	shown, focused := p.counts()
	assert.Equal(t, 1, shown)
	assert.Equal(t, 0, focused)
	assert.True(t, svc.Status().PopupOpen)
	assert.Equal(t, settings.DefaultMessage, p.shown[0].Message)
	assert.Equal(t, settings.DefaultWindowWidth, p.shown[0].Width)
}

func TestSingleOutstandingPopup(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	svc, p := newTestService(t, testSettings(t), now)
	svc.restoreSchedule(ctx, now)

	now = svc.Status().NextFireAt.Add(time.Second)
	svc.now = func() time.Time { return now }
	svc.tick(ctx)

	// A second due tick while the popup is open must focus, not show.
	now = svc.Status().NextFireAt.Add(time.Second)
	svc.now = func() time.Time { return now }
	svc.tick(ctx)

	shown, focused := p.counts()
	assert.Equal(t, 1, shown, "no second popup while one is open")
	assert.Equal(t, 1, focused)
}

func TestTickSkipsOutsideActiveHours(t *testing.T) {
	ctx := context.Background()
	s := settings.Defaults()
	s.ActiveHours = "9-12"
	require.NoError(t, s.Validate())

	// Due time reached at 13:00 after a simulated suspend gap.
	now := time.Date(2026, 3, 14, 13, 0, 0, 0, time.UTC)
	svc, p := newTestService(t, s, now)

	svc.mu.Lock()
	svc.nextFireAt = now.Add(-time.Hour)
	svc.mu.Unlock()

	svc.tick(ctx)

	shown, focused := p.counts()
	assert.Equal(t, 0, shown)
	assert.Equal(t, 0, focused)

	// Rescheduled into the next window.
	next := svc.Status().NextFireAt
	assert.Equal(t, time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC), next)
}

func TestQuickCloseRequiresConfirmation(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	svc, p := newTestService(t, testSettings(t), now)

	svc.ShowNow(ctx, TriggerManual)
	require.True(t, svc.Status().PopupOpen)

	// Close one second after showing: inside the 2s window.
	now = now.Add(time.Second)
	svc.now = func() time.Time { return now }

	err := svc.ClosePopup(ctx, false)
	var qc *QuickCloseError
	require.ErrorAs(t, err, &qc)
	assert.Equal(t, settings.DefaultQuickCloseConfirm, qc.ConfirmText)
	assert.True(t, svc.Status().PopupOpen, "popup stays open until confirmed")

	_, focused := p.counts()
	assert.Equal(t, 1, focused, "blocked close re-focuses the popup")

	require.NoError(t, svc.ClosePopup(ctx, true))
	assert.False(t, svc.Status().PopupOpen)
}

func TestCloseAfterQuickWindowNeedsNoConfirmation(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, testSettings(t), now)

	svc.ShowNow(ctx, TriggerManual)

	now = now.Add(5 * time.Second)
	svc.now = func() time.Time { return now }

	require.NoError(t, svc.ClosePopup(ctx, false))
	assert.False(t, svc.Status().PopupOpen)
}

func TestClosePopupWithoutPopup(t *testing.T) {
	svc, _ := newTestService(t, testSettings(t), time.Now())
	assert.ErrorIs(t, svc.ClosePopup(context.Background(), false), ErrNoPopup)
}

func TestShowNowFocusesExistingPopup(t *testing.T) {
	ctx := context.Background()
	svc, p := newTestService(t, testSettings(t), time.Now())

	svc.ShowNow(ctx, TriggerManual)
	svc.ShowNow(ctx, TriggerManual)

	shown, focused := p.counts()
	assert.Equal(t, 1, shown)
	assert.Equal(t, 1, focused)
}

func TestUpdateSettingsPersistsAndReschedules(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	store := &mockSettingsStore{}
	p := &mockPresenter{}
	svc := New(DefaultConfig(), testSettings(t), p, store, nil, nil, nil, zerolog.Nop())
	svc.now = func() time.Time { return now }
	svc.restoreSchedule(ctx, now)

	next := settings.Defaults()
	next.IntervalMinutes = 5
	next.ActiveHours = ""
	require.NoError(t, svc.UpdateSettings(ctx, next))

	require.Len(t, store.saved, 1)
	assert.InDelta(t, 5.0, store.saved[0].IntervalMinutes, 1e-9)
	assert.Equal(t, now.Add(5*time.Minute), svc.Status().NextFireAt)
}

func TestUpdateSettingsRejectsInvalid(t *testing.T) {
	svc, _ := newTestService(t, testSettings(t), time.Now())

	bad := settings.Defaults()
	bad.IntervalMinutes = 0
	assert.Error(t, svc.UpdateSettings(context.Background(), bad))

	bad = settings.Defaults()
	bad.ActiveHours = "18-9"
	assert.Error(t, svc.UpdateSettings(context.Background(), bad))
}

func TestRestoreScheduleFromLastFire(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	state := &mockLastFireStore{t: now.Add(-10 * time.Minute), ok: true}
	svc := New(DefaultConfig(), testSettings(t), &mockPresenter{}, nil, state, nil, nil, zerolog.Nop())
	svc.now = func() time.Time { return now }

	svc.restoreSchedule(ctx, now)

	// 25 minute interval, 10 minutes already elapsed before restart.
	assert.Equal(t, now.Add(15*time.Minute), svc.Status().NextFireAt)
}

func TestRestoreScheduleOverdueFiresImmediately(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	state := &mockLastFireStore{t: now.Add(-2 * time.Hour), ok: true}
	svc := New(DefaultConfig(), testSettings(t), &mockPresenter{}, nil, state, nil, nil, zerolog.Nop())
	svc.now = func() time.Time { return now }

	svc.restoreSchedule(ctx, now)

	next := svc.Status().NextFireAt
	assert.False(t, next.Before(now))
	assert.Equal(t, now, next, "overdue schedule fires at the first opportunity")
}

func TestEventsPublished(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	bus := events.NewBus()
	var mu sync.Mutex
	var kinds []events.Kind
	bus.SubscribeAll(func(e events.Event) {
		mu.Lock()
		defer mu.Unlock()
		kinds = append(kinds, e.Kind)
	})

	svc := New(DefaultConfig(), testSettings(t), &mockPresenter{}, nil, nil, bus, nil, zerolog.Nop())
	svc.now = func() time.Time { return now }

	svc.ShowNow(ctx, TriggerManual)

	now = now.Add(time.Second)
	svc.now = func() time.Time { return now }
	_ = svc.ClosePopup(ctx, false)
	_ = svc.ClosePopup(ctx, true)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []events.Kind{
		events.KindReminderShown,
		events.KindQuickCloseBlocked,
		events.KindQuickCloseConfirmed,
		events.KindReminderClosed,
	}, kinds)
}

func TestRunStop(t *testing.T) {
	svc, _ := newTestService(t, testSettings(t), time.Now())
	svc.config.CheckInterval = 10 * time.Millisecond

	done := make(chan struct{})
	go func() {
		svc.Run(context.Background())
		close(done)
	}()

	require.Eventually(t, svc.IsRunning, time.Second, 5*time.Millisecond)
	svc.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
	assert.False(t, svc.IsRunning())
}
