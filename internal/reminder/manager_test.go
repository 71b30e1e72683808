package reminder

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"go.uber.org/zap/zaptest"

	"github.com/sagebionetworks/bridgesdk/internal/model"
	"github.com/sagebionetworks/bridgesdk/internal/scheduler"
	"github.com/sagebionetworks/bridgesdk/internal/storage"
)

type fixture struct {
	store  *storage.SQLiteRepository
	engine *scheduler.Engine
	mgr    *Manager
	got    chan Notification
}

func setup(t *testing.T, now func() time.Time) fixture {
	t.Helper()
	store, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "reminders.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	engine := scheduler.NewEngine(16)
	got := make(chan Notification, 16)
	mgr := NewManager(Options{
		Store:  store,
		Engine: engine,
		Notifier: NotifierFunc(func(_ context.Context, n Notification) error {
			got <- n
			return nil
		}),
		Logger: zaptest.NewLogger(t),
		Now:    now,
	})
	return fixture{store: store, engine: engine, mgr: mgr, got: got}
}

func (f fixture) run(t *testing.T) {
	t.Helper()
	f.engine.Start()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.mgr.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		f.engine.Stop()
	})
}

func waitNotification(t *testing.T, ch <-chan Notification) Notification {
	t.Helper()
	select {
	case n := <-ch:
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
		return Notification{}
	}
}

func TestOneShotFiresOnceAndDisables(t *testing.T) {
	f := setup(t, nil)
	f.run(t)

	rem, err := f.mgr.Schedule(t.Context(), model.Reminder{
		Title: "Take survey",
		Text:  "Your weekly survey is ready",
		Rule:  model.ReminderRule{Initial: time.Now().Add(30 * time.Millisecond)},
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if rem.GUID == "" || rem.Code != 1 || rem.Action != DefaultAction {
		t.Fatalf("expected assigned guid, code and action, got %+v", rem)
	}

	n := waitNotification(t, f.got)
	if n.GUID != rem.GUID || n.Title != "Take survey" {
		t.Fatalf("unexpected notification %+v", n)
	}

	deadline := time.Now().Add(time.Second)
	for {
		stored, err := f.store.GetReminder(t.Context(), rem.GUID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if !stored.Enabled {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("one-shot reminder should be disabled after firing")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, ok := f.mgr.Next(rem.GUID); ok {
		t.Fatal("one-shot reminder should not be re-armed")
	}
}

func TestRepeatingReminderRearms(t *testing.T) {
	f := setup(t, nil)
	f.run(t)

	rem, err := f.mgr.Schedule(t.Context(), model.Reminder{
		Title: "Tap test",
		Rule: model.ReminderRule{
			Initial: time.Now().Add(20 * time.Millisecond),
			Repeat:  &model.RepeatRule{Type: model.RepeatEveryInterval, Every: 40 * time.Millisecond},
		},
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	first := waitNotification(t, f.got)
	second := waitNotification(t, f.got)
	if !second.At.After(first.At) {
		t.Fatalf("expected later second firing: %s then %s", first.At, second.At)
	}
	if got := second.At.Sub(first.At); got != 40*time.Millisecond {
		t.Fatalf("expected 40ms spacing, got %s", got)
	}

	if err := f.mgr.Cancel(t.Context(), rem.GUID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	f := setup(t, nil)
	f.run(t)

	rem, err := f.mgr.Schedule(t.Context(), model.Reminder{
		Title: "Never",
		Rule:  model.ReminderRule{Initial: time.Now().Add(50 * time.Millisecond)},
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := f.mgr.Cancel(t.Context(), rem.GUID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	select {
	case n := <-f.got:
		t.Fatalf("cancelled reminder fired: %+v", n)
	case <-time.After(150 * time.Millisecond):
	}
	if _, err := f.store.GetReminder(t.Context(), rem.GUID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := f.mgr.Cancel(t.Context(), rem.GUID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second cancel, got %v", err)
	}
}

func TestRestoreArmsEnabledFutureReminders(t *testing.T) {
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	f := setup(t, func() time.Time { return now })

	daily := &model.RepeatRule{Type: model.RepeatEveryNDays, Interval: 1}
	for _, rem := range []model.Reminder{
		{GUID: "future", Code: 1, Title: "a", Enabled: true, Rule: model.ReminderRule{Initial: now.Add(time.Hour)}},
		{GUID: "repeating", Code: 2, Title: "b", Enabled: true, Rule: model.ReminderRule{Initial: now.AddDate(0, 0, -3), Repeat: daily}},
		{GUID: "past", Code: 3, Title: "c", Enabled: true, Rule: model.ReminderRule{Initial: now.Add(-time.Hour)}},
		{GUID: "off", Code: 4, Title: "d", Enabled: false, Rule: model.ReminderRule{Initial: now.Add(time.Hour)}},
	} {
		if err := f.store.SaveReminder(t.Context(), rem); err != nil {
			t.Fatalf("seed %s: %v", rem.GUID, err)
		}
	}

	armed, err := f.mgr.Restore(t.Context())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if armed != 2 {
		t.Fatalf("expected 2 armed reminders, got %d", armed)
	}
	next, ok := f.mgr.Next("repeating")
	if !ok || !next.Equal(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC).AddDate(0, 0, 1)) {
		t.Fatalf("unexpected next trigger %s (%v)", next, ok)
	}
	if _, ok := f.mgr.Next("off"); ok {
		t.Fatal("disabled reminder should not be armed")
	}
}

func TestFiringInsideIgnoreWindowIsDeferred(t *testing.T) {
	f := setup(t, nil)
	initial := time.Date(2024, 3, 1, 21, 0, 0, 0, time.UTC)
	rem := model.Reminder{
		GUID:    "quiet",
		Code:    7,
		Title:   "Evening check-in",
		Enabled: true,
		Rule: model.ReminderRule{
			Initial: initial,
			Repeat:  &model.RepeatRule{Type: model.RepeatEveryInterval, Every: 2 * time.Hour},
			Ignore:  &model.IgnoreWindow{StartMinute: 22 * 60, EndMinute: 7 * 60, Location: time.UTC},
		},
	}
	if err := f.store.SaveReminder(t.Context(), rem); err != nil {
		t.Fatalf("seed: %v", err)
	}

	f.mgr.fire(t.Context(), scheduler.Alarm{GUID: "quiet", Code: 7, FireAt: time.Date(2024, 3, 1, 23, 0, 0, 0, time.UTC)})

	select {
	case n := <-f.got:
		t.Fatalf("notification delivered inside ignore window: %+v", n)
	default:
	}
	next, ok := f.mgr.Next("quiet")
	if !ok || !next.Equal(time.Date(2024, 3, 2, 7, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected deferral to 07:00, got %s (%v)", next, ok)
	}
}

func TestIgnoreWindowFollowsReminderZone(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, ny)
	f := setup(t, func() time.Time { return now })

	evening := time.Date(2024, 3, 1, 18, 30, 0, 0, ny)
	rem, err := f.mgr.Schedule(t.Context(), model.Reminder{
		Title:   "Evening survey",
		Enabled: true,
		Rule: model.ReminderRule{
			Initial: evening.UTC(),
			Ignore:  &model.IgnoreWindow{StartMinute: 22 * 60, EndMinute: 7 * 60, Location: ny},
		},
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if next, ok := f.mgr.Next(rem.GUID); !ok || !next.Equal(evening) {
		t.Fatalf("expected trigger at %s, got %s (%v)", evening, next.In(ny), ok)
	}

	if _, err := f.mgr.Restore(t.Context()); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if next, ok := f.mgr.Next(rem.GUID); !ok || !next.Equal(evening) {
		t.Fatalf("restored trigger moved to %s (%v)", next.In(ny), ok)
	}
}

func TestCodesAreAllocatedUpwards(t *testing.T) {
	f := setup(t, nil)
	future := time.Now().Add(time.Hour)
	a, err := f.mgr.Schedule(t.Context(), model.Reminder{Title: "a", Rule: model.ReminderRule{Initial: future}})
	if err != nil {
		t.Fatalf("schedule a: %v", err)
	}
	b, err := f.mgr.Schedule(t.Context(), model.Reminder{Title: "b", Rule: model.ReminderRule{Initial: future}})
	if err != nil {
		t.Fatalf("schedule b: %v", err)
	}
	if a.Code != 1 || b.Code != 2 {
		t.Fatalf("unexpected codes %d %d", a.Code, b.Code)
	}

	a.Title = "a2"
	a.Code = 0
	again, err := f.mgr.Schedule(t.Context(), a)
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if again.Code != 1 {
		t.Fatalf("rescheduling should keep code 1, got %d", again.Code)
	}
	list, err := f.mgr.List(t.Context())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 reminders, got %d", len(list))
	}
}

func TestScheduleRejectsInvalidRule(t *testing.T) {
	f := setup(t, nil)
	_, err := f.mgr.Schedule(t.Context(), model.Reminder{Title: "x"})
	if err == nil {
		t.Fatal("expected error for missing initial time")
	}
}
