// Package reminder turns persisted reminder rules into alarms and delivers
// notifications when they fire. It does no network I/O.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sagebionetworks/bridgesdk/internal/model"
	"github.com/sagebionetworks/bridgesdk/internal/scheduler"
	"github.com/sagebionetworks/bridgesdk/internal/storage"
)

const DefaultAction = "org.sagebionetworks.bridge.REMINDER"

// Notification is what the user sees when a reminder fires.
type Notification struct {
	GUID   string
	Code   int
	Action string
	Title  string
	Text   string
	At     time.Time
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type NotifierFunc func(ctx context.Context, n Notification) error

func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

type Options struct {
	Store    storage.ReminderStore
	Engine   *scheduler.Engine
	Notifier Notifier
	Logger   *zap.Logger
	Now      func() time.Time
}

type Manager struct {
	store    storage.ReminderStore
	engine   *scheduler.Engine
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time

	codeMu sync.Mutex
}

func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = logNotifier{logger: logger}
	}
	return &Manager{
		store:    opts.Store,
		engine:   opts.Engine,
		notifier: notifier,
		logger:   logger.Named("reminder"),
		now:      now,
	}
}

// Schedule persists the reminder and arms its next trigger. A missing GUID
// or request code is assigned. The returned reminder carries both.
func (m *Manager) Schedule(ctx context.Context, rem model.Reminder) (model.Reminder, error) {
	if rem.GUID == "" {
		rem.GUID = uuid.NewString()
	}
	if rem.Action == "" {
		rem.Action = DefaultAction
	}
	if rem.CreatedAt.IsZero() {
		rem.CreatedAt = m.now()
	}
	rem.Enabled = true
	if err := rem.Validate(); err != nil {
		return model.Reminder{}, err
	}

	m.codeMu.Lock()
	defer m.codeMu.Unlock()
	if rem.Code == 0 {
		code, err := m.nextCode(ctx, rem.GUID)
		if err != nil {
			return model.Reminder{}, err
		}
		rem.Code = code
	}
	if err := m.store.SaveReminder(ctx, rem); err != nil {
		return model.Reminder{}, fmt.Errorf("reminder: save %s: %w", rem.GUID, err)
	}
	if _, err := m.arm(rem, m.now()); err != nil {
		return model.Reminder{}, err
	}
	return rem, nil
}

// Cancel disarms and deletes the reminder.
func (m *Manager) Cancel(ctx context.Context, guid string) error {
	m.engine.Cancel(guid)
	if err := m.store.DeleteReminder(ctx, guid); err != nil {
		return fmt.Errorf("reminder: delete %s: %w", guid, err)
	}
	return nil
}

// Restore re-arms every enabled reminder, as after a process restart. It
// returns how many alarms were armed.
func (m *Manager) Restore(ctx context.Context) (int, error) {
	enabled := true
	items, err := m.store.ListReminders(ctx, storage.ReminderListFilter{Enabled: &enabled})
	if err != nil {
		return 0, fmt.Errorf("reminder: list: %w", err)
	}
	now := m.now()
	armed := 0
	for _, rem := range items {
		ok, err := m.arm(rem, now)
		if err != nil {
			m.logger.Warn("reminder not restored", zap.String("guid", rem.GUID), zap.Error(err))
			continue
		}
		if ok {
			armed++
		}
	}
	m.logger.Info("reminders restored", zap.Int("armed", armed), zap.Int("enabled", len(items)))
	return armed, nil
}

// Next returns the armed trigger time for guid.
func (m *Manager) Next(guid string) (time.Time, bool) {
	a, ok := m.engine.Pending(guid)
	return a.FireAt, ok
}

func (m *Manager) List(ctx context.Context) ([]model.Reminder, error) {
	return m.store.ListReminders(ctx, storage.ReminderListFilter{})
}

// Run delivers fired alarms until ctx is done or the engine stops.
func (m *Manager) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case a, ok := <-m.engine.C():
			if !ok {
				return nil
			}
			m.fire(ctx, a)
		}
	}
}

func (m *Manager) fire(ctx context.Context, a scheduler.Alarm) {
	rem, err := m.store.GetReminder(ctx, a.GUID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			m.logger.Warn("fired reminder lookup failed", zap.String("guid", a.GUID), zap.Error(err))
		}
		return
	}
	if !rem.Enabled {
		return
	}

	if ign := rem.Rule.Ignore; ign != nil && ign.Contains(a.FireAt) {
		deferred := a
		deferred.FireAt = ign.Release(a.FireAt)
		if err := m.engine.Schedule(deferred); err != nil {
			m.logger.Warn("reminder deferral failed", zap.String("guid", rem.GUID), zap.Error(err))
		}
		return
	}

	n := Notification{GUID: rem.GUID, Code: rem.Code, Action: rem.Action, Title: rem.Title, Text: rem.Text, At: a.FireAt}
	if err := m.notifier.Notify(ctx, n); err != nil {
		m.logger.Warn("reminder notification failed", zap.String("guid", rem.GUID), zap.Error(err))
	}

	armed, err := m.arm(rem, a.FireAt)
	if err != nil {
		m.logger.Warn("reminder re-arm failed", zap.String("guid", rem.GUID), zap.Error(err))
		return
	}
	if !armed {
		rem.Enabled = false
		if err := m.store.SaveReminder(ctx, rem); err != nil {
			m.logger.Warn("reminder disable failed", zap.String("guid", rem.GUID), zap.Error(err))
		}
	}
}

// arm schedules the first trigger strictly after from. It reports false for
// a one-shot reminder that has already fired.
func (m *Manager) arm(rem model.Reminder, from time.Time) (bool, error) {
	next, ok, err := rem.Rule.NextAfter(from)
	if err != nil {
		return false, fmt.Errorf("reminder: %s: %w", rem.GUID, err)
	}
	if !ok {
		return false, nil
	}
	if err := m.engine.Schedule(scheduler.Alarm{GUID: rem.GUID, Code: rem.Code, Action: rem.Action, FireAt: next}); err != nil {
		return false, fmt.Errorf("reminder: arm %s: %w", rem.GUID, err)
	}
	m.logger.Debug("reminder armed", zap.String("guid", rem.GUID), zap.Time("at", next))
	return true, nil
}

// nextCode keeps an existing reminder's code, otherwise allocates one above
// every code in use.
func (m *Manager) nextCode(ctx context.Context, guid string) (int, error) {
	if existing, err := m.store.GetReminder(ctx, guid); err == nil && existing.Code != 0 {
		return existing.Code, nil
	}
	items, err := m.store.ListReminders(ctx, storage.ReminderListFilter{})
	if err != nil {
		return 0, fmt.Errorf("reminder: allocate code: %w", err)
	}
	high := 0
	for _, it := range items {
		high = max(high, it.Code)
	}
	return high + 1, nil
}

type logNotifier struct {
	logger *zap.Logger
}

func (l logNotifier) Notify(_ context.Context, n Notification) error {
	l.logger.Info("reminder", zap.String("guid", n.GUID), zap.String("title", n.Title), zap.String("text", n.Text), zap.Time("at", n.At))
	return nil
}
