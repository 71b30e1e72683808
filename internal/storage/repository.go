package storage

import (
	"context"
	"errors"
	"time"

	"github.com/sagebionetworks/bridgesdk/internal/model"
)

var ErrNotFound = errors.New("storage: not found")

type ReportStore interface {
	ReplaceReports(ctx context.Context, identifier string, window model.DateRange, in []model.Report) error
	UpsertReport(ctx context.Context, in model.Report) error
	ListReports(ctx context.Context, filter ReportListFilter) ([]model.Report, error)
	LatestReport(ctx context.Context, identifier string) (model.Report, error)
	SetReportNeedsSync(ctx context.Context, identifier string, sortKey time.Time, needsSync bool) error
	DeleteAllReports(ctx context.Context) error
}

type ScheduleStore interface {
	UpsertSchedules(ctx context.Context, in []model.ScheduledActivity) (int, error)
	GetSchedule(ctx context.Context, guid string) (model.ScheduledActivity, error)
	UpdateSchedule(ctx context.Context, in model.ScheduledActivity) error
	ListSchedules(ctx context.Context, filter ScheduleListFilter) ([]model.ScheduledActivity, error)
	SetScheduleNeedsSync(ctx context.Context, guid string, needsSync bool) error
}

type ResourceStore interface {
	GetResource(ctx context.Context, identifier string, typ model.ResourceType) (model.Resource, error)
	PutResource(ctx context.Context, in model.Resource) error
	DeleteResource(ctx context.Context, identifier string, typ model.ResourceType) error
}

type ReminderStore interface {
	SaveReminder(ctx context.Context, in model.Reminder) error
	GetReminder(ctx context.Context, guid string) (model.Reminder, error)
	DeleteReminder(ctx context.Context, guid string) error
	ListReminders(ctx context.Context, filter ReminderListFilter) ([]model.Reminder, error)
}

type SyncStateStore interface {
	GetWatermark(ctx context.Context, name string) (time.Time, error)
	SetWatermark(ctx context.Context, name string, through time.Time) error
}

type Repository interface {
	ReportStore
	ScheduleStore
	ResourceStore
	ReminderStore
	SyncStateStore
}
