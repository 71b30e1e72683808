package storage

import "time"

type ReportListFilter struct {
	Identifier string
	From       *time.Time
	To         *time.Time
	NeedsSync  *bool
	Limit      int
	Offset     int
}

type ScheduleListFilter struct {
	From      *time.Time
	To        *time.Time
	NeedsSync *bool
	Limit     int
	Offset    int
}

type ReminderListFilter struct {
	Enabled *bool
	Limit   int
	Offset  int
}
