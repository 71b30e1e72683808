package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sagebionetworks/bridgesdk/internal/model"
)

const reminderColumns = `guid, code, action, title, text, initial_at, repeat_type, repeat_interval, repeat_every_ns,
	repeat_weekdays, ignore_start, ignore_end, ignore_days, ignore_zone, enabled, created_at`

func (r *SQLiteRepository) SaveReminder(ctx context.Context, in model.Reminder) error {
	if err := in.Validate(); err != nil {
		return err
	}
	var repeatType string
	var repeatInterval int
	var repeatEvery int64
	var repeatDays string
	if rep := in.Rule.Repeat; rep != nil {
		repeatType = string(rep.Type)
		repeatInterval = rep.Interval
		repeatEvery = int64(rep.Every)
		repeatDays = formatWeekdays(rep.Weekdays)
	}
	var ignoreStart, ignoreEnd any
	var ignoreDays, ignoreZone string
	if ign := in.Rule.Ignore; ign != nil {
		ignoreStart, ignoreEnd = ign.StartMinute, ign.EndMinute
		ignoreDays = formatWeekdays(ign.Days)
		if ign.Location != nil {
			ignoreZone = ign.Location.String()
		}
	}
	created := in.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reminders (`+reminderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(guid) DO UPDATE SET
			code = excluded.code, action = excluded.action, title = excluded.title, text = excluded.text,
			initial_at = excluded.initial_at, repeat_type = excluded.repeat_type, repeat_interval = excluded.repeat_interval,
			repeat_every_ns = excluded.repeat_every_ns, repeat_weekdays = excluded.repeat_weekdays,
			ignore_start = excluded.ignore_start, ignore_end = excluded.ignore_end, ignore_days = excluded.ignore_days,
			ignore_zone = excluded.ignore_zone,
			enabled = excluded.enabled`,
		in.GUID, in.Code, in.Action, in.Title, in.Text, mustTime(in.Rule.Initial), repeatType, repeatInterval, repeatEvery,
		repeatDays, ignoreStart, ignoreEnd, ignoreDays, ignoreZone, boolInt(in.Enabled), mustTime(created),
	)
	return err
}

func (r *SQLiteRepository) GetReminder(ctx context.Context, guid string) (model.Reminder, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE guid = ?`, guid)
	item, err := scanReminder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Reminder{}, ErrNotFound
		}
		return model.Reminder{}, err
	}
	return item, nil
}

func (r *SQLiteRepository) DeleteReminder(ctx context.Context, guid string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM reminders WHERE guid = ?`, guid)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (r *SQLiteRepository) ListReminders(ctx context.Context, filter ReminderListFilter) ([]model.Reminder, error) {
	query := `SELECT ` + reminderColumns + ` FROM reminders`
	args := make([]any, 0, 3)
	if filter.Enabled != nil {
		query += ` WHERE enabled = ?`
		args = append(args, boolInt(*filter.Enabled))
	}
	query += ` ORDER BY initial_at ASC`
	query += applyPagination(&args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Reminder, 0)
	for rows.Next() {
		item, scanErr := scanReminder(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func scanReminder(s scanner) (model.Reminder, error) {
	var out model.Reminder
	var initial, created string
	var repeatType, repeatDays, ignoreDays, ignoreZone string
	var repeatInterval int
	var repeatEvery int64
	var ignoreStart, ignoreEnd sql.NullInt64
	var enabled int
	if err := s.Scan(&out.GUID, &out.Code, &out.Action, &out.Title, &out.Text, &initial, &repeatType, &repeatInterval, &repeatEvery,
		&repeatDays, &ignoreStart, &ignoreEnd, &ignoreDays, &ignoreZone, &enabled, &created); err != nil {
		return model.Reminder{}, err
	}
	initialAt, err := parseRequiredTime(initial)
	if err != nil {
		return model.Reminder{}, err
	}
	createdAt, err := parseRequiredTime(created)
	if err != nil {
		return model.Reminder{}, err
	}
	out.Rule.Initial = initialAt
	if repeatType != "" {
		out.Rule.Repeat = &model.RepeatRule{
			Type:     model.RepeatType(repeatType),
			Interval: repeatInterval,
			Every:    time.Duration(repeatEvery),
			Weekdays: parseWeekdayList(repeatDays),
		}
	}
	if ignoreStart.Valid && ignoreEnd.Valid {
		out.Rule.Ignore = &model.IgnoreWindow{
			StartMinute: int(ignoreStart.Int64),
			EndMinute:   int(ignoreEnd.Int64),
			Days:        parseWeekdayList(ignoreDays),
		}
		if ignoreZone != "" {
			loc, err := time.LoadLocation(ignoreZone)
			if err != nil {
				return model.Reminder{}, fmt.Errorf("storage: reminder %s ignore zone: %w", out.GUID, err)
			}
			out.Rule.Ignore.Location = loc
		}
	}
	out.Enabled = enabled == 1
	out.CreatedAt = createdAt
	return out, nil
}

func formatWeekdays(days []time.Weekday) string {
	parts := make([]string, 0, len(days))
	for _, d := range days {
		parts = append(parts, strconv.Itoa(int(d)))
	}
	return strings.Join(parts, ",")
}

func parseWeekdayList(raw string) []time.Weekday {
	if raw == "" {
		return nil
	}
	out := make([]time.Weekday, 0, 7)
	for _, part := range strings.Split(raw, ",") {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || v < 0 || v > 6 {
			continue
		}
		out = append(out, time.Weekday(v))
	}
	return out
}
