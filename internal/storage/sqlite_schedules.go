package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sagebionetworks/bridgesdk/internal/model"
)

const scheduleColumns = `guid, schedule_plan_guid, label, label_detail, activity_type, task_identifier, survey_guid,
	survey_created_on, scheduled_on, expires_on, started_on, finished_on, persistent, client_data, needs_sync`

// UpsertSchedules writes remote activities. An activity with a local
// mutation still waiting to be pushed is not overwritten. It returns the
// number of rows written.
func (r *SQLiteRepository) UpsertSchedules(ctx context.Context, in []model.ScheduledActivity) (int, error) {
	for _, s := range in {
		if err := s.Validate(); err != nil {
			return 0, err
		}
	}
	written := 0
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		for _, s := range in {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO scheduled_activities (`+scheduleColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(guid) DO UPDATE SET
					schedule_plan_guid = excluded.schedule_plan_guid,
					label = excluded.label,
					label_detail = excluded.label_detail,
					activity_type = excluded.activity_type,
					task_identifier = excluded.task_identifier,
					survey_guid = excluded.survey_guid,
					survey_created_on = excluded.survey_created_on,
					scheduled_on = excluded.scheduled_on,
					expires_on = excluded.expires_on,
					started_on = excluded.started_on,
					finished_on = excluded.finished_on,
					persistent = excluded.persistent,
					client_data = excluded.client_data,
					needs_sync = excluded.needs_sync
				WHERE scheduled_activities.needs_sync = 0`,
				scheduleArgs(s)...,
			)
			if err != nil {
				return fmt.Errorf("upsert schedule %s: %w", s.GUID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			written += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

func (r *SQLiteRepository) GetSchedule(ctx context.Context, guid string) (model.ScheduledActivity, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM scheduled_activities WHERE guid = ?`, guid)
	item, err := scanSchedule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ScheduledActivity{}, ErrNotFound
		}
		return model.ScheduledActivity{}, err
	}
	return item, nil
}

func (r *SQLiteRepository) UpdateSchedule(ctx context.Context, in model.ScheduledActivity) error {
	if err := in.Validate(); err != nil {
		return err
	}
	args := scheduleArgs(in)
	args = append(args[1:], in.GUID)
	res, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_activities
		SET schedule_plan_guid = ?, label = ?, label_detail = ?, activity_type = ?, task_identifier = ?, survey_guid = ?,
			survey_created_on = ?, scheduled_on = ?, expires_on = ?, started_on = ?, finished_on = ?, persistent = ?,
			client_data = ?, needs_sync = ?
		WHERE guid = ?`, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (r *SQLiteRepository) SetScheduleNeedsSync(ctx context.Context, guid string, needsSync bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE scheduled_activities SET needs_sync = ? WHERE guid = ?`, boolInt(needsSync), guid)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (r *SQLiteRepository) ListSchedules(ctx context.Context, filter ScheduleListFilter) ([]model.ScheduledActivity, error) {
	query := `SELECT ` + scheduleColumns + ` FROM scheduled_activities`
	clauses := make([]string, 0, 3)
	args := make([]any, 0, 5)
	if filter.From != nil {
		clauses = append(clauses, "scheduled_on >= ?")
		args = append(args, mustTime(*filter.From))
	}
	if filter.To != nil {
		clauses = append(clauses, "scheduled_on < ?")
		args = append(args, mustTime(*filter.To))
	}
	if filter.NeedsSync != nil {
		clauses = append(clauses, "needs_sync = ?")
		args = append(args, boolInt(*filter.NeedsSync))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY scheduled_on ASC, guid ASC`
	query += applyPagination(&args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.ScheduledActivity, 0)
	for rows.Next() {
		item, scanErr := scanSchedule(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func scheduleArgs(s model.ScheduledActivity) []any {
	return []any{
		s.GUID, s.SchedulePlanGUID, s.Label, s.LabelDetail, string(s.ActivityType), s.TaskIdentifier, s.SurveyGUID,
		nullTime(s.SurveyCreatedOn), mustTime(s.ScheduledOn), nullTime(s.ExpiresOn), nullTime(s.StartedOn), nullTime(s.FinishedOn),
		boolInt(s.Persistent), nullString(string(s.ClientData)), boolInt(s.NeedsSync),
	}
}

func scanSchedule(s scanner) (model.ScheduledActivity, error) {
	var out model.ScheduledActivity
	var activityType string
	var surveyCreated, expires, started, finished, clientData sql.NullString
	var scheduled string
	var persistent, needsSync int
	if err := s.Scan(&out.GUID, &out.SchedulePlanGUID, &out.Label, &out.LabelDetail, &activityType, &out.TaskIdentifier, &out.SurveyGUID,
		&surveyCreated, &scheduled, &expires, &started, &finished, &persistent, &clientData, &needsSync); err != nil {
		return model.ScheduledActivity{}, err
	}
	scheduledOn, err := parseRequiredTime(scheduled)
	if err != nil {
		return model.ScheduledActivity{}, err
	}
	out.ScheduledOn = scheduledOn
	for _, f := range []struct {
		raw sql.NullString
		dst **time.Time
	}{
		{surveyCreated, &out.SurveyCreatedOn},
		{expires, &out.ExpiresOn},
		{started, &out.StartedOn},
		{finished, &out.FinishedOn},
	} {
		parsed, err := parseNullableTime(f.raw)
		if err != nil {
			return model.ScheduledActivity{}, err
		}
		*f.dst = parsed
	}
	out.ActivityType = model.ActivityType(activityType)
	if clientData.Valid {
		out.ClientData = json.RawMessage(clientData.String)
	}
	out.Persistent = persistent == 1
	out.NeedsSync = needsSync == 1
	return out, nil
}
