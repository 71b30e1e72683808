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

const reportColumns = `identifier, sort_key, timestamp, local_date, data, needs_sync`

// ReplaceReports swaps the synced rows of identifier inside window for in,
// atomically. Rows still waiting to be pushed are left untouched.
func (r *SQLiteRepository) ReplaceReports(ctx context.Context, identifier string, window model.DateRange, in []model.Report) error {
	for _, rep := range in {
		if rep.Identifier != identifier {
			return fmt.Errorf("storage: report %q does not belong to %q", rep.Identifier, identifier)
		}
		if err := rep.Validate(); err != nil {
			return err
		}
	}
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM reports
			WHERE identifier = ? AND sort_key >= ? AND sort_key < ? AND needs_sync = 0`,
			identifier, mustTime(window.Start), mustTime(window.End),
		); err != nil {
			return fmt.Errorf("delete report window: %w", err)
		}
		for _, rep := range in {
			if err := insertReport(ctx, tx, rep, true); err != nil {
				return fmt.Errorf("insert report %s@%s: %w", rep.Identifier, mustTime(rep.SortKey()), err)
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) UpsertReport(ctx context.Context, in model.Report) error {
	if err := in.Validate(); err != nil {
		return err
	}
	return insertReport(ctx, r.db, in, false)
}

func insertReport(ctx context.Context, ex execer, in model.Report, keepPending bool) error {
	query := `
		INSERT INTO reports (` + reportColumns + `)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(identifier, sort_key) DO UPDATE SET
			timestamp = excluded.timestamp,
			local_date = excluded.local_date,
			data = excluded.data,
			needs_sync = excluded.needs_sync`
	if keepPending {
		query += ` WHERE reports.needs_sync = 0`
	}
	var localDate any
	if in.LocalDate != nil {
		localDate = model.FormatLocalDate(*in.LocalDate)
	}
	data := string(in.Data)
	if data == "" {
		data = "null"
	}
	_, err := ex.ExecContext(ctx, query,
		in.Identifier, mustTime(in.SortKey()), nullTime(in.Timestamp), localDate, data, boolInt(in.NeedsSync),
	)
	return err
}

func (r *SQLiteRepository) ListReports(ctx context.Context, filter ReportListFilter) ([]model.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports`
	clauses := make([]string, 0, 4)
	args := make([]any, 0, 6)
	if filter.Identifier != "" {
		clauses = append(clauses, "identifier = ?")
		args = append(args, filter.Identifier)
	}
	if filter.From != nil {
		clauses = append(clauses, "sort_key >= ?")
		args = append(args, mustTime(*filter.From))
	}
	if filter.To != nil {
		clauses = append(clauses, "sort_key < ?")
		args = append(args, mustTime(*filter.To))
	}
	if filter.NeedsSync != nil {
		clauses = append(clauses, "needs_sync = ?")
		args = append(args, boolInt(*filter.NeedsSync))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY identifier ASC, sort_key ASC`
	query += applyPagination(&args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Report, 0)
	for rows.Next() {
		item, scanErr := scanReport(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) LatestReport(ctx context.Context, identifier string) (model.Report, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+reportColumns+` FROM reports
		WHERE identifier = ? ORDER BY sort_key DESC LIMIT 1`, identifier)
	item, err := scanReport(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Report{}, ErrNotFound
		}
		return model.Report{}, err
	}
	return item, nil
}

func (r *SQLiteRepository) SetReportNeedsSync(ctx context.Context, identifier string, sortKey time.Time, needsSync bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE reports SET needs_sync = ? WHERE identifier = ? AND sort_key = ?`,
		boolInt(needsSync), identifier, mustTime(sortKey))
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (r *SQLiteRepository) DeleteAllReports(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM reports`)
	return err
}

func scanReport(s scanner) (model.Report, error) {
	var out model.Report
	var sortKey string
	var ts sql.NullString
	var localDate sql.NullString
	var data string
	var needsSync int
	if err := s.Scan(&out.Identifier, &sortKey, &ts, &localDate, &data, &needsSync); err != nil {
		return model.Report{}, err
	}
	timestamp, err := parseNullableTime(ts)
	if err != nil {
		return model.Report{}, err
	}
	out.Timestamp = timestamp
	if localDate.Valid && localDate.String != "" {
		d, err := model.ParseLocalDate(localDate.String)
		if err != nil {
			return model.Report{}, err
		}
		out.LocalDate = &d
	}
	if data != "null" {
		out.Data = json.RawMessage(data)
	}
	out.NeedsSync = needsSync == 1
	return out, nil
}
