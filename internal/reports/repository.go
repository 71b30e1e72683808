// Package reports keeps a local copy of participant reports in step with
// Bridge. Reads are served from the local store; fetches replace a window of
// synced rows; saves are written locally first and pushed afterwards.
package reports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sagebionetworks/bridgesdk/internal/bridge"
	"github.com/sagebionetworks/bridgesdk/internal/logging"
	"github.com/sagebionetworks/bridgesdk/internal/model"
	"github.com/sagebionetworks/bridgesdk/internal/storage"
)

var (
	// ErrPending wraps a failed push that will be retried by SyncPending.
	ErrPending = errors.New("reports: saved locally, push pending")
	// ErrRejected wraps a failed push that will never be retried.
	ErrRejected = errors.New("reports: rejected by server")
)

// maxPages bounds one cursor drain in case the server keeps handing back
// offset keys.
const maxPages = 1000

type Options struct {
	Client     *bridge.Client
	Store      storage.ReportStore
	Classifier *Classifier
	Logger     *zap.Logger
	// Location decides the calendar day of reports that carry only an
	// instant. Defaults to time.Local.
	Location *time.Location
}

type Repository struct {
	client     *bridge.Client
	store      storage.ReportStore
	classifier *Classifier
	logger     *zap.Logger
	loc        *time.Location
}

func NewRepository(opts Options) *Repository {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	return &Repository{
		client:     opts.Client,
		store:      opts.Store,
		classifier: opts.Classifier,
		logger:     logger.Named("reports"),
		loc:        loc,
	}
}

func (r *Repository) Classify(identifier string) model.ReportCategory {
	return r.classifier.Classify(identifier)
}

// FetchReports downloads identifier's reports for [start, end), replaces the
// synced local rows in that window and returns the resulting local view.
func (r *Repository) FetchReports(ctx context.Context, identifier string, start, end time.Time) ([]model.Report, error) {
	category := r.Classify(identifier)
	window, err := localWindow(category, start, end)
	if err != nil {
		return nil, err
	}

	var remote []model.Report
	switch category {
	case model.ReportCategoryTimestamp:
		remote, err = r.fetchPages(ctx, identifier, window)
	default:
		remote, err = r.fetchByDate(ctx, identifier, category, window)
	}
	if err != nil {
		r.logger.Warn("report fetch failed",
			zap.String("identifier", identifier),
			zap.String("window", window.String()),
			zap.Error(err),
		)
		return nil, err
	}

	inWindow := remote[:0]
	for _, rep := range remote {
		if window.Contains(rep.SortKey()) {
			inWindow = append(inWindow, rep)
		}
	}
	if err := r.store.ReplaceReports(ctx, identifier, window, inWindow); err != nil {
		return nil, fmt.Errorf("reports: replace %s %s: %w", identifier, window, err)
	}
	r.logger.Debug("report window replaced",
		zap.String("identifier", identifier),
		zap.String("window", window.String()),
		zap.Int("count", len(inWindow)),
	)
	return r.list(ctx, identifier, window)
}

// Reports reads identifier's local rows for [start, end).
func (r *Repository) Reports(ctx context.Context, identifier string, start, end time.Time) ([]model.Report, error) {
	window, err := localWindow(r.Classify(identifier), start, end)
	if err != nil {
		return nil, err
	}
	return r.list(ctx, identifier, window)
}

func (r *Repository) LatestReport(ctx context.Context, identifier string) (model.Report, error) {
	return r.store.LatestReport(ctx, identifier)
}

// SaveReport stores the report as pending and pushes it. A nil error means
// the server accepted it. Push failures wrap ErrPending or ErrRejected; the
// local row is kept in both cases.
func (r *Repository) SaveReport(ctx context.Context, in model.Report) error {
	if r.Classify(in.Identifier) == model.ReportCategorySingleton {
		day := model.SingletonDate
		in.Timestamp = nil
		in.LocalDate = &day
	}
	in.NeedsSync = true
	if err := in.Validate(); err != nil {
		return err
	}
	if err := r.store.UpsertReport(ctx, in); err != nil {
		return fmt.Errorf("reports: save %s: %w", in.Identifier, err)
	}
	_, err := r.push(ctx, in)
	return err
}

// SyncPending pushes every report still waiting for the server.
func (r *Repository) SyncPending(ctx context.Context) (model.SyncResult, error) {
	pending := true
	items, err := r.store.ListReports(ctx, storage.ReportListFilter{NeedsSync: &pending})
	if err != nil {
		return model.SyncResult{}, fmt.Errorf("reports: list pending: %w", err)
	}
	batch := zap.String("batch", uuid.NewString())
	var result model.SyncResult
	for _, rep := range items {
		if err := ctx.Err(); err != nil {
			result.Pending += len(items) - result.Pushed - result.Pending - result.Dropped
			return result, err
		}
		outcome, err := r.push(ctx, rep, batch)
		switch outcome {
		case pushed:
			result.Pushed++
		case dropped:
			result.Dropped++
		default:
			result.Pending++
		}
		if err != nil && outcome == failedLocal {
			return result, err
		}
	}
	r.logger.Info("pending reports synced",
		batch,
		zap.Int("pushed", result.Pushed),
		zap.Int("pending", result.Pending),
		zap.Int("dropped", result.Dropped),
	)
	return result, nil
}

func (r *Repository) ClearCache(ctx context.Context) error {
	return r.store.DeleteAllReports(ctx)
}

type pushOutcome int

const (
	pushed pushOutcome = iota
	kept
	dropped
	failedLocal
)

func (r *Repository) push(ctx context.Context, rep model.Report, fields ...zap.Field) (pushOutcome, error) {
	fields = append(fields, zap.String("identifier", rep.Identifier), zap.Time("sortKey", rep.SortKey()))
	pushErr := r.client.SaveReport(ctx, rep.Identifier, bridge.ReportToWire(rep))
	if pushErr == nil {
		if err := r.store.SetReportNeedsSync(ctx, rep.Identifier, rep.SortKey(), false); err != nil {
			return failedLocal, fmt.Errorf("reports: clear sync flag %s: %w", rep.Identifier, err)
		}
		return pushed, nil
	}

	if bridge.IsUnrecoverable(pushErr) {
		r.logger.Error("report rejected, dropping retry", append(fields, zap.Error(pushErr))...)
		logging.Capture(pushErr, map[string]string{"component": "reports", "identifier": rep.Identifier})
		if err := r.store.SetReportNeedsSync(ctx, rep.Identifier, rep.SortKey(), false); err != nil {
			return failedLocal, fmt.Errorf("reports: clear sync flag %s: %w", rep.Identifier, err)
		}
		return dropped, fmt.Errorf("%w: %w", ErrRejected, pushErr)
	}

	r.logger.Warn("report push failed, will retry", append(fields, zap.Bool("maintenance", bridge.IsMaint(pushErr)), zap.Error(pushErr))...)
	return kept, fmt.Errorf("%w: %w", ErrPending, pushErr)
}

func (r *Repository) list(ctx context.Context, identifier string, window model.DateRange) ([]model.Report, error) {
	from, to := window.Start, window.End
	return r.store.ListReports(ctx, storage.ReportListFilter{Identifier: identifier, From: &from, To: &to})
}

func (r *Repository) fetchPages(ctx context.Context, identifier string, window model.DateRange) ([]model.Report, error) {
	out := make([]model.Report, 0)
	seen := map[string]bool{}
	offsetKey := ""
	for range maxPages {
		page, err := r.client.GetReportsPage(ctx, identifier, window.Start, window.End, offsetKey)
		if err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			rep, err := bridge.ReportFromWire(identifier, item)
			if err != nil {
				r.logger.Warn("skipping malformed report", zap.String("identifier", identifier), zap.Error(err))
				continue
			}
			out = append(out, rep)
		}
		if !page.HasNext || page.NextPageOffsetKey == "" {
			return out, nil
		}
		if seen[page.NextPageOffsetKey] {
			return nil, fmt.Errorf("reports: %s: offset key %q repeated", identifier, page.NextPageOffsetKey)
		}
		seen[page.NextPageOffsetKey] = true
		offsetKey = page.NextPageOffsetKey
	}
	return nil, fmt.Errorf("reports: %s: more than %d pages", identifier, maxPages)
}

func (r *Repository) fetchByDate(ctx context.Context, identifier string, category model.ReportCategory, window model.DateRange) ([]model.Report, error) {
	startDate := model.FormatLocalDate(window.Start)
	endDate := model.FormatLocalDate(window.End.AddDate(0, 0, -1))
	items, err := r.client.GetReportsByDate(ctx, identifier, startDate, endDate)
	if err != nil {
		return nil, err
	}
	out := make([]model.Report, 0, len(items))
	for _, item := range items {
		rep, err := bridge.ReportFromWire(identifier, item)
		if err != nil {
			r.logger.Warn("skipping malformed report", zap.String("identifier", identifier), zap.Error(err))
			continue
		}
		if category == model.ReportCategorySingleton {
			day := model.SingletonDate
			rep.Timestamp = nil
			rep.LocalDate = &day
		} else if rep.LocalDate == nil {
			day := model.DateOnly(rep.Timestamp.In(r.loc))
			rep.Timestamp = nil
			rep.LocalDate = &day
		}
		out = append(out, rep)
	}
	return out, nil
}

// localWindow maps a requested range onto the rows the category stores.
// Day-grouped windows widen to whole days; singletons always cover the one
// singleton date.
func localWindow(category model.ReportCategory, start, end time.Time) (model.DateRange, error) {
	switch category {
	case model.ReportCategorySingleton:
		return model.DateRange{Start: model.SingletonDate, End: model.SingletonDate.AddDate(0, 0, 1)}, nil
	case model.ReportCategoryGroupByDay:
		if _, err := model.NewDateRange(start, end); err != nil {
			return model.DateRange{}, err
		}
		first := model.DateOnly(start)
		last := first
		if end.After(start) {
			last = model.DateOnly(end.Add(-time.Nanosecond))
		}
		return model.DateRange{Start: first, End: last.AddDate(0, 0, 1)}, nil
	default:
		return model.NewDateRange(start.UTC(), end.UTC())
	}
}
