// Package schedules mirrors the participant's scheduled activities locally.
// Remote windows are requested in chunks of at most two weeks, merged by
// activity GUID, and upserted without clobbering unsent local changes.
package schedules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sagebionetworks/bridgesdk/internal/bridge"
	"github.com/sagebionetworks/bridgesdk/internal/logging"
	"github.com/sagebionetworks/bridgesdk/internal/model"
	"github.com/sagebionetworks/bridgesdk/internal/storage"
)

// WatermarkName is the sync-state row tracking how far schedules are synced.
const WatermarkName = "schedules"

const (
	DefaultLookbackDays  = 14
	DefaultLookaheadDays = 14
	DefaultConcurrency   = 4
)

var (
	ErrSyncInFlight = errors.New("schedules: sync already in flight")
	ErrPending      = errors.New("schedules: saved locally, push pending")
	ErrRejected     = errors.New("schedules: rejected by server")
)

// Store is the persistence the repository needs.
type Store interface {
	storage.ScheduleStore
	storage.SyncStateStore
}

type Options struct {
	Client        *bridge.Client
	Store         Store
	Logger        *zap.Logger
	Now           func() time.Time
	ChunkDays     int
	LookbackDays  int
	LookaheadDays int
	Concurrency   int
}

type Repository struct {
	client    *bridge.Client
	store     Store
	logger    *zap.Logger
	now       func() time.Time
	chunkDays int
	lookback  int
	lookahead int
	workers   int

	syncing atomic.Bool
}

func NewRepository(opts Options) *Repository {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	chunkDays := opts.ChunkDays
	if chunkDays <= 0 || chunkDays > model.MaxChunkDays {
		chunkDays = model.MaxChunkDays
	}
	lookback := opts.LookbackDays
	if lookback <= 0 {
		lookback = DefaultLookbackDays
	}
	lookahead := opts.LookaheadDays
	if lookahead <= 0 {
		lookahead = DefaultLookaheadDays
	}
	workers := opts.Concurrency
	if workers <= 0 {
		workers = DefaultConcurrency
	}
	return &Repository{
		client:    opts.Client,
		store:     opts.Store,
		logger:    logger.Named("schedules"),
		now:       now,
		chunkDays: chunkDays,
		lookback:  lookback,
		lookahead: lookahead,
		workers:   workers,
	}
}

// FetchSchedules downloads activities scheduled in [start, end), stores them
// and returns the local view of that range.
func (r *Repository) FetchSchedules(ctx context.Context, start, end time.Time) ([]model.ScheduledActivity, error) {
	rng, err := model.NewDateRange(start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	chunks := rng.Chunks(r.chunkDays, startOfDay(r.now()).UTC())

	pages := make([][]bridge.ScheduledActivity, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, chunk := range chunks {
		g.Go(func() error {
			list, err := r.client.GetActivities(gctx, chunk.Start, chunk.End)
			if err != nil {
				return fmt.Errorf("schedules: window %s: %w", chunk, err)
			}
			pages[i] = list.Items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		r.logger.Warn("schedule fetch failed", zap.String("window", rng.String()), zap.Error(err))
		return nil, err
	}

	merged := r.mergePages(pages)
	written, err := r.store.UpsertSchedules(ctx, merged)
	if err != nil {
		return nil, fmt.Errorf("schedules: store: %w", err)
	}
	r.logger.Debug("schedules fetched",
		zap.String("window", rng.String()),
		zap.Int("chunks", len(chunks)),
		zap.Int("received", len(merged)),
		zap.Int("written", written),
	)
	return r.Schedules(ctx, rng.Start, rng.End)
}

// mergePages flattens chunk pages keyed by GUID. Order is first appearance;
// a later page's copy of an activity replaces the earlier one.
func (r *Repository) mergePages(pages [][]bridge.ScheduledActivity) []model.ScheduledActivity {
	om := orderedmap.New[string, model.ScheduledActivity]()
	for _, page := range pages {
		for _, item := range page {
			act := bridge.ScheduleFromWire(item)
			if err := act.Validate(); err != nil {
				r.logger.Warn("skipping malformed activity", zap.String("guid", item.GUID), zap.Error(err))
				continue
			}
			om.Set(act.GUID, act)
		}
	}
	out := make([]model.ScheduledActivity, 0, om.Len())
	for pair := om.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// Sync refreshes the rolling window around today and advances the
// watermark. A call made while another is running returns ErrSyncInFlight.
func (r *Repository) Sync(ctx context.Context) error {
	if !r.syncing.CompareAndSwap(false, true) {
		return ErrSyncInFlight
	}
	defer r.syncing.Store(false)

	rng, err := r.syncWindow(ctx)
	if err != nil {
		return err
	}
	if _, err := r.FetchSchedules(ctx, rng.Start, rng.End); err != nil {
		return err
	}
	if err := r.store.SetWatermark(ctx, WatermarkName, rng.End); err != nil {
		return fmt.Errorf("schedules: watermark: %w", err)
	}
	r.logger.Info("schedules synced", zap.String("window", rng.String()))
	return nil
}

// Syncing reports whether a Sync call is running.
func (r *Repository) Syncing() bool {
	return r.syncing.Load()
}

// syncWindow starts at the watermark when it falls inside the lookback
// period, so a gap left while offline is caught up. It always ends
// lookahead days past today.
func (r *Repository) syncWindow(ctx context.Context) (model.DateRange, error) {
	today := startOfDay(r.now())
	start := today.AddDate(0, 0, -r.lookback)
	end := today.AddDate(0, 0, r.lookahead)

	mark, err := r.store.GetWatermark(ctx, WatermarkName)
	switch {
	case err == nil:
		if mark.After(start) {
			start = mark
		}
		if start.After(today) {
			start = today
		}
	case errors.Is(err, storage.ErrNotFound):
	default:
		return model.DateRange{}, fmt.Errorf("schedules: watermark: %w", err)
	}
	return model.NewDateRange(start.UTC(), end.UTC())
}

func (r *Repository) Schedules(ctx context.Context, start, end time.Time) ([]model.ScheduledActivity, error) {
	from, to := start.UTC(), end.UTC()
	return r.store.ListSchedules(ctx, storage.ScheduleListFilter{From: &from, To: &to})
}

func (r *Repository) Schedule(ctx context.Context, guid string) (model.ScheduledActivity, error) {
	return r.store.GetSchedule(ctx, guid)
}

// StartActivity records a start time locally and pushes it. An activity that
// already started keeps its original start.
func (r *Repository) StartActivity(ctx context.Context, guid string, at time.Time) (model.ScheduledActivity, error) {
	return r.mutate(ctx, guid, func(act *model.ScheduledActivity) {
		if act.StartedOn == nil {
			started := at.UTC()
			act.StartedOn = &started
		}
	})
}

// FinishActivity records completion and optional client data, then pushes.
func (r *Repository) FinishActivity(ctx context.Context, guid string, at time.Time, clientData json.RawMessage) (model.ScheduledActivity, error) {
	return r.mutate(ctx, guid, func(act *model.ScheduledActivity) {
		finished := at.UTC()
		if act.StartedOn == nil {
			act.StartedOn = &finished
		}
		act.FinishedOn = &finished
		if len(clientData) > 0 {
			act.ClientData = clientData
		}
	})
}

func (r *Repository) mutate(ctx context.Context, guid string, apply func(*model.ScheduledActivity)) (model.ScheduledActivity, error) {
	act, err := r.store.GetSchedule(ctx, guid)
	if err != nil {
		return model.ScheduledActivity{}, fmt.Errorf("schedules: %s: %w", guid, err)
	}
	apply(&act)
	act.NeedsSync = true
	if err := r.store.UpdateSchedule(ctx, act); err != nil {
		return model.ScheduledActivity{}, fmt.Errorf("schedules: update %s: %w", guid, err)
	}

	outcome, err := r.pushOne(ctx, act)
	switch outcome {
	case pushed, dropped:
		act.NeedsSync = false
	}
	return act, err
}

// SyncPending pushes every locally mutated activity in one request. When the
// batch fails each activity is retried alone so a single bad record cannot
// hold back the rest.
func (r *Repository) SyncPending(ctx context.Context) (model.SyncResult, error) {
	pending := true
	items, err := r.store.ListSchedules(ctx, storage.ScheduleListFilter{NeedsSync: &pending})
	if err != nil {
		return model.SyncResult{}, fmt.Errorf("schedules: list pending: %w", err)
	}
	if len(items) == 0 {
		return model.SyncResult{}, nil
	}

	updates := make([]bridge.ActivityUpdate, 0, len(items))
	for _, act := range items {
		updates = append(updates, bridge.ScheduleToUpdate(act))
	}
	batchErr := r.client.UpdateActivities(ctx, updates)
	if batchErr == nil {
		for _, act := range items {
			if err := r.store.SetScheduleNeedsSync(ctx, act.GUID, false); err != nil {
				return model.SyncResult{}, fmt.Errorf("schedules: clear sync flag %s: %w", act.GUID, err)
			}
		}
		r.logger.Info("pending activities synced", zap.Int("pushed", len(items)))
		return model.SyncResult{Pushed: len(items)}, nil
	}
	if bridge.IsMaint(batchErr) {
		r.logger.Warn("activity push deferred, server in maintenance", zap.Int("pending", len(items)), zap.Error(batchErr))
		return model.SyncResult{Pending: len(items)}, nil
	}

	r.logger.Warn("batch activity push failed, retrying one by one", zap.Int("count", len(items)), zap.Error(batchErr))
	var result model.SyncResult
	for _, act := range items {
		outcome, err := r.pushOne(ctx, act)
		switch outcome {
		case pushed:
			result.Pushed++
		case dropped:
			result.Dropped++
		case failedLocal:
			result.Pending++
			return result, err
		default:
			result.Pending++
		}
	}
	return result, nil
}

type pushOutcome int

const (
	pushed pushOutcome = iota
	kept
	dropped
	failedLocal
)

func (r *Repository) pushOne(ctx context.Context, act model.ScheduledActivity) (pushOutcome, error) {
	pushErr := r.client.UpdateActivities(ctx, []bridge.ActivityUpdate{bridge.ScheduleToUpdate(act)})
	if pushErr == nil {
		if err := r.store.SetScheduleNeedsSync(ctx, act.GUID, false); err != nil {
			return failedLocal, fmt.Errorf("schedules: clear sync flag %s: %w", act.GUID, err)
		}
		return pushed, nil
	}
	if bridge.IsUnrecoverable(pushErr) {
		r.logger.Error("activity rejected, dropping retry", zap.String("guid", act.GUID), zap.Error(pushErr))
		logging.Capture(pushErr, map[string]string{"component": "schedules", "guid": act.GUID})
		if err := r.store.SetScheduleNeedsSync(ctx, act.GUID, false); err != nil {
			return failedLocal, fmt.Errorf("schedules: clear sync flag %s: %w", act.GUID, err)
		}
		return dropped, fmt.Errorf("%w: %w", ErrRejected, pushErr)
	}
	r.logger.Warn("activity push failed, will retry", zap.String("guid", act.GUID), zap.Bool("maintenance", bridge.IsMaint(pushErr)), zap.Error(pushErr))
	return kept, fmt.Errorf("%w: %w", ErrPending, pushErr)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
