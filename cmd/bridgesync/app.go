package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/sagebionetworks/bridgesdk/internal/bridge"
	"github.com/sagebionetworks/bridgesdk/internal/commands"
	"github.com/sagebionetworks/bridgesdk/internal/config"
	"github.com/sagebionetworks/bridgesdk/internal/model"
	"github.com/sagebionetworks/bridgesdk/internal/reminder"
	"github.com/sagebionetworks/bridgesdk/internal/reports"
	"github.com/sagebionetworks/bridgesdk/internal/resource"
	"github.com/sagebionetworks/bridgesdk/internal/scheduler"
	"github.com/sagebionetworks/bridgesdk/internal/schedules"
	"github.com/sagebionetworks/bridgesdk/internal/storage"
	"github.com/sagebionetworks/bridgesdk/internal/views"
)

type app struct {
	logger      *zap.Logger
	out         io.Writer
	interactive bool
	now         func() time.Time

	db         *storage.SQLiteRepository
	classifier *reports.Classifier
	cache      *resource.Cache
	reports    *reports.Repository
	schedules  *schedules.Repository
	engine     *scheduler.Engine
	reminders  *reminder.Manager

	closers []func() error
}

func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger, out io.Writer, interactive bool) (*app, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &app{logger: logger, out: out, interactive: interactive, now: time.Now}

	db, err := storage.OpenSQLite(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}
	a.db = db
	a.closers = append(a.closers, db.Close)

	client, err := bridge.NewClient(bridge.Options{
		BaseURL:      cfg.Bridge.BaseURL,
		AppID:        cfg.Bridge.AppID,
		SessionToken: cfg.Bridge.SessionToken,
		UserAgent:    "bridgesync/" + version,
		PageSize:     cfg.Bridge.PageSize,
		Timeout:      cfg.Bridge.Timeout,
	})
	if err != nil {
		a.close()
		return nil, err
	}

	var resources storage.ResourceStore = db
	if cfg.Cache.Backend == "redis" {
		rs, err := resource.OpenRedisStore(ctx, cfg.Cache.RedisURL)
		if err != nil {
			a.close()
			return nil, err
		}
		resources = rs
		a.closers = append(a.closers, rs.Close)
	}
	a.cache = resource.NewCache(resource.Options{
		Store:   resources,
		Fetcher: resource.BridgeFetcher(client),
		TTL:     cfg.Cache.TTL,
		Logger:  logger,
	})

	a.classifier = reports.NewClassifier(cfg.Reports.GroupByDay, cfg.Reports.Singleton)
	a.reports = reports.NewRepository(reports.Options{
		Client:     client,
		Store:      db,
		Classifier: a.classifier,
		Logger:     logger,
	})
	a.schedules = schedules.NewRepository(schedules.Options{
		Client:        client,
		Store:         db,
		Logger:        logger,
		ChunkDays:     cfg.Schedules.ChunkDays,
		LookbackDays:  cfg.Schedules.LookbackDays,
		LookaheadDays: cfg.Schedules.LookaheadDays,
		Concurrency:   cfg.Schedules.Concurrency,
	})

	a.engine = scheduler.NewEngine(cfg.Reminders.Buffer)
	a.engine.Start()
	a.closers = append(a.closers, func() error {
		a.engine.Stop()
		return nil
	})
	a.reminders = reminder.NewManager(reminder.Options{
		Store:  db,
		Engine: a.engine,
		Logger: logger,
	})
	if _, err := a.reminders.Restore(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	if a.cache != nil {
		a.cache.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
	a.closers = nil
}

// watch delivers reminders until ctx is done.
func (a *app) watch(ctx context.Context) error {
	err := a.reminders.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *app) handlers() commands.Handlers {
	return commands.Handlers{
		Sync:     a.sync,
		Push:     a.push,
		Show:     a.show,
		Resource: a.resource,
		Remind:   a.remind,
		Cancel:   a.cancel,
		Start:    a.start,
		Finish:   a.finish,
		Save:     a.save,
		Clear:    a.clear,
		Help: func(context.Context) (commands.Result, error) {
			return commands.Result{Message: views.RenderHelp()}, nil
		},
	}
}

func (a *app) sync(ctx context.Context, args commands.SyncArgs) (commands.Result, error) {
	var steps []views.SyncStep
	if args.Subject == commands.SubjectSchedules || args.Subject == commands.SubjectAll {
		steps = append(steps, views.SyncStep{Name: "schedules", Run: a.syncSchedules})
	}
	switch args.Subject {
	case commands.SubjectReports:
		steps = append(steps, a.reportStep(args.Identifier, args.Days))
	case commands.SubjectAll:
		for _, id := range a.classifier.Identifiers() {
			steps = append(steps, a.reportStep(id, commands.DefaultDays))
		}
	}
	if _, err := views.RunSync(ctx, steps, a.out, a.interactive); err != nil {
		return commands.Result{}, err
	}
	return commands.Result{Message: views.RenderStatus(fmt.Sprintf("sync complete: %d step(s)", len(steps)))}, nil
}

func (a *app) syncSchedules(ctx context.Context) (string, error) {
	if err := a.schedules.Sync(ctx); err != nil {
		return "", err
	}
	today := startOfDay(a.now())
	acts, err := a.schedules.Schedules(ctx, today, today.AddDate(0, 0, 1))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d activities today", len(acts)), nil
}

func (a *app) reportStep(identifier string, days int) views.SyncStep {
	return views.SyncStep{
		Name: "reports " + identifier,
		Run: func(ctx context.Context) (string, error) {
			end := a.now()
			got, err := a.reports.FetchReports(ctx, identifier, end.AddDate(0, 0, -days), end)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%d %s report(s)", len(got), a.reports.Classify(identifier)), nil
		},
	}
}

func (a *app) push(ctx context.Context) (commands.Result, error) {
	rep, repErr := a.reports.SyncPending(ctx)
	sch, schErr := a.schedules.SyncPending(ctx)
	summary := views.RenderSyncSummary([]views.SyncSummaryData{
		{Subject: "reports", Result: rep, Err: repErr},
		{Subject: "schedules", Result: sch, Err: schErr},
	})
	return commands.Result{Message: summary}, errors.Join(repErr, schErr)
}

func (a *app) show(ctx context.Context, args commands.ShowArgs) (commands.Result, error) {
	now := a.now()
	var body string
	switch args.Subject {
	case commands.SubjectSchedules:
		today := startOfDay(now)
		acts, err := a.schedules.Schedules(ctx, today, today.AddDate(0, 0, args.Days))
		if err != nil {
			return commands.Result{}, err
		}
		body = views.RenderSchedules(views.ScheduleRows(acts, now))
	case commands.SubjectReports:
		got, err := a.reports.Reports(ctx, args.Identifier, now.AddDate(0, 0, -args.Days), now)
		if err != nil {
			return commands.Result{}, err
		}
		body = views.RenderReports(args.Identifier, a.reports.Classify(args.Identifier), views.ReportItems(got))
	case commands.SubjectReminders:
		rems, err := a.reminders.List(ctx)
		if err != nil {
			return commands.Result{}, err
		}
		body = views.RenderReminders(views.ReminderItems(rems, a.reminders.Next))
	}
	return commands.Result{Message: body}, nil
}

func (a *app) resource(ctx context.Context, args commands.ResourceArgs) (commands.Result, error) {
	var (
		res model.Resource
		err error
	)
	header := string(args.Type)
	switch args.Type {
	case model.ResourceTypeAppConfig:
		res, err = a.cache.Get(ctx, resource.AppConfigIdentifier, model.ResourceTypeAppConfig)
		if err == nil {
			var cfg resource.AppConfig
			if cfg, err = resource.Decode[resource.AppConfig](res); err == nil {
				header = fmt.Sprintf("app config %q (%d survey references)", cfg.Label, len(cfg.SurveyReferences))
			}
		}
	case model.ResourceTypeSurvey:
		res, err = a.cache.Get(ctx, resource.SurveyIdentifier(args.GUID, args.CreatedOn), model.ResourceTypeSurvey)
		if err == nil {
			var sv resource.Survey
			if sv, err = resource.Decode[resource.Survey](res); err == nil {
				header = fmt.Sprintf("survey %q (%d elements)", sv.Name, len(sv.Elements))
			}
		}
	}
	if err != nil {
		return commands.Result{}, err
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, res.JSON, "", "  "); err != nil {
		pretty.Reset()
		pretty.Write(res.JSON)
	}
	return commands.Result{Message: views.RenderScreen(views.Screen{
		Header: header,
		Body:   pretty.String(),
		Footer: "cached " + res.UpdatedAt.Local().Format(time.RFC3339),
	})}, nil
}

func (a *app) remind(ctx context.Context, args commands.RemindArgs) (commands.Result, error) {
	at, err := commands.ResolveAt(args.At, a.now())
	if err != nil {
		return commands.Result{}, err
	}
	rule := model.ReminderRule{Initial: at.UTC()}
	if args.EveryDays > 0 {
		rule.Repeat = &model.RepeatRule{Type: model.RepeatEveryNDays, Interval: args.EveryDays}
	}
	if args.Quiet != "" {
		if rule.Ignore, err = model.ParseIgnoreWindow(args.Quiet); err != nil {
			return commands.Result{}, err
		}
	}
	rem, err := a.reminders.Schedule(ctx, model.Reminder{Title: args.Title, Rule: rule})
	if err != nil {
		return commands.Result{}, err
	}
	next := "-"
	if t, ok := a.reminders.Next(rem.GUID); ok {
		next = t.Local().Format("2006-01-02 15:04")
	}
	return commands.Result{Message: fmt.Sprintf("reminder #%d %s next:%s", rem.Code, rem.GUID, next)}, nil
}

func (a *app) cancel(ctx context.Context, args commands.TargetArgs) (commands.Result, error) {
	if err := a.reminders.Cancel(ctx, args.GUID); err != nil {
		return commands.Result{}, err
	}
	return commands.Result{Message: "reminder cancelled: " + args.GUID}, nil
}

func (a *app) start(ctx context.Context, args commands.TargetArgs) (commands.Result, error) {
	act, err := a.schedules.StartActivity(ctx, args.GUID, a.now())
	return activityResult("started", act, err)
}

func (a *app) finish(ctx context.Context, args commands.TargetArgs) (commands.Result, error) {
	var data json.RawMessage
	if args.ClientData != "" {
		if !json.Valid([]byte(args.ClientData)) {
			return commands.Result{}, fmt.Errorf("client data is not valid json: %s", args.ClientData)
		}
		data = json.RawMessage(args.ClientData)
	}
	act, err := a.schedules.FinishActivity(ctx, args.GUID, a.now(), data)
	return activityResult("finished", act, err)
}

func activityResult(verb string, act model.ScheduledActivity, err error) (commands.Result, error) {
	switch {
	case err == nil:
		return commands.Result{Message: fmt.Sprintf("%s %s", verb, act.GUID)}, nil
	case errors.Is(err, schedules.ErrPending):
		return commands.Result{Message: fmt.Sprintf("%s %s locally, push pending", verb, act.GUID)}, nil
	default:
		return commands.Result{}, err
	}
}

func (a *app) save(ctx context.Context, args commands.SaveArgs) (commands.Result, error) {
	if !json.Valid([]byte(args.Data)) {
		return commands.Result{}, fmt.Errorf("report data is not valid json: %s", args.Data)
	}
	now := a.now().UTC()
	rep := model.Report{Identifier: args.Identifier, Data: json.RawMessage(args.Data)}
	if a.reports.Classify(args.Identifier) == model.ReportCategoryTimestamp {
		rep.Timestamp = &now
	} else {
		day := model.DateOnly(a.now())
		rep.LocalDate = &day
	}
	err := a.reports.SaveReport(ctx, rep)
	switch {
	case err == nil:
		return commands.Result{Message: "saved " + args.Identifier}, nil
	case errors.Is(err, reports.ErrPending):
		return commands.Result{Message: "saved " + args.Identifier + " locally, push pending"}, nil
	default:
		return commands.Result{}, err
	}
}

func (a *app) clear(ctx context.Context) (commands.Result, error) {
	if err := a.reports.ClearCache(ctx); err != nil {
		return commands.Result{}, err
	}
	return commands.Result{Message: "local reports cleared"}, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
