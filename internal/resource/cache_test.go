package resource

import (
	"context"
	stdjson "encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/sagebionetworks/bridgesdk/internal/bridge/bridgetest"
	"github.com/sagebionetworks/bridgesdk/internal/model"
	"github.com/sagebionetworks/bridgesdk/internal/storage"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func openStore(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "resources.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

type countingFetcher struct {
	calls   atomic.Int32
	version atomic.Int32
	err     error
}

func (f *countingFetcher) Fetch(_ context.Context, identifier string, _ model.ResourceType) (stdjson.RawMessage, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	v := f.version.Load()
	return stdjson.RawMessage(`{"id":"` + identifier + `","version":` + string(rune('0'+v)) + `}`), nil
}

func TestGetFetchesMissingThenServesFresh(t *testing.T) {
	clk := &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	fetcher := &countingFetcher{}
	c := NewCache(Options{Store: openStore(t), Fetcher: fetcher, TTL: time.Hour, Now: clk.Now, Logger: zaptest.NewLogger(t)})

	res, err := c.Get(t.Context(), "s1", model.ResourceTypeSurvey)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(res.JSON) != `{"id":"s1","version":0}` {
		t.Fatalf("unexpected json %s", res.JSON)
	}

	clk.Advance(30 * time.Minute)
	if _, err := c.Get(t.Context(), "s1", model.ResourceTypeSurvey); err != nil {
		t.Fatalf("second get: %v", err)
	}
	c.Wait()
	if got := fetcher.calls.Load(); got != 1 {
		t.Fatalf("expected 1 fetch, got %d", got)
	}
}

func TestGetServesStaleAndRefetchesInBackground(t *testing.T) {
	clk := &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	fetcher := &countingFetcher{}
	store := openStore(t)
	c := NewCache(Options{Store: store, Fetcher: fetcher, TTL: time.Hour, Now: clk.Now, Logger: zaptest.NewLogger(t)})

	if _, err := c.Get(t.Context(), "cfg", model.ResourceTypeAppConfig); err != nil {
		t.Fatalf("prime: %v", err)
	}
	fetcher.version.Store(1)
	clk.Advance(2 * time.Hour)

	stale, err := c.Get(t.Context(), "cfg", model.ResourceTypeAppConfig)
	if err != nil {
		t.Fatalf("stale get: %v", err)
	}
	if string(stale.JSON) != `{"id":"cfg","version":0}` {
		t.Fatalf("expected stale value, got %s", stale.JSON)
	}

	c.Wait()
	fresh, err := store.GetResource(t.Context(), "cfg", model.ResourceTypeAppConfig)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(fresh.JSON) != `{"id":"cfg","version":1}` {
		t.Fatalf("expected refreshed value, got %s", fresh.JSON)
	}
	if !fresh.UpdatedAt.Equal(clk.Now()) {
		t.Fatalf("expected updated_at %s, got %s", clk.Now(), fresh.UpdatedAt)
	}
}

func TestStaleRefetchFailureKeepsOldValue(t *testing.T) {
	clk := &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	fetcher := &countingFetcher{}
	store := openStore(t)
	c := NewCache(Options{Store: store, Fetcher: fetcher, TTL: time.Minute, Now: clk.Now, Logger: zaptest.NewLogger(t)})

	if _, err := c.Get(t.Context(), "cfg", model.ResourceTypeAppConfig); err != nil {
		t.Fatalf("prime: %v", err)
	}
	fetcher.err = errors.New("offline")
	clk.Advance(time.Hour)

	if _, err := c.Get(t.Context(), "cfg", model.ResourceTypeAppConfig); err != nil {
		t.Fatalf("stale get should not fail: %v", err)
	}
	c.Wait()
	res, err := store.GetResource(t.Context(), "cfg", model.ResourceTypeAppConfig)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(res.JSON) != `{"id":"cfg","version":0}` {
		t.Fatalf("old value should survive, got %s", res.JSON)
	}
}

func TestMissingFetchFailureIsReturned(t *testing.T) {
	fetcher := &countingFetcher{err: errors.New("offline")}
	c := NewCache(Options{Store: openStore(t), Fetcher: fetcher})
	if _, err := c.Get(t.Context(), "x", model.ResourceTypeSurvey); err == nil {
		t.Fatal("expected error")
	}
}

func TestRefreshCollapsesConcurrentCalls(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	var calls atomic.Int32
	fetcher := FetcherFunc(func(ctx context.Context, identifier string, typ model.ResourceType) (stdjson.RawMessage, error) {
		calls.Add(1)
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return stdjson.RawMessage(`{}`), nil
	})
	c := NewCache(Options{Store: openStore(t), Fetcher: fetcher})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := c.Refresh(context.Background(), "k", model.ResourceTypeAppConfig); err != nil {
			t.Errorf("refresh: %v", err)
		}
	}()
	<-started
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Refresh(context.Background(), "k", model.ResourceTypeAppConfig); err != nil {
				t.Errorf("refresh: %v", err)
			}
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("expected 1 remote call, got %d", got)
	}
}

type gatedFetcher struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (f *gatedFetcher) Fetch(ctx context.Context, identifier string, _ model.ResourceType) (stdjson.RawMessage, error) {
	if f.calls.Add(1) == 1 {
		close(f.started)
	}
	<-f.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return stdjson.RawMessage(`{"id":"` + identifier + `"}`), nil
}

func TestRefreshSurvivesFirstCallerCancel(t *testing.T) {
	fetcher := &gatedFetcher{started: make(chan struct{}), release: make(chan struct{})}
	c := NewCache(Options{Store: openStore(t), Fetcher: fetcher, Logger: zaptest.NewLogger(t)})

	first, cancel := context.WithCancel(t.Context())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Refresh(first, "self", model.ResourceTypeAppConfig)
		firstErr <- err
	}()
	<-fetcher.started
	cancel()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancelled first caller, got %v", err)
	}

	type result struct {
		res model.Resource
		err error
	}
	second := make(chan result, 1)
	go func() {
		res, err := c.Refresh(context.Background(), "self", model.ResourceTypeAppConfig)
		second <- result{res, err}
	}()
	time.Sleep(50 * time.Millisecond)
	close(fetcher.release)

	select {
	case r := <-second:
		if r.err != nil {
			t.Fatalf("second caller failed: %v", r.err)
		}
		if string(r.res.JSON) != `{"id":"self"}` {
			t.Fatalf("unexpected json %s", r.res.JSON)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second caller did not return")
	}
	if got := fetcher.calls.Load(); got > 2 {
		t.Fatalf("unexpected fetch count %d", got)
	}
}

func TestAppConfigFromBridge(t *testing.T) {
	srv := bridgetest.New(t)
	srv.SetAppConfig(stdjson.RawMessage(`{
		"label": "Study config",
		"clientData": {"reminders": {"hour": "9", "enabled": true, "label": "Morning"}}
	}`))
	created := time.Date(2023, 6, 1, 12, 30, 0, 0, time.UTC)
	srv.SetSurvey("sv1", created, stdjson.RawMessage(`{"guid":"sv1","name":"Mood","createdOn":"2023-06-01T12:30:00Z","elements":[{},{}]}`))

	c := NewCache(Options{Store: openStore(t), Fetcher: BridgeFetcher(srv.Client(t))})

	cfg, err := c.AppConfig(t.Context())
	if err != nil {
		t.Fatalf("app config: %v", err)
	}
	if cfg.Label != "Study config" {
		t.Fatalf("unexpected label %q", cfg.Label)
	}

	type reminderSection struct {
		Hour    int    `json:"hour"`
		Enabled bool   `json:"enabled"`
		Label   string `json:"label"`
	}
	section, err := ClientDataSection[reminderSection](cfg, "reminders")
	if err != nil {
		t.Fatalf("section: %v", err)
	}
	if section.Hour != 9 || !section.Enabled || section.Label != "Morning" {
		t.Fatalf("unexpected section %+v", section)
	}
	if _, err := ClientDataSection[reminderSection](cfg, "missing"); err == nil {
		t.Fatal("expected error for missing section")
	}

	survey, err := c.Survey(t.Context(), "sv1", created)
	if err != nil {
		t.Fatalf("survey: %v", err)
	}
	if survey.Name != "Mood" || len(survey.Elements) != 2 {
		t.Fatalf("unexpected survey %+v", survey)
	}
	if got := srv.Calls(bridgetest.RouteAppConfig); got != 1 {
		t.Fatalf("expected 1 app config call, got %d", got)
	}
}

func TestRedisStoreRoundTrip(t *testing.T) {
	url := os.Getenv("BRIDGE_TEST_REDIS_URL")
	if url == "" {
		t.Skip("BRIDGE_TEST_REDIS_URL not set")
	}
	store, err := OpenRedisStore(t.Context(), url)
	if err != nil {
		t.Fatalf("open redis: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	id := "test-" + time.Now().Format("150405.000000000")
	res := model.Resource{Identifier: id, Type: model.ResourceTypeSurvey, JSON: stdjson.RawMessage(`{"a":1}`), UpdatedAt: time.Now().UTC()}
	if err := store.PutResource(t.Context(), res); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := store.GetResource(t.Context(), id, model.ResourceTypeSurvey)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got.JSON) != `{"a":1}` || !got.UpdatedAt.Equal(res.UpdatedAt) {
		t.Fatalf("unexpected resource %+v", got)
	}
	if err := store.DeleteResource(t.Context(), id, model.ResourceTypeSurvey); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetResource(t.Context(), id, model.ResourceTypeSurvey); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInvalidateForcesRefetch(t *testing.T) {
	clk := &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	fetcher := &countingFetcher{}
	c := NewCache(Options{Store: openStore(t), Fetcher: fetcher, TTL: time.Hour, Now: clk.Now, Logger: zaptest.NewLogger(t)})

	if _, err := c.Get(t.Context(), "s1", model.ResourceTypeSurvey); err != nil {
		t.Fatalf("get: %v", err)
	}
	if err := c.Invalidate(t.Context(), "s1", model.ResourceTypeSurvey); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if err := c.Invalidate(t.Context(), "s1", model.ResourceTypeSurvey); err != nil {
		t.Fatalf("invalidating a missing entry should be a no-op: %v", err)
	}
	if _, err := c.Get(t.Context(), "s1", model.ResourceTypeSurvey); err != nil {
		t.Fatalf("get after invalidate: %v", err)
	}
	if got := fetcher.calls.Load(); got != 2 {
		t.Fatalf("expected a second fetch after invalidate, got %d", got)
	}
}
