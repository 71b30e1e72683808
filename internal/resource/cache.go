// Package resource is a read-through TTL cache for Bridge resources such as
// the app config and survey revisions. Stale entries are served immediately
// while a background refetch replaces them.
package resource

import (
	"context"
	stdjson "encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sagebionetworks/bridgesdk/internal/model"
	"github.com/sagebionetworks/bridgesdk/internal/storage"
)

const DefaultTTL = 24 * time.Hour

var ErrNoFetcher = errors.New("resource: no fetcher configured")

// Fetcher loads the current remote JSON for a resource.
type Fetcher interface {
	Fetch(ctx context.Context, identifier string, typ model.ResourceType) (stdjson.RawMessage, error)
}

type FetcherFunc func(ctx context.Context, identifier string, typ model.ResourceType) (stdjson.RawMessage, error)

func (f FetcherFunc) Fetch(ctx context.Context, identifier string, typ model.ResourceType) (stdjson.RawMessage, error) {
	return f(ctx, identifier, typ)
}

type Options struct {
	Store   storage.ResourceStore
	Fetcher Fetcher
	TTL     time.Duration
	Logger  *zap.Logger
	Now     func() time.Time
}

type Cache struct {
	store   storage.ResourceStore
	fetcher Fetcher
	ttl     time.Duration
	logger  *zap.Logger
	now     func() time.Time

	group singleflight.Group
	wg    sync.WaitGroup
}

func NewCache(opts Options) *Cache {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Cache{
		store:   opts.Store,
		fetcher: opts.Fetcher,
		ttl:     ttl,
		logger:  logger,
		now:     now,
	}
}

// Get returns the cached resource. A fresh entry is returned as is. A stale
// entry is returned too, and a refetch is started in the background. A
// missing entry is fetched before returning.
func (c *Cache) Get(ctx context.Context, identifier string, typ model.ResourceType) (model.Resource, error) {
	res, err := c.store.GetResource(ctx, identifier, typ)
	switch {
	case err == nil:
		if !res.IsFresh(c.now(), c.ttl) {
			c.refreshAsync(ctx, identifier, typ)
		}
		return res, nil
	case errors.Is(err, storage.ErrNotFound):
		return c.Refresh(ctx, identifier, typ)
	default:
		return model.Resource{}, fmt.Errorf("resource: read %s/%s: %w", typ, identifier, err)
	}
}

func (c *Cache) Put(ctx context.Context, res model.Resource) error {
	if res.UpdatedAt.IsZero() {
		res.UpdatedAt = c.now()
	}
	return c.store.PutResource(ctx, res)
}

func (c *Cache) Invalidate(ctx context.Context, identifier string, typ model.ResourceType) error {
	err := c.store.DeleteResource(ctx, identifier, typ)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return err
}

// Refresh fetches the resource now and stores it. Concurrent refreshes of the
// same key share one remote call, which runs detached from any single
// caller's cancellation; each caller still returns early when its own ctx
// is done.
func (c *Cache) Refresh(ctx context.Context, identifier string, typ model.ResourceType) (model.Resource, error) {
	if c.fetcher == nil {
		return model.Resource{}, ErrNoFetcher
	}
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(string(typ)+"\x00"+identifier, func() (any, error) {
		raw, err := c.fetcher.Fetch(shared, identifier, typ)
		if err != nil {
			return model.Resource{}, fmt.Errorf("resource: fetch %s/%s: %w", typ, identifier, err)
		}
		res := model.Resource{Identifier: identifier, Type: typ, JSON: raw, UpdatedAt: c.now()}
		if err := c.store.PutResource(shared, res); err != nil {
			return model.Resource{}, fmt.Errorf("resource: store %s/%s: %w", typ, identifier, err)
		}
		return res, nil
	})
	select {
	case <-ctx.Done():
		return model.Resource{}, fmt.Errorf("resource: refresh %s/%s: %w", typ, identifier, ctx.Err())
	case r := <-ch:
		if r.Err != nil {
			return model.Resource{}, r.Err
		}
		return r.Val.(model.Resource), nil
	}
}

// Wait blocks until background refetches have finished.
func (c *Cache) Wait() {
	c.wg.Wait()
}

func (c *Cache) refreshAsync(ctx context.Context, identifier string, typ model.ResourceType) {
	if c.fetcher == nil {
		return
	}
	bg := context.WithoutCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if _, err := c.Refresh(bg, identifier, typ); err != nil {
			c.logger.Warn("background resource refetch failed",
				zap.String("identifier", identifier),
				zap.String("type", string(typ)),
				zap.Error(err),
			)
		}
	}()
}
