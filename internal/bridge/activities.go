package bridge

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

func (c *Client) GetActivities(ctx context.Context, start, end time.Time) (ScheduledActivityList, error) {
	q := url.Values{}
	q.Set("startTime", start.UTC().Format(time.RFC3339Nano))
	q.Set("endTime", end.UTC().Format(time.RFC3339Nano))
	var out ScheduledActivityList
	if err := c.do(ctx, http.MethodGet, "/v4/activities", q, nil, &out); err != nil {
		return ScheduledActivityList{}, err
	}
	return out, nil
}

func (c *Client) UpdateActivities(ctx context.Context, in []ActivityUpdate) error {
	if len(in) == 0 {
		return nil
	}
	return c.do(ctx, http.MethodPost, "/v3/activities", nil, in, nil)
}
