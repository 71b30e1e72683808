package bridge

import (
	"context"
	stdjson "encoding/json"
	"net/http"
	"net/url"
	"time"
)

func (c *Client) GetAppConfig(ctx context.Context) (stdjson.RawMessage, error) {
	var out stdjson.RawMessage
	if err := c.do(ctx, http.MethodGet, "/v1/apps/"+url.PathEscape(c.appID)+"/appconfig", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetSurvey(ctx context.Context, guid string, createdOn time.Time) (stdjson.RawMessage, error) {
	path := "/v3/surveys/" + url.PathEscape(guid) + "/revisions/" + url.PathEscape(createdOn.UTC().Format(time.RFC3339Nano))
	var out stdjson.RawMessage
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
