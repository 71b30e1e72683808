// Package bridge is a small client for the Bridge participant REST API,
// covering the report, activity and resource endpoints the sync layer uses.
package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	DefaultBaseURL   = "https://webservices.sagebridge.org"
	DefaultPageSize  = 50
	sessionHeader    = "Bridge-Session"
	defaultUserAgent = "bridgesdk-go/1.0"
)

type Options struct {
	BaseURL      string
	AppID        string
	SessionToken string
	UserAgent    string
	PageSize     int
	Timeout      time.Duration
	HTTPClient   *http.Client
}

type Client struct {
	baseURL   string
	appID     string
	session   string
	userAgent string
	pageSize  int
	http      *http.Client
}

func NewClient(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("bridge: bad base url: %w", err)
	}
	if strings.TrimSpace(opts.AppID) == "" {
		return nil, errors.New("bridge: app id is required")
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	return &Client{
		baseURL:   base,
		appID:     opts.AppID,
		session:   opts.SessionToken,
		userAgent: ua,
		pageSize:  pageSize,
		http:      hc,
	}, nil
}

func (c *Client) SetSessionToken(token string) {
	c.session = token
}

func (c *Client) PageSize() int {
	return c.pageSize
}

// do sends one JSON request and decodes a 2xx body into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("bridge: encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.session != "" {
		req.Header.Set(sessionHeader, c.session)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("bridge: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(method, path, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("bridge: decode %s %s: %w", method, path, err)
	}
	return nil
}
