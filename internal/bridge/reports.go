package bridge

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

func reportPath(version, identifier string) string {
	return "/" + version + "/users/self/reports/" + url.PathEscape(identifier)
}

// GetReportsByDate reads a participant report over an inclusive local-date
// range in one request.
func (c *Client) GetReportsByDate(ctx context.Context, identifier string, startDate, endDate string) ([]ReportData, error) {
	q := url.Values{}
	q.Set("startDate", startDate)
	q.Set("endDate", endDate)
	var out ReportDataList
	if err := c.do(ctx, http.MethodGet, reportPath("v3", identifier), q, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// GetReportsPage reads one cursor page of a timestamped participant report.
// An empty offsetKey requests the first page.
func (c *Client) GetReportsPage(ctx context.Context, identifier string, start, end time.Time, offsetKey string) (ForwardCursorReportDataList, error) {
	q := url.Values{}
	q.Set("startTime", start.UTC().Format(time.RFC3339Nano))
	q.Set("endTime", end.UTC().Format(time.RFC3339Nano))
	q.Set("pageSize", strconv.Itoa(c.pageSize))
	if offsetKey != "" {
		q.Set("offsetKey", offsetKey)
	}
	var out ForwardCursorReportDataList
	if err := c.do(ctx, http.MethodGet, reportPath("v4", identifier), q, nil, &out); err != nil {
		return ForwardCursorReportDataList{}, err
	}
	return out, nil
}

func (c *Client) SaveReport(ctx context.Context, identifier string, in ReportData) error {
	return c.do(ctx, http.MethodPost, reportPath("v4", identifier), nil, in, nil)
}
