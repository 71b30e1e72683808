package bridge_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/sagebionetworks/bridgesdk/internal/bridge"
	"github.com/sagebionetworks/bridgesdk/internal/bridge/bridgetest"
	"github.com/sagebionetworks/bridgesdk/internal/model"
)

func at(t *testing.T, raw string) time.Time {
	t.Helper()
	v, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return v
}

func TestGetReportsPageFollowsOffsetKey(t *testing.T) {
	srv := bridgetest.New(t)
	for _, raw := range []string{"2024-03-01T10:00:00Z", "2024-03-02T10:00:00Z", "2024-03-03T10:00:00Z"} {
		ts := at(t, raw)
		srv.AddReports("steps", bridge.ReportData{DateTime: &ts, Data: json.RawMessage(`{"n":1}`)})
	}
	c := srv.Client(t)

	start, end := at(t, "2024-03-01T00:00:00Z"), at(t, "2024-03-10T00:00:00Z")
	first, err := c.GetReportsPage(t.Context(), "steps", start, end, "")
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if len(first.Items) != 2 || !first.HasNext || first.NextPageOffsetKey == "" {
		t.Fatalf("unexpected first page: %+v", first)
	}
	second, err := c.GetReportsPage(t.Context(), "steps", start, end, first.NextPageOffsetKey)
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(second.Items) != 1 || second.HasNext {
		t.Fatalf("unexpected second page: %+v", second)
	}
}

func TestGetReportsByDateIsInclusive(t *testing.T) {
	srv := bridgetest.New(t)
	srv.AddReports("mood",
		bridge.ReportData{LocalDate: "2024-03-01", Data: json.RawMessage(`1`)},
		bridge.ReportData{LocalDate: "2024-03-05", Data: json.RawMessage(`2`)},
		bridge.ReportData{LocalDate: "2024-03-06", Data: json.RawMessage(`3`)},
	)
	items, err := srv.Client(t).GetReportsByDate(t.Context(), "mood", "2024-03-01", "2024-03-05")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
}

func TestSaveReportClientDataTooLarge(t *testing.T) {
	srv := bridgetest.New(t)
	srv.Fail(bridgetest.RouteSaveReport, http.StatusBadRequest, "Client data too large (2048 bytes)", 1)
	c := srv.Client(t)

	err := c.SaveReport(t.Context(), "big", bridge.ReportData{LocalDate: "2024-03-01", Data: json.RawMessage(`{}`)})
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *bridge.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 api error, got %v", err)
	}
	if !bridge.IsUnrecoverable(err) {
		t.Fatalf("expected unrecoverable: %v", err)
	}
	if bridge.IsMaint(err) {
		t.Fatal("400 is not a maintenance error")
	}

	if err := c.SaveReport(t.Context(), "big", bridge.ReportData{LocalDate: "2024-03-01", Data: json.RawMessage(`{}`)}); err != nil {
		t.Fatalf("second save: %v", err)
	}
	if got := len(srv.Saved("big")); got != 1 {
		t.Fatalf("expected 1 saved report, got %d", got)
	}
}

func TestMaintenanceAndAuthErrors(t *testing.T) {
	srv := bridgetest.New(t)
	srv.Fail(bridgetest.RouteAppConfig, http.StatusServiceUnavailable, "down for maintenance", 1)
	c := srv.Client(t)

	_, err := c.GetAppConfig(t.Context())
	if !bridge.IsMaint(err) {
		t.Fatalf("expected maintenance error, got %v", err)
	}
	if bridge.IsUnrecoverable(err) {
		t.Fatal("maintenance errors are recoverable")
	}

	c.SetSessionToken("")
	_, err = c.GetAppConfig(t.Context())
	if !errors.Is(err, bridge.ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestGetSurveyByRevision(t *testing.T) {
	srv := bridgetest.New(t)
	created := at(t, "2023-06-01T12:30:00Z")
	srv.SetSurvey("abc", created, json.RawMessage(`{"name":"PHQ-9"}`))

	raw, err := srv.Client(t).GetSurvey(t.Context(), "abc", created)
	if err != nil {
		t.Fatalf("get survey: %v", err)
	}
	if string(raw) != `{"name":"PHQ-9"}` {
		t.Fatalf("unexpected body %s", raw)
	}
}

func TestNewClientRequiresAppID(t *testing.T) {
	if _, err := bridge.NewClient(bridge.Options{}); err == nil {
		t.Fatal("expected error without app id")
	}
}

func TestReportConversion(t *testing.T) {
	r, err := bridge.ReportFromWire("mood", bridge.ReportData{Date: "2024-03-01", Data: json.RawMessage(`5`)})
	if err != nil {
		t.Fatalf("from wire: %v", err)
	}
	if r.LocalDate == nil || r.Timestamp != nil || model.FormatLocalDate(*r.LocalDate) != "2024-03-01" {
		t.Fatalf("unexpected report %+v", r)
	}
	if _, err := bridge.ReportFromWire("mood", bridge.ReportData{}); err == nil {
		t.Fatal("expected error for report without a date")
	}

	wire := bridge.ReportToWire(model.Report{Identifier: "x", LocalDate: r.LocalDate})
	if wire.LocalDate != "2024-03-01" || string(wire.Data) != "null" {
		t.Fatalf("unexpected wire %+v", wire)
	}
}

func TestScheduleFromWire(t *testing.T) {
	scheduled := at(t, "2024-03-01T09:00:00Z")
	created := at(t, "2023-01-01T00:00:00Z")
	got := bridge.ScheduleFromWire(bridge.ScheduledActivity{
		GUID:        "g1",
		ScheduledOn: scheduled,
		Activity: bridge.Activity{
			Label:        "Mood survey",
			ActivityType: "survey",
			Survey:       &bridge.SurveyReference{GUID: "s1", CreatedOn: &created},
		},
	})
	if got.GUID != "g1" || got.ActivityType != model.ActivityTypeSurvey || got.SurveyGUID != "s1" {
		t.Fatalf("unexpected activity %+v", got)
	}
	if !got.ScheduledOn.Equal(scheduled) || got.SurveyCreatedOn == nil {
		t.Fatalf("unexpected times %+v", got)
	}
}
