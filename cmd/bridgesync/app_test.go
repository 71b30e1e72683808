package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/sagebionetworks/bridgesdk/internal/bridge"
	"github.com/sagebionetworks/bridgesdk/internal/bridge/bridgetest"
	"github.com/sagebionetworks/bridgesdk/internal/config"
)

func newTestApp(t *testing.T) (*app, *bridgetest.Server, *bytes.Buffer) {
	t.Helper()
	srv := bridgetest.New(t)
	cfg := config.Default()
	cfg.Bridge.BaseURL = srv.URL
	cfg.Bridge.AppID = bridgetest.AppID
	cfg.Bridge.SessionToken = bridgetest.Session
	cfg.Storage.Path = filepath.Join(t.TempDir(), "bridgesync.db")
	cfg.Reports.GroupByDay = []string{"mood"}
	cfg.Reports.Singleton = []string{"profile"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	var out bytes.Buffer
	a, err := newApp(t.Context(), cfg, zaptest.NewLogger(t), &out, false)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(a.close)
	return a, srv, &out
}

func runCommand(t *testing.T, a *app, input string) string {
	t.Helper()
	var stdout, stderr bytes.Buffer
	if code := execute(t.Context(), a, input, &stdout, &stderr); code != 0 {
		t.Fatalf("%q exited %d: %s", input, code, stderr.String())
	}
	return stdout.String()
}

func TestSyncShowAndStartSchedule(t *testing.T) {
	a, srv, out := newTestApp(t)
	srv.AddActivities(bridge.ScheduledActivity{
		GUID:        "act-1",
		ScheduledOn: time.Now().UTC().Add(time.Hour),
		Activity:    bridge.Activity{Label: "Tapping test", ActivityType: "task", Task: &bridge.TaskReference{Identifier: "tapping"}},
	})

	msg := runCommand(t, a, "sync schedules")
	if !strings.Contains(msg, "sync complete") || !strings.Contains(out.String(), "[OK] schedules") {
		t.Fatalf("unexpected sync output: %s / %s", msg, out.String())
	}
	if len(srv.Windows()) == 0 {
		t.Fatal("expected activity requests")
	}

	shown := runCommand(t, a, "show schedules 2")
	if !strings.Contains(shown, "Tapping test") {
		t.Fatalf("expected activity in listing:\n%s", shown)
	}

	started := runCommand(t, a, "start act-1")
	if !strings.Contains(started, "started act-1") {
		t.Fatalf("unexpected start output %q", started)
	}
	if len(srv.Updates()) != 1 {
		t.Fatalf("expected one update batch, got %d", len(srv.Updates()))
	}
}

func TestSaveAndShowSingletonReport(t *testing.T) {
	a, srv, _ := newTestApp(t)

	msg := runCommand(t, a, `save profile {"age": 40}`)
	if !strings.Contains(msg, "saved profile") {
		t.Fatalf("unexpected save output %q", msg)
	}
	saved := srv.Saved("profile")
	if len(saved) != 1 || saved[0].LocalDate != "2018-10-31" {
		t.Fatalf("unexpected saved reports %+v", saved)
	}

	shown := runCommand(t, a, "show reports profile")
	if !strings.Contains(shown, "2018-10-31") || !strings.Contains(shown, `"age"`) {
		t.Fatalf("unexpected report listing:\n%s", shown)
	}

	runCommand(t, a, "clear reports")
	shown = runCommand(t, a, "show reports profile")
	if !strings.Contains(shown, "no reports") {
		t.Fatalf("expected empty listing after clear:\n%s", shown)
	}
}

func TestPushReportsPendingFailures(t *testing.T) {
	a, srv, _ := newTestApp(t)
	srv.Fail(bridgetest.RouteSaveReport, 503, "down for maintenance", 1)

	msg := runCommand(t, a, `save steps {"n": 10}`)
	if !strings.Contains(msg, "push pending") {
		t.Fatalf("expected pending save, got %q", msg)
	}
	pushed := runCommand(t, a, "push")
	if !strings.Contains(pushed, "[OK] reports: pushed 1") {
		t.Fatalf("unexpected push summary:\n%s", pushed)
	}
}

func TestResourceAppConfig(t *testing.T) {
	a, srv, _ := newTestApp(t)
	srv.SetAppConfig(json.RawMessage(`{"label":"Study config","clientData":{"theme":"dark"}}`))

	msg := runCommand(t, a, "resource app_config")
	if !strings.Contains(msg, `app config "Study config"`) || !strings.Contains(msg, `"theme"`) {
		t.Fatalf("unexpected resource output:\n%s", msg)
	}
	runCommand(t, a, "resource app_config")
	if got := srv.Calls(bridgetest.RouteAppConfig); got != 1 {
		t.Fatalf("expected cached second read, got %d calls", got)
	}
}

func TestRemindShowCancel(t *testing.T) {
	a, _, _ := newTestApp(t)

	msg := runCommand(t, a, "remind take the survey at 2099-01-01T09:00:00Z every 2 days quiet night")
	fields := strings.Fields(msg)
	if len(fields) < 3 || fields[1] != "#1" {
		t.Fatalf("unexpected remind output %q", msg)
	}
	guid := fields[2]

	shown := runCommand(t, a, "show reminders")
	if !strings.Contains(shown, "take the survey (every 2 days)") {
		t.Fatalf("unexpected reminders listing:\n%s", shown)
	}

	runCommand(t, a, "cancel "+guid)
	shown = runCommand(t, a, "show reminders")
	if !strings.Contains(shown, "(none)") {
		t.Fatalf("expected no reminders after cancel:\n%s", shown)
	}
}

func TestRunExitCodes(t *testing.T) {
	t.Setenv("BRIDGE_CONFIG", "")
	t.Setenv("BRIDGE_APP_ID", "study")
	t.Setenv("BRIDGE_DB_PATH", filepath.Join(t.TempDir(), "run.db"))

	var stdout, stderr bytes.Buffer
	if code := run(nil, &stdout, &stderr); code != 0 {
		t.Fatalf("help should succeed, got %d: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "bridgesync") {
		t.Fatalf("expected help text, got %q", stdout.String())
	}

	stderr.Reset()
	if code := run([]string{"frobnicate"}, &stdout, &stderr); code != 2 {
		t.Fatalf("unknown command should exit 2, got %d", code)
	}
	if !strings.Contains(stderr.String(), "unsupported command") {
		t.Fatalf("unexpected stderr %q", stderr.String())
	}
}
