package commands

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sagebionetworks/bridgesdk/internal/model"
)

func TestParseSupportedCommands(t *testing.T) {
	cases := []struct {
		in       string
		typeWant Type
	}{
		{"/sync", TypeSync},
		{"sync schedules", TypeSync},
		{"sync reports mood 30", TypeSync},
		{"push", TypePush},
		{"show schedules 3", TypeShow},
		{"show reports steps", TypeShow},
		{"show reminders", TypeShow},
		{"resource app_config", TypeResource},
		{"resource survey abc 2023-06-01T12:30:00Z", TypeResource},
		{"remind take survey at 09:00 every 2 days quiet night", TypeRemind},
		{"cancel 1234", TypeCancel},
		{"start g1", TypeStart},
		{"finish g1 {\"score\":3}", TypeFinish},
		{"save mood {\"score\":4}", TypeSave},
		{"clear reports", TypeClear},
		{"help", TypeHelp},
	}

	for _, tc := range cases {
		cmd, err := Parse(tc.in)
		if err != nil {
			t.Fatalf("parse %q failed: %v", tc.in, err)
		}
		if cmd.Type != tc.typeWant {
			t.Fatalf("parse %q type = %s, want %s", tc.in, cmd.Type, tc.typeWant)
		}
	}
}

func TestParseArguments(t *testing.T) {
	cmd, err := Parse("sync reports mood 30")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cmd.Sync.Subject != SubjectReports || cmd.Sync.Identifier != "mood" || cmd.Sync.Days != 30 {
		t.Fatalf("unexpected sync args %+v", cmd.Sync)
	}

	cmd, err = Parse("show schedules")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cmd.Show.Days != DefaultDays {
		t.Fatalf("expected default days, got %d", cmd.Show.Days)
	}

	cmd, err = Parse("remind take weekly survey at 2024-03-01T09:00:00Z every 7 days quiet window=22:00-07:00")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	r := cmd.Remind
	if r.Title != "take weekly survey" || r.At != "2024-03-01T09:00:00Z" || r.EveryDays != 7 || r.Quiet != "window=22:00-07:00" {
		t.Fatalf("unexpected remind args %+v", r)
	}

	cmd, err = Parse("resource survey abc 2023-06-01T12:30:00Z")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cmd.Resource.Type != model.ResourceTypeSurvey || cmd.Resource.GUID != "abc" || cmd.Resource.CreatedOn.Hour() != 12 {
		t.Fatalf("unexpected resource args %+v", cmd.Resource)
	}

	cmd, err = Parse(`finish g1 {"score": 3}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cmd.Target.GUID != "g1" || cmd.Target.ClientData != `{"score": 3}` {
		t.Fatalf("unexpected finish args %+v", cmd.Target)
	}
}

func TestParseRejectsBadArguments(t *testing.T) {
	for _, in := range []string{
		"sync reports",
		"sync reports mood -1",
		"sync weather",
		"show",
		"show reports",
		"resource survey abc",
		"resource survey abc yesterday",
		"remind at 09:00",
		"remind drink water",
		"remind drink water at 09:00 every two days",
		"remind drink water at 09:00 loudly",
		"cancel",
		"save mood",
		"clear everything",
	} {
		_, err := Parse(in)
		var ce *CommandError
		if !errors.As(err, &ce) || ce.Code != ErrCodeInvalidArgument {
			t.Fatalf("parse %q: expected invalid argument, got %v", in, err)
		}
	}
}

func TestParseUnknownCommand(t *testing.T) {
	_, err := Parse("/unknown do x")
	if err == nil {
		t.Fatal("expected error")
	}
	var ce *CommandError
	if !errors.As(err, &ce) || ce.Code != ErrCodeUnknownCommand {
		t.Fatalf("expected unknown command error, got %v", err)
	}
	if _, err := Parse("   "); err == nil {
		t.Fatal("expected empty input error")
	}
}

func TestExecuteDispatch(t *testing.T) {
	cmd, err := Parse("sync reports steps")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	called := false
	res, err := Execute(context.Background(), cmd, Handlers{
		Sync: func(_ context.Context, a SyncArgs) (Result, error) {
			called = true
			if a.Identifier != "steps" || a.Days != DefaultDays {
				t.Fatalf("unexpected args: %+v", a)
			}
			return Result{Message: "ok"}, nil
		},
	})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if !called || res.Message != "ok" {
		t.Fatalf("dispatch failed, called=%v res=%+v", called, res)
	}
}

func TestExecuteMissingHandler(t *testing.T) {
	cmd, err := Parse("show reminders")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	_, err = Execute(context.Background(), cmd, Handlers{})
	if err == nil {
		t.Fatal("expected error")
	}
	var ce *CommandError
	if !errors.As(err, &ce) || ce.Code != ErrCodeHandlerMissing {
		t.Fatalf("expected missing handler error, got %v", err)
	}
}

func TestResolveAt(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	at, err := ResolveAt("09:30", now)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !at.Equal(time.Date(2024, 3, 2, 9, 30, 0, 0, time.UTC)) {
		t.Fatalf("past clock should roll to tomorrow, got %s", at)
	}
	at, err = ResolveAt("18:00", now)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !at.Equal(time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected today time %s", at)
	}
	at, err = ResolveAt("2024-04-01T08:00:00Z", now)
	if err != nil || at.Month() != time.April {
		t.Fatalf("unexpected instant %s %v", at, err)
	}
	if _, err := ResolveAt("soon", now); err == nil {
		t.Fatal("expected error")
	}
}
