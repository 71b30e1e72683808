package commands

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sagebionetworks/bridgesdk/internal/model"
)

type Type string

const (
	TypeSync     Type = "sync"
	TypePush     Type = "push"
	TypeShow     Type = "show"
	TypeResource Type = "resource"
	TypeRemind   Type = "remind"
	TypeCancel   Type = "cancel"
	TypeStart    Type = "start"
	TypeFinish   Type = "finish"
	TypeClear    Type = "clear"
	TypeSave     Type = "save"
	TypeHelp     Type = "help"
)

type ErrorCode string

const (
	ErrCodeEmptyInput      ErrorCode = "empty_input"
	ErrCodeUnknownCommand  ErrorCode = "unknown_command"
	ErrCodeInvalidArgument ErrorCode = "invalid_argument"
	ErrCodeHandlerMissing  ErrorCode = "handler_missing"
)

type CommandError struct {
	Code    ErrorCode
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func invalid(format string, args ...any) *CommandError {
	return &CommandError{Code: ErrCodeInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

const (
	SubjectSchedules = "schedules"
	SubjectReports   = "reports"
	SubjectReminders = "reminders"
	SubjectAll       = "all"
)

// DefaultDays is the span used when a sync or show command gives none.
const DefaultDays = 7

type SyncArgs struct {
	Subject    string
	Identifier string
	Days       int
}

type ShowArgs struct {
	Subject    string
	Identifier string
	Days       int
}

type ResourceArgs struct {
	Type      model.ResourceType
	GUID      string
	CreatedOn time.Time
}

// RemindArgs keeps At unresolved; ResolveAt turns it into an instant.
type RemindArgs struct {
	Title     string
	At        string
	EveryDays int
	Quiet     string
}

type SaveArgs struct {
	Identifier string
	Data       string
}

type TargetArgs struct {
	GUID       string
	ClientData string
}

type Command struct {
	Type     Type
	Raw      string
	Sync     *SyncArgs
	Show     *ShowArgs
	Resource *ResourceArgs
	Remind   *RemindArgs
	Target   *TargetArgs
	Save     *SaveArgs
}

func Parse(input string) (Command, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Command{}, &CommandError{Code: ErrCodeEmptyInput, Message: "command is empty"}
	}
	if strings.HasPrefix(raw, "/") {
		raw = strings.TrimSpace(strings.TrimPrefix(raw, "/"))
	}
	if raw == "" {
		return Command{}, &CommandError{Code: ErrCodeEmptyInput, Message: "command is empty"}
	}

	parts := strings.Fields(raw)
	head := strings.ToLower(parts[0])
	args := parts[1:]

	switch Type(head) {
	case TypeSync:
		return parseSync(input, args)
	case TypePush:
		return Command{Type: TypePush, Raw: input}, nil
	case TypeShow:
		return parseShow(input, args)
	case TypeResource:
		return parseResource(input, args)
	case TypeRemind:
		return parseRemind(input, args)
	case TypeCancel, TypeStart:
		if len(args) != 1 {
			return Command{}, invalid("%s requires a guid", head)
		}
		return Command{Type: Type(head), Raw: input, Target: &TargetArgs{GUID: args[0]}}, nil
	case TypeFinish:
		if len(args) == 0 {
			return Command{}, invalid("finish requires a guid")
		}
		return Command{Type: TypeFinish, Raw: input, Target: &TargetArgs{GUID: args[0], ClientData: strings.Join(args[1:], " ")}}, nil
	case TypeSave:
		if len(args) < 2 {
			return Command{}, invalid("save requires <identifier> <json>")
		}
		return Command{Type: TypeSave, Raw: input, Save: &SaveArgs{Identifier: args[0], Data: strings.Join(args[1:], " ")}}, nil
	case TypeClear:
		if len(args) != 1 || strings.ToLower(args[0]) != SubjectReports {
			return Command{}, invalid("clear supports only: clear reports")
		}
		return Command{Type: TypeClear, Raw: input}, nil
	case TypeHelp:
		return Command{Type: TypeHelp, Raw: input}, nil
	default:
		return Command{}, &CommandError{Code: ErrCodeUnknownCommand, Message: fmt.Sprintf("unsupported command: %s", head)}
	}
}

func parseSync(raw string, args []string) (Command, error) {
	if len(args) == 0 {
		return Command{Type: TypeSync, Raw: raw, Sync: &SyncArgs{Subject: SubjectAll}}, nil
	}
	subject := strings.ToLower(args[0])
	switch subject {
	case SubjectSchedules, SubjectAll:
		if len(args) > 1 {
			return Command{}, invalid("sync %s takes no arguments", subject)
		}
		return Command{Type: TypeSync, Raw: raw, Sync: &SyncArgs{Subject: subject}}, nil
	case SubjectReports:
		if len(args) < 2 {
			return Command{}, invalid("sync reports requires an identifier")
		}
		days, err := parseDays(args[2:])
		if err != nil {
			return Command{}, err
		}
		return Command{Type: TypeSync, Raw: raw, Sync: &SyncArgs{Subject: subject, Identifier: args[1], Days: days}}, nil
	default:
		return Command{}, invalid("unknown sync subject: %s", subject)
	}
}

func parseShow(raw string, args []string) (Command, error) {
	if len(args) == 0 {
		return Command{}, invalid("show requires a subject")
	}
	subject := strings.ToLower(args[0])
	switch subject {
	case SubjectSchedules:
		days, err := parseDays(args[1:])
		if err != nil {
			return Command{}, err
		}
		return Command{Type: TypeShow, Raw: raw, Show: &ShowArgs{Subject: subject, Days: days}}, nil
	case SubjectReports:
		if len(args) < 2 {
			return Command{}, invalid("show reports requires an identifier")
		}
		days, err := parseDays(args[2:])
		if err != nil {
			return Command{}, err
		}
		return Command{Type: TypeShow, Raw: raw, Show: &ShowArgs{Subject: subject, Identifier: args[1], Days: days}}, nil
	case SubjectReminders:
		return Command{Type: TypeShow, Raw: raw, Show: &ShowArgs{Subject: subject}}, nil
	default:
		return Command{}, invalid("unknown show subject: %s", subject)
	}
}

func parseResource(raw string, args []string) (Command, error) {
	if len(args) == 0 {
		return Command{}, invalid("resource requires a type")
	}
	switch model.ResourceType(strings.ToLower(args[0])) {
	case model.ResourceTypeAppConfig:
		return Command{Type: TypeResource, Raw: raw, Resource: &ResourceArgs{Type: model.ResourceTypeAppConfig}}, nil
	case model.ResourceTypeSurvey:
		if len(args) != 3 {
			return Command{}, invalid("resource survey requires <guid> <createdOn>")
		}
		createdOn, err := time.Parse(time.RFC3339Nano, args[2])
		if err != nil {
			return Command{}, invalid("bad createdOn %q: %v", args[2], err)
		}
		return Command{Type: TypeResource, Raw: raw, Resource: &ResourceArgs{Type: model.ResourceTypeSurvey, GUID: args[1], CreatedOn: createdOn}}, nil
	default:
		return Command{}, invalid("unknown resource type: %s", args[0])
	}
}

// parseRemind reads "remind <title...> at <when> [every <n> days] [quiet <window>]".
func parseRemind(raw string, args []string) (Command, error) {
	atIdx := -1
	for i, a := range args {
		if strings.EqualFold(a, "at") {
			atIdx = i
		}
	}
	if atIdx <= 0 || atIdx == len(args)-1 {
		return Command{}, invalid("remind requires a title and 'at <time>'")
	}
	out := RemindArgs{Title: strings.Join(args[:atIdx], " "), At: args[atIdx+1]}

	rest := args[atIdx+2:]
	for len(rest) > 0 {
		switch strings.ToLower(rest[0]) {
		case "every":
			if len(rest) < 3 || !strings.HasPrefix(strings.ToLower(rest[2]), "day") {
				return Command{}, invalid("expected 'every <n> days'")
			}
			n, err := strconv.Atoi(rest[1])
			if err != nil || n <= 0 {
				return Command{}, invalid("bad repeat interval %q", rest[1])
			}
			out.EveryDays = n
			rest = rest[3:]
		case "quiet":
			if len(rest) < 2 {
				return Command{}, invalid("expected 'quiet <window>'")
			}
			out.Quiet = rest[1]
			rest = rest[2:]
		default:
			return Command{}, invalid("unexpected %q", rest[0])
		}
	}
	return Command{Type: TypeRemind, Raw: raw, Remind: &out}, nil
}

func parseDays(args []string) (int, error) {
	if len(args) == 0 {
		return DefaultDays, nil
	}
	if len(args) > 1 {
		return 0, invalid("unexpected arguments: %s", strings.Join(args[1:], " "))
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 {
		return 0, invalid("days must be a positive number, got %q", args[0])
	}
	return n, nil
}

// ResolveAt turns an RFC 3339 instant or a wall clock "HH:MM" into a time.
// A clock time already past today resolves to tomorrow.
func ResolveAt(raw string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	clock, err := time.Parse("15:04", raw)
	if err != nil {
		return time.Time{}, invalid("bad time %q, want RFC 3339 or HH:MM", raw)
	}
	y, m, d := now.Date()
	at := time.Date(y, m, d, clock.Hour(), clock.Minute(), 0, 0, now.Location())
	if !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at, nil
}
