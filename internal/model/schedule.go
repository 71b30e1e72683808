package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidActivityType = errors.New("model: invalid activity type")

type ActivityType string

const (
	ActivityTypeTask     ActivityType = "task"
	ActivityTypeSurvey   ActivityType = "survey"
	ActivityTypeCompound ActivityType = "compound"
)

func (a ActivityType) IsValid() bool {
	switch a {
	case ActivityTypeTask, ActivityTypeSurvey, ActivityTypeCompound:
		return true
	default:
		return false
	}
}

type ActivityStatus string

const (
	ActivityStatusScheduled ActivityStatus = "scheduled"
	ActivityStatusAvailable ActivityStatus = "available"
	ActivityStatusStarted   ActivityStatus = "started"
	ActivityStatusFinished  ActivityStatus = "finished"
	ActivityStatusExpired   ActivityStatus = "expired"
)

// ScheduledActivity is one server-assigned occurrence of a task or survey.
type ScheduledActivity struct {
	GUID             string
	SchedulePlanGUID string
	Label            string
	LabelDetail      string
	ActivityType     ActivityType
	TaskIdentifier   string
	SurveyGUID       string
	SurveyCreatedOn  *time.Time
	ScheduledOn      time.Time
	ExpiresOn        *time.Time
	StartedOn        *time.Time
	FinishedOn       *time.Time
	Persistent       bool
	ClientData       json.RawMessage
	NeedsSync        bool
}

func (s ScheduledActivity) Validate() error {
	if strings.TrimSpace(s.GUID) == "" {
		return errors.New("model: schedule guid is required")
	}
	if !s.ActivityType.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidActivityType, s.ActivityType)
	}
	if s.ScheduledOn.IsZero() {
		return errors.New("model: schedule scheduled_on is required")
	}
	if s.FinishedOn != nil && s.StartedOn != nil && s.FinishedOn.Before(*s.StartedOn) {
		return errors.New("model: schedule finished_on precedes started_on")
	}
	if len(s.ClientData) > 0 && !json.Valid(s.ClientData) {
		return fmt.Errorf("model: schedule %s client data is not valid json", s.GUID)
	}
	return nil
}

func (s ScheduledActivity) Status(now time.Time) ActivityStatus {
	switch {
	case s.FinishedOn != nil:
		return ActivityStatusFinished
	case s.StartedOn != nil:
		return ActivityStatusStarted
	case s.ExpiresOn != nil && !now.Before(*s.ExpiresOn):
		return ActivityStatusExpired
	case now.Before(s.ScheduledOn):
		return ActivityStatusScheduled
	default:
		return ActivityStatusAvailable
	}
}
