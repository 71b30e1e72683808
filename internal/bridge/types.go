package bridge

import (
	stdjson "encoding/json"
	"time"
)

type ReportData struct {
	Date      string             `json:"date,omitempty"`
	DateTime  *time.Time         `json:"dateTime,omitempty"`
	LocalDate string             `json:"localDate,omitempty"`
	Data      stdjson.RawMessage `json:"data"`
}

type ReportDataList struct {
	Items     []ReportData `json:"items"`
	StartDate string       `json:"startDate,omitempty"`
	EndDate   string       `json:"endDate,omitempty"`
}

type ForwardCursorReportDataList struct {
	Items             []ReportData `json:"items"`
	NextPageOffsetKey string       `json:"nextPageOffsetKey,omitempty"`
	HasNext           bool         `json:"hasNext"`
	PageSize          int          `json:"pageSize,omitempty"`
}

type TaskReference struct {
	Identifier string `json:"identifier"`
}

type SurveyReference struct {
	Identifier string     `json:"identifier,omitempty"`
	GUID       string     `json:"guid"`
	CreatedOn  *time.Time `json:"createdOn,omitempty"`
}

type Activity struct {
	GUID         string           `json:"guid,omitempty"`
	Label        string           `json:"label"`
	LabelDetail  string           `json:"labelDetail,omitempty"`
	ActivityType string           `json:"activityType"`
	Task         *TaskReference   `json:"task,omitempty"`
	Survey       *SurveyReference `json:"survey,omitempty"`
}

type ScheduledActivity struct {
	GUID             string             `json:"guid"`
	SchedulePlanGUID string             `json:"schedulePlanGuid,omitempty"`
	ScheduledOn      time.Time          `json:"scheduledOn"`
	ExpiresOn        *time.Time         `json:"expiresOn,omitempty"`
	StartedOn        *time.Time         `json:"startedOn,omitempty"`
	FinishedOn       *time.Time         `json:"finishedOn,omitempty"`
	Persistent       bool               `json:"persistent"`
	ClientData       stdjson.RawMessage `json:"clientData,omitempty"`
	Activity         Activity           `json:"activity"`
}

type ScheduledActivityList struct {
	Items     []ScheduledActivity `json:"items"`
	StartTime *time.Time          `json:"startTime,omitempty"`
	EndTime   *time.Time          `json:"endTime,omitempty"`
}

// ActivityUpdate is the mutable subset of a scheduled activity sent back to
// the server.
type ActivityUpdate struct {
	GUID       string             `json:"guid"`
	StartedOn  *time.Time         `json:"startedOn,omitempty"`
	FinishedOn *time.Time         `json:"finishedOn,omitempty"`
	ClientData stdjson.RawMessage `json:"clientData,omitempty"`
}

type Message struct {
	Message string `json:"message"`
}
