package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidReportCategory = errors.New("model: invalid report category")

const LocalDateLayout = "2006-01-02"

// SingletonDate is the fixed local date every singleton report is stored under.
var SingletonDate = time.Date(2018, 10, 31, 0, 0, 0, 0, time.UTC)

type ReportCategory string

const (
	ReportCategoryTimestamp  ReportCategory = "timestamp"
	ReportCategoryGroupByDay ReportCategory = "group_by_day"
	ReportCategorySingleton  ReportCategory = "singleton"
)

func (c ReportCategory) IsValid() bool {
	switch c {
	case ReportCategoryTimestamp, ReportCategoryGroupByDay, ReportCategorySingleton:
		return true
	default:
		return false
	}
}

// Report is a piece of participant data keyed by identifier and either an
// instant (Timestamp) or a calendar day (LocalDate). Exactly one is set.
type Report struct {
	Identifier string
	Data       json.RawMessage
	Timestamp  *time.Time
	LocalDate  *time.Time
	NeedsSync  bool
}

func (r Report) Validate() error {
	if strings.TrimSpace(r.Identifier) == "" {
		return errors.New("model: report identifier is required")
	}
	if (r.Timestamp == nil) == (r.LocalDate == nil) {
		return errors.New("model: report requires exactly one of timestamp or local date")
	}
	if len(r.Data) > 0 && !json.Valid(r.Data) {
		return fmt.Errorf("model: report %s data is not valid json", r.Identifier)
	}
	return nil
}

// SortKey is the instant used to order and window reports. Local dates map to
// UTC midnight.
func (r Report) SortKey() time.Time {
	if r.Timestamp != nil {
		return r.Timestamp.UTC()
	}
	if r.LocalDate != nil {
		return DateOnly(*r.LocalDate)
	}
	return time.Time{}
}

// DateOnly truncates t to its calendar day, expressed as UTC midnight.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ParseLocalDate(raw string) (time.Time, error) {
	return time.Parse(LocalDateLayout, strings.TrimSpace(raw))
}

func FormatLocalDate(t time.Time) string {
	return DateOnly(t).Format(LocalDateLayout)
}
