package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidIgnoreWindow = errors.New("model: invalid ignore window")

const minutesPerDay = 24 * 60

// IgnoreWindow is a daily quiet period, in minutes after midnight in
// Location (time.Local when nil). StartMinute > EndMinute wraps past
// midnight. Days restricts the window to the weekdays it starts on; empty
// means every day.
type IgnoreWindow struct {
	StartMinute int
	EndMinute   int
	Days        []time.Weekday
	Location    *time.Location
}

func (w IgnoreWindow) location() *time.Location {
	if w.Location == nil {
		return time.Local
	}
	return w.Location
}

func (w IgnoreWindow) Validate() error {
	if w.StartMinute < 0 || w.StartMinute >= minutesPerDay || w.EndMinute < 0 || w.EndMinute >= minutesPerDay {
		return fmt.Errorf("%w: %d-%d", ErrInvalidIgnoreWindow, w.StartMinute, w.EndMinute)
	}
	if w.StartMinute == w.EndMinute {
		return fmt.Errorf("%w: empty window", ErrInvalidIgnoreWindow)
	}
	return nil
}

func (w IgnoreWindow) Contains(t time.Time) bool {
	_, ok := w.windowEnd(t)
	return ok
}

// Release returns t unchanged when it is outside the window, otherwise the
// instant the window containing t closes.
func (w IgnoreWindow) Release(t time.Time) time.Time {
	end, ok := w.windowEnd(t)
	if !ok {
		return t
	}
	return end
}

func (w IgnoreWindow) windowEnd(t time.Time) (time.Time, bool) {
	t = t.In(w.location())
	m := t.Hour()*60 + t.Minute()
	endOn := t
	startDay := t.Weekday()
	switch {
	case w.StartMinute < w.EndMinute:
		if m < w.StartMinute || m >= w.EndMinute {
			return time.Time{}, false
		}
	case w.StartMinute > w.EndMinute:
		if m >= w.StartMinute {
			endOn = t.AddDate(0, 0, 1)
		} else if m < w.EndMinute {
			startDay = t.AddDate(0, 0, -1).Weekday()
		} else {
			return time.Time{}, false
		}
	default:
		return time.Time{}, false
	}
	if !w.allowsWeekday(startDay) {
		return time.Time{}, false
	}
	y, mo, d := endOn.Date()
	return time.Date(y, mo, d, w.EndMinute/60, w.EndMinute%60, 0, 0, t.Location()), true
}

func (w IgnoreWindow) allowsWeekday(d time.Weekday) bool {
	if len(w.Days) == 0 {
		return true
	}
	for _, day := range w.Days {
		if day == d {
			return true
		}
	}
	return false
}

// ReminderRule is the declarative trigger description of a reminder.
type ReminderRule struct {
	Initial time.Time
	Repeat  *RepeatRule
	Ignore  *IgnoreWindow
}

func (r ReminderRule) Validate() error {
	if r.Initial.IsZero() {
		return errors.New("model: reminder initial time is required")
	}
	if r.Repeat != nil {
		if err := r.Repeat.Validate(); err != nil {
			return err
		}
	}
	if r.Ignore != nil {
		if err := r.Ignore.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// NextAfter returns the next trigger strictly after from. ok is false when a
// one-shot rule has already fired.
func (r ReminderRule) NextAfter(from time.Time) (next time.Time, ok bool, err error) {
	if err := r.Validate(); err != nil {
		return time.Time{}, false, err
	}
	switch {
	case r.Initial.After(from):
		next = r.Initial
	case r.Repeat == nil:
		return time.Time{}, false, nil
	default:
		next, err = r.Repeat.NextAfter(r.Initial, from)
		if err != nil {
			return time.Time{}, false, err
		}
	}
	if r.Ignore != nil {
		next = r.Ignore.Release(next)
	}
	return next, true, nil
}

type Reminder struct {
	GUID      string
	Code      int
	Action    string
	Title     string
	Text      string
	Rule      ReminderRule
	Enabled   bool
	CreatedAt time.Time
}

func (r Reminder) Validate() error {
	if strings.TrimSpace(r.GUID) == "" {
		return errors.New("model: reminder guid is required")
	}
	if strings.TrimSpace(r.Title) == "" {
		return errors.New("model: reminder title is required")
	}
	return r.Rule.Validate()
}

// ParseIgnoreWindow reads rules such as "night", "window=22:00-07:00" or
// "window=evening;days=weekdays".
func ParseIgnoreWindow(raw string) (*IgnoreWindow, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "" {
		return nil, nil
	}
	var out IgnoreWindow
	found := false

	parts := strings.FieldsFunc(normalized, func(r rune) bool {
		return r == ';' || r == '|'
	})
	for _, part := range parts {
		part = strings.TrimSpace(part)
		switch {
		case strings.HasPrefix(part, "days="):
			out.Days = parseWeekdays(strings.TrimPrefix(part, "days="))
		case strings.HasPrefix(part, "window="):
			start, end, err := parseWindowSpan(strings.TrimPrefix(part, "window="))
			if err != nil {
				return nil, err
			}
			out.StartMinute, out.EndMinute, found = start, end, true
		default:
			start, end, err := parseWindowSpan(part)
			if err != nil {
				return nil, err
			}
			out.StartMinute, out.EndMinute, found = start, end, true
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %q has no window", ErrInvalidIgnoreWindow, raw)
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

func parseWindowSpan(raw string) (int, int, error) {
	switch strings.TrimSpace(raw) {
	case "night":
		return 22 * 60, 7 * 60, nil
	case "morning":
		return 8 * 60, 12 * 60, nil
	case "afternoon":
		return 12 * 60, 17 * 60, nil
	case "evening":
		return 18 * 60, 22 * 60, nil
	}
	from, to, ok := strings.Cut(raw, "-")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidIgnoreWindow, raw)
	}
	start, err := parseClock(from)
	if err != nil {
		return 0, 0, err
	}
	end, err := parseClock(to)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

func parseClock(raw string) (int, error) {
	hh, mm, _ := strings.Cut(strings.TrimSpace(raw), ":")
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%w: bad hour %q", ErrInvalidIgnoreWindow, raw)
	}
	m := 0
	if mm != "" {
		m, err = strconv.Atoi(mm)
		if err != nil || m < 0 || m > 59 {
			return 0, fmt.Errorf("%w: bad minute %q", ErrInvalidIgnoreWindow, raw)
		}
	}
	return h*60 + m, nil
}

func parseWeekdays(raw string) []time.Weekday {
	set := make(map[time.Weekday]bool)
	for _, token := range strings.Split(raw, ",") {
		switch strings.TrimSpace(token) {
		case "weekdays", "weekday":
			for d := time.Monday; d <= time.Friday; d++ {
				set[d] = true
			}
		case "weekends", "weekend":
			set[time.Saturday] = true
			set[time.Sunday] = true
		case "mon", "monday":
			set[time.Monday] = true
		case "tue", "tuesday":
			set[time.Tuesday] = true
		case "wed", "wednesday":
			set[time.Wednesday] = true
		case "thu", "thursday":
			set[time.Thursday] = true
		case "fri", "friday":
			set[time.Friday] = true
		case "sat", "saturday":
			set[time.Saturday] = true
		case "sun", "sunday":
			set[time.Sunday] = true
		}
	}
	out := make([]time.Weekday, 0, len(set))
	for d := time.Sunday; d <= time.Saturday; d++ {
		if set[d] {
			out = append(out, d)
		}
	}
	return out
}
