package model

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

type RepeatType string

const (
	RepeatEveryInterval RepeatType = "interval"
	RepeatEveryNDays    RepeatType = "every_n_days"
	RepeatEveryNWeeks   RepeatType = "every_n_weeks"
	RepeatWeekdays      RepeatType = "weekdays"
)

var (
	ErrInvalidRepeatType = errors.New("model: invalid repeat type")
	ErrInvalidInterval   = errors.New("model: invalid repeat interval")
)

// RepeatRule describes how a reminder recurs after its initial trigger.
type RepeatRule struct {
	Type     RepeatType
	Interval int
	Every    time.Duration
	Weekdays []time.Weekday
}

func (r RepeatRule) Validate() error {
	switch r.Type {
	case RepeatEveryInterval:
		if r.Every <= 0 {
			return fmt.Errorf("%w: every=%s", ErrInvalidInterval, r.Every)
		}
	case RepeatEveryNDays, RepeatEveryNWeeks:
		if r.Interval <= 0 {
			return fmt.Errorf("%w: %d", ErrInvalidInterval, r.Interval)
		}
	case RepeatWeekdays:
		s := make([]int, 0, len(r.Weekdays))
		for _, d := range r.Weekdays {
			s = append(s, int(d))
		}
		sort.Ints(s)
		for i := 1; i < len(s); i++ {
			if s[i] == s[i-1] {
				return errors.New("model: duplicate weekday in repeat rule")
			}
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidRepeatType, r.Type)
	}
	return nil
}

// NextAfter returns the first occurrence strictly after from, for a series
// whose first occurrence is anchor.
func (r RepeatRule) NextAfter(anchor, from time.Time) (time.Time, error) {
	if err := r.Validate(); err != nil {
		return time.Time{}, err
	}
	if anchor.IsZero() {
		return time.Time{}, errors.New("model: repeat anchor is required")
	}
	if from.Before(anchor) {
		return anchor, nil
	}

	switch r.Type {
	case RepeatEveryInterval:
		return stepAfter(anchor, from, r.Every), nil
	case RepeatEveryNDays:
		return withAnchorClock(stepAfter(anchor, from, time.Duration(r.Interval)*24*time.Hour), anchor), nil
	case RepeatEveryNWeeks:
		return withAnchorClock(stepAfter(anchor, from, time.Duration(r.Interval)*7*24*time.Hour), anchor), nil
	case RepeatWeekdays:
		return r.nextWeekday(anchor, from), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidRepeatType, r.Type)
	}
}

func stepAfter(anchor, from time.Time, interval time.Duration) time.Time {
	steps := int64(from.Sub(anchor) / interval)
	return anchor.Add(time.Duration(steps+1) * interval)
}

func (r RepeatRule) nextWeekday(anchor, from time.Time) time.Time {
	allowed := r.allowedWeekdays()
	cand := withAnchorClock(from.In(anchor.Location()), anchor)
	for i := 0; i < 8; i++ {
		if cand.After(from) && allowed[cand.Weekday()] {
			return cand
		}
		cand = withAnchorClock(cand.AddDate(0, 0, 1), anchor)
	}
	return cand
}

func (r RepeatRule) allowedWeekdays() map[time.Weekday]bool {
	if len(r.Weekdays) > 0 {
		m := make(map[time.Weekday]bool, len(r.Weekdays))
		for _, w := range r.Weekdays {
			m[w] = true
		}
		return m
	}
	return map[time.Weekday]bool{
		time.Monday:    true,
		time.Tuesday:   true,
		time.Wednesday: true,
		time.Thursday:  true,
		time.Friday:    true,
	}
}

func withAnchorClock(date time.Time, anchor time.Time) time.Time {
	y, m, d := date.In(anchor.Location()).Date()
	return time.Date(y, m, d, anchor.Hour(), anchor.Minute(), anchor.Second(), anchor.Nanosecond(), anchor.Location())
}
