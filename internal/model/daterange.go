package model

import (
	"errors"
	"fmt"
	"time"
)

// MaxChunkDays is the widest window Bridge accepts for one activities request.
const MaxChunkDays = 14

var ErrInvalidRange = errors.New("model: invalid date range")

// DateRange is the half-open interval [Start, End).
type DateRange struct {
	Start time.Time
	End   time.Time
}

func NewDateRange(start, end time.Time) (DateRange, error) {
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return DateRange{}, fmt.Errorf("%w: %s - %s", ErrInvalidRange, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return DateRange{Start: start, End: end}, nil
}

func (r DateRange) Empty() bool {
	return !r.End.After(r.Start)
}

func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

func (r DateRange) String() string {
	return r.Start.Format(time.RFC3339) + "/" + r.End.Format(time.RFC3339)
}

// Chunks splits the range into windows of at most maxDays calendar days,
// anchored at pivot (clamped into the range). The window that starts at the
// pivot comes first, then earlier windows most recent first, then the
// remaining later windows in chronological order.
func (r DateRange) Chunks(maxDays int, pivot time.Time) []DateRange {
	if r.Empty() {
		return nil
	}
	if maxDays <= 0 || maxDays > MaxChunkDays {
		maxDays = MaxChunkDays
	}
	if pivot.Before(r.Start) {
		pivot = r.Start
	}
	if pivot.After(r.End) {
		pivot = r.End
	}

	forward := make([]DateRange, 0)
	for p := pivot; p.Before(r.End); {
		next := p.AddDate(0, 0, maxDays)
		if next.After(r.End) {
			next = r.End
		}
		forward = append(forward, DateRange{Start: p, End: next})
		p = next
	}

	backward := make([]DateRange, 0)
	for p := pivot; p.After(r.Start); {
		prev := p.AddDate(0, 0, -maxDays)
		if prev.Before(r.Start) {
			prev = r.Start
		}
		backward = append(backward, DateRange{Start: prev, End: p})
		p = prev
	}

	out := make([]DateRange, 0, len(forward)+len(backward))
	if len(forward) > 0 {
		out = append(out, forward[0])
		forward = forward[1:]
	}
	out = append(out, backward...)
	return append(out, forward...)
}
