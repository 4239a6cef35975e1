// Package recurrence turns a repeat rule or a list of picked dates into
// concrete occurrences before they are sent to the backend.
package recurrence

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/tazhate/taskcal/internal/domain"
)

// MaxOccurrences bounds every expansion; "never" ending rules stop here.
const MaxOccurrences = 365

// Occurrence is one concrete start/end pair.
type Occurrence struct {
	Start time.Time
	End   time.Time
	// RecurrenceID is set only when the expansion produced more than one
	// occurrence. It equals Start formatted as a local timestamp.
	RecurrenceID string
}

var ErrInvalidRule = errors.New("invalid recurrence rule")

// Expand generates occurrences from the anchor [start, end] and rule r.
// When r.Dates is non-empty the picked-dates mode is used instead.
func Expand(start, end time.Time, r domain.Recurrence) ([]Occurrence, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end before start", ErrInvalidRule)
	}
	if len(r.Dates) > 0 {
		return ExpandDates(start, end, r.Dates), nil
	}
	if r.IsSingle() {
		return []Occurrence{{Start: start, End: end}}, nil
	}

	opt, err := options(start, r)
	if err != nil {
		return nil, err
	}
	rule, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}

	limit := MaxOccurrences
	if r.EndType == domain.EndCount && r.Count > 0 {
		limit = r.Count
	}

	duration := end.Sub(start)
	next := rule.Iterator()
	var out []Occurrence
	for len(out) < limit {
		occ, ok := next()
		if !ok {
			break
		}
		out = append(out, Occurrence{Start: occ, End: occ.Add(duration)})
	}
	return withRecurrenceIDs(out), nil
}

// ExpandDates applies the anchor's time of day and duration to each picked
// calendar date. Duplicate days are collapsed and the result is sorted.
func ExpandDates(start, end time.Time, dates []time.Time) []Occurrence {
	duration := end.Sub(start)
	seen := make(map[string]struct{}, len(dates))

	out := make([]Occurrence, 0, len(dates))
	for _, d := range dates {
		key := d.Format(domain.DateLayout)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		s := domain.AtTimeOfDay(time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, start.Location()), start)
		out = append(out, Occurrence{Start: s, End: s.Add(duration)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return withRecurrenceIDs(out)
}

func options(start time.Time, r domain.Recurrence) (rrule.ROption, error) {
	opt := rrule.ROption{Dtstart: start, Interval: 1}

	switch r.Type {
	case domain.RecurrenceDaily:
		opt.Freq = rrule.DAILY
	case domain.RecurrenceWeekly:
		opt.Freq = rrule.WEEKLY
	case domain.RecurrenceBiweekly:
		opt.Freq, opt.Interval = rrule.WEEKLY, 2
	case domain.RecurrenceTriweekly:
		opt.Freq, opt.Interval = rrule.WEEKLY, 3
	case domain.RecurrenceMonthly:
		// RFC 5545: months without the anchor day (the 31st, Feb 29) are skipped
		opt.Freq = rrule.MONTHLY
	case domain.RecurrenceYearly:
		opt.Freq = rrule.YEARLY
	case domain.RecurrenceCustom:
		if r.Interval < 1 {
			return opt, fmt.Errorf("%w: interval must be at least 1", ErrInvalidRule)
		}
		freq, ok := unitFreq[r.Unit]
		if !ok {
			return opt, fmt.Errorf("%w: unknown unit %q", ErrInvalidRule, r.Unit)
		}
		opt.Freq, opt.Interval = freq, r.Interval
	default:
		return opt, fmt.Errorf("%w: unknown type %q", ErrInvalidRule, r.Type)
	}

	switch r.EndType {
	case "", domain.EndNever:
		opt.Count = MaxOccurrences
	case domain.EndCount:
		if r.Count < 1 {
			return opt, fmt.Errorf("%w: count must be at least 1", ErrInvalidRule)
		}
		opt.Count = r.Count
	case domain.EndUntil:
		if r.Until.IsZero() {
			return opt, fmt.Errorf("%w: until date missing", ErrInvalidRule)
		}
		// inclusive of the whole end day
		u := r.Until
		opt.Until = time.Date(u.Year(), u.Month(), u.Day(), 23, 59, 59, 0, start.Location())
	default:
		return opt, fmt.Errorf("%w: unknown end type %q", ErrInvalidRule, r.EndType)
	}
	return opt, nil
}

var unitFreq = map[domain.Unit]rrule.Frequency{
	domain.UnitDays:   rrule.DAILY,
	domain.UnitWeeks:  rrule.WEEKLY,
	domain.UnitMonths: rrule.MONTHLY,
	domain.UnitYears:  rrule.YEARLY,
}

func withRecurrenceIDs(occs []Occurrence) []Occurrence {
	if len(occs) < 2 {
		return occs
	}
	for i := range occs {
		occs[i].RecurrenceID = domain.NewLocalTime(occs[i].Start).String()
	}
	return occs
}
