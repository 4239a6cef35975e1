package caldav

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/teambition/rrule-go"

	"github.com/tazhate/taskcal/internal/domain"
)

const (
	productID = "-//taskcal//CalDAV//EN"
	// floatingLayout is an iCalendar DATE-TIME without zone: wall clock only.
	floatingLayout = "20060102T150405"
)

// occurrenceID is the task id of one occurrence of a recurring object.
func occurrenceID(uid, rid string) domain.TaskID {
	if rid == "" {
		return domain.TaskID(uid)
	}
	return domain.TaskID(uid + "_" + rid)
}

// setFloating writes t as a floating DATE-TIME so the server keeps the
// wall clock exactly as entered.
func setFloating(props ical.Props, name string, t time.Time) {
	prop := ical.NewProp(name)
	prop.SetValueType(ical.ValueDateTime)
	prop.Value = t.Format(floatingLayout)
	props.Set(prop)
}

func addFloatingList(props ical.Props, name string, times []time.Time) {
	if len(times) == 0 {
		return
	}
	values := make([]string, len(times))
	for i, t := range times {
		values[i] = t.Format(floatingLayout)
	}
	prop := ical.NewProp(name)
	prop.SetValueType(ical.ValueDateTime)
	prop.Value = strings.Join(values, ",")
	props.Add(prop)
}

// propTime reads a DATE or DATE-TIME property. Floating values are taken
// in loc; values with TZID or UTC are converted to loc.
func propTime(prop *ical.Prop, loc *time.Location) (time.Time, bool, error) {
	t, err := prop.DateTime(loc)
	if err != nil {
		return time.Time{}, false, err
	}
	allDay := prop.ValueType() == ical.ValueDate || !strings.Contains(prop.Value, "T")
	return t.In(loc), allDay, nil
}

// propTimes reads every value of a possibly repeated, comma separated
// RDATE/EXDATE property.
func propTimes(props ical.Props, name string, loc *time.Location) []time.Time {
	var out []time.Time
	for _, prop := range props.Values(name) {
		for _, v := range strings.Split(prop.Value, ",") {
			single := prop
			single.Value = strings.TrimSpace(v)
			if single.Value == "" {
				continue
			}
			if t, _, err := propTime(&single, loc); err == nil {
				out = append(out, t)
			}
		}
	}
	return out
}

func propText(props ical.Props, name string) string {
	if prop := props.Get(name); prop != nil {
		if s, err := props.Text(name); err == nil {
			return s
		}
		return prop.Value
	}
	return ""
}

// vevent is a parsed VEVENT.
type vevent struct {
	comp *ical.Component

	uid         string
	summary     string
	description string
	location    string
	start       time.Time
	end         time.Time
	allDay      bool
	rid         time.Time // zero for the master
}

func parseVEvent(comp *ical.Component, loc *time.Location) (vevent, error) {
	ev := vevent{comp: comp}

	ev.uid = propText(comp.Props, ical.PropUID)
	if ev.uid == "" {
		return ev, errors.New("missing UID")
	}
	ev.summary = propText(comp.Props, ical.PropSummary)
	ev.description = propText(comp.Props, ical.PropDescription)
	ev.location = propText(comp.Props, ical.PropLocation)

	dtstart := comp.Props.Get(ical.PropDateTimeStart)
	if dtstart == nil {
		return ev, errors.New("missing DTSTART")
	}
	start, allDay, err := propTime(dtstart, loc)
	if err != nil {
		return ev, fmt.Errorf("DTSTART: %w", err)
	}
	ev.start, ev.allDay = start, allDay

	switch {
	case comp.Props.Get(ical.PropDateTimeEnd) != nil:
		end, _, err := propTime(comp.Props.Get(ical.PropDateTimeEnd), loc)
		if err != nil {
			return ev, fmt.Errorf("DTEND: %w", err)
		}
		ev.end = end
	case allDay:
		ev.end = start.AddDate(0, 0, 1)
	default:
		ev.end = start
	}

	if prop := comp.Props.Get(ical.PropRecurrenceID); prop != nil {
		rid, _, err := propTime(prop, loc)
		if err != nil {
			return ev, fmt.Errorf("RECURRENCE-ID: %w", err)
		}
		ev.rid = rid
	}
	return ev, nil
}

func (ev vevent) isRecurring() bool {
	return ev.comp.Props.Get(ical.PropRecurrenceRule) != nil ||
		ev.comp.Props.Get(ical.PropRecurrenceDates) != nil
}

func (ev vevent) task(id domain.TaskID, start, end time.Time, rid string) domain.Task {
	return domain.Task{
		ID:           id,
		Title:        ev.summary,
		Description:  ev.description,
		Location:     ev.location,
		StartDate:    domain.NewLocalTime(start),
		EndDate:      domain.NewLocalTime(end),
		RecurrenceID: rid,
	}
}

// recurrenceSet builds the occurrence set of a master VEVENT from its
// RRULE, RDATE and EXDATE properties.
func (ev vevent) recurrenceSet(loc *time.Location) (*rrule.Set, error) {
	set := &rrule.Set{}

	if prop := ev.comp.Props.Get(ical.PropRecurrenceRule); prop != nil {
		opt, err := rrule.StrToROptionInLocation(prop.Value, loc)
		if err != nil {
			return nil, fmt.Errorf("RRULE %q: %w", prop.Value, err)
		}
		opt.Dtstart = ev.start
		rule, err := rrule.NewRRule(*opt)
		if err != nil {
			return nil, fmt.Errorf("RRULE %q: %w", prop.Value, err)
		}
		set.RRule(rule)
	} else {
		set.RDate(ev.start)
	}

	for _, t := range propTimes(ev.comp.Props, ical.PropRecurrenceDates, loc) {
		set.RDate(t)
	}
	for _, t := range propTimes(ev.comp.Props, ical.PropExceptionDates, loc) {
		set.ExDate(t)
	}
	return set, nil
}

// expandCalendar turns one calendar object into the task records that
// overlap [from, to]. Overrides replace the occurrence they point at.
func expandCalendar(cal *ical.Calendar, from, to time.Time, loc *time.Location) ([]domain.Task, error) {
	var master *vevent
	overrides := map[string]vevent{}

	for _, comp := range cal.Children {
		if comp.Name != ical.CompEvent {
			continue
		}
		ev, err := parseVEvent(comp, loc)
		if err != nil {
			return nil, err
		}
		if !ev.rid.IsZero() {
			overrides[domain.NewLocalTime(ev.rid).String()] = ev
			continue
		}
		if master == nil {
			m := ev
			master = &m
		}
	}
	if master == nil {
		return nil, errors.New("no VEVENT")
	}

	if !master.isRecurring() {
		t := master.task(domain.TaskID(master.uid), master.start, master.end, "")
		if !t.Overlaps(from, to) {
			return nil, nil
		}
		return []domain.Task{t}, nil
	}

	set, err := master.recurrenceSet(loc)
	if err != nil {
		return nil, err
	}

	duration := master.end.Sub(master.start)
	var out []domain.Task
	for _, occ := range set.Between(from.Add(-duration), to, true) {
		occ = occ.In(loc)
		rid := domain.NewLocalTime(occ).String()
		id := occurrenceID(master.uid, rid)

		if ov, ok := overrides[rid]; ok {
			t := ov.task(id, ov.start, ov.end, rid)
			if t.Overlaps(from, to) {
				out = append(out, t)
			}
			continue
		}
		t := master.task(id, occ, occ.Add(duration), rid)
		if t.Overlaps(from, to) {
			out = append(out, t)
		}
	}
	return out, nil
}

// newCalendar builds a calendar object holding one master VEVENT for t.
// Extra start times become RDATE values.
func newCalendar(uid string, t domain.Task, rdates []time.Time, sequence int, now time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)

	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, uid)
	event.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	if sequence > 0 {
		prop := ical.NewProp(ical.PropSequence)
		prop.Value = strconv.Itoa(sequence)
		event.Props.Set(prop)
	}
	writeTask(event.Component, t)
	addFloatingList(event.Props, ical.PropRecurrenceDates, rdates)

	cal.Children = append(cal.Children, event.Component)
	return cal
}

// writeTask copies the editable fields of t onto comp.
func writeTask(comp *ical.Component, t domain.Task) {
	comp.Props.SetText(ical.PropSummary, t.Title)
	if t.Description != "" {
		comp.Props.SetText(ical.PropDescription, t.Description)
	} else {
		comp.Props.Del(ical.PropDescription)
	}
	if t.Location != "" {
		comp.Props.SetText(ical.PropLocation, t.Location)
	} else {
		comp.Props.Del(ical.PropLocation)
	}
	setFloating(comp.Props, ical.PropDateTimeStart, t.StartDate.Time)
	if !t.EndDate.IsZero() {
		setFloating(comp.Props, ical.PropDateTimeEnd, t.EndDate.Time)
	}
}

// findEvent returns the master VEVENT, or the override for rid when rid
// is set.
func findEvent(cal *ical.Calendar, rid string, loc *time.Location) *ical.Component {
	for _, comp := range cal.Children {
		if comp.Name != ical.CompEvent {
			continue
		}
		prop := comp.Props.Get(ical.PropRecurrenceID)
		if rid == "" {
			if prop == nil {
				return comp
			}
			continue
		}
		if prop == nil {
			continue
		}
		if t, _, err := propTime(prop, loc); err == nil && domain.NewLocalTime(t).String() == rid {
			return comp
		}
	}
	return nil
}

// overrideFor returns the override VEVENT for rid, creating it from the
// master when the occurrence has not been edited before.
func overrideFor(cal *ical.Calendar, rid string, loc *time.Location, now time.Time) (*ical.Component, error) {
	if comp := findEvent(cal, rid, loc); comp != nil {
		return comp, nil
	}
	master := findEvent(cal, "", loc)
	if master == nil {
		return nil, errors.New("no master VEVENT")
	}
	ridTime, err := domain.ParseLocalTime(rid)
	if err != nil {
		return nil, fmt.Errorf("recurrence id: %w", err)
	}
	ridTime.Time = time.Date(ridTime.Year(), ridTime.Month(), ridTime.Day(),
		ridTime.Hour(), ridTime.Minute(), ridTime.Second(), 0, loc)

	comp := ical.NewComponent(ical.CompEvent)
	for _, name := range []string{ical.PropUID, ical.PropSummary, ical.PropDescription, ical.PropLocation} {
		if prop := master.Props.Get(name); prop != nil {
			comp.Props.Set(prop)
		}
	}
	comp.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	setFloating(comp.Props, ical.PropRecurrenceID, ridTime.Time)

	cal.Children = append(cal.Children, comp)
	return comp, nil
}

// excludeOccurrence adds an EXDATE for rid to the master and drops any
// override of that occurrence.
func excludeOccurrence(cal *ical.Calendar, rid string, loc *time.Location) error {
	master := findEvent(cal, "", loc)
	if master == nil {
		return errors.New("no master VEVENT")
	}
	ridTime, err := domain.ParseLocalTime(rid)
	if err != nil {
		return fmt.Errorf("recurrence id: %w", err)
	}
	t := time.Date(ridTime.Year(), ridTime.Month(), ridTime.Day(),
		ridTime.Hour(), ridTime.Minute(), ridTime.Second(), 0, loc)
	addFloatingList(master.Props, ical.PropExceptionDates, []time.Time{t})

	override := findEvent(cal, rid, loc)
	if override == nil {
		return nil
	}
	kept := cal.Children[:0]
	for _, comp := range cal.Children {
		if comp != override {
			kept = append(kept, comp)
		}
	}
	cal.Children = kept
	return nil
}

// SerializeCalendar converts calendar to string (for debugging)
func SerializeCalendar(cal *ical.Calendar) string {
	var buf bytes.Buffer
	enc := ical.NewEncoder(&buf)
	_ = enc.Encode(cal)
	return buf.String()
}

func sortTasks(tasks []domain.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].StartDate.Before(tasks[j].StartDate.Time)
	})
}
