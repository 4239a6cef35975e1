package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tazhate/taskcal/internal/domain"
	"github.com/tazhate/taskcal/internal/service"
)

// handler runs one tool. mutated reports whether the cache changed.
type handler func(ctx context.Context, s *Server, args json.RawMessage) (v interface{}, mutated bool, err error)

var handlers = map[string]handler{
	"taskcal_list_events":     listEvents,
	"taskcal_month":           month,
	"taskcal_create_event":    createEvent,
	"taskcal_move_event":      moveEvent,
	"taskcal_edit_event":      editEvent,
	"taskcal_delete_event":    deleteEvent,
	"taskcal_list_calendars":  listCalendars,
	"taskcal_toggle_calendar": toggleCalendar,
	"taskcal_sync":            syncAll,
}

var noArgs = InputSchema{Type: "object", Properties: map[string]Property{}}

var tools = []Tool{
	{
		Name:        "taskcal_list_events",
		Description: "List events between two days, both inclusive. Served from the local cache when the range was fetched before.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"from": {Type: "string", Description: "First day, YYYY-MM-DD"},
				"to":   {Type: "string", Description: "Last day, YYYY-MM-DD"},
			},
			Required: []string{"from", "to"},
		},
	},
	{
		Name:        "taskcal_month",
		Description: "List the tasks shown on a month grid, including the padding days of the neighbouring months.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"month": {Type: "string", Description: "Month as YYYY-MM"},
				"force": {Type: "boolean", Description: "Refetch even when cached"},
			},
			Required: []string{"month"},
		},
	},
	{
		Name:        "taskcal_create_event",
		Description: "Create an event. With repeat or dates, every occurrence is created in one bulk request.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"title":       {Type: "string", Description: "Title (blank gives a placeholder)"},
				"description": {Type: "string", Description: "Description, may contain HTML"},
				"location":    {Type: "string", Description: "Location"},
				"start":       {Type: "string", Description: "Start, YYYY-MM-DDTHH:MM"},
				"end":         {Type: "string", Description: "End, YYYY-MM-DDTHH:MM (default: start + 1h)"},
				"calendars":   {Type: "array", Description: "Target calendar ids or names", Items: &Property{Type: "string"}},
				"repeat": {Type: "string", Description: "Recurrence rule",
					Enum: []string{"none", "daily", "weekly", "biweekly", "triweekly", "monthly", "yearly"}},
				"count": {Type: "integer", Description: "Number of occurrences"},
				"until": {Type: "string", Description: "Last day of the series, YYYY-MM-DD"},
				"dates": {Type: "array", Description: "Picked days instead of a rule", Items: &Property{Type: "string"}},
			},
			Required: []string{"start"},
		},
	},
	{
		Name:        "taskcal_move_event",
		Description: "Reschedule a cached event. A bare date keeps its time of day and duration.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"id":   {Type: "string", Description: "Event id"},
				"when": {Type: "string", Description: "YYYY-MM-DD or YYYY-MM-DDTHH:MM"},
			},
			Required: []string{"id", "when"},
		},
	},
	{
		Name:        "taskcal_edit_event",
		Description: "Change the text fields of a cached event. Omitted fields are left as they are.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"id":          {Type: "string", Description: "Event id"},
				"title":       {Type: "string", Description: "New title"},
				"description": {Type: "string", Description: "New description"},
				"location":    {Type: "string", Description: "New location"},
			},
			Required: []string{"id"},
		},
	},
	{
		Name:        "taskcal_delete_event",
		Description: "Delete a cached event. Recurring events need a scope.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"id":    {Type: "string", Description: "Event id"},
				"scope": {Type: "string", Description: "For recurring events", Enum: []string{"occurrence", "series"}},
			},
			Required: []string{"id"},
		},
	},
	{
		Name:        "taskcal_list_calendars",
		Description: "List the calendars of the account, or only resource calendars (rooms, equipment).",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"resources": {Type: "boolean", Description: "Only resource calendars"},
			},
		},
	},
	{
		Name:        "taskcal_toggle_calendar",
		Description: "Show or hide a calendar's events.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"calendar": {Type: "string", Description: "Calendar id or name"},
				"display":  {Type: "boolean", Description: "New value; flips the current one when omitted"},
			},
			Required: []string{"calendar"},
		},
	},
	{
		Name:        "taskcal_sync",
		Description: "Reconcile the backend with the CalDAV server and drop the local cache.",
		InputSchema: noArgs,
	},
}

func decode(args json.RawMessage, v interface{}) error {
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func parseDay(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("%s is required", field)
	}
	lt, err := domain.ParseLocalTime(strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", field, err)
	}
	return lt.Time, nil
}

func listEvents(ctx context.Context, s *Server, raw json.RawMessage) (interface{}, bool, error) {
	var args struct {
		From string `json:"from"`
		To   string `json:"to"`
	}
	if err := decode(raw, &args); err != nil {
		return nil, false, err
	}
	from, err := parseDay("from", args.From)
	if err != nil {
		return nil, false, err
	}
	to, err := parseDay("to", args.To)
	if err != nil {
		return nil, false, err
	}
	if to.Before(from) {
		return nil, false, errors.New("to must not be before from")
	}

	tasks := s.co.Events(ctx, from, to)
	if len(tasks) == 0 {
		return "No events.", true, nil
	}
	return tasks, true, nil
}

func month(ctx context.Context, s *Server, raw json.RawMessage) (interface{}, bool, error) {
	var args struct {
		Month string `json:"month"`
		Force bool   `json:"force"`
	}
	if err := decode(raw, &args); err != nil {
		return nil, false, err
	}
	if _, _, err := service.MonthRange(args.Month); err != nil {
		return nil, false, fmt.Errorf("month must look like 2024-03: %w", err)
	}

	tasks := s.months.GetOrFetch(ctx, args.Month, args.Force)
	if tasks == nil {
		return "No tasks.", false, nil
	}
	return tasks, false, nil
}

func createEvent(ctx context.Context, s *Server, raw json.RawMessage) (interface{}, bool, error) {
	var args struct {
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Location    string   `json:"location"`
		Start       string   `json:"start"`
		End         string   `json:"end"`
		Calendars   []string `json:"calendars"`
		Repeat      string   `json:"repeat"`
		Count       int      `json:"count"`
		Until       string   `json:"until"`
		Dates       []string `json:"dates"`
	}
	if err := decode(raw, &args); err != nil {
		return nil, false, err
	}

	start, err := parseDay("start", args.Start)
	if err != nil {
		return nil, false, err
	}
	end := start.Add(time.Hour)
	if args.End != "" {
		if end, err = parseDay("end", args.End); err != nil {
			return nil, false, err
		}
	}

	in := service.BulkInput{TaskInput: domain.TaskInput{
		Title:       args.Title,
		Description: args.Description,
		Location:    args.Location,
		Start:       start,
		End:         end,
		Recurrence:  domain.Recurrence{Type: domain.RecurrenceType(args.Repeat)},
	}}

	r := &in.Recurrence
	switch {
	case args.Count > 0:
		r.EndType, r.Count = domain.EndCount, args.Count
	case args.Until != "":
		r.EndType = domain.EndUntil
		if r.Until, err = parseDay("until", args.Until); err != nil {
			return nil, false, err
		}
	case args.Repeat != "":
		r.EndType = domain.EndNever
	}
	for _, d := range args.Dates {
		day, err := parseDay("dates", d)
		if err != nil {
			return nil, false, err
		}
		r.Dates = append(r.Dates, day)
	}

	for _, ref := range args.Calendars {
		cal, err := s.co.Calendar(ctx, ref)
		if err != nil {
			return nil, false, err
		}
		in.Calendars = append(in.Calendars, cal)
	}

	if in.Recurrence.IsSingle() && len(in.Calendars) <= 1 {
		if len(in.Calendars) == 1 {
			in.Calendar = in.Calendars[0]
		}
		task, err := s.co.Create(ctx, in.TaskInput).Result()
		if err != nil {
			return nil, false, err
		}
		return task, true, nil
	}

	created, err := s.co.BulkCreate(ctx, in)
	if len(created) == 0 && err != nil {
		return nil, false, err
	}
	if err != nil {
		return map[string]interface{}{"created": created, "error": err.Error()}, true, nil
	}
	return created, true, nil
}

func moveEvent(ctx context.Context, s *Server, raw json.RawMessage) (interface{}, bool, error) {
	var args struct {
		ID   string `json:"id"`
		When string `json:"when"`
	}
	if err := decode(raw, &args); err != nil {
		return nil, false, err
	}
	drop, err := parseDay("when", args.When)
	if err != nil {
		return nil, false, err
	}

	task, err := s.co.Move(ctx, domain.TaskID(args.ID), drop).Result()
	if err != nil {
		return nil, false, err
	}
	return task, true, nil
}

func editEvent(ctx context.Context, s *Server, raw json.RawMessage) (interface{}, bool, error) {
	var args struct {
		ID          string  `json:"id"`
		Title       *string `json:"title"`
		Description *string `json:"description"`
		Location    *string `json:"location"`
	}
	if err := decode(raw, &args); err != nil {
		return nil, false, err
	}

	patch := domain.TaskPatch{Title: args.Title, Description: args.Description, Location: args.Location}
	if patch == (domain.TaskPatch{}) {
		return nil, false, errors.New("nothing to change")
	}

	task, err := s.co.Edit(ctx, domain.TaskID(args.ID), patch)
	if err != nil {
		return nil, false, err
	}
	return task, true, nil
}

func deleteEvent(ctx context.Context, s *Server, raw json.RawMessage) (interface{}, bool, error) {
	var args struct {
		ID    string `json:"id"`
		Scope string `json:"scope"`
	}
	if err := decode(raw, &args); err != nil {
		return nil, false, err
	}
	scope, ok := service.ParseScope(args.Scope)
	if !ok {
		return nil, false, errors.New("scope must be occurrence or series")
	}

	if err := s.co.Delete(ctx, domain.TaskID(args.ID), scope); err != nil {
		return nil, false, err
	}
	return "Deleted " + args.ID, true, nil
}

func listCalendars(ctx context.Context, s *Server, raw json.RawMessage) (interface{}, bool, error) {
	var args struct {
		Resources bool `json:"resources"`
	}
	if err := decode(raw, &args); err != nil {
		return nil, false, err
	}

	var cals []domain.CalendarSource
	var err error
	if args.Resources {
		cals, err = s.co.Resources(ctx)
	} else {
		cals, err = s.co.Calendars(ctx)
	}
	if err != nil {
		return nil, false, err
	}
	return cals, true, nil
}

func toggleCalendar(ctx context.Context, s *Server, raw json.RawMessage) (interface{}, bool, error) {
	var args struct {
		Calendar string `json:"calendar"`
		Display  *bool  `json:"display"`
	}
	if err := decode(raw, &args); err != nil {
		return nil, false, err
	}

	cal, err := s.co.Calendar(ctx, args.Calendar)
	if err != nil {
		return nil, false, err
	}
	display := !cal.Display
	if args.Display != nil {
		display = *args.Display
	}

	updated, err := s.co.ToggleCalendar(ctx, cal.ID, display)
	if err != nil {
		return nil, false, err
	}
	return updated, true, nil
}

func syncAll(ctx context.Context, s *Server, _ json.RawMessage) (interface{}, bool, error) {
	stats, err := s.co.Sync(ctx)
	if err != nil {
		return nil, false, err
	}
	return stats, true, nil
}
