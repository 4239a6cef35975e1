package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type RecurrenceType string

const (
	RecurrenceNone      RecurrenceType = "none"
	RecurrenceDaily     RecurrenceType = "daily"
	RecurrenceWeekly    RecurrenceType = "weekly"
	RecurrenceBiweekly  RecurrenceType = "biweekly"
	RecurrenceTriweekly RecurrenceType = "triweekly"
	RecurrenceMonthly   RecurrenceType = "monthly"
	RecurrenceYearly    RecurrenceType = "yearly"
	RecurrenceCustom    RecurrenceType = "custom"
)

type EndType string

const (
	EndNever EndType = "never"
	EndCount EndType = "count"
	EndUntil EndType = "until"
)

type Unit string

const (
	UnitDays   Unit = "days"
	UnitWeeks  Unit = "weeks"
	UnitMonths Unit = "months"
	UnitYears  Unit = "years"
)

// Recurrence describes how a new task repeats. Dates, when non-empty,
// switches to the "multiple dates" mode and the other fields are ignored.
type Recurrence struct {
	Type     RecurrenceType `json:"type" validate:"omitempty,oneof=none daily weekly biweekly triweekly monthly yearly custom"`
	EndType  EndType        `json:"end_type" validate:"omitempty,oneof=never count until"`
	Count    int            `json:"count,omitempty" validate:"gte=0"`
	Until    time.Time      `json:"until,omitempty"`
	Interval int            `json:"interval,omitempty" validate:"gte=0"`
	Unit     Unit           `json:"unit,omitempty" validate:"omitempty,oneof=days weeks months years"`

	Dates []time.Time `json:"dates,omitempty"`
}

// IsSingle reports whether the recurrence produces exactly the anchor.
func (r Recurrence) IsSingle() bool {
	return len(r.Dates) == 0 && (r.Type == "" || r.Type == RecurrenceNone)
}

// TaskInput is what a user submits when creating a task.
type TaskInput struct {
	Title       string    `json:"title" validate:"max=255"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty" validate:"max=255"`
	Start       time.Time `json:"start" validate:"required"`
	End         time.Time `json:"end" validate:"required,gtefield=Start"`

	Calendar CalendarSource `json:"calendar"`
	ClientID *int64         `json:"client_id,omitempty"`
	AffairID *int64         `json:"affair_id,omitempty"`

	Recurrence Recurrence `json:"recurrence"`
}

var validate = validator.New()

// Validate checks the input and returns a *ValidationError listing every
// offending field.
func (in TaskInput) Validate() error {
	fields := map[string]string{}

	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validate task input: %w", err)
		}
		for _, fe := range verrs {
			fields[strings.ToLower(fe.Field())] = describeTag(fe)
		}
	}

	r := in.Recurrence
	if len(r.Dates) == 0 {
		switch r.EndType {
		case EndCount:
			if r.Count < 1 {
				fields["count"] = "must be at least 1"
			}
		case EndUntil:
			if r.Until.IsZero() {
				fields["until"] = "is required"
			} else if r.Until.Before(truncateDay(in.Start)) {
				fields["until"] = "must not be before the start date"
			}
		}
		if r.Type == RecurrenceCustom {
			if r.Interval < 1 {
				fields["interval"] = "must be at least 1"
			}
			if r.Unit == "" {
				fields["unit"] = "is required"
			}
		}
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gtefield":
		return "must not be before " + strings.ToLower(fe.Param())
	case "oneof":
		return "must be one of: " + fe.Param()
	case "max":
		return "is too long"
	case "gte":
		return "must not be negative"
	default:
		return "is invalid"
	}
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// ValidationError carries per-field messages shown inline in a form.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

var (
	ErrNotFound      = errors.New("not found")
	ErrScopeRequired = errors.New("recurring task: choose occurrence or series")
)
