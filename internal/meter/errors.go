package meter

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Names of the unique indexes backing identifier uniqueness
const (
	ConstraintMeterNorm    = "uniq_meter_norm"
	ConstraintConsumerNorm = "uniq_consumer_norm"
)

// ValidationError reports missing or malformed input. Fields lists every offending field.
type ValidationError struct {
	Fields []string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid field(s): %s: %s", strings.Join(e.Fields, ", "), e.Reason)
	}
	return fmt.Sprintf("missing field(s): %s", strings.Join(e.Fields, ", "))
}

// ConflictError reports a case-insensitive uniqueness violation.
type ConflictError struct {
	MeterID    bool
	ConsumerID bool
	Constraint string
}

func (e *ConflictError) Error() string {
	switch {
	case e.MeterID && e.ConsumerID:
		return "Duplicate not allowed: this Meter ID AND Consumer ID already exist (case-insensitive)."
	case e.MeterID:
		return "Duplicate not allowed: this Meter ID already exists (case-insensitive)."
	case e.ConsumerID:
		return "Duplicate not allowed: this Consumer ID already exists (case-insensitive)."
	default:
		return "Duplicate not allowed: a meter already exists with the same ID(s)."
	}
}

// ConflictFromConstraint maps a unique index name to the conflicting field.
func ConflictFromConstraint(name string) *ConflictError {
	switch name {
	case ConstraintMeterNorm:
		return &ConflictError{MeterID: true, Constraint: name}
	case ConstraintConsumerNorm:
		return &ConflictError{ConsumerID: true, Constraint: name}
	default:
		return &ConflictError{Constraint: name}
	}
}

// ClassifyConflict inspects existing records and reports which canonical identifiers collide.
// It returns nil when none do.
func ClassifyConflict(existing []Meter, meterIDNorm, consumerIDNorm string) *ConflictError {
	var c ConflictError
	for _, m := range existing {
		if m.MeterIDNorm == meterIDNorm {
			c.MeterID = true
		}
		if m.ConsumerIDNorm == consumerIDNorm {
			c.ConsumerID = true
		}
	}
	if !c.MeterID && !c.ConsumerID {
		return nil
	}
	return &c
}

// NotFoundError reports a missing record
type NotFoundError struct {
	ID uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("meter %s not found", e.ID)
}

// RenderError reports that every report engine failed
type RenderError struct {
	Errors []error
}

func (e *RenderError) Error() string {
	if len(e.Errors) == 0 {
		return "report generation failed: no rendering engine available"
	}
	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		msgs = append(msgs, err.Error())
	}
	return "report generation failed: " + strings.Join(msgs, "; ")
}

// StoreUnavailableError reports that a backing store could not be reached
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("store unavailable during %s: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error {
	return e.Err
}
