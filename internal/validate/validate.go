// Package validate checks records against the schema registry before writes.
package validate

import (
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/MAKaminski/alpha-kite/internal/model"
	"github.com/MAKaminski/alpha-kite/internal/schema"
)

// Mode selects how a required field is judged present.
type Mode string

const (
	// ModeTruthy treats zero, NaN, empty strings and false as missing; empty
	// objects and arrays are present. Callers must write an explicit
	// sentinel for fields that are legitimately zero.
	ModeTruthy Mode = "truthy"

	// ModePresent only treats absent or nil fields as missing.
	ModePresent Mode = "present"
)

// ParseMode parses a configured mode. An empty string selects ModeTruthy.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeTruthy:
		return ModeTruthy, nil
	case ModePresent:
		return ModePresent, nil
	}
	return "", fmt.Errorf("unknown validation mode %q", s)
}

// MissingFieldError lists every required field a record lacks.
type MissingFieldError struct {
	Table  string
	Fields []string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s: missing required fields: %s", e.Table, strings.Join(e.Fields, ", "))
}

// Validator checks records against a registry.
type Validator struct {
	registry *schema.Registry
	mode     Mode
}

// New creates a Validator. An empty mode selects ModeTruthy.
func New(registry *schema.Registry, mode Mode) *Validator {
	if mode == "" {
		mode = ModeTruthy
	}
	return &Validator{registry: registry, mode: mode}
}

// Mode returns the validator's presence mode.
func (v *Validator) Mode() Mode {
	return v.mode
}

// Validate returns nil if rec carries every required field of table,
// *MissingFieldError naming all missing fields otherwise, or
// *schema.UnknownTableError for unregistered tables.
func (v *Validator) Validate(table string, rec model.Record) error {
	required, err := v.registry.RequiredFields(table)
	if err != nil {
		return err
	}

	var missing []string
	for _, f := range required {
		if !v.present(rec, f) {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return &MissingFieldError{Table: table, Fields: missing}
	}
	return nil
}

// ValidateAll validates every record and returns the first failure, with the
// failing index attached.
func (v *Validator) ValidateAll(table string, recs []model.Record) error {
	for i, rec := range recs {
		if err := v.Validate(table, rec); err != nil {
			return &RecordError{Index: i, Err: err}
		}
	}
	return nil
}

// RecordError attaches a batch position to a validation failure.
type RecordError struct {
	Index int
	Err   error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %d: %v", e.Index, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

func (v *Validator) present(rec model.Record, field string) bool {
	val, ok := rec[field]
	if !ok || val == nil {
		return false
	}
	if v.mode == ModePresent {
		return true
	}
	return truthy(val)
}

// truthy reports whether val counts as supplied: true, non-empty strings,
// numbers other than 0 and NaN, non-nil collections (empty ones included),
// and non-zero times.
func truthy(val any) bool {
	switch t := val.(type) {
	case bool:
		return t
	case string:
		return t != ""
	}
	if f, ok := model.ToFloat(val); ok {
		return f != 0 && !math.IsNaN(f)
	}
	rv := reflect.ValueOf(val)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Pointer, reflect.Interface, reflect.Chan:
		return !rv.IsNil()
	case reflect.Array:
		return true
	}
	return !rv.IsZero()
}

// ValidatePatch checks a partial update. Only required fields the patch
// touches are checked, so a patch cannot blank out a required field.
func (v *Validator) ValidatePatch(table string, patch model.Record) error {
	required, err := v.registry.RequiredFields(table)
	if err != nil {
		return err
	}

	var missing []string
	for _, f := range required {
		if _, touched := patch[f]; touched && !v.present(patch, f) {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return &MissingFieldError{Table: table, Fields: missing}
	}
	return nil
}
