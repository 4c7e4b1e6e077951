package editing

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/odyssey-erp/servicechange/internal/records"
)

// ErrValidation marks failures caused by the request itself. They are reported to the
// user without alerting operators.
var ErrValidation = errors.New("invalid request")

// ErrIntegrity marks data that breaks a uniqueness rule. It is surfaced, never repaired.
var ErrIntegrity = errors.New("data integrity violation")

func invalid(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrValidation)
}

// IsUserError reports whether err should be shown to the user without an operator alert.
func IsUserError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrIntegrity)
}

// classify marks missing records and field mapping failures as validation errors.
func classify(err error) error {
	var partial *PartialUpdateError
	if err == nil || errors.As(err, &partial) {
		return err
	}
	if errors.Is(err, records.ErrNotFound) || errors.Is(err, records.ErrUnknownField) ||
		errors.Is(err, records.ErrFieldType) || errors.Is(err, records.ErrReadOnlyField) ||
		errors.Is(err, records.ErrInvalidFrequency) || errors.Is(err, records.ErrInvalidFilter) {
		return errors.Mark(err, ErrValidation)
	}
	return err
}

// Target names one record touched by a cascading update.
type Target struct {
	Type records.RecordType
	ID   int64
}

func (t Target) String() string {
	return fmt.Sprintf("%s #%d", t.Type, t.ID)
}

// PartialUpdateError reports a cascading update that stopped part way.
type PartialUpdateError struct {
	Updated []Target
	Failed  Target
	Skipped []Target
	Cause   error
}

func (e *PartialUpdateError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "update of %s failed: %v", e.Failed, e.Cause)
	b.WriteString(". Updated: ")
	b.WriteString(joinTargets(e.Updated))
	b.WriteString(". Not updated: ")
	b.WriteString(joinTargets(append([]Target{e.Failed}, e.Skipped...)))
	return b.String()
}

func (e *PartialUpdateError) Unwrap() error { return e.Cause }

func joinTargets(targets []Target) string {
	if len(targets) == 0 {
		return "none"
	}
	parts := make([]string, len(targets))
	for i, t := range targets {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}
