/*
errors.go - Centralized error types for the commission engine

ERROR CATEGORIES:
  1. Fatal - deal, setter or closer not found. Recalculate aborts and
     nothing is written.
  2. Skippable - no pay plan, no applicable rule, unknown calc method.
     Never surfaced as errors; logged and the single payout is omitted.
  3. Structural - duplicate snapshot on concurrent first use. Resolved by
     re-reading the winner's row, never surfaced.

SEE ALSO:
  - calculator.go: Applies the taxonomy
  - store/sqlite/sqlite.go: Maps driver errors onto these sentinels
*/
package commission

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDealNotFound is returned when the deal being recalculated does not exist.
	ErrDealNotFound = errors.New("deal not found")

	// ErrPersonNotFound is returned when a referenced person does not exist.
	ErrPersonNotFound = errors.New("person not found")

	// ErrDuplicateSnapshot is returned by a SnapshotStore when a snapshot for
	// the same (person, date) pair already exists.
	ErrDuplicateSnapshot = errors.New("duplicate org snapshot")

	// ErrInvalidRule is returned when a rule fails validation.
	ErrInvalidRule = errors.New("invalid commission rule")

	// ErrInvalidAssignment is returned when a pay-plan assignment would
	// overlap or precede the current one.
	ErrInvalidAssignment = errors.New("invalid pay plan assignment")

	// ErrLockTimeout is returned when the per-deal lock cannot be acquired.
	ErrLockTimeout = errors.New("deal lock not acquired")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names the missing record and the role it played.
type NotFoundError struct {
	Kind string // "deal", "setter", "closer", "person"
	ID   string
	err  error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return e.err }

func dealNotFound(id DealID) error {
	return &NotFoundError{Kind: "deal", ID: string(id), err: ErrDealNotFound}
}

func personNotFound(kind string, id PersonID) error {
	return &NotFoundError{Kind: kind, ID: string(id), err: ErrPersonNotFound}
}

// RuleValidationError lists the fields of a rule that failed validation.
type RuleValidationError struct {
	RuleID RuleID
	Fields []string
}

func (e *RuleValidationError) Error() string {
	return fmt.Sprintf("rule %s invalid: %v", e.RuleID, e.Fields)
}

func (e *RuleValidationError) Unwrap() error { return ErrInvalidRule }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing deal or person.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDealNotFound) || errors.Is(err, ErrPersonNotFound)
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockTimeout)
}

// IsClientError returns true if the error is due to invalid input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRule) || errors.Is(err, ErrInvalidAssignment)
}
