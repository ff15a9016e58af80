package discovery

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

var (
	// ErrNotPromotable is returned when promote is called with a result whose
	// status is not success. Callers are expected to filter beforehand.
	ErrNotPromotable = eris.New("discovery: only successful results can be promoted")

	// ErrSpaceSelectionRequired means no research space is established for
	// the session and none was chosen explicitly.
	ErrSpaceSelectionRequired = eris.New("discovery: a target research space must be selected")

	// ErrUnknownEntry is returned for catalog entry ids not in the catalog.
	ErrUnknownEntry = eris.New("discovery: unknown catalog entry")

	// ErrUnknownResult is returned for result ids not in the session history.
	ErrUnknownResult = eris.New("discovery: unknown test result")

	// ErrNoSession is returned when an operation needs a persisted session.
	ErrNoSession = eris.New("discovery: no active session")
)

// ValidationError means required parameters are missing or malformed. No
// network call is made for an entry that fails validation.
type ValidationError struct {
	EntryID string
	Fields  []string
	Reason  string
}

func (e *ValidationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.EntryID, e.Reason)
	}
	return fmt.Sprintf("validation failed for %s: missing %s", e.EntryID, strings.Join(e.Fields, ", "))
}

// ConfigurationError means the entry cannot run because of console setup,
// such as a source that requires auth with no credential configured.
type ConfigurationError struct {
	EntryID string
	Hint    string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error for %s: %s", e.EntryID, e.Hint)
}

// ConflictError is returned by in-flight guards: a second batch while one is
// active, a manual run of an entry that is executing, or a second promotion
// of the same result.
type ConflictError struct {
	Op  string
	Key string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s already in progress for %s", e.Op, e.Key)
}
