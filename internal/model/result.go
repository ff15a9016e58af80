package model

import (
	"encoding/json"
	"time"
)

// TestStatus is the outcome of one test execution.
type TestStatus string

// Test statuses. Cancelled is assigned locally to batch members that never
// started because the batch was cancelled.
const (
	TestStatusPending          TestStatus = "pending"
	TestStatusSuccess          TestStatus = "success"
	TestStatusError            TestStatus = "error"
	TestStatusTimeout          TestStatus = "timeout"
	TestStatusValidationFailed TestStatus = "validation_failed"
	TestStatusCancelled        TestStatus = "cancelled"
)

// IsTerminal reports whether the status represents a finished attempt.
func (s TestStatus) IsTerminal() bool {
	return s != TestStatusPending
}

// TestResult records one attempted query against one catalog entry. Results
// are never mutated; a newer record for the same entry supersedes an older one.
type TestResult struct {
	ID             string          `json:"id" db:"id"`
	CatalogEntryID string          `json:"catalog_entry_id" db:"catalog_entry_id"`
	Status         TestStatus      `json:"status" db:"status"`
	StartedAt      time.Time       `json:"started_at" db:"started_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
	ResponseURL    string          `json:"response_url,omitempty" db:"response_url"`
	ResponseData   json.RawMessage `json:"response_data,omitempty" db:"response_data"`
	ErrorMessage   string          `json:"error_message,omitempty" db:"error_message"`
	QualityScore   *float64        `json:"quality_score,omitempty" db:"quality_score"`
}

// Timestamp is the instant used to order results: completion when known,
// otherwise start.
func (r TestResult) Timestamp() time.Time {
	if r.CompletedAt != nil {
		return *r.CompletedAt
	}
	return r.StartedAt
}
