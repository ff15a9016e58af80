package model

import "strings"

// QueryParameters holds the user-supplied inputs for one catalog entry.
// Fields the entry does not support may be set but carry no weight.
type QueryParameters struct {
	GeneSymbol           string   `json:"gene_symbol,omitempty" yaml:"gene_symbol"`
	SearchTerm           string   `json:"search_term,omitempty" yaml:"search_term"`
	VariationTypes       []string `json:"variation_types,omitempty" yaml:"variation_types"`
	ClinicalSignificance []string `json:"clinical_significance,omitempty" yaml:"clinical_significance"`
	Organism             string   `json:"organism,omitempty" yaml:"organism"`
	Reviewed             *bool    `json:"reviewed,omitempty" yaml:"reviewed"`
	MaxResults           int      `json:"max_results,omitempty" yaml:"max_results"`
}

// Gene returns the trimmed gene symbol.
func (p QueryParameters) Gene() string {
	return strings.TrimSpace(p.GeneSymbol)
}

// Term returns the trimmed search term.
func (p QueryParameters) Term() string {
	return strings.TrimSpace(p.SearchTerm)
}

// Frequency is how often a scheduled source refresh runs.
type Frequency string

// Schedule frequencies.
const (
	FrequencyManual  Frequency = "manual"
	FrequencyHourly  Frequency = "hourly"
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyCron    Frequency = "cron"
)

// Valid reports whether f is a known frequency.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyManual, FrequencyHourly, FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyCron:
		return true
	default:
		return false
	}
}

// Schedule configures recurring ingestion for a promoted source.
type Schedule struct {
	Enabled        bool      `json:"enabled"`
	Frequency      Frequency `json:"frequency"`
	StartTime      string    `json:"start_time,omitempty"`
	Timezone       string    `json:"timezone"`
	CronExpression string    `json:"cron_expression,omitempty"`
}

// AdvancedSettings is per-source supplementary configuration.
type AdvancedSettings struct {
	Scheduling Schedule `json:"scheduling"`
	Notes      string   `json:"notes,omitempty"`
}

// DefaultAdvancedSettings returns the settings used when a source has no override.
func DefaultAdvancedSettings() AdvancedSettings {
	return AdvancedSettings{
		Scheduling: Schedule{
			Enabled:   false,
			Frequency: FrequencyManual,
			Timezone:  "UTC",
		},
	}
}
