package discovery

import (
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sells-group/discovery-console/internal/model"
)

// RequiredFieldSet lists which of the primary inputs an entry requires.
type RequiredFieldSet struct {
	Gene bool `json:"gene"`
	Term bool `json:"term"`
}

// RequiredFields reports which primary inputs must be populated for entry.
// api-type entries require neither: their real constraints live in the
// external integration.
func RequiredFields(entry model.CatalogEntry) RequiredFieldSet {
	switch entry.NormalizedParamType() {
	case model.ParamTypeGene:
		return RequiredFieldSet{Gene: true}
	case model.ParamTypeTerm:
		return RequiredFieldSet{Term: true}
	case model.ParamTypeGeneAndTerm:
		return RequiredFieldSet{Gene: true, Term: true}
	default:
		return RequiredFieldSet{}
	}
}

// IsRunnable reports whether a test run of entry with params is permitted.
func IsRunnable(entry model.CatalogEntry, params model.QueryParameters, creds CredentialSet) bool {
	return Check(entry, params, creds) == nil
}

// Check returns nil when entry may run with params, a *ValidationError when
// inputs are missing or the entry is informational only, and a
// *ConfigurationError when the entry requires auth and no credential is set.
func Check(entry model.CatalogEntry, params model.QueryParameters, creds CredentialSet) error {
	if entry.NormalizedParamType() == model.ParamTypeNone {
		return &ValidationError{EntryID: entry.ID, Reason: "informational source cannot be tested"}
	}

	req := RequiredFields(entry)
	var missing []string
	if req.Gene && params.Gene() == "" {
		missing = append(missing, string(FieldGeneSymbol))
	}
	if req.Term && params.Term() == "" {
		missing = append(missing, string(FieldSearchTerm))
	}
	if len(missing) > 0 {
		return &ValidationError{EntryID: entry.ID, Fields: missing}
	}

	if entry.RequiresAuth && !creds.Has(entry.ID) {
		return &ConfigurationError{
			EntryID: entry.ID,
			Hint:    "source requires authentication; add a credential under executor.credentials." + entry.ID,
		}
	}
	return nil
}

// Sanitize returns the parameter snapshot sent to the executor: unsupported
// fields are cleared, strings trimmed, and max_results clamped to the
// entry's ceiling.
func Sanitize(entry model.CatalogEntry, params model.QueryParameters) model.QueryParameters {
	rules := Classify(entry)
	out := model.QueryParameters{}

	if rules.Requirement(FieldGeneSymbol) != Unsupported {
		out.GeneSymbol = params.Gene()
	}
	if rules.Requirement(FieldSearchTerm) != Unsupported {
		out.SearchTerm = params.Term()
	}
	if rules.Requirement(FieldVariationTypes) != Unsupported {
		out.VariationTypes = compact(params.VariationTypes)
	}
	if rules.Requirement(FieldClinicalSignificance) != Unsupported {
		out.ClinicalSignificance = compact(params.ClinicalSignificance)
	}
	if rules.Requirement(FieldOrganism) != Unsupported {
		out.Organism = strings.TrimSpace(params.Organism)
	}
	if rules.Requirement(FieldReviewed) != Unsupported && params.Reviewed != nil {
		v := *params.Reviewed
		out.Reviewed = &v
	}
	if rules.Requirement(FieldMaxResults) != Unsupported && params.MaxResults > 0 {
		out.MaxResults = params.MaxResults
		if rules.MaxResults > 0 && out.MaxResults > rules.MaxResults {
			out.MaxResults = rules.MaxResults
		}
	}
	return out
}

func compact(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// ValidateSettings checks the scheduling block of advanced settings.
func ValidateSettings(entryID string, s model.AdvancedSettings) error {
	sched := s.Scheduling
	freq := sched.Frequency
	if freq == "" {
		freq = model.FrequencyManual
	}
	if !freq.Valid() {
		return &ValidationError{EntryID: entryID, Fields: []string{"scheduling.frequency"},
			Reason: "unknown frequency " + string(sched.Frequency)}
	}

	if freq == model.FrequencyCron {
		expr := strings.TrimSpace(sched.CronExpression)
		if expr == "" {
			return &ValidationError{EntryID: entryID, Fields: []string{"scheduling.cron_expression"}}
		}
		if _, err := cron.ParseStandard(expr); err != nil {
			return &ValidationError{EntryID: entryID, Fields: []string{"scheduling.cron_expression"},
				Reason: "invalid cron expression: " + err.Error()}
		}
	}

	if sched.Timezone != "" {
		if _, err := time.LoadLocation(sched.Timezone); err != nil {
			return &ValidationError{EntryID: entryID, Fields: []string{"scheduling.timezone"},
				Reason: "unknown timezone " + sched.Timezone}
		}
	}

	if sched.StartTime != "" {
		if _, err := time.Parse(time.RFC3339, sched.StartTime); err != nil {
			if _, err := time.Parse("15:04", sched.StartTime); err != nil {
				return &ValidationError{EntryID: entryID, Fields: []string{"scheduling.start_time"},
					Reason: "start time must be RFC3339 or HH:MM"}
			}
		}
	}
	return nil
}

// normalizeSettings fills defaults into s.
func normalizeSettings(s model.AdvancedSettings) model.AdvancedSettings {
	if s.Scheduling.Frequency == "" {
		s.Scheduling.Frequency = model.FrequencyManual
	}
	if s.Scheduling.Timezone == "" {
		s.Scheduling.Timezone = "UTC"
	}
	if s.Scheduling.Frequency != model.FrequencyCron {
		s.Scheduling.CronExpression = ""
	}
	return s
}
