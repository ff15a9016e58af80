package discovery

import (
	"github.com/sells-group/discovery-console/internal/model"
)

// Requirement says how a query parameter field relates to a catalog entry.
type Requirement int

const (
	// Unsupported fields may be present but are ignored.
	Unsupported Requirement = iota
	// Optional fields are sent when set.
	Optional
	// Required fields must be non-empty before the entry can run.
	Required
)

func (r Requirement) String() string {
	switch r {
	case Optional:
		return "optional"
	case Required:
		return "required"
	default:
		return "unsupported"
	}
}

// MarshalText renders the requirement by name in JSON payloads.
func (r Requirement) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Field names a query parameter.
type Field string

// Query parameter fields.
const (
	FieldGeneSymbol           Field = "gene_symbol"
	FieldSearchTerm           Field = "search_term"
	FieldVariationTypes       Field = "variation_types"
	FieldClinicalSignificance Field = "clinical_significance"
	FieldOrganism             Field = "organism"
	FieldReviewed             Field = "reviewed"
	FieldMaxResults           Field = "max_results"
)

// capabilityFields maps the capability-gated fields onto the capability that enables them.
var capabilityFields = map[Field]model.Capability{
	FieldVariationTypes:       model.CapVariationType,
	FieldClinicalSignificance: model.CapClinicalSignificance,
	FieldOrganism:             model.CapOrganism,
	FieldReviewed:             model.CapReviewStatus,
}

// FieldRules is the classification of every parameter field for one entry.
type FieldRules struct {
	EntryID    string                `json:"entry_id"`
	ParamType  model.ParamType       `json:"param_type"`
	Fields     map[Field]Requirement `json:"fields"`
	MaxResults int                   `json:"max_results,omitempty"`
	Testable   bool                  `json:"testable"`
}

// Requirement returns the rule for f.
func (r FieldRules) Requirement(f Field) Requirement {
	return r.Fields[f]
}

// Classify derives the field rules for an entry from its parameter type and
// capability set.
func Classify(entry model.CatalogEntry) FieldRules {
	pt := entry.NormalizedParamType()
	rules := FieldRules{
		EntryID:    entry.ID,
		ParamType:  pt,
		Fields:     make(map[Field]Requirement, 7),
		MaxResults: entry.Capabilities.MaxResults,
		Testable:   pt != model.ParamTypeNone,
	}

	if pt == model.ParamTypeNone {
		for _, f := range []Field{FieldGeneSymbol, FieldSearchTerm, FieldVariationTypes,
			FieldClinicalSignificance, FieldOrganism, FieldReviewed, FieldMaxResults} {
			rules.Fields[f] = Unsupported
		}
		return rules
	}

	switch pt {
	case model.ParamTypeGene:
		rules.Fields[FieldGeneSymbol] = Required
		rules.Fields[FieldSearchTerm] = Unsupported
	case model.ParamTypeTerm:
		rules.Fields[FieldGeneSymbol] = Unsupported
		rules.Fields[FieldSearchTerm] = Required
	case model.ParamTypeAPI:
		rules.Fields[FieldGeneSymbol] = Optional
		rules.Fields[FieldSearchTerm] = Optional
	default:
		rules.Fields[FieldGeneSymbol] = Required
		rules.Fields[FieldSearchTerm] = Required
	}

	for f, capability := range capabilityFields {
		if entry.Capabilities.Has(capability) {
			rules.Fields[f] = Optional
		} else {
			rules.Fields[f] = Unsupported
		}
	}
	rules.Fields[FieldMaxResults] = Optional

	return rules
}

// CapabilityMatrix indexes catalog entries and their field rules by id. It is
// built once per session from the catalog and never mutated.
type CapabilityMatrix struct {
	order   []string
	entries map[string]model.CatalogEntry
	rules   map[string]FieldRules
}

// NewCapabilityMatrix builds a matrix from catalog entries. Later duplicates
// of an id are ignored.
func NewCapabilityMatrix(entries []model.CatalogEntry) *CapabilityMatrix {
	m := &CapabilityMatrix{
		entries: make(map[string]model.CatalogEntry, len(entries)),
		rules:   make(map[string]FieldRules, len(entries)),
	}
	for _, e := range entries {
		if _, dup := m.entries[e.ID]; dup {
			continue
		}
		m.order = append(m.order, e.ID)
		m.entries[e.ID] = e
		m.rules[e.ID] = Classify(e)
	}
	return m
}

// Entry returns the catalog entry for id.
func (m *CapabilityMatrix) Entry(id string) (model.CatalogEntry, bool) {
	e, ok := m.entries[id]
	return e, ok
}

// Rules returns the field rules for id.
func (m *CapabilityMatrix) Rules(id string) (FieldRules, bool) {
	r, ok := m.rules[id]
	return r, ok
}

// Entries returns the entries in catalog order.
func (m *CapabilityMatrix) Entries() []model.CatalogEntry {
	out := make([]model.CatalogEntry, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.entries[id])
	}
	return out
}

// Supporting returns the ids of entries that support capability, in catalog order.
func (m *CapabilityMatrix) Supporting(capability model.Capability) []string {
	var ids []string
	for _, id := range m.order {
		if m.entries[id].Capabilities.Has(capability) {
			ids = append(ids, id)
		}
	}
	return ids
}

// Len returns the number of entries.
func (m *CapabilityMatrix) Len() int {
	return len(m.order)
}
