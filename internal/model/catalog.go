package model

import "strings"

// SourceType classifies how an external data source is reached.
type SourceType string

// Source types supported by the catalog.
const (
	SourceTypeAPI         SourceType = "api"
	SourceTypeDatabase    SourceType = "database"
	SourceTypeFileUpload  SourceType = "file_upload"
	SourceTypeWebScraping SourceType = "web_scraping"
	SourceTypePubMed      SourceType = "pubmed"
)

// Valid reports whether t is one of the known source types.
func (t SourceType) Valid() bool {
	switch t {
	case SourceTypeAPI, SourceTypeDatabase, SourceTypeFileUpload, SourceTypeWebScraping, SourceTypePubMed:
		return true
	default:
		return false
	}
}

// ParamType declares which query inputs a catalog entry expects.
type ParamType string

// Parameter types. Anything else normalizes to ParamTypeGeneAndTerm.
const (
	ParamTypeGene        ParamType = "gene"
	ParamTypeTerm        ParamType = "term"
	ParamTypeGeneAndTerm ParamType = "gene_and_term"
	ParamTypeNone        ParamType = "none"
	ParamTypeAPI         ParamType = "api"
)

// NormalizeParamType maps a raw classifier onto the closed set of parameter
// types. Unrecognized values fall back to gene_and_term so that an unknown
// classifier asks for every input instead of allowing an unvalidated run.
func NormalizeParamType(raw string) ParamType {
	switch ParamType(strings.ToLower(strings.TrimSpace(raw))) {
	case ParamTypeGene:
		return ParamTypeGene
	case ParamTypeTerm:
		return ParamTypeTerm
	case ParamTypeGeneAndTerm:
		return ParamTypeGeneAndTerm
	case ParamTypeNone:
		return ParamTypeNone
	case ParamTypeAPI:
		return ParamTypeAPI
	default:
		return ParamTypeGeneAndTerm
	}
}

// Capability is a named optional query filter a catalog entry may support.
type Capability int

// Capabilities known to the console. Adding one requires a field on
// Capabilities and a case in Capabilities.Has.
const (
	CapDateRange Capability = iota
	CapPublicationTypes
	CapLanguage
	CapSortOptions
	CapAdditionalTerms
	CapVariationType
	CapClinicalSignificance
	CapReviewStatus
	CapOrganism
)

// AllCapabilities lists every capability in declaration order.
var AllCapabilities = []Capability{
	CapDateRange,
	CapPublicationTypes,
	CapLanguage,
	CapSortOptions,
	CapAdditionalTerms,
	CapVariationType,
	CapClinicalSignificance,
	CapReviewStatus,
	CapOrganism,
}

func (c Capability) String() string {
	switch c {
	case CapDateRange:
		return "date_range"
	case CapPublicationTypes:
		return "publication_types"
	case CapLanguage:
		return "language"
	case CapSortOptions:
		return "sort_options"
	case CapAdditionalTerms:
		return "additional_terms"
	case CapVariationType:
		return "variation_type"
	case CapClinicalSignificance:
		return "clinical_significance"
	case CapReviewStatus:
		return "review_status"
	case CapOrganism:
		return "organism"
	default:
		return "unknown"
	}
}

// Capabilities is the per-entry set of supported filters plus the result ceiling.
type Capabilities struct {
	SupportsDateRange            bool `json:"supports_date_range" yaml:"supports_date_range"`
	SupportsPublicationTypes     bool `json:"supports_publication_types" yaml:"supports_publication_types"`
	SupportsLanguage             bool `json:"supports_language" yaml:"supports_language"`
	SupportsSortOptions          bool `json:"supports_sort_options" yaml:"supports_sort_options"`
	SupportsAdditionalTerms      bool `json:"supports_additional_terms" yaml:"supports_additional_terms"`
	SupportsVariationType        bool `json:"supports_variation_type" yaml:"supports_variation_type"`
	SupportsClinicalSignificance bool `json:"supports_clinical_significance" yaml:"supports_clinical_significance"`
	SupportsReviewStatus         bool `json:"supports_review_status" yaml:"supports_review_status"`
	SupportsOrganism             bool `json:"supports_organism" yaml:"supports_organism"`
	MaxResults                   int  `json:"max_results,omitempty" yaml:"max_results"`
}

// Has reports whether capability c is supported.
func (c Capabilities) Has(capability Capability) bool {
	switch capability {
	case CapDateRange:
		return c.SupportsDateRange
	case CapPublicationTypes:
		return c.SupportsPublicationTypes
	case CapLanguage:
		return c.SupportsLanguage
	case CapSortOptions:
		return c.SupportsSortOptions
	case CapAdditionalTerms:
		return c.SupportsAdditionalTerms
	case CapVariationType:
		return c.SupportsVariationType
	case CapClinicalSignificance:
		return c.SupportsClinicalSignificance
	case CapReviewStatus:
		return c.SupportsReviewStatus
	case CapOrganism:
		return c.SupportsOrganism
	default:
		return false
	}
}

// Supported returns the enabled capabilities in declaration order.
func (c Capabilities) Supported() []Capability {
	var out []Capability
	for _, capability := range AllCapabilities {
		if c.Has(capability) {
			out = append(out, capability)
		}
	}
	return out
}

// CatalogEntry describes one external data source that can be queried.
// Entries are read-only for the lifetime of a session.
type CatalogEntry struct {
	ID           string       `json:"id" yaml:"id" db:"id"`
	Name         string       `json:"name" yaml:"name" db:"name"`
	Category     string       `json:"category" yaml:"category" db:"category"`
	SourceType   SourceType   `json:"source_type" yaml:"source_type" db:"source_type"`
	ParamType    ParamType    `json:"param_type" yaml:"param_type" db:"param_type"`
	Capabilities Capabilities `json:"capabilities" yaml:"capabilities" db:"capabilities"`
	RequiresAuth bool         `json:"requires_auth" yaml:"requires_auth" db:"requires_auth"`
	Description  string       `json:"description,omitempty" yaml:"description" db:"description"`
}

// NormalizedParamType returns the entry's parameter type mapped onto the closed set.
func (e CatalogEntry) NormalizedParamType() ParamType {
	return NormalizeParamType(string(e.ParamType))
}
