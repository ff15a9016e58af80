package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeParamType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want ParamType
	}{
		{"gene", ParamTypeGene},
		{"term", ParamTypeTerm},
		{"gene_and_term", ParamTypeGeneAndTerm},
		{"none", ParamTypeNone},
		{"api", ParamTypeAPI},
		{"  GENE ", ParamTypeGene},
		{"Api", ParamTypeAPI},
		{"", ParamTypeGeneAndTerm},
		{"protein", ParamTypeGeneAndTerm},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, NormalizeParamType(tt.raw))
		})
	}
}

func TestCapabilities_Has(t *testing.T) {
	t.Parallel()

	caps := Capabilities{SupportsOrganism: true, SupportsVariationType: true, MaxResults: 50}

	assert.True(t, caps.Has(CapOrganism))
	assert.True(t, caps.Has(CapVariationType))
	assert.False(t, caps.Has(CapDateRange))
	assert.False(t, caps.Has(Capability(99)))
	assert.Equal(t, []Capability{CapVariationType, CapOrganism}, caps.Supported())
}

func TestCapability_String(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for _, c := range AllCapabilities {
		name := c.String()
		assert.NotEqual(t, "unknown", name)
		assert.False(t, seen[name], "duplicate capability name %s", name)
		seen[name] = true
	}
	assert.Equal(t, "unknown", Capability(-1).String())
}

func TestSourceType_Valid(t *testing.T) {
	t.Parallel()

	assert.True(t, SourceTypePubMed.Valid())
	assert.True(t, SourceTypeWebScraping.Valid())
	assert.False(t, SourceType("ftp").Valid())
}

func TestTestResult_Timestamp(t *testing.T) {
	t.Parallel()

	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	completed := started.Add(5 * time.Second)

	r := TestResult{StartedAt: started}
	assert.Equal(t, started, r.Timestamp())

	r.CompletedAt = &completed
	assert.Equal(t, completed, r.Timestamp())
}

func TestDefaultAdvancedSettings(t *testing.T) {
	t.Parallel()

	s := DefaultAdvancedSettings()
	assert.False(t, s.Scheduling.Enabled)
	assert.Equal(t, FrequencyManual, s.Scheduling.Frequency)
	assert.Equal(t, "UTC", s.Scheduling.Timezone)
	assert.True(t, TestStatusTimeout.IsTerminal())
	assert.False(t, TestStatusPending.IsTerminal())
}
