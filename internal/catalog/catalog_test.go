package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/discovery-console/internal/model"
)

const sampleCatalog = `
entries:
  - id: clinvar
    name: ClinVar
    category: variants
    source_type: api
    param_type: gene
    capabilities:
      supports_variation_type: true
      supports_clinical_significance: true
      max_results: 500
  - id: pubmed
    name: PubMed
    category: literature
    source_type: pubmed
    param_type: TERM
  - id: handbook
    category: reference
    source_type: file_upload
    param_type: none
  - id: mystery
    name: Mystery
    source_type: api
    param_type: protein
  - id: clinvar
    name: Duplicate
    source_type: api
    param_type: gene
  - name: No ID
    source_type: api
  - id: ftp-mirror
    source_type: ftp
defaults:
  clinvar:
    gene_symbol: MED13L
    max_results: 50
  retired:
    search_term: ignored
`

func TestParse(t *testing.T) {
	f, err := Parse([]byte(sampleCatalog))
	require.NoError(t, err)

	ids := make([]string, 0, len(f.Entries))
	for _, e := range f.Entries {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"clinvar", "pubmed", "handbook", "mystery"}, ids)

	assert.Equal(t, "ClinVar", f.Entries[0].Name)
	assert.True(t, f.Entries[0].Capabilities.SupportsClinicalSignificance)
	assert.Equal(t, 500, f.Entries[0].Capabilities.MaxResults)
	assert.Equal(t, model.ParamTypeTerm, f.Entries[1].ParamType)
	assert.Equal(t, "handbook", f.Entries[2].Name)
	assert.Equal(t, model.ParamTypeNone, f.Entries[2].ParamType)
	assert.Equal(t, model.ParamTypeGeneAndTerm, f.Entries[3].ParamType)

	require.Len(t, f.Defaults, 1)
	assert.Equal(t, "MED13L", f.Defaults["clinvar"].GeneSymbol)
	assert.Equal(t, 50, f.Defaults["clinvar"].MaxResults)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte("entries: [}"))
	require.Error(t, err)

	_, err = Parse([]byte("entries: []"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no valid entries")
}

func TestFileProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleCatalog), 0o600))

	p := NewFileProvider(path)
	entries, err := p.ListCatalogEntries(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 4)

	_, err = NewFileProvider(filepath.Join(t.TempDir(), "missing.yaml")).ListCatalogEntries(context.Background())
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.ListCatalogEntries(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadFile_ExampleCatalog(t *testing.T) {
	f, err := LoadFile(filepath.Join("..", "..", "catalog.example.yaml"))
	require.NoError(t, err)

	assert.Len(t, f.Entries, 5)
	assert.Equal(t, "MED13L", f.Defaults["clinvar"].GeneSymbol)
	assert.Equal(t, []string{"single_nucleotide_variant"}, f.Defaults["clinvar"].VariationTypes)
	for _, e := range f.Entries {
		assert.True(t, e.SourceType.Valid(), e.ID)
	}
}
