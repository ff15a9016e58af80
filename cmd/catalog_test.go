package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/discovery-console/internal/catalog"
	"github.com/sells-group/discovery-console/internal/config"
	"github.com/sells-group/discovery-console/internal/model"
)

func TestFormatCatalog(t *testing.T) {
	entries := []model.CatalogEntry{
		{ID: "clinvar", Name: "ClinVar", SourceType: model.SourceTypeAPI, ParamType: model.ParamTypeGene},
		{ID: "uniprot", Name: "UniProt", SourceType: model.SourceTypeDatabase, ParamType: "gene_and_term"},
		{ID: "handbook", Name: "Handbook", SourceType: model.SourceTypeFileUpload, ParamType: model.ParamTypeNone},
		{ID: "omim", Name: "OMIM", SourceType: model.SourceTypeAPI, ParamType: "api", RequiresAuth: true},
		{ID: "odd", Name: "Odd", SourceType: model.SourceTypeAPI, ParamType: "protein"},
	}

	var buf bytes.Buffer
	formatCatalog(&buf, entries)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 7)

	assert.Contains(t, lines[0], "REQUIRED")
	assert.Contains(t, lines[2], "gene_symbol")
	assert.NotContains(t, lines[2], "search_term")
	assert.Contains(t, lines[3], "gene_symbol,search_term")
	assert.Contains(t, lines[4], "not testable")
	assert.Contains(t, lines[5], "yes")
	assert.Contains(t, lines[6], "gene_and_term")
}

func TestRequiredLabel(t *testing.T) {
	assert.Equal(t, "search_term", requiredLabel(model.CatalogEntry{ParamType: model.ParamTypeTerm}))
	assert.Equal(t, "-", requiredLabel(model.CatalogEntry{ParamType: model.ParamTypeAPI}))
}

func TestCatalogSource_FallsBackToStore(t *testing.T) {
	_, st := setupCommandEnv(t)
	ctx := context.Background()

	f, err := catalog.LoadFile(cfg.Catalog.Path)
	require.NoError(t, err)
	n, err := st.ImportCatalog(ctx, f.Entries[:2])
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	provider, defaults, err := catalogSource(cfg, st)
	require.NoError(t, err)
	assert.Equal(t, "MED13L", defaults["clinvar"].GeneSymbol)
	entries, err := provider.ListCatalogEntries(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 4)

	cfg.Catalog.Path = ""
	provider, defaults, err = catalogSource(cfg, st)
	require.NoError(t, err)
	assert.Nil(t, defaults)
	entries, err = provider.ListCatalogEntries(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	c := config.Config{Store: config.StoreConfig{Driver: "mysql", DatabaseURL: "x"}}
	_, err := openStore(context.Background(), &c)
	assert.ErrorContains(t, err, "unsupported store driver")
}
