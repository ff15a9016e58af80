// Package catalog loads the data source catalog from a YAML definition file
// and caches catalog reads from slower providers.
package catalog

import (
	"context"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/discovery-console/internal/discovery"
	"github.com/sells-group/discovery-console/internal/model"
)

// File is the on-disk catalog definition.
type File struct {
	Entries []model.CatalogEntry `yaml:"entries"`
	// Defaults are the starting parameters for new sessions, keyed by entry id.
	Defaults map[string]model.QueryParameters `yaml:"defaults"`
}

// LoadFile reads and validates a catalog definition. Malformed entries are
// skipped with a warning; a file with no usable entries is an error.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: read file")
	}
	return Parse(data)
}

// Parse decodes a catalog definition from YAML.
func Parse(data []byte) (*File, error) {
	var raw File
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrap(err, "catalog: unmarshal")
	}

	out := &File{Defaults: make(map[string]model.QueryParameters, len(raw.Defaults))}
	seen := make(map[string]bool, len(raw.Entries))
	for i, e := range raw.Entries {
		if err := normalizeEntry(&e); err != nil {
			zap.L().Warn("catalog: skipping malformed entry", zap.Int("index", i), zap.Error(err))
			continue
		}
		if seen[e.ID] {
			zap.L().Warn("catalog: skipping duplicate entry", zap.String("entry_id", e.ID))
			continue
		}
		seen[e.ID] = true
		out.Entries = append(out.Entries, e)
	}
	if len(out.Entries) == 0 {
		return nil, eris.New("catalog: no valid entries")
	}

	for id, p := range raw.Defaults {
		if !seen[id] {
			zap.L().Warn("catalog: ignoring defaults for unknown entry", zap.String("entry_id", id))
			continue
		}
		out.Defaults[id] = p
	}
	return out, nil
}

func normalizeEntry(e *model.CatalogEntry) error {
	e.ID = strings.TrimSpace(e.ID)
	e.Name = strings.TrimSpace(e.Name)
	if e.ID == "" {
		return eris.New("missing id")
	}
	if e.Name == "" {
		e.Name = e.ID
	}
	if !e.SourceType.Valid() {
		return eris.Errorf("entry %s: unknown source_type %q", e.ID, e.SourceType)
	}
	pt := model.NormalizeParamType(string(e.ParamType))
	if string(pt) != strings.ToLower(strings.TrimSpace(string(e.ParamType))) {
		zap.L().Debug("catalog: unknown param_type, requiring gene and term",
			zap.String("entry_id", e.ID),
			zap.String("param_type", string(e.ParamType)),
		)
	}
	e.ParamType = pt
	return nil
}

// FileProvider serves catalog entries from a YAML file. The file is re-read
// on every call; wrap it in a CachedProvider to avoid that.
type FileProvider struct {
	path string
}

var _ discovery.CatalogProvider = (*FileProvider)(nil)

// NewFileProvider creates a provider reading path.
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

// ListCatalogEntries loads the catalog file.
func (p *FileProvider) ListCatalogEntries(ctx context.Context) ([]model.CatalogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := LoadFile(p.path)
	if err != nil {
		return nil, err
	}
	return f.Entries, nil
}
