package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/discovery-console/internal/catalog"
	"github.com/sells-group/discovery-console/internal/discovery"
	"github.com/sells-group/discovery-console/internal/model"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect and load the data source catalog",
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog entries and the parameters each one requires",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("catalog"); err != nil {
			return err
		}
		ctx := cmd.Context()

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		provider, _, err := catalogSource(cfg, st)
		if err != nil {
			return err
		}
		entries, err := provider.ListCatalogEntries(ctx)
		if err != nil {
			return eris.Wrap(err, "catalog list")
		}
		if len(entries) == 0 {
			zap.L().Info("catalog is empty")
			return nil
		}

		formatCatalog(os.Stdout, entries)
		return nil
	},
}

var catalogImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Load a YAML catalog definition into the store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("catalog"); err != nil {
			return err
		}
		ctx := cmd.Context()

		path, _ := cmd.Flags().GetString("file")
		f, err := catalog.LoadFile(path)
		if err != nil {
			return err
		}

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.ImportCatalog(ctx, f.Entries)
		if err != nil {
			return eris.Wrap(err, "catalog import")
		}

		zap.L().Info("catalog imported", zap.String("file", path), zap.Int64("entries", n))
		fmt.Printf("Imported %d catalog entries from %s\n", n, path)
		return nil
	},
}

func init() {
	catalogImportCmd.Flags().String("file", "", "path to the catalog YAML file")
	_ = catalogImportCmd.MarkFlagRequired("file")

	catalogCmd.AddCommand(catalogListCmd, catalogImportCmd)
	rootCmd.AddCommand(catalogCmd)
}

func formatCatalog(out io.Writer, entries []model.CatalogEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tSOURCE\tPARAMS\tREQUIRED\tAUTH")
	_, _ = fmt.Fprintln(w, "--\t----\t------\t------\t--------\t----")

	for _, e := range entries {
		auth := ""
		if e.RequiresAuth {
			auth = "yes"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ID,
			e.Name,
			e.SourceType,
			e.NormalizedParamType(),
			requiredLabel(e),
			auth,
		)
	}
	_ = w.Flush()
}

// requiredLabel names the inputs an entry needs before it can be tested.
func requiredLabel(e model.CatalogEntry) string {
	if e.NormalizedParamType() == model.ParamTypeNone {
		return "not testable"
	}
	req := discovery.RequiredFields(e)
	var fields []string
	if req.Gene {
		fields = append(fields, string(discovery.FieldGeneSymbol))
	}
	if req.Term {
		fields = append(fields, string(discovery.FieldSearchTerm))
	}
	if len(fields) == 0 {
		return "-"
	}
	return strings.Join(fields, ",")
}
