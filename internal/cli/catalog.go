package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/soniam4/carbonfootprint-tracker/internal/catalog"
)

func newCatalogCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and apply the reference catalog",
		Long:  "Validate, print and apply the YAML catalog of categories, emission factors and recommendations.",
	}
	cmd.AddCommand(
		newCatalogValidateCmd(a),
		newCatalogShowCmd(a),
		newCatalogLoadCmd(a),
	)
	return cmd
}

func newCatalogValidateCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a catalog file",
		Long:  "Parses the catalog and reports every problem found. Without --file the embedded catalog is checked.",
		Example: `  carbonctl catalog validate
  carbonctl catalog validate --file ./catalog.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := loadCatalog(a, file)
			if err != nil {
				return err
			}
			cmd.Printf("Catalog %s is valid: %d categories, %d emission factors, %d recommendations\n",
				c.Version, len(c.Categories), c.FactorCount(), len(c.Recommendations))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "catalog file (defaults to CATALOG_PATH, then the embedded catalog)")
	return cmd
}

func newCatalogShowCmd(a *app) *cobra.Command {
	var (
		file   string
		output string
	)
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print a catalog",
		Example: `  carbonctl catalog show
  carbonctl catalog show --output yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := loadCatalog(a, file)
			if err != nil {
				return err
			}
			switch output {
			case "table":
				return renderCatalogTable(cmd, c)
			case "yaml":
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				if err := enc.Encode(c); err != nil {
					return err
				}
				return enc.Close()
			default:
				return fmt.Errorf("unknown output format %q (expected table or yaml)", output)
			}
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "catalog file (defaults to CATALOG_PATH, then the embedded catalog)")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format (table or yaml)")
	return cmd
}

func newCatalogLoadCmd(a *app) *cobra.Command {
	var (
		file  string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Apply a catalog to the database",
		Long: "Upserts categories and recommendations and replaces the emission factor set. " +
			"A catalog whose version is already applied is skipped unless --force is given.",
		Example: `  carbonctl catalog load --file ./catalog.yaml
  carbonctl catalog load --force`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := loadCatalog(a, file)
			if err != nil {
				return err
			}
			return a.withStore(cmd.Context(), func(store Store) error {
				current, err := store.CatalogVersion(cmd.Context())
				if err != nil {
					return fmt.Errorf("reading catalog version: %w", err)
				}
				if current == c.Version && !force {
					cmd.Printf("Catalog version %s is already applied\n", c.Version)
					return nil
				}
				if err := store.ApplyCatalog(cmd.Context(), c); err != nil {
					return fmt.Errorf("applying catalog: %w", err)
				}
				a.logger.Info().Str("previous", current).Str("version", c.Version).Msg("catalog applied")
				cmd.Printf("Applied catalog version %s: %d categories, %d emission factors, %d recommendations\n",
					c.Version, len(c.Categories), c.FactorCount(), len(c.Recommendations))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "catalog file (defaults to CATALOG_PATH, then the embedded catalog)")
	cmd.Flags().BoolVar(&force, "force", false, "apply even when the version is unchanged")
	return cmd
}

func loadCatalog(a *app, file string) (*catalog.Catalog, error) {
	if file == "" {
		file = a.cfg.CatalogPath
	}
	return catalog.Load(file)
}

func renderCatalogTable(cmd *cobra.Command, c *catalog.Catalog) error {
	cmd.Printf("Version: %s\n\n", c.Version)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CATEGORY\tACTIVITY\tUNIT\tKG CO2/UNIT\tREGION")
	for _, cat := range c.Categories {
		for _, f := range cat.Factors {
			fmt.Fprintf(w, "%s\t%s\t%s\t%g\t%s\n", cat.Name, f.ActivityType, f.Unit, f.CO2PerUnit, f.Region)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}

	cmd.Println()
	w = tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RECOMMENDATION\tCATEGORY\tSAVING KG\tDIFFICULTY\tACTIVE")
	for _, rec := range c.Recommendations {
		fmt.Fprintf(w, "%s\t%s\t%g\t%s\t%t\n", rec.Title, rec.Category, rec.CO2Saving, rec.Difficulty, rec.IsActive())
	}
	return w.Flush()
}
