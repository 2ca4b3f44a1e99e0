package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	listTaxonomy  bool
	listAbundance string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List uploads, or stored taxonomy/abundance rows",
	RunE: func(cmd *cobra.Command, args []string) error {
		if listTaxonomy && listAbundance != "" {
			return fmt.Errorf("specify at most one of --taxonomy or --abundance")
		}
		a, err := openApp(cmd.Context(), 0)
		if err != nil {
			return err
		}
		defer a.Close()
		ctx := cmd.Context()

		switch {
		case listTaxonomy:
			rows, err := a.db.ListTaxonomy(ctx, owner())
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Println("(no taxonomy rows)")
				return nil
			}
			for _, t := range rows {
				lineage := strings.Trim(strings.Join([]string{t.Domain, t.Phylum, t.ClassName, t.Order, t.Family, t.Genus, t.Species}, ";"), ";")
				fmt.Printf("- %s: %s\n", t.TaxonomyID, lineage)
			}
		case listAbundance != "":
			recs, err := a.db.ListAbundance(ctx, owner(), listAbundance)
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				fmt.Println("(no abundance records)")
				return nil
			}
			for _, r := range recs {
				fmt.Printf("- %s / %s: values=%v deltas=%v\n", r.SubjectID, r.TaxonID, r.Values, r.Deltas)
			}
		default:
			ups, err := a.ws.List(owner())
			if err != nil {
				return err
			}
			if len(ups) == 0 {
				fmt.Println("(no uploads)")
				return nil
			}
			for _, u := range ups {
				status := "analyzed only"
				if u.ImportedAt != nil {
					status = "imported " + u.ImportedAt.Format("2006-01-02 15:04")
				}
				fmt.Printf("- %s (%s, %d bytes, %s)\n", u.Name, u.FileType, u.Size, status)
				for _, o := range u.Outputs {
					fmt.Printf("    → %s\n", o)
				}
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVar(&listTaxonomy, "taxonomy", false, "list stored taxonomy rows")
	listCmd.Flags().StringVar(&listAbundance, "abundance", "", "list abundance records imported from <file>#<sheet>")
}
