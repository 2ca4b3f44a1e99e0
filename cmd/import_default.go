package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/sheetloom/internal/ingest"
)

var importDefaultCmd = &cobra.Command{
	Use:   "import-default-taxonomy",
	Short: "Import the configured reference taxonomy for the owner",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), 0)
		if err != nil {
			return err
		}
		defer a.Close()
		res, err := a.svc.ImportDefaultTaxonomy(cmd.Context(), owner())
		if errors.Is(err, ingest.ErrNoDefaultTaxonomy) {
			return fmt.Errorf("%w; run: sheetloom config set default_taxonomy_path <file>", err)
		}
		if err != nil {
			return err
		}
		printImport(res)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importDefaultCmd)
}
